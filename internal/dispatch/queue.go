// Package dispatch implements the serial queues the process coordinates on:
// the surface-dispatch queue (the single writer of the current-surface slot,
// the single caller of the encoder, the single submitter to the frame ring)
// and the command-dispatch queue touch events are routed through. A Queue is
// one goroutine draining one bounded channel, which is all a serial queue
// needs: tasks run in submit order, never concurrently, and a full backlog
// rejects rather than blocks the submitter.
package dispatch

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/breeze-rmm/simulator-server/internal/logging"
)

var log = logging.L("dispatch")

// Task is a unit of work submitted to a Queue.
type Task func()

// Queue is a serial (single-worker) bounded task queue. The tasks channel is
// never closed: shutdown is signalled through quit instead, so a Submit
// racing StopAccepting is either rejected or runs as the final task, and can
// never panic on a closed channel.
type Queue struct {
	name      string
	tasks     chan Task
	accepting atomic.Bool
	pending   sync.WaitGroup
	quit      chan struct{}
	quitOnce  sync.Once
}

// New creates a serial queue with a backlog of queueSize pending tasks.
// name is used only for logging, so multiple queues (surface dispatch,
// command dispatch) are distinguishable in diagnostics.
func New(name string, queueSize int) *Queue {
	if queueSize < 1 {
		queueSize = 1
	}

	q := &Queue{
		name:  name,
		tasks: make(chan Task, queueSize),
		quit:  make(chan struct{}),
	}
	q.accepting.Store(true)

	go q.worker()

	log.Info("serial queue started", "queue", name, "backlog", queueSize)
	return q
}

// Submit enqueues a task for serial execution. Returns false if the queue
// has been stopped or its backlog is full.
func (q *Queue) Submit(task Task) bool {
	if !q.accepting.Load() {
		return false
	}

	q.pending.Add(1)
	select {
	case q.tasks <- task:
		return true
	default:
		q.pending.Done()
		log.Warn("serial queue backlog full, task dropped", "queue", q.name)
		return false
	}
}

// StopAccepting prevents further Submit calls from succeeding.
func (q *Queue) StopAccepting() {
	q.accepting.Store(false)
}

// Drain stops accepting, waits for queued and in-flight tasks to finish
// (bounded by ctx), then stops the worker. On timeout any leftover backlog
// is abandoned with the worker.
func (q *Queue) Drain(ctx context.Context) {
	q.accepting.Store(false)

	done := make(chan struct{})
	go func() {
		q.pending.Wait()
		close(done)
	}()

	select {
	case <-done:
		log.Info("serial queue drained", "queue", q.name)
	case <-ctx.Done():
		log.Warn("serial queue drain timed out", "queue", q.name)
	}

	q.quitOnce.Do(func() {
		close(q.quit)
	})
}

func (q *Queue) worker() {
	for {
		select {
		case task := <-q.tasks:
			q.run(task)
		case <-q.quit:
			return
		}
	}
}

func (q *Queue) run(task Task) {
	defer q.pending.Done()
	defer func() {
		if r := recover(); r != nil {
			log.Error("task panicked on serial queue", "queue", q.name, "panic", r)
		}
	}()
	task()
}
