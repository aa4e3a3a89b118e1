package command

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/breeze-rmm/simulator-server/internal/dispatch"
)

func TestReaderDispatchesTouchOnQueue(t *testing.T) {
	queue := dispatch.New("command-test", 8)

	var mu sync.Mutex
	var gotPhase Phase
	var gotPoints []Point
	done := make(chan struct{}, 1)

	handlers := Handlers{
		OnTouch: func(phase Phase, points []Point) {
			mu.Lock()
			gotPhase = phase
			gotPoints = points
			mu.Unlock()
			done <- struct{}{}
		},
	}

	r := New(strings.NewReader("touch began 0.5,0.5\n"), handlers, queue)
	r.Run()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("timed out waiting for touch dispatch")
	}

	mu.Lock()
	defer mu.Unlock()
	if gotPhase != PhaseBegan || len(gotPoints) != 1 {
		t.Fatalf("expected began/1pt, got %v/%v", gotPhase, gotPoints)
	}
}

func TestReaderHandlesShutdownAndFPSInline(t *testing.T) {
	queue := dispatch.New("command-test-2", 8)

	var shutdownCalled bool
	var fpsValue bool
	var fpsCalled bool

	handlers := Handlers{
		OnShutdown: func() { shutdownCalled = true },
		OnFPS: func(enabled bool) {
			fpsCalled = true
			fpsValue = enabled
		},
	}

	r := New(strings.NewReader("fps true\nshutdown\n"), handlers, queue)
	r.Run()

	if !fpsCalled || !fpsValue {
		t.Fatalf("expected fps handler called with true")
	}
	if !shutdownCalled {
		t.Fatalf("expected shutdown handler called")
	}
}

func TestReaderIgnoresMalformedLines(t *testing.T) {
	queue := dispatch.New("command-test-3", 8)
	var touchCalls atomic.Int32

	handlers := Handlers{OnTouch: func(Phase, []Point) { touchCalls.Add(1) }}
	r := New(strings.NewReader("touch banana\n\ntouch began 0.1,0.1\n"), handlers, queue)
	r.Run()

	queue.StopAccepting()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	queue.Drain(ctx)

	if got := touchCalls.Load(); got != 1 {
		t.Fatalf("expected exactly 1 valid touch dispatched, got %d", got)
	}
}
