package command

import (
	"bufio"
	"io"
	"strings"

	"github.com/breeze-rmm/simulator-server/internal/dispatch"
	"github.com/breeze-rmm/simulator-server/internal/logging"
)

var log = logging.L("command")

// Handlers are the callbacks a Reader dispatches parsed commands to. Touch
// is the only one routed through the serial queue; fps, shutdown, rotate,
// and button are handled inline on the reader's goroutine. Rotate and
// button are logged-only stubs.
type Handlers struct {
	OnTouch    func(phase Phase, points []Point)
	OnButton   func(name string, dir Direction)
	OnKey      func(code int, dir Direction)
	OnRotate   func(rotation string)
	OnFPS      func(enabled bool)
	OnShutdown func()
}

// Reader reads newline-delimited commands from its input and dispatches
// them as typed callbacks.
type Reader struct {
	input    io.Reader
	handlers Handlers
	queue    *dispatch.Queue
}

// New constructs a Reader. queue is the serial command-dispatch queue used
// for touch events.
func New(input io.Reader, handlers Handlers, queue *dispatch.Queue) *Reader {
	return &Reader{input: input, handlers: handlers, queue: queue}
}

// Run blocks reading newline-terminated commands until EOF. EOF terminates
// the reader loop but does not shut down the process: the surface callbacks
// and HTTP server keep running.
func (r *Reader) Run() {
	scanner := bufio.NewScanner(r.input)
	for scanner.Scan() {
		line := scanner.Text()
		if strings.TrimSpace(line) == "" {
			continue
		}
		r.dispatch(Parse(line))
	}
	log.Info("stdin closed, command reader exiting (process continues)")
}

func (r *Reader) dispatch(cmd Command) {
	switch cmd.Kind {
	case KindUnknown:
		log.Warn("unparseable command", "line", cmd.Raw)

	case KindTouch:
		phase, points := cmd.TouchPhase, cmd.Points
		if !r.queue.Submit(func() {
			if r.handlers.OnTouch != nil {
				r.handlers.OnTouch(phase, points)
			}
		}) {
			log.Warn("touch command dropped, dispatch queue full")
		}

	case KindButton:
		log.Info("button command received", "name", cmd.ButtonName, "direction", cmd.ButtonDirection)
		if r.handlers.OnButton != nil {
			r.handlers.OnButton(cmd.ButtonName, cmd.ButtonDirection)
		}

	case KindKey:
		log.Info("key command received", "code", cmd.KeyCode, "direction", cmd.KeyDirection)
		if r.handlers.OnKey != nil {
			r.handlers.OnKey(cmd.KeyCode, cmd.KeyDirection)
		}

	case KindRotate:
		log.Info("rotate command received (stub, not acted on)", "rotation", cmd.Rotation)
		if r.handlers.OnRotate != nil {
			r.handlers.OnRotate(cmd.Rotation)
		}

	case KindFPS:
		if r.handlers.OnFPS != nil {
			r.handlers.OnFPS(cmd.FPSEnabled)
		}

	case KindShutdown:
		log.Info("shutdown command received")
		if r.handlers.OnShutdown != nil {
			r.handlers.OnShutdown()
		}
	}
}
