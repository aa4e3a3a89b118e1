package hid

import (
	"github.com/breeze-rmm/simulator-server/internal/command"
)

// Client is the legacy HID client a resolved device exposes. The darwin
// build dispatches through it dynamically; tests and non-darwin builds use
// a stand-in.
type Client interface {
	// ScreenSize returns the device's mainScreen size and scale, read once
	// at startup for logging only.
	ScreenSize() (width, height int, scale float64, err error)

	// Send submits one serialized HID message. Implementations prefer an
	// async "free when done" send with a completion callback when the
	// client exposes one, falling back to a synchronous send otherwise.
	Send(message []byte) error

	Close() error
}

// Resolver resolves a UDID to an HID Client, reusing the same device
// lookup the device bridge performs.
type Resolver interface {
	Resolve(udid string) (Client, error)
}

// Injector synthesizes the simulator's private touch messages and submits
// them through the resolved HID client.
type Injector struct {
	client Client
	// machTime returns a monotonically increasing mach-absolute-time-like
	// timestamp. Overridable in tests; production uses the darwin clock.
	machTime func() uint64
}

// Start resolves udid via resolver and constructs the injector, logging the
// device's screen size and scale. Failure here is fatal: the caller logs
// and exits non-zero.
func Start(resolver Resolver, udid string) (*Injector, error) {
	client, err := resolver.Resolve(udid)
	if err != nil {
		return nil, err
	}

	width, height, scale, err := client.ScreenSize()
	if err != nil {
		log.Warn("failed to read mainScreen size", "error", err)
	} else {
		log.Info("hid injector ready", "udid", udid, "width", width, "height", height, "scale", scale)
	}

	return &Injector{client: client, machTime: machAbsoluteTime}, nil
}

// SendTouch synthesizes and submits one HID message per point. Errors are
// logged but never returned to the caller: touch injection is best-effort.
func (inj *Injector) SendTouch(phase command.Phase, points []command.Point) {
	for _, point := range points {
		msg := NewTouchMessage(phase, point, inj.machTime())
		if err := inj.client.Send(msg.Serialize()); err != nil {
			log.Warn("hid send failed", "error", err, "phase", phase)
		}
	}
}

// Close releases the underlying HID client.
func (inj *Injector) Close() error {
	return inj.client.Close()
}
