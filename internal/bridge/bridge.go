// Package bridge resolves a simulator UDID to a live display surface and
// delivers surface-changed notifications on the surface-dispatch queue. The
// platform resolution algorithm (dynamic framework load, device lookup, I/O
// port scan) lives in bridge_darwin.go; this file holds the
// platform-independent orchestration: subscription bookkeeping, the fallback
// poller, and the callback-vs-poller mode selection.
package bridge

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/breeze-rmm/simulator-server/internal/dispatch"
	"github.com/breeze-rmm/simulator-server/internal/logging"
)

var log = logging.L("bridge")

// Fatal startup errors: every resolution failure ends the process.
var (
	ErrFrameworkMissing = errors.New("bridge: required simulator framework not found")
	ErrDeviceNotFound   = errors.New("bridge: no device matches requested udid")
	ErrNoDisplaySurface = errors.New("bridge: device has no usable display surface")
	ErrAlreadyStarted   = errors.New("bridge: already started")
)

// Surface is a reference-counted handle to one framebuffer image. Readers
// must call Retain before holding a reference across a dispatch boundary and
// Release exactly once when done; the bridge's own "current" slot holds one
// reference for as long as a surface is current.
type Surface interface {
	// Width, Height, Stride describe the pixel geometry. Stride is the row
	// pitch in bytes; pixel format is always BGRA, premultiplied.
	Width() int
	Height() int
	Stride() int

	// Retain increments the surface's reference count.
	Retain()
	// Release decrements the reference count, freeing host resources at zero.
	Release()

	// Lock makes the surface's pixel bytes available for read and returns
	// them; the returned slice is only valid until Unlock. Implementations
	// lock for as short a duration as possible.
	Lock() []byte
	Unlock()
}

// Descriptor is the per-device handle through which the current surface can
// be read and surface-change notifications subscribed to. Platform bridges
// implement this; Resolver produces one per successfully resolved UDID.
type Descriptor interface {
	// Current returns the descriptor's current surface, or false if none has
	// been observed yet.
	Current() (Surface, bool)

	// SupportsCallback reports whether Subscribe will actually deliver
	// notifications. When false, Bridge runs the fallback poller instead.
	SupportsCallback() bool

	// Subscribe registers onSurface under subscriptionID. Only valid when
	// SupportsCallback is true.
	Subscribe(subscriptionID string, onSurface func(Surface)) error
	// Unsubscribe unregisters the callback previously registered under
	// subscriptionID. A no-op when SupportsCallback is false.
	Unsubscribe(subscriptionID string) error

	// Close releases the descriptor and any device/HID handles it owns.
	Close() error
}

// Resolver performs UDID -> Descriptor resolution. The darwin build resolves
// against the host's private simulator frameworks; bridge_other.go always
// fails with ErrFrameworkMissing; tests supply a stub implementation.
type Resolver interface {
	Resolve(udid string) (Descriptor, error)
}

// Bridge owns the resolved device's display descriptor. One Bridge
// instance exists per process, matching one UDID for the process lifetime.
type Bridge struct {
	resolver Resolver
	pollFPS  int
	queue    *dispatch.Queue

	mu             sync.RWMutex
	descriptor     Descriptor
	current        Surface
	subscriptionID string

	pollCancel context.CancelFunc
	pollDone   chan struct{}
	mode       string
}

// New constructs a Bridge. queue is the surface-dispatch serial queue: the
// only goroutine that is ever allowed to write the "current surface" slot or
// invoke onSurface.
func New(resolver Resolver, pollFPS int, queue *dispatch.Queue) *Bridge {
	if pollFPS <= 0 {
		pollFPS = 60
	}
	return &Bridge{resolver: resolver, pollFPS: pollFPS, queue: queue}
}

// Start resolves udid, selects its main display, and begins delivering
// surface notifications to onSurface on the bridge's serial queue. Every
// failure here is fatal: the caller should log and exit non-zero.
func (b *Bridge) Start(udid string, onSurface func(Surface)) error {
	b.mu.Lock()
	if b.descriptor != nil {
		b.mu.Unlock()
		return ErrAlreadyStarted
	}
	b.mu.Unlock()

	descriptor, err := b.resolver.Resolve(udid)
	if err != nil {
		return err
	}

	subID := uuid.NewString()

	b.mu.Lock()
	b.descriptor = descriptor
	b.subscriptionID = subID
	b.mu.Unlock()

	wrapped := func(surface Surface) {
		b.queue.Submit(func() {
			b.setCurrent(surface)
			onSurface(surface)
		})
	}

	if descriptor.SupportsCallback() {
		if err := descriptor.Subscribe(subID, wrapped); err != nil {
			descriptor.Close()
			return fmt.Errorf("bridge: subscribe failed: %w", err)
		}
		b.mode = "callback"
		log.Info("surface subscription active", "mode", "callback", "udid", udid)
		return nil
	}

	b.mode = "poller"
	log.Info("surface subscription active", "mode", "poller", "udid", udid, "intervalMs", 1000/b.pollFPS)
	b.startPoller(descriptor, wrapped)
	return nil
}

// startPoller runs a fallback ~1000/fps ms ticker that reads the descriptor's
// current surface directly, for hosts whose callback entry point is missing.
func (b *Bridge) startPoller(descriptor Descriptor, onSurface func(Surface)) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	b.mu.Lock()
	b.pollCancel = cancel
	b.pollDone = done
	b.mu.Unlock()

	interval := time.Duration(1000/b.pollFPS) * time.Millisecond
	if interval <= 0 {
		interval = 16 * time.Millisecond
	}

	go func() {
		defer close(done)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				surface, ok := descriptor.Current()
				if !ok {
					continue
				}
				onSurface(surface)
			}
		}
	}()
}

// setCurrent installs surface as the bridge's current surface, retaining it
// and releasing whatever was previously current. Only ever called on the
// surface-dispatch queue.
func (b *Bridge) setCurrent(surface Surface) {
	surface.Retain()

	b.mu.Lock()
	previous := b.current
	b.current = surface
	b.mu.Unlock()

	if previous != nil {
		previous.Release()
	}
}

// Current returns the most recently observed surface, or false if none has
// arrived yet. A nil surface seen at runtime is logged and ignored by the
// caller, never fatal.
func (b *Bridge) Current() (Surface, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.current == nil {
		return nil, false
	}
	return b.current, true
}

// Mode reports which subscription mode ("callback" or "poller") is active,
// for the one-time startup log line.
func (b *Bridge) Mode() string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.mode
}

// Stop cancels the poller (if any), unregisters the callback subscription,
// and releases the descriptor. Unregistration happens synchronously.
func (b *Bridge) Stop() error {
	b.mu.Lock()
	descriptor := b.descriptor
	subID := b.subscriptionID
	cancel := b.pollCancel
	done := b.pollDone
	current := b.current
	b.current = nil
	b.descriptor = nil
	b.mu.Unlock()

	if descriptor == nil {
		return nil
	}

	if cancel != nil {
		cancel()
		if done != nil {
			<-done
		}
	} else if descriptor.SupportsCallback() {
		if err := descriptor.Unsubscribe(subID); err != nil {
			log.Warn("unsubscribe failed", "error", err)
		}
	}

	if current != nil {
		current.Release()
	}

	return descriptor.Close()
}
