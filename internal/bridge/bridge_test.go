package bridge

import (
	"sync"
	"testing"
	"time"

	"github.com/breeze-rmm/simulator-server/internal/dispatch"
)

func TestStartCallbackMode(t *testing.T) {
	descriptor := &StubDescriptor{CallbackSupport: true}
	resolver := &StubResolver{Descriptor: descriptor}
	queue := dispatch.New("surface-test", 8)

	var mu sync.Mutex
	var seen []Surface
	done := make(chan struct{}, 1)

	b := New(resolver, 60, queue)
	if err := b.Start("ABCD", func(s Surface) {
		mu.Lock()
		seen = append(seen, s)
		mu.Unlock()
		select {
		case done <- struct{}{}:
		default:
		}
	}); err != nil {
		t.Fatalf("Start: %v", err)
	}

	if b.Mode() != "callback" {
		t.Fatalf("expected callback mode, got %q", b.Mode())
	}

	surface := NewTestSurface(320, 480)
	descriptor.PushSurface(surface)

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("timed out waiting for surface notification")
	}

	mu.Lock()
	count := len(seen)
	mu.Unlock()
	if count == 0 {
		t.Fatalf("expected at least one surface delivered")
	}

	current, ok := b.Current()
	if !ok || current.Width() != 320 {
		t.Fatalf("expected bridge.Current() to reflect pushed surface, got %v ok=%v", current, ok)
	}

	if err := b.Stop(); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if descriptor.UnsubscribeCalls() != 1 {
		t.Fatalf("expected exactly one Unsubscribe call, got %d", descriptor.UnsubscribeCalls())
	}
	if descriptor.CloseCalls() != 1 {
		t.Fatalf("expected exactly one Close call, got %d", descriptor.CloseCalls())
	}
}

func TestStartPollerMode(t *testing.T) {
	descriptor := &StubDescriptor{CallbackSupport: false}
	descriptor.PushSurface(NewTestSurface(640, 480))
	resolver := &StubResolver{Descriptor: descriptor}
	queue := dispatch.New("surface-test-poll", 8)

	notified := make(chan Surface, 4)
	b := New(resolver, 200, queue) // 200fps -> 5ms poll, fast for tests

	if err := b.Start("ABCD", func(s Surface) {
		select {
		case notified <- s:
		default:
		}
	}); err != nil {
		t.Fatalf("Start: %v", err)
	}

	if b.Mode() != "poller" {
		t.Fatalf("expected poller mode, got %q", b.Mode())
	}

	select {
	case s := <-notified:
		if s.Width() != 640 {
			t.Fatalf("expected polled surface width 640, got %d", s.Width())
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for poller notification")
	}

	if err := b.Stop(); err != nil {
		t.Fatalf("Stop: %v", err)
	}
}

func TestStartSurfacesResolveFailure(t *testing.T) {
	resolver := &StubResolver{Err: ErrDeviceNotFound}
	queue := dispatch.New("surface-test-fail", 8)
	b := New(resolver, 60, queue)

	err := b.Start("ABCD", func(Surface) {})
	if err != ErrDeviceNotFound {
		t.Fatalf("expected ErrDeviceNotFound, got %v", err)
	}
}

func TestDoubleStartRejected(t *testing.T) {
	descriptor := &StubDescriptor{CallbackSupport: true}
	resolver := &StubResolver{Descriptor: descriptor}
	queue := dispatch.New("surface-test-double", 8)
	b := New(resolver, 60, queue)

	if err := b.Start("ABCD", func(Surface) {}); err != nil {
		t.Fatalf("first Start: %v", err)
	}
	if err := b.Start("ABCD", func(Surface) {}); err != ErrAlreadyStarted {
		t.Fatalf("expected ErrAlreadyStarted, got %v", err)
	}
}
