package bridge

import "sync"

// memSurface is an in-memory Surface used by tests and by the stub
// Resolver, grounded on the same capability-interface shape as the desktop
// capturer's CaptureConfig/ScreenCapturer pairing: a plain struct standing
// in for a GPU-backed resource.
type memSurface struct {
	mu     sync.Mutex
	refs   int
	width  int
	height int
	stride int
	pixels []byte
}

// NewTestSurface builds a Surface backed by an in-memory BGRA buffer, for
// use in bridge/encoder/mjpeg tests that need a real Surface without a
// simulator.
func NewTestSurface(width, height int) Surface {
	stride := width * 4
	return &memSurface{width: width, height: height, stride: stride, pixels: make([]byte, stride*height)}
}

func (s *memSurface) Width() int  { return s.width }
func (s *memSurface) Height() int { return s.height }
func (s *memSurface) Stride() int { return s.stride }

func (s *memSurface) Retain() {
	s.mu.Lock()
	s.refs++
	s.mu.Unlock()
}

func (s *memSurface) Release() {
	s.mu.Lock()
	s.refs--
	s.mu.Unlock()
}

func (s *memSurface) Lock() []byte {
	s.mu.Lock()
	return s.pixels
}

func (s *memSurface) Unlock() {
	s.mu.Unlock()
}

// StubDescriptor is a test Descriptor. CallbackSupport controls which of
// the two subscription modes a test exercises.
type StubDescriptor struct {
	mu               sync.Mutex
	CallbackSupport  bool
	current          Surface
	sub              string
	onSurface        func(Surface)
	unsubscribeCalls int
	closeCalls       int
}

func (d *StubDescriptor) Current() (Surface, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.current == nil {
		return nil, false
	}
	return d.current, true
}

func (d *StubDescriptor) SupportsCallback() bool { return d.CallbackSupport }

func (d *StubDescriptor) Subscribe(subscriptionID string, onSurface func(Surface)) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.sub = subscriptionID
	d.onSurface = onSurface
	return nil
}

func (d *StubDescriptor) Unsubscribe(subscriptionID string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.unsubscribeCalls++
	if d.sub != subscriptionID {
		d.sub = ""
	}
	return nil
}

func (d *StubDescriptor) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.closeCalls++
	return nil
}

// PushSurface sets the descriptor's current surface and, when callback mode
// is active, invokes the registered handler directly, simulating the host
// delivering a surface-changed notification.
func (d *StubDescriptor) PushSurface(s Surface) {
	d.mu.Lock()
	d.current = s
	handler := d.onSurface
	supportsCallback := d.CallbackSupport
	d.mu.Unlock()

	if supportsCallback && handler != nil {
		handler(s)
	}
}

func (d *StubDescriptor) UnsubscribeCalls() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.unsubscribeCalls
}

func (d *StubDescriptor) CloseCalls() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.closeCalls
}

// StubResolver resolves every UDID to a single pre-built StubDescriptor, or
// to Err if set.
type StubResolver struct {
	Descriptor *StubDescriptor
	Err        error
}

func (r *StubResolver) Resolve(string) (Descriptor, error) {
	if r.Err != nil {
		return nil, r.Err
	}
	return r.Descriptor, nil
}
