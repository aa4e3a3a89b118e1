// Package encoder compresses display surfaces to JPEG, preferring a
// hardware codec with a CPU fallback. An Encoder is sized to one surface
// geometry; the driver replaces it with a fresh instance whenever the
// surface dimensions change (the encoder itself never reconfigures).
package encoder

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/breeze-rmm/simulator-server/internal/bridge"
	"github.com/breeze-rmm/simulator-server/internal/logging"
)

var log = logging.L("encoder")

// ErrTimeout and ErrFailure are the per-frame recoverable hardware errors:
// both trigger a fall-through to the software path rather than propagating
// to the caller.
var (
	ErrTimeout = errors.New("encoder: hardware compression timed out")
	ErrFailure = errors.New("encoder: hardware compression failed")
)

// Stats holds the running encoder counters: total frames in, hardware
// successes, software fallbacks, and bytes out.
type Stats struct {
	mu               sync.Mutex
	framesIn         uint64
	hardwareSuccess  uint64
	softwareFallback uint64
	bytesOut         uint64
}

func (s *Stats) recordHardware(n int) {
	s.mu.Lock()
	s.framesIn++
	s.hardwareSuccess++
	s.bytesOut += uint64(n)
	s.mu.Unlock()
}

func (s *Stats) recordSoftware(n int) {
	s.mu.Lock()
	s.framesIn++
	s.softwareFallback++
	s.bytesOut += uint64(n)
	s.mu.Unlock()
}

// Snapshot is a point-in-time copy suitable for the one-line-per-60-frames
// diagnostic log.
type Snapshot struct {
	FramesIn         uint64
	HardwareSuccess  uint64
	SoftwareFallback uint64
	BytesOut         uint64
}

// Snapshot returns the current counters.
func (s *Stats) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Snapshot{
		FramesIn:         s.framesIn,
		HardwareSuccess:  s.hardwareSuccess,
		SoftwareFallback: s.softwareFallback,
		BytesOut:         s.bytesOut,
	}
}

// backend is the codec-specific half of an Encoder: the hardware
// compression session on darwin, or nothing on other platforms (always
// software). Kept distinct from Encoder so Encoder can own the counting and
// fallback policy once, regardless of platform.
type backend interface {
	// encodeHardware attempts the hardware-accelerated path for one frame
	// and returns ErrTimeout or ErrFailure when it does not succeed. Whether
	// a hardware session exists at all is decided once, in New: when
	// newHardwareBackend fails there, the Encoder has no backend and never
	// calls encodeHardware.
	encodeHardware(pixels []byte, width, height, stride int) ([]byte, error)
	close()
}

// Encoder compresses frames for one fixed surface geometry.
type Encoder struct {
	width, height int
	quality       float64
	backend       backend
	hardwareOK    bool
	stats         Stats
	frameCount    uint64
}

// New constructs an Encoder for the given geometry and quality (already
// clamped to [0.1, 1.0] by internal/config). It attempts to stand up a
// hardware session; construction failure here is not fatal to New, it only
// means every frame takes the software path.
func New(width, height int, quality float64) *Encoder {
	e := &Encoder{width: width, height: height, quality: quality}
	b, err := newHardwareBackend(width, height, quality)
	if err != nil {
		log.Warn("hardware encoder unavailable, using software fallback", "error", err, "width", width, "height", height)
		e.hardwareOK = false
		return e
	}
	e.backend = b
	e.hardwareOK = true
	return e
}

// NewSoftwareOnly builds an Encoder with the hardware path forced off, as a
// test hook.
func NewSoftwareOnly(width, height int, quality float64) *Encoder {
	return &Encoder{width: width, height: height, quality: quality, hardwareOK: false}
}

// Width and Height report the geometry this Encoder was sized for, so the
// driver can detect a mismatch and replace it.
func (e *Encoder) Width() int  { return e.width }
func (e *Encoder) Height() int { return e.height }

// Encode compresses one surface to JPEG bytes, preferring the hardware path
// and falling back to software on timeout, failure, or if hardware was never
// available.
func (e *Encoder) Encode(surface bridge.Surface) ([]byte, error) {
	if surface.Width() != e.width || surface.Height() != e.height {
		return nil, fmt.Errorf("encoder geometry %dx%d does not match surface %dx%d", e.width, e.height, surface.Width(), surface.Height())
	}

	pixels := surface.Lock()
	defer surface.Unlock()

	if e.hardwareOK {
		out, err := e.backend.encodeHardware(pixels, e.width, e.height, surface.Stride())
		if err == nil {
			e.stats.recordHardware(len(out))
			e.afterFrame()
			return out, nil
		}
		log.Warn("hardware encode failed, falling back to software", "error", err)
	}

	out, err := encodeSoftware(pixels, e.width, e.height, surface.Stride(), e.quality)
	if err != nil {
		return nil, err
	}
	e.stats.recordSoftware(len(out))
	e.afterFrame()
	return out, nil
}

func (e *Encoder) afterFrame() {
	e.frameCount++
	if e.frameCount%60 == 0 {
		snap := e.stats.Snapshot()
		log.Info("encoder stats",
			"framesIn", snap.FramesIn,
			"hardwareSuccess", snap.HardwareSuccess,
			"softwareFallback", snap.SoftwareFallback,
			"bytesOut", snap.BytesOut,
		)
	}
}

// Stats exposes the running counters.
func (e *Encoder) Stats() Snapshot {
	return e.stats.Snapshot()
}

// Close releases any hardware codec resources.
func (e *Encoder) Close() {
	if e.backend != nil {
		e.backend.close()
	}
}

// hardwareTimeout bounds the wait on the hardware codec's sync callback.
// A frame that exceeds it takes the software path instead.
const hardwareTimeout = 100 * time.Millisecond
