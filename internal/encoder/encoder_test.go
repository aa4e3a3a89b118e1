package encoder

import (
	"bytes"
	"image/jpeg"
	"testing"

	"github.com/breeze-rmm/simulator-server/internal/bridge"
)

func fillBGRA(width, height int) []byte {
	stride := width * 4
	buf := make([]byte, stride*height)
	for i := 0; i < len(buf); i += 4 {
		buf[i+0] = 10  // B
		buf[i+1] = 20  // G
		buf[i+2] = 200 // R
		buf[i+3] = 255 // A
	}
	return buf
}

func TestSoftwareEncodeProducesValidJPEG(t *testing.T) {
	width, height := 64, 48
	e := NewSoftwareOnly(width, height, 0.7)

	surface := bridge.NewTestSurface(width, height)
	pixels := surface.Lock()
	copy(pixels, fillBGRA(width, height))
	surface.Unlock()

	out, err := e.Encode(surface)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}

	if len(out) < 4 || out[0] != 0xFF || out[1] != 0xD8 {
		t.Fatalf("expected JPEG SOI marker, got % x", out[:4])
	}
	if out[len(out)-2] != 0xFF || out[len(out)-1] != 0xD9 {
		t.Fatalf("expected JPEG EOI marker, got % x", out[len(out)-2:])
	}

	img, err := jpeg.Decode(bytes.NewReader(out))
	if err != nil {
		t.Fatalf("decode produced JPEG: %v", err)
	}
	bounds := img.Bounds()
	if bounds.Dx() != width || bounds.Dy() != height {
		t.Fatalf("expected decoded image %dx%d, got %dx%d", width, height, bounds.Dx(), bounds.Dy())
	}
}

func TestEncodeRejectsGeometryMismatch(t *testing.T) {
	e := NewSoftwareOnly(64, 48, 0.7)
	surface := bridge.NewTestSurface(32, 32)

	if _, err := e.Encode(surface); err == nil {
		t.Fatalf("expected geometry mismatch error")
	}
}

func TestStatsAccumulateAcrossFrames(t *testing.T) {
	width, height := 16, 16
	e := NewSoftwareOnly(width, height, 0.5)
	surface := bridge.NewTestSurface(width, height)

	for i := 0; i < 5; i++ {
		if _, err := e.Encode(surface); err != nil {
			t.Fatalf("Encode frame %d: %v", i, err)
		}
	}

	snap := e.Stats()
	if snap.FramesIn != 5 {
		t.Fatalf("expected 5 frames recorded, got %d", snap.FramesIn)
	}
	if snap.SoftwareFallback != 5 {
		t.Fatalf("expected all 5 frames on software path, got %d", snap.SoftwareFallback)
	}
	if snap.BytesOut == 0 {
		t.Fatalf("expected non-zero bytes out")
	}
}

func TestQualityToJPEGScaleClamps(t *testing.T) {
	if got := qualityToJPEGScale(0); got != 1 {
		t.Fatalf("expected clamp to 1, got %d", got)
	}
	if got := qualityToJPEGScale(2.0); got != 100 {
		t.Fatalf("expected clamp to 100, got %d", got)
	}
	if got := qualityToJPEGScale(0.7); got != 70 {
		t.Fatalf("expected 0.7 -> 70, got %d", got)
	}
}
