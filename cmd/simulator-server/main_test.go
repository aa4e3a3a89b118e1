package main

import (
	"bytes"
	"encoding/json"
	"image/jpeg"
	"testing"

	"github.com/spf13/pflag"

	"github.com/breeze-rmm/simulator-server/internal/bridge"
	"github.com/breeze-rmm/simulator-server/internal/mjpeg"
)

// TestDriverReplacesEncoderOnGeometryChange verifies that a resolution change
// never produces a frame with stale dimensions: the first frame after the
// change already carries the new width/height.
func TestDriverReplacesEncoderOnGeometryChange(t *testing.T) {
	ring := mjpeg.NewRing(5)
	d := &driver{server: mjpeg.NewServer(ring), quality: 0.7}

	d.onSurface(bridge.NewTestSurface(320, 480))
	d.onSurface(bridge.NewTestSurface(480, 320))

	frames, _ := ring.Snapshot()
	if len(frames) != 2 {
		t.Fatalf("expected 2 encoded frames in ring, got %d", len(frames))
	}

	wantDims := [][2]int{{320, 480}, {480, 320}}
	for i, f := range frames {
		img, err := jpeg.Decode(bytes.NewReader(f.Bytes))
		if err != nil {
			t.Fatalf("frame %d did not decode as JPEG: %v", i, err)
		}
		b := img.Bounds()
		if b.Dx() != wantDims[i][0] || b.Dy() != wantDims[i][1] {
			t.Fatalf("frame %d: expected %dx%d, got %dx%d", i, wantDims[i][0], wantDims[i][1], b.Dx(), b.Dy())
		}
	}

	if d.frameCount.Load() != 2 || d.encodedFrames.Load() != 2 {
		t.Fatalf("expected frame counters 2/2, got %d/%d", d.frameCount.Load(), d.encodedFrames.Load())
	}
}

func TestDriverIgnoresNilSurface(t *testing.T) {
	ring := mjpeg.NewRing(5)
	d := &driver{server: mjpeg.NewServer(ring), quality: 0.7}

	d.onSurface(nil)

	if frames, _ := ring.Snapshot(); len(frames) != 0 {
		t.Fatalf("expected no frames from a nil surface, got %d", len(frames))
	}
}

// TestFPSReportShape pins the stdout contract field names and rounding: the
// JSON object carries integer frame_count/encoded_frames, fps to 1 decimal,
// elapsed to 2 decimals.
func TestFPSReportShape(t *testing.T) {
	report := fpsReport{
		FrameCount:    120,
		EncodedFrames: 118,
		FPS:           roundTo(59.3333, 1),
		Elapsed:       roundTo(2.00714, 2),
	}

	out, err := json.Marshal(report)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	var decoded map[string]any
	if err := json.Unmarshal(out, &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	for _, key := range []string{"frame_count", "encoded_frames", "fps", "elapsed"} {
		if _, ok := decoded[key]; !ok {
			t.Fatalf("expected key %q in fps_report payload, got %s", key, out)
		}
	}
	if decoded["fps"].(float64) != 59.3 {
		t.Fatalf("expected fps rounded to 59.3, got %v", decoded["fps"])
	}
	if decoded["elapsed"].(float64) != 2.01 {
		t.Fatalf("expected elapsed rounded to 2.01, got %v", decoded["elapsed"])
	}
}

func TestUnknownFlags(t *testing.T) {
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	fs.String("udid", "", "")
	fs.Int("fps", 60, "")
	fs.BoolP("verbose", "v", false, "")

	cases := []struct {
		args []string
		want []string
	}{
		{[]string{"--udid", "ABCD", "--fps", "30"}, nil},
		{[]string{"--bogus"}, []string{"--bogus"}},
		{[]string{"--bogus=1", "--udid", "ABCD"}, []string{"--bogus=1"}},
		{[]string{"-v"}, nil},
		{[]string{"-x"}, []string{"-x"}},
		{[]string{"positional", "-", "--"}, nil},
	}
	for _, c := range cases {
		got := unknownFlags(fs, c.args)
		if len(got) != len(c.want) {
			t.Fatalf("unknownFlags(%v) = %v, want %v", c.args, got, c.want)
		}
		for i := range got {
			if got[i] != c.want[i] {
				t.Fatalf("unknownFlags(%v) = %v, want %v", c.args, got, c.want)
			}
		}
	}
}

func TestRoundTo(t *testing.T) {
	cases := []struct {
		v        float64
		decimals int
		want     float64
	}{
		{59.96, 1, 60.0},
		{0.04, 1, 0.0},
		{1.256, 2, 1.26},
		{2.0, 2, 2.0},
	}
	for _, c := range cases {
		if got := roundTo(c.v, c.decimals); got != c.want {
			t.Fatalf("roundTo(%v, %d) = %v, want %v", c.v, c.decimals, got, c.want)
		}
	}
}
