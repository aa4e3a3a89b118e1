package hid

import (
	"bytes"
	"encoding/binary"
	"testing"

	"github.com/breeze-rmm/simulator-server/internal/command"
)

// TestNewTouchMessageDownFlags checks that began/ended produce the expected
// down-flag pair for the same point.
func TestNewTouchMessageDownFlags(t *testing.T) {
	point := command.Point{X: 0.5, Y: 0.5}

	began := NewTouchMessage(command.PhaseBegan, point, 1000)
	if began.Down1 != 1 || began.Down2 != 1 {
		t.Fatalf("expected began down flags (1,1), got (%d,%d)", began.Down1, began.Down2)
	}

	ended := NewTouchMessage(command.PhaseEnded, point, 1001)
	if ended.Down1 != 0 || ended.Down2 != 0 {
		t.Fatalf("expected ended down flags (0,0), got (%d,%d)", ended.Down1, ended.Down2)
	}

	if began.XRatio != 0.5 || began.YRatio != 0.5 {
		t.Fatalf("expected normalized coordinates preserved, got (%v,%v)", began.XRatio, began.YRatio)
	}
}

// TestNewTouchMessageDuplicatesPayload checks that the duplicated payload
// carries the same coordinates/flags as the first copy, discriminated by
// Field3/Field4.
func TestNewTouchMessageDuplicatesPayload(t *testing.T) {
	msg := NewTouchMessage(command.PhaseMoved, command.Point{X: 0.25, Y: 0.75}, 42)

	if msg.DupXRatio != msg.XRatio || msg.DupYRatio != msg.YRatio {
		t.Fatalf("expected duplicate ratios to match primary, got dup=(%v,%v) primary=(%v,%v)",
			msg.DupXRatio, msg.DupYRatio, msg.XRatio, msg.YRatio)
	}
	if msg.DupDown1 != msg.Down1 || msg.DupDown2 != msg.Down2 {
		t.Fatalf("expected duplicate down flags to match primary")
	}
	if msg.Field3 != discriminator1 || msg.Field4 != discriminator2 {
		t.Fatalf("expected discriminators 0x1/0x2, got 0x%x/0x%x", msg.Field3, msg.Field4)
	}
	if msg.EventKind != eventKindTouch {
		t.Fatalf("expected touch event kind, got %d", msg.EventKind)
	}
}

// TestSerializeIsFixedSizeLittleEndian checks the wire-format invariant: a
// fixed-size little-endian struct with no semantic reinterpretation of its
// undocumented fields.
func TestSerializeIsFixedSizeLittleEndian(t *testing.T) {
	msg := NewTouchMessage(command.PhaseBegan, command.Point{X: 1, Y: 0}, 7)
	out := msg.Serialize()

	if len(out) != messageSize {
		t.Fatalf("expected serialized size %d, got %d", messageSize, len(out))
	}

	var roundTrip Message
	if err := binary.Read(bytes.NewReader(out), binary.LittleEndian, &roundTrip); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if roundTrip != msg {
		t.Fatalf("expected round-tripped message to equal original, got %+v want %+v", roundTrip, msg)
	}
}
