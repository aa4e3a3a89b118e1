package mjpeg

import (
	"testing"
	"time"
)

func TestRingEvictsOldestOnOverflow(t *testing.T) {
	r := NewRing(5)
	for i := 0; i < 10; i++ {
		r.Append(Frame{Bytes: []byte{byte(i)}, Timestamp: time.Now()})
	}

	frames, latest := r.Snapshot()
	if len(frames) != 5 {
		t.Fatalf("expected ring capped at 5 entries, got %d", len(frames))
	}
	if latest != 9 {
		t.Fatalf("expected latest index 9, got %d", latest)
	}
	// oldest surviving entry should be frame index 5 (0..4 evicted)
	if frames[0].Bytes[0] != 5 {
		t.Fatalf("expected oldest surviving frame to be #5, got %d", frames[0].Bytes[0])
	}
}

func TestRingSinceSkipsEvictedFrames(t *testing.T) {
	r := NewRing(3)
	cursor := -1
	for i := 0; i < 3; i++ {
		r.Append(Frame{Bytes: []byte{byte(i)}})
	}

	// client lags: ring advances past capacity before it reads again
	for i := 3; i < 8; i++ {
		r.Append(Frame{Bytes: []byte{byte(i)}})
	}

	frames, newCursor := r.Since(cursor)
	if newCursor != 7 {
		t.Fatalf("expected cursor to advance to latest index 7, got %d", newCursor)
	}
	// capacity 3, so only frames 5,6,7 survive
	if len(frames) != 3 {
		t.Fatalf("expected 3 surviving frames delivered, got %d", len(frames))
	}
	if frames[0].Bytes[0] != 5 {
		t.Fatalf("expected first delivered frame to be #5 (evicted frames skipped), got %d", frames[0].Bytes[0])
	}
}

func TestRingSinceNoNewFramesReturnsEmpty(t *testing.T) {
	r := NewRing(5)
	r.Append(Frame{Bytes: []byte{1}})
	_, cursor := r.Snapshot()

	frames, newCursor := r.Since(cursor)
	if len(frames) != 0 {
		t.Fatalf("expected no new frames, got %d", len(frames))
	}
	if newCursor != cursor {
		t.Fatalf("expected cursor unchanged at %d, got %d", cursor, newCursor)
	}
}

func TestRingNeverDeliversFrameTwiceOrOutOfOrder(t *testing.T) {
	r := NewRing(5)
	cursor := -1
	var delivered []byte

	for i := 0; i < 50; i++ {
		r.Append(Frame{Bytes: []byte{byte(i)}})
		if i%7 == 0 { // simulate a reader that only polls occasionally
			var frames []Frame
			frames, cursor = r.Since(cursor)
			for _, f := range frames {
				delivered = append(delivered, f.Bytes[0])
			}
		}
	}
	frames, newCursor := r.Since(cursor)
	cursor = newCursor
	for _, f := range frames {
		delivered = append(delivered, f.Bytes[0])
	}

	for i := 1; i < len(delivered); i++ {
		if delivered[i] <= delivered[i-1] {
			t.Fatalf("expected strictly increasing delivery order, got %v", delivered)
		}
	}
}
