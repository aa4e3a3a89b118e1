// Package hid builds the simulator's private binary touch/button message
// format and submits it through the device's legacy HID client.
package hid

import (
	"bytes"
	"encoding/binary"

	"github.com/breeze-rmm/simulator-server/internal/command"
	"github.com/breeze-rmm/simulator-server/internal/logging"
)

var log = logging.L("hid")

// messageSize is the fixed wire size of Message once serialized.
const messageSize = 60

// Message mirrors the host's private HID wire format as observed from the
// host's own tooling: the duplicated-payload layout, the two discriminator
// values, and the mach-time timestamp are undocumented, so fields that
// carry no confirmed semantic meaning keep opaque "fieldN" names rather
// than guessing at one. Layout, left to right:
//
//	Field1     uint32  inner message size
//	Field2     uint32  reserved, always zero
//	EventKind  uint8   1 = button, 2 = touch
//	_pad       [3]byte alignment
//	Timestamp  uint64  mach_absolute_time at submission
//	XRatio     float32 normalized x in [0,1]
//	YRatio     float32 normalized y in [0,1]
//	Down1      uint32  down flag (first copy)
//	Down2      uint32  down flag (second copy)
//	Field3     uint32  discriminator, always 0x00000001
//	Field4     uint32  discriminator, always 0x00000002
//	DupXRatio  float32 duplicate of XRatio
//	DupYRatio  float32 duplicate of YRatio
//	DupDown1   uint32  duplicate of Down1
//	DupDown2   uint32  duplicate of Down2
type Message struct {
	Field1    uint32
	Field2    uint32
	EventKind uint8
	_         [3]byte
	Timestamp uint64
	XRatio    float32
	YRatio    float32
	Down1     uint32
	Down2     uint32
	Field3    uint32
	Field4    uint32
	DupXRatio float32
	DupYRatio float32
	DupDown1  uint32
	DupDown2  uint32
}

const (
	eventKindButton uint8 = 1
	eventKindTouch  uint8 = 2

	discriminator1 uint32 = 0x00000001
	discriminator2 uint32 = 0x00000002
)

// NewTouchMessage builds the fixed-size message for one touch point. Memory
// is zero-filled before assignment; every field not explicitly set below is
// left zero.
func NewTouchMessage(phase command.Phase, point command.Point, machTime uint64) Message {
	down := phaseDownFlag(phase)

	msg := Message{
		EventKind: eventKindTouch,
		Timestamp: machTime,
		XRatio:    float32(point.X),
		YRatio:    float32(point.Y),
		Down1:     down,
		Down2:     down,
		Field3:    discriminator1,
		Field4:    discriminator2,
		DupXRatio: float32(point.X),
		DupYRatio: float32(point.Y),
		DupDown1:  down,
		DupDown2:  down,
	}
	msg.Field1 = messageSize
	return msg
}

// phaseDownFlag maps began/moved -> 1, ended -> 0.
// moved carries an updated (xRatio,yRatio) while remaining down; the
// injector never interpolates between points.
func phaseDownFlag(phase command.Phase) uint32 {
	switch phase {
	case command.PhaseBegan, command.PhaseMoved:
		return 1
	default:
		return 0
	}
}

// Serialize produces the fixed-size wire bytes for msg, little-endian, with
// no padding beyond what the struct declares explicitly.
func (m Message) Serialize() []byte {
	buf := new(bytes.Buffer)
	buf.Grow(messageSize)
	_ = binary.Write(buf, binary.LittleEndian, m)
	return buf.Bytes()
}
