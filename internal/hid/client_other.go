//go:build !darwin

package hid

import (
	"errors"
	"time"
)

// NewResolver returns a Resolver that always fails: the legacy HID client
// only exists on macOS.
func NewResolver() Resolver {
	return nonDarwinResolver{}
}

type nonDarwinResolver struct{}

func (nonDarwinResolver) Resolve(string) (Client, error) {
	return nil, errors.New("hid: required simulator framework not found")
}

func machAbsoluteTime() uint64 {
	return uint64(time.Now().UnixNano())
}
