//go:build !darwin

package encoder

import "errors"

// newHardwareBackend always fails on non-darwin builds: VideoToolbox-style
// hardware JPEG compression is a macOS-only facility, so every frame takes
// the software path.
func newHardwareBackend(width, height int, quality float64) (backend, error) {
	return nil, errors.New("encoder: hardware compression unavailable on this platform")
}
