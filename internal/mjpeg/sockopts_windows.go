//go:build windows

package mjpeg

import "syscall"

// reuseAddrControl is a no-op on Windows: SO_REUSEADDR there permits
// multiple listeners on the same port, which is not what this process
// wants, so the default socket options are left untouched.
func reuseAddrControl(_ string, _ string, _ syscall.RawConn) error {
	return nil
}
