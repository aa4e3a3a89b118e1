//go:build darwin || linux

package mjpeg

import (
	"syscall"

	"golang.org/x/sys/unix"
)

// reuseAddrControl is passed to net.ListenConfig.Control so the loopback
// listener can be rebound immediately after a prior instance for the same
// port exits (TIME_WAIT otherwise holds the port for a few minutes).
func reuseAddrControl(_ string, _ string, c syscall.RawConn) error {
	var sockErr error
	err := c.Control(func(fd uintptr) {
		sockErr = unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_REUSEADDR, 1)
	})
	if err != nil {
		return err
	}
	return sockErr
}
