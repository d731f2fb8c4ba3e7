//go:build linux

package sockopt

import (
	"syscall"

	"golang.org/x/sys/unix"
)

// IsSupported is true where Options take effect.
const IsSupported = true

// Control returns a net.Dialer Control function applying opts, or nil if
// there is nothing to apply.
func Control(opts Options) func(network, address string, c syscall.RawConn) error {
	if opts.UserTimeout <= 0 {
		return nil
	}
	ms := int(opts.UserTimeout.Milliseconds())

	return func(_, _ string, c syscall.RawConn) error {
		var ctrlErr error
		err := c.Control(func(fd uintptr) {
			ctrlErr = unix.SetsockoptInt(int(fd), unix.IPPROTO_TCP, unix.TCP_USER_TIMEOUT, ms)
		})
		if err != nil {
			return err
		}
		return ctrlErr
	}
}
