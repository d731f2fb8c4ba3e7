//go:build !linux

package sockopt

import "syscall"

const IsSupported = false

func Control(_ Options) func(network, address string, c syscall.RawConn) error {
	return nil
}
