// Package sockopt sets platform-specific TCP options on outbound sockets
// before they connect.
//
// On Linux it sets TCP_USER_TIMEOUT, which bounds how long transmitted data
// may remain unacknowledged before the kernel drops the connection.
//
// On other platforms Control is a no-op and IsSupported is false.
package sockopt

import "time"

// Options are applied to each socket in Control. A zero value changes nothing.
type Options struct {
	UserTimeout time.Duration
}
