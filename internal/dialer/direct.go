package dialer

import (
	"context"
	"fmt"
	"net"

	"github.com/die-net/proxydial/internal/sockopt"
)

type directDialer struct {
	dd net.Dialer
}

// NewDirectDialer dials without a proxy, applying the Config's timeout,
// keepalive and socket options.
func NewDirectDialer(cfg Config) Dialer {
	return &directDialer{dd: net.Dialer{
		Timeout:         cfg.DialTimeout,
		KeepAliveConfig: cfg.KeepAlive,
		Control:         sockopt.Control(sockopt.Options{UserTimeout: cfg.UserTimeout}),
	}}
}

func (f *directDialer) DialContext(ctx context.Context, network, address string) (net.Conn, error) {
	conn, err := f.dd.DialContext(ctx, network, address)
	if err != nil {
		return nil, fmt.Errorf("dial %s %s: %w", network, address, err)
	}
	return conn, nil
}

// Dial satisfies golang.org/x/net/proxy.Dialer.
func (f *directDialer) Dial(network, address string) (net.Conn, error) {
	return f.DialContext(context.Background(), network, address)
}
