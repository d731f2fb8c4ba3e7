package dialer

import (
	"context"
	"net"
	"net/url"

	"golang.org/x/net/proxy"
)

func init() {
	proxy.RegisterDialerType("socks4", fromURL)
	proxy.RegisterDialerType("http", fromURL)
}

// fromURL builds a ProxyDialer for proxy.FromURL. forward is only used to
// reach the proxy.
func fromURL(u *url.URL, forward proxy.Dialer) (proxy.Dialer, error) {
	cfg := Config{}
	if forward != nil && forward != proxy.Direct {
		cfg.Dialer = forwardDialer{forward}
	}

	d, err := New(cfg, u.String())
	if err != nil {
		return nil, err
	}
	return d.(proxy.Dialer), nil
}

type forwardDialer struct {
	proxy.Dialer
}

func (f forwardDialer) DialContext(ctx context.Context, network, address string) (net.Conn, error) {
	if cd, ok := f.Dialer.(proxy.ContextDialer); ok {
		return cd.DialContext(ctx, network, address)
	}
	return f.Dialer.Dial(network, address)
}
