package dialer

import (
	"context"
	"fmt"
	"net"

	"github.com/die-net/proxydial/internal/addr"
	"github.com/die-net/proxydial/internal/handshake"
)

// ProxyDialer dials TCP targets through a single proxy, running a fresh
// handshake per connection.
type ProxyDialer struct {
	cfg       Config
	proto     handshake.Protocol
	proxyAddr string
	creds     handshake.Credentials
}

// NewSOCKS4ProxyDialer returns a dialer for a SOCKS4 proxy. SOCKS4 has no
// authentication; user is accepted for URL symmetry but not sent.
func NewSOCKS4ProxyDialer(cfg Config, proxyAddr, user string) *ProxyDialer {
	return &ProxyDialer{
		cfg:       cfg,
		proto:     handshake.ProtocolSOCKS4,
		proxyAddr: proxyAddr,
		creds:     handshake.Credentials{Username: user},
	}
}

// NewSOCKS5ProxyDialer returns a dialer for a SOCKS5 proxy, using
// username/password authentication when both are non-empty.
func NewSOCKS5ProxyDialer(cfg Config, proxyAddr, user, pass string) *ProxyDialer {
	return &ProxyDialer{
		cfg:       cfg,
		proto:     handshake.ProtocolSOCKS5,
		proxyAddr: proxyAddr,
		creds:     handshake.Credentials{Username: user, Password: pass},
	}
}

func NewHTTPProxyDialer(cfg Config, proxyAddr string) *ProxyDialer {
	return &ProxyDialer{
		cfg:       cfg,
		proto:     handshake.ProtocolHTTPConnect,
		proxyAddr: proxyAddr,
	}
}

func (d *ProxyDialer) DialContext(ctx context.Context, network, address string) (net.Conn, error) {
	switch network {
	case "tcp", "tcp4":
	default:
		return nil, fmt.Errorf("%s proxy dial %s %s: unsupported network", d.proto, network, address)
	}

	host, port, err := addr.SplitHostPort(address)
	if err != nil {
		return nil, fmt.Errorf("%s proxy dial %s: %w", d.proto, address, err)
	}

	return Connect(ctx, d.cfg, d.proto, d.proxyAddr, d.creds, host, port)
}

// Dial satisfies golang.org/x/net/proxy.Dialer.
func (d *ProxyDialer) Dial(network, address string) (net.Conn, error) {
	return d.DialContext(context.Background(), network, address)
}
