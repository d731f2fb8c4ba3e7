package dialer

import (
	"context"
	"net"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/die-net/proxydial/internal/addr"
)

const (
	DefaultDialTimeout        = 10 * time.Second
	DefaultNegotiationTimeout = 10 * time.Second
)

// Dialer mirrors the net.Dialer interface.
type Dialer interface {
	DialContext(ctx context.Context, network, address string) (net.Conn, error)
}

type Config struct {
	// DialTimeout bounds the TCP connect to the proxy or target.
	DialTimeout time.Duration

	// NegotiationTimeout bounds the proxy handshake, from the first write
	// until the proxy confirms the tunnel. Zero means
	// DefaultNegotiationTimeout.
	NegotiationTimeout time.Duration

	KeepAlive net.KeepAliveConfig

	// UserTimeout sets TCP_USER_TIMEOUT where supported. Zero leaves the
	// system default.
	UserTimeout time.Duration

	// Resolver turns target hostnames into IPv4 addresses for the SOCKS
	// protocols. Defaults to addr.NetResolver.
	Resolver addr.Resolver

	// Dialer reaches the proxy itself. Defaults to a direct dialer built
	// from this Config.
	Dialer Dialer

	Logger logrus.FieldLogger
}

func (c Config) negotiationTimeout() time.Duration {
	if c.NegotiationTimeout > 0 {
		return c.NegotiationTimeout
	}
	return DefaultNegotiationTimeout
}

func (c Config) resolver() addr.Resolver {
	if c.Resolver != nil {
		return c.Resolver
	}
	return addr.NetResolver{}
}

func (c Config) logger() logrus.FieldLogger {
	if c.Logger != nil {
		return c.Logger
	}
	return logrus.StandardLogger()
}

func (c Config) forward() Dialer {
	if c.Dialer != nil {
		return c.Dialer
	}
	return NewDirectDialer(c)
}
