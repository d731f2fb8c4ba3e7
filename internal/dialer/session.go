package dialer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/die-net/proxydial/internal/handshake"
	"github.com/die-net/proxydial/internal/transport"
)

// ErrSessionUsed is returned by Connect on a Session that has already made
// its attempt.
var ErrSessionUsed = errors.New("proxy session already used")

// Session is one handshake attempt over a freshly dialed proxy socket. It owns
// the socket until Connect returns it or aborts it.
type Session struct {
	cfg       Config
	proto     handshake.Protocol
	proxyAddr string
	creds     handshake.Credentials

	tr   transport.Transport
	done *handshake.Signal
	used atomic.Bool
}

// CreateProxyConnection dials proxyAddr and returns a Session ready to
// negotiate one tunnel with proto.
func CreateProxyConnection(ctx context.Context, cfg Config, proto handshake.Protocol, proxyAddr string, creds handshake.Credentials) (*Session, error) {
	conn, err := cfg.forward().DialContext(ctx, "tcp", proxyAddr)
	if err != nil {
		return nil, fmt.Errorf("%s proxy %s: %w", proto, proxyAddr, err)
	}

	return newSession(cfg, proto, proxyAddr, creds, transport.New(conn)), nil
}

func newSession(cfg Config, proto handshake.Protocol, proxyAddr string, creds handshake.Credentials, tr transport.Transport) *Session {
	return &Session{
		cfg:       cfg,
		proto:     proto,
		proxyAddr: proxyAddr,
		creds:     creds,
		tr:        tr,
		done:      handshake.NewSignal(),
	}
}

// Connect dials proxyAddr and negotiates a tunnel to host:port, all within
// ctx and the configured negotiation timeout.
func Connect(ctx context.Context, cfg Config, proto handshake.Protocol, proxyAddr string, creds handshake.Credentials, host string, port int) (net.Conn, error) {
	ctx, cancel := context.WithTimeout(ctx, cfg.negotiationTimeout())
	defer cancel()

	s, err := CreateProxyConnection(ctx, cfg, proto, proxyAddr, creds)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, fmt.Errorf("%w: %w", handshake.ErrTimeout, err)
		}
		return nil, err
	}
	return s.Connect(ctx, host, port)
}

// Done is closed once the handshake has finished either way.
func (s *Session) Done() <-chan struct{} {
	return s.done.Done()
}

// Connect asks the proxy for a tunnel to host:port. On success the returned
// conn is the proxy socket with deadlines cleared. On failure the socket has
// been aborted and the error is one of the handshake error kinds,
// handshake.ErrTimeout, or ctx's error.
//
// A Session allows a single Connect; later calls return ErrSessionUsed.
func (s *Session) Connect(ctx context.Context, host string, port int) (net.Conn, error) {
	if !s.used.CompareAndSwap(false, true) {
		return nil, ErrSessionUsed
	}

	log := s.cfg.logger().WithFields(logrus.Fields{
		"protocol": s.proto.String(),
		"proxy":    s.proxyAddr,
		"target":   net.JoinHostPort(host, strconv.Itoa(port)),
	})

	m, err := handshake.New(s.proto, handshake.Options{
		Target:      handshake.Target{Host: host, Port: port},
		Credentials: s.creds,
		Resolver:    s.cfg.resolver(),
		Logger:      log,
	})
	if err != nil {
		_ = s.tr.Abort()
		s.done.Set(err)
		return nil, err
	}

	timeout := s.cfg.negotiationTimeout()
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if dl, ok := ctx.Deadline(); ok {
		_ = s.tr.NetConn().SetDeadline(dl)
	}

	stop := context.AfterFunc(ctx, func() {
		s.done.Resolve(func() error {
			_ = s.tr.Abort()
			return contextErr(ctx)
		})
	})
	defer stop()

	log.Debug("proxy handshake started")
	start := time.Now()

	err = s.drive(ctx, m)
	if err != nil {
		log.WithError(err).Debug("proxy handshake failed")
		return nil, fmt.Errorf("%s proxy %s: connect %s: %w", s.proto, s.proxyAddr, net.JoinHostPort(host, strconv.Itoa(port)), err)
	}

	conn := s.tr.NetConn()
	_ = conn.SetDeadline(time.Time{})
	log.WithField("elapsed", time.Since(start)).Debug("proxy handshake complete")
	return conn, nil
}

// drive feeds transport events into m until it reaches a terminal state or
// the signal is resolved elsewhere, and returns the session outcome.
func (s *Session) drive(ctx context.Context, m handshake.Machine) error {
	tr := m.OnConnect(ctx)
	if !tr.State.Terminal() && tr.Write != nil {
		if err := s.tr.Write(tr.Write); err != nil {
			tr = m.OnClose(err)
		}
	}

	if !tr.State.Terminal() {
		for chunk, err := range s.tr.Chunks() {
			if err != nil {
				tr = m.OnClose(err)
				break
			}
			tr = m.OnBytes(chunk)
			if tr.State.Terminal() {
				break
			}
			if tr.Write != nil {
				if err := s.tr.Write(tr.Write); err != nil {
					tr = m.OnClose(err)
					break
				}
			}
		}
		if !tr.State.Terminal() {
			tr = m.OnClose(io.EOF)
		}
	}

	s.done.Resolve(func() error {
		if tr.Err == nil {
			return nil
		}
		_ = s.tr.Abort()
		// A read failing on the socket deadline is the timeout, not a hang-up.
		if ctx.Err() != nil {
			return contextErr(ctx)
		}
		if errors.Is(tr.Err, os.ErrDeadlineExceeded) {
			return handshake.ErrTimeout
		}
		return tr.Err
	})

	return s.done.Err()
}

func contextErr(ctx context.Context) error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return handshake.ErrTimeout
	}
	return ctx.Err()
}
