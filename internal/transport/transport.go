// Package transport adapts a dialed proxy socket to the handshake's event
// model: writes go straight to the socket, inbound data is pulled one read at
// a time, and Abort tears the socket down without a graceful close.
package transport

import (
	"bytes"
	"iter"
	"net"
	"sync/atomic"
)

const readBufferSize = 4096

// Transport is the byte stream a handshake runs over.
type Transport interface {
	Write(b []byte) error

	// Chunks yields each inbound read in arrival order. It stops after the
	// first error, which it yields (io.EOF for a clean hang-up).
	Chunks() iter.Seq2[[]byte, error]

	// Abort closes the stream immediately. It is idempotent.
	Abort() error

	Closed() bool

	// NetConn returns the underlying connection, for handing over once the
	// handshake has succeeded.
	NetConn() net.Conn
}

var _ Transport = (*Conn)(nil)

// Conn is a Transport over a net.Conn.
type Conn struct {
	conn   net.Conn
	buf    []byte
	closed atomic.Bool
}

func New(conn net.Conn) *Conn {
	return &Conn{
		conn: conn,
		buf:  make([]byte, readBufferSize),
	}
}

func (c *Conn) NetConn() net.Conn {
	return c.conn
}

func (c *Conn) Write(b []byte) error {
	for len(b) > 0 {
		n, err := c.conn.Write(b)
		if err != nil {
			return err
		}
		b = b[n:]
	}
	return nil
}

// Chunks reads lazily: nothing is read from the socket until the consumer
// asks for the next chunk, so bytes following a successful handshake stay in
// the socket for the caller.
func (c *Conn) Chunks() iter.Seq2[[]byte, error] {
	return func(yield func([]byte, error) bool) {
		for {
			n, err := c.conn.Read(c.buf)
			if n > 0 {
				if !yield(bytes.Clone(c.buf[:n]), nil) {
					return
				}
			}
			if err != nil {
				yield(nil, err)
				return
			}
		}
	}
}

// Abort resets the connection. Pending reads and writes fail.
func (c *Conn) Abort() error {
	if !c.closed.CompareAndSwap(false, true) {
		return nil
	}
	if tc, ok := c.conn.(*net.TCPConn); ok {
		_ = tc.SetLinger(0)
	}
	return c.conn.Close()
}

func (c *Conn) Closed() bool {
	return c.closed.Load()
}
