// Package relay copies bytes between an established tunnel and its peer.
package relay

import (
	"context"
	"errors"
	"io"
	"net"
	"sync"

	"golang.org/x/sync/errgroup"
)

// Bidirectional copies between left and right until either side finishes or
// ctx is canceled, then closes both. A clean EOF or the close that ends the
// other direction is not reported as an error.
func Bidirectional(ctx context.Context, left, right net.Conn) error {
	var closeOnce sync.Once
	closeBoth := func() {
		closeOnce.Do(func() {
			_ = left.Close()
			_ = right.Close()
		})
	}
	defer closeBoth()

	stop := context.AfterFunc(ctx, closeBoth)
	defer stop()

	var g errgroup.Group
	g.Go(func() error {
		defer closeBoth()
		_, err := copyBuffer(left, right)
		return err
	})
	g.Go(func() error {
		defer closeBoth()
		_, err := copyBuffer(right, left)
		return err
	})

	err := g.Wait()
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if closedErr(err) {
		return nil
	}
	return err
}

func closedErr(err error) bool {
	return errors.Is(err, net.ErrClosed) || errors.Is(err, io.ErrClosedPipe)
}

type closeWriter interface {
	CloseWrite() error
}

// Pipe sends in to conn and conn to out. When in is exhausted, the write half
// of conn is shut down so the peer sees EOF; Pipe returns once conn has
// nothing more to say or ctx is canceled.
func Pipe(ctx context.Context, conn net.Conn, in io.Reader, out io.Writer) error {
	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()

	sendErr := make(chan error, 1)
	go func() {
		_, err := copyBuffer(conn, in)
		if cw, ok := conn.(closeWriter); ok {
			_ = cw.CloseWrite()
		}
		sendErr <- err
	}()

	_, err := copyBuffer(out, conn)
	_ = conn.Close()
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if err != nil && !closedErr(err) {
		return err
	}

	select {
	case err := <-sendErr:
		if closedErr(err) {
			return nil
		}
		return err
	default:
		return nil
	}
}
