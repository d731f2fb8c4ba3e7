package handshake

import (
	"context"
	"sync"
)

// Signal is a single-shot completion carrying a handshake's outcome: nil for
// success or the failure. Only the first Set or Resolve has any effect.
type Signal struct {
	once sync.Once
	done chan struct{}
	err  error
}

func NewSignal() *Signal {
	return &Signal{done: make(chan struct{})}
}

// Set completes the signal with err and reports whether this call did so.
func (s *Signal) Set(err error) bool {
	return s.Resolve(func() error { return err })
}

// Resolve completes the signal with the result of f. f runs at most once
// across all callers and before any waiter is released, so side effects in f
// (such as aborting a transport) are visible to everyone who observes the
// outcome.
func (s *Signal) Resolve(f func() error) bool {
	won := false
	s.once.Do(func() {
		s.err = f()
		won = true
		close(s.done)
	})
	return won
}

// Done is closed once the signal is set.
func (s *Signal) Done() <-chan struct{} {
	return s.done
}

// Err returns the outcome. It is only meaningful after Done is closed.
func (s *Signal) Err() error {
	select {
	case <-s.done:
		return s.err
	default:
		return nil
	}
}

// Wait blocks until the signal is set or ctx ends.
func (s *Signal) Wait(ctx context.Context) error {
	select {
	case <-s.done:
		return s.err
	case <-ctx.Done():
		return ctx.Err()
	}
}
