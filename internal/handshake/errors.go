package handshake

import (
	"errors"
	"fmt"
)

var (
	// ErrRejected means the proxy answered with a well-formed refusal.
	ErrRejected = errors.New("proxy rejected request")

	// ErrUnexpectedClose means the proxy hung up before the handshake
	// completed.
	ErrUnexpectedClose = errors.New("proxy closed connection during handshake")

	// ErrDesync means the proxy sent bytes that fit no reply expected in the
	// current state.
	ErrDesync = errors.New("unexpected reply from proxy")

	// ErrTimeout means the handshake deadline passed. It satisfies
	// net.Error-style Timeout checks.
	ErrTimeout error = timeoutError{}
)

type timeoutError struct{}

func (timeoutError) Error() string   { return "proxy handshake timed out" }
func (timeoutError) Timeout() bool   { return true }
func (timeoutError) Temporary() bool { return true }

// Error is a failed handshake, recording the state it failed in.
type Error struct {
	Protocol Protocol
	State    State
	Err      error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s handshake failed in state %s: %v", e.Protocol, e.State, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}
