package addr

import (
	"errors"
	"fmt"
)

// ErrNoAddress is returned (wrapped in a ResolutionError) when a lookup
// succeeds but yields no IPv4 address.
var ErrNoAddress = errors.New("no IPv4 address found")

// ResolutionError reports a failed hostname lookup.
type ResolutionError struct {
	Host string
	Err  error
}

func (e *ResolutionError) Error() string {
	return fmt.Sprintf("resolve %q: %v", e.Host, e.Err)
}

func (e *ResolutionError) Unwrap() error {
	return e.Err
}

// EncodingError reports a value that cannot be encoded into its wire form.
type EncodingError struct {
	Value  string
	Reason string
}

func (e *EncodingError) Error() string {
	return fmt.Sprintf("encode %q: %s", e.Value, e.Reason)
}
