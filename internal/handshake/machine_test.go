package handshake

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/die-net/proxydial/internal/addr"
)

type staticResolver map[string]string

func (r staticResolver) Resolve(_ context.Context, host string) (string, error) {
	if addr.IsNumeric(host) {
		return host, nil
	}
	if ip, ok := r[host]; ok {
		return ip, nil
	}
	return "", &addr.ResolutionError{Host: host, Err: addr.ErrNoAddress}
}

func TestNew(t *testing.T) {
	tests := []struct {
		proto Protocol
		want  any
	}{
		{ProtocolSOCKS4, &SOCKS4{}},
		{ProtocolSOCKS5, &SOCKS5{}},
		{ProtocolHTTPConnect, &HTTPConnect{}},
	}

	for _, tt := range tests {
		t.Run(tt.proto.String(), func(t *testing.T) {
			m, err := New(tt.proto, Options{})
			require.NoError(t, err)
			assert.IsType(t, tt.want, m)
			assert.Equal(t, tt.proto, m.Protocol())
			assert.Equal(t, StateInit, m.State())
		})
	}

	_, err := New(Protocol(99), Options{})
	assert.Error(t, err)
}

func TestOnCloseBeforeConnected(t *testing.T) {
	for _, proto := range []Protocol{ProtocolSOCKS4, ProtocolSOCKS5, ProtocolHTTPConnect} {
		t.Run(proto.String(), func(t *testing.T) {
			m, err := New(proto, Options{Target: Target{Host: "10.0.0.1", Port: 80}})
			require.NoError(t, err)

			tr := m.OnConnect(context.Background())
			require.NoError(t, tr.Err)
			require.NotEmpty(t, tr.Write)

			tr = m.OnClose(io.EOF)
			assert.Equal(t, StateFailed, tr.State)
			assert.ErrorIs(t, tr.Err, ErrUnexpectedClose)

			var herr *Error
			require.ErrorAs(t, tr.Err, &herr)
			assert.Equal(t, proto, herr.Protocol)
			assert.NotEqual(t, StateInit, herr.State)
		})
	}
}

func TestOnCloseWrapsCause(t *testing.T) {
	m := NewHTTPConnect(Options{Target: Target{Host: "example.com", Port: 443}})
	m.OnConnect(context.Background())

	cause := errors.New("connection reset")
	tr := m.OnClose(cause)
	assert.ErrorIs(t, tr.Err, ErrUnexpectedClose)
	assert.ErrorIs(t, tr.Err, cause)
}

func TestEventsAfterTerminalAreIgnored(t *testing.T) {
	m := NewSOCKS4(Options{Target: Target{Host: "10.0.0.1", Port: 80}})
	m.OnConnect(context.Background())

	tr := m.OnBytes([]byte{0x00, 0x5a, 0, 0, 0, 0, 0, 0})
	require.Equal(t, StateConnected, tr.State)

	for _, tr := range []Transition{
		m.OnBytes([]byte{0x5b}),
		m.OnClose(io.EOF),
		m.OnConnect(context.Background()),
	} {
		assert.Equal(t, StateConnected, tr.State)
		assert.NoError(t, tr.Err)
		assert.Nil(t, tr.Write)
	}
}

func TestResolutionFailure(t *testing.T) {
	for _, proto := range []Protocol{ProtocolSOCKS4, ProtocolSOCKS5} {
		t.Run(proto.String(), func(t *testing.T) {
			m, err := New(proto, Options{
				Target:   Target{Host: "nowhere.invalid", Port: 80},
				Resolver: staticResolver{},
			})
			require.NoError(t, err)

			tr := m.OnConnect(context.Background())
			assert.Equal(t, StateFailed, tr.State)
			assert.Nil(t, tr.Write)

			var rerr *addr.ResolutionError
			assert.ErrorAs(t, tr.Err, &rerr)
		})
	}
}

func TestEncodingFailure(t *testing.T) {
	tests := []struct {
		name   string
		proto  Protocol
		target Target
	}{
		{"socks4 bad ip", ProtocolSOCKS4, Target{Host: "1.2.3", Port: 80}},
		{"socks4 bad port", ProtocolSOCKS4, Target{Host: "1.2.3.4", Port: 70000}},
		{"socks5 bad ip", ProtocolSOCKS5, Target{Host: "256.1.1.1", Port: 80}},
		{"socks5 bad port", ProtocolSOCKS5, Target{Host: "1.2.3.4", Port: -1}},
		{"http bad port", ProtocolHTTPConnect, Target{Host: "example.com", Port: 65536}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, err := New(tt.proto, Options{Target: tt.target})
			require.NoError(t, err)

			tr := m.OnConnect(context.Background())
			assert.Equal(t, StateFailed, tr.State)

			var eerr *addr.EncodingError
			assert.ErrorAs(t, tr.Err, &eerr)
		})
	}
}

func TestSignal(t *testing.T) {
	s := NewSignal()
	select {
	case <-s.Done():
		t.Fatal("new signal already set")
	default:
	}
	assert.NoError(t, s.Err())

	first := errors.New("first")
	assert.True(t, s.Set(first))
	assert.False(t, s.Set(errors.New("second")))
	assert.False(t, s.Set(nil))

	select {
	case <-s.Done():
	default:
		t.Fatal("signal not set")
	}
	assert.Equal(t, first, s.Err())
	assert.Equal(t, first, s.Wait(context.Background()))
}

func TestSignalResolveRunsOnce(t *testing.T) {
	s := NewSignal()

	var (
		calls int
		wg    sync.WaitGroup
	)
	for range 10 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.Resolve(func() error {
				calls++
				return nil
			})
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, calls)
	<-s.Done()
	assert.NoError(t, s.Err())
}

func TestSignalWaitContext(t *testing.T) {
	s := NewSignal()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.ErrorIs(t, s.Wait(ctx), context.Canceled)
}

func TestErrTimeout(t *testing.T) {
	var te interface{ Timeout() bool }
	require.ErrorAs(t, ErrTimeout, &te)
	assert.True(t, te.Timeout())
}
