package relay_test

import (
	"bytes"
	"context"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/die-net/proxydial/internal/relay"
	"github.com/die-net/proxydial/internal/testutil"
)

func tcpPair(t *testing.T) (net.Conn, net.Conn) {
	t.Helper()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	accepted := make(chan net.Conn, 1)
	go func() {
		c, err := ln.Accept()
		if err != nil {
			close(accepted)
			return
		}
		accepted <- c
	}()

	c, err := net.Dial("tcp", ln.Addr().String())
	require.NoError(t, err)
	s, ok := <-accepted
	require.True(t, ok)
	return c, s
}

func TestBidirectional(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	echoLn := testutil.StartEchoTCPServer(t, ctx)
	defer echoLn.Close()

	client, inner := tcpPair(t)
	defer client.Close()

	upstream, err := net.Dial("tcp", echoLn.Addr().String())
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() { done <- relay.Bidirectional(ctx, inner, upstream) }()

	testutil.AssertEcho(t, client, client, []byte("hello"))
	testutil.AssertEcho(t, client, client, []byte("again"))

	require.NoError(t, client.Close())
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-ctx.Done():
		t.Fatal("relay did not finish after client closed")
	}
}

func TestBidirectionalCancel(t *testing.T) {
	left, leftPeer := tcpPair(t)
	defer leftPeer.Close()
	right, rightPeer := tcpPair(t)
	defer rightPeer.Close()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- relay.Bidirectional(ctx, left, right) }()

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("relay did not stop on cancel")
	}
}

func TestPipe(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	echoLn := testutil.StartEchoTCPServer(t, ctx)
	defer echoLn.Close()

	conn, err := net.Dial("tcp", echoLn.Addr().String())
	require.NoError(t, err)

	var out bytes.Buffer
	err = relay.Pipe(ctx, conn, strings.NewReader("ping\n"), &out)
	require.NoError(t, err)
	assert.Equal(t, "ping\n", out.String())
}
