package handshake

import (
	"bytes"
	"context"
	"fmt"
	"net"
	"strconv"
	"strings"

	"github.com/looplab/fsm"
	"golang.org/x/net/http/httpguts"

	"github.com/die-net/proxydial/internal/addr"
)

const (
	eventSendRequest = "send_request"
	eventStatusOK    = "status_ok"
)

// HTTPConnect negotiates a tunnel with an HTTP proxy's CONNECT method.
//
//	init --send_request--> awaiting_status --status_ok--> connected
//
// The target host is sent as given; the proxy resolves it. Credentials are
// not used, since proxy authentication is not implemented.
type HTTPConnect struct {
	machine
	target Target
}

func NewHTTPConnect(opts Options) *HTTPConnect {
	return &HTTPConnect{
		machine: newMachine(ProtocolHTTPConnect, fsm.Events{
			edge(eventSendRequest, []State{StateInit}, StateAwaitingStatus),
			edge(eventStatusOK, []State{StateAwaitingStatus}, StateConnected),
			failEvent(StateInit, StateAwaitingStatus),
		}, opts.Logger),
		target: opts.Target,
	}
}

func (h *HTTPConnect) OnConnect(context.Context) Transition {
	if h.State() != StateInit {
		return h.current()
	}
	if _, err := addr.PortToBytes(h.target.Port); err != nil {
		return h.fail(err)
	}

	host := h.target.Host
	if strings.Contains(host, ":") {
		host = "[" + host + "]"
	}
	if host == "" || !httpguts.ValidHostHeader(host) {
		return h.fail(&addr.EncodingError{Value: h.target.Host, Reason: "invalid host for HTTP CONNECT"})
	}

	hostPort := net.JoinHostPort(h.target.Host, strconv.Itoa(h.target.Port))
	req := fmt.Appendf(nil, "CONNECT %s HTTP/1.1\r\nHost: %s\r\n\r\n", hostPort, host)
	return h.advance(eventSendRequest, req)
}

func (h *HTTPConnect) OnBytes(chunk []byte) Transition {
	switch h.State() {
	case StateConnected, StateFailed:
		return h.current()
	case StateAwaitingStatus:
	default:
		return h.desync(chunk)
	}

	line, _, _ := bytes.Cut(chunk, []byte("\r\n"))
	status, ok := statusToken(line)
	if !ok {
		return h.desync(chunk)
	}
	if !strings.Contains(status, "200") {
		return h.fail(fmt.Errorf("%w: %s", ErrRejected, line))
	}
	return h.advance(eventStatusOK, nil)
}

// statusToken returns the status code field of an HTTP status line.
func statusToken(line []byte) (string, bool) {
	fields := strings.Fields(string(line))
	if len(fields) < 2 || !strings.HasPrefix(fields[0], "HTTP/") {
		return "", false
	}
	return fields[1], true
}
