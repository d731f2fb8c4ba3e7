package handshake

import (
	"bytes"
	"context"
	"fmt"
	"io"

	"github.com/looplab/fsm"
	txsocks5 "github.com/txthinking/socks5"

	"github.com/die-net/proxydial/internal/addr"
)

const (
	socks5Version          = 0x05
	socks5UserPassVersion  = 0x01
	socks5NoAcceptable     = 0xff
	socks5ConnectReplySize = 10
	socks5MaxCredential    = 255
)

const (
	eventSendGreeting = "send_greeting"
	eventSendAuth     = "send_auth"
	eventSendConnect  = "send_connect"
	eventConnectOK    = "connect_ok"
)

// SOCKS5 negotiates a CONNECT with a SOCKS5 proxy, offering
// username/password authentication when credentials are present.
//
//	init --send_greeting--> awaiting_method
//	awaiting_method --send_auth--> awaiting_auth_result
//	awaiting_method, awaiting_auth_result --send_connect--> awaiting_connect_reply
//	awaiting_connect_reply --connect_ok--> connected
//
// The target is always sent as an IPv4 address; it is resolved once, in
// OnConnect, and reused for the connect request.
type SOCKS5 struct {
	machine
	target   Target
	creds    Credentials
	resolver addr.Resolver

	ip   [4]byte
	port [2]byte
}

func NewSOCKS5(opts Options) *SOCKS5 {
	r := opts.Resolver
	if r == nil {
		r = addr.NetResolver{}
	}
	return &SOCKS5{
		machine: newMachine(ProtocolSOCKS5, fsm.Events{
			edge(eventSendGreeting, []State{StateInit}, StateAwaitingMethod),
			edge(eventSendAuth, []State{StateAwaitingMethod}, StateAwaitingAuthResult),
			edge(eventSendConnect, []State{StateAwaitingMethod, StateAwaitingAuthResult}, StateAwaitingConnectReply),
			edge(eventConnectOK, []State{StateAwaitingConnectReply}, StateConnected),
			failEvent(StateInit, StateAwaitingMethod, StateAwaitingAuthResult, StateAwaitingConnectReply),
		}, opts.Logger),
		target:   opts.Target,
		creds:    opts.Credentials,
		resolver: r,
	}
}

func (s *SOCKS5) OnConnect(ctx context.Context) Transition {
	if s.State() != StateInit {
		return s.current()
	}

	if s.creds.Present() {
		if len(s.creds.Username) > socks5MaxCredential {
			return s.fail(&addr.EncodingError{Value: s.creds.Username, Reason: "username longer than 255 bytes"})
		}
		if len(s.creds.Password) > socks5MaxCredential {
			return s.fail(&addr.EncodingError{Value: "<password>", Reason: "password longer than 255 bytes"})
		}
	}

	ip, err := s.resolver.Resolve(ctx, s.target.Host)
	if err != nil {
		return s.fail(err)
	}
	if s.ip, err = addr.IPv4ToBytes(ip); err != nil {
		return s.fail(err)
	}
	if s.port, err = addr.PortToBytes(s.target.Port); err != nil {
		return s.fail(err)
	}

	// +----+----------+----------+
	// |VER | NMETHODS | METHODS  |
	// +----+----------+----------+
	methods := []byte{txsocks5.MethodNone}
	if s.creds.Present() {
		methods = append(methods, txsocks5.MethodUsernamePassword)
	}
	return s.advance(eventSendGreeting, frame(txsocks5.NewNegotiationRequest(methods)))
}

func (s *SOCKS5) OnBytes(chunk []byte) Transition {
	switch s.State() {
	case StateConnected, StateFailed:
		return s.current()
	case StateAwaitingMethod:
		return s.onMethod(chunk)
	case StateAwaitingAuthResult:
		return s.onAuthResult(chunk)
	case StateAwaitingConnectReply:
		return s.onConnectReply(chunk)
	default:
		return s.desync(chunk)
	}
}

// +----+--------+
// |VER | METHOD |
// +----+--------+
func (s *SOCKS5) onMethod(chunk []byte) Transition {
	if len(chunk) != 2 || chunk[0] != socks5Version {
		return s.desync(chunk)
	}

	switch method := chunk[1]; {
	case method == txsocks5.MethodUsernamePassword && s.creds.Present():
		// +----+------+----------+------+----------+
		// |VER | ULEN |  UNAME   | PLEN |  PASSWD  |
		// +----+------+----------+------+----------+
		req := txsocks5.NewUserPassNegotiationRequest([]byte(s.creds.Username), []byte(s.creds.Password))
		return s.advance(eventSendAuth, frame(req))
	case method == txsocks5.MethodNone:
		return s.advance(eventSendConnect, s.connectRequest())
	case method == txsocks5.MethodUsernamePassword:
		return s.fail(fmt.Errorf("%w: proxy requires username/password authentication", ErrRejected))
	case method == socks5NoAcceptable:
		return s.fail(fmt.Errorf("%w: no acceptable authentication method", ErrRejected))
	default:
		return s.desync(chunk)
	}
}

// +----+--------+
// |VER | STATUS |
// +----+--------+
//
// RFC 1929 servers answer with version 0x01; some answer 0x05. Both are
// accepted, and only a zero status lets the handshake continue.
func (s *SOCKS5) onAuthResult(chunk []byte) Transition {
	if len(chunk) != 2 || (chunk[0] != socks5UserPassVersion && chunk[0] != socks5Version) {
		return s.desync(chunk)
	}
	if status := chunk[1]; status != txsocks5.UserPassStatusSuccess {
		return s.fail(fmt.Errorf("%w: authentication failed (status %#02x)", ErrRejected, status))
	}
	return s.advance(eventSendConnect, s.connectRequest())
}

// +----+-----+-------+------+----------+----------+
// |VER | REP |  RSV  | ATYP | BND.ADDR | BND.PORT |
// +----+-----+-------+------+----------+----------+
func (s *SOCKS5) onConnectReply(chunk []byte) Transition {
	if len(chunk) < 2 || chunk[0] != socks5Version {
		return s.desync(chunk)
	}
	if rep := chunk[1]; rep != txsocks5.RepSuccess {
		return s.fail(fmt.Errorf("%w: %s", ErrRejected, socks5ReplyString(rep)))
	}
	if len(chunk) != socks5ConnectReplySize || chunk[3] != txsocks5.ATYPIPv4 {
		return s.desync(chunk)
	}
	return s.advance(eventConnectOK, nil)
}

// +----+-----+-------+------+----------+----------+
// |VER | CMD |  RSV  | ATYP | DST.ADDR | DST.PORT |
// +----+-----+-------+------+----------+----------+
func (s *SOCKS5) connectRequest() []byte {
	return frame(txsocks5.NewRequest(txsocks5.CmdConnect, txsocks5.ATYPIPv4, s.ip[:], s.port[:]))
}

func frame(w io.WriterTo) []byte {
	var buf bytes.Buffer
	_, _ = w.WriteTo(&buf)
	return buf.Bytes()
}

func socks5ReplyString(rep byte) string {
	switch rep {
	case 0x01:
		return "general SOCKS server failure"
	case 0x02:
		return "connection not allowed by ruleset"
	case 0x03:
		return "network unreachable"
	case 0x04:
		return "host unreachable"
	case 0x05:
		return "connection refused"
	case 0x06:
		return "TTL expired"
	case 0x07:
		return "command not supported"
	case 0x08:
		return "address type not supported"
	default:
		return fmt.Sprintf("unknown reply %#02x", rep)
	}
}
