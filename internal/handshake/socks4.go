package handshake

import (
	"context"
	"fmt"

	"github.com/looplab/fsm"

	"github.com/die-net/proxydial/internal/addr"
)

const (
	socks4Version        = 0x04
	socks4CommandConnect = 0x01
	socks4Null           = 0x00
	socks4ReplyVersion   = 0x00

	socks4Rejected               = 0x5b
	socks4RejectedIdentdFailed   = 0x5c
	socks4RejectedIdentdMismatch = 0x5d
)

const eventGranted = "granted"

// SOCKS4 negotiates a CONNECT with a SOCKS4 proxy.
//
//	init --send_request--> awaiting_reply --granted--> connected
//
// The request carries no user id even when credentials are supplied, and
// only the first reply byte is checked: 0x00 means success.
type SOCKS4 struct {
	machine
	target   Target
	resolver addr.Resolver
}

func NewSOCKS4(opts Options) *SOCKS4 {
	r := opts.Resolver
	if r == nil {
		r = addr.NetResolver{}
	}
	return &SOCKS4{
		machine: newMachine(ProtocolSOCKS4, fsm.Events{
			edge(eventSendRequest, []State{StateInit}, StateAwaitingReply),
			edge(eventGranted, []State{StateAwaitingReply}, StateConnected),
			failEvent(StateInit, StateAwaitingReply),
		}, opts.Logger),
		target:   opts.Target,
		resolver: r,
	}
}

func (s *SOCKS4) OnConnect(ctx context.Context) Transition {
	if s.State() != StateInit {
		return s.current()
	}

	ip, err := s.resolver.Resolve(ctx, s.target.Host)
	if err != nil {
		return s.fail(err)
	}
	ipBytes, err := addr.IPv4ToBytes(ip)
	if err != nil {
		return s.fail(err)
	}
	portBytes, err := addr.PortToBytes(s.target.Port)
	if err != nil {
		return s.fail(err)
	}

	//  +----+----+----+----+----+----+----+----+----+
	//  | VN | CD | DSTPORT |      DSTIP        |NULL|
	//  +----+----+----+----+----+----+----+----+----+
	req := make([]byte, 0, 9)
	req = append(req, socks4Version, socks4CommandConnect)
	req = append(req, portBytes[:]...)
	req = append(req, ipBytes[:]...)
	req = append(req, socks4Null)

	return s.advance(eventSendRequest, req)
}

func (s *SOCKS4) OnBytes(chunk []byte) Transition {
	switch s.State() {
	case StateConnected, StateFailed:
		return s.current()
	case StateAwaitingReply:
	default:
		return s.desync(chunk)
	}

	if len(chunk) == 0 {
		return s.desync(chunk)
	}
	if chunk[0] != socks4ReplyVersion {
		return s.fail(fmt.Errorf("%w: %s", ErrRejected, socks4ReplyString(chunk[0])))
	}
	return s.advance(eventGranted, nil)
}

func socks4ReplyString(code byte) string {
	switch code {
	case socks4Rejected:
		return "request rejected or failed"
	case socks4RejectedIdentdFailed:
		return "request rejected because SOCKS server cannot connect to identd on the client"
	case socks4RejectedIdentdMismatch:
		return "request rejected because the client program and identd report different user-ids"
	default:
		return fmt.Sprintf("unknown reply %#02x", code)
	}
}
