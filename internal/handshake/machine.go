package handshake

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/looplab/fsm"
	"github.com/sirupsen/logrus"

	"github.com/die-net/proxydial/internal/addr"
)

// Protocol selects a handshake variant.
type Protocol int

const (
	ProtocolSOCKS4 Protocol = iota + 1
	ProtocolSOCKS5
	ProtocolHTTPConnect
)

func (p Protocol) String() string {
	switch p {
	case ProtocolSOCKS4:
		return "socks4"
	case ProtocolSOCKS5:
		return "socks5"
	case ProtocolHTTPConnect:
		return "http-connect"
	default:
		return fmt.Sprintf("protocol(%d)", int(p))
	}
}

// State is a handshake state. Which states a machine visits depends on its
// protocol.
type State string

const (
	StateInit                 State = "init"
	StateAwaitingStatus       State = "awaiting_status"
	StateAwaitingReply        State = "awaiting_reply"
	StateAwaitingMethod       State = "awaiting_method"
	StateAwaitingAuthResult   State = "awaiting_auth_result"
	StateAwaitingConnectReply State = "awaiting_connect_reply"
	StateConnected            State = "connected"
	StateFailed               State = "failed"
)

// Terminal reports whether no further transitions can happen from s.
func (s State) Terminal() bool {
	return s == StateConnected || s == StateFailed
}

// Transition is the outcome of one event.
type Transition struct {
	// State is the machine state after the event.
	State State

	// Write, when non-nil, must be sent to the proxy.
	Write []byte

	// Err is set exactly when State is StateFailed as a result of this
	// event.
	Err error
}

// Machine is a proxy handshake driven by transport events.
//
// Machines are not safe for concurrent use; one goroutine drives each.
// Once State is terminal, OnBytes and OnClose are no-ops.
type Machine interface {
	Protocol() Protocol
	State() State

	// OnConnect produces the first outbound message. It may resolve the
	// target hostname, honouring ctx.
	OnConnect(ctx context.Context) Transition

	// OnBytes consumes one inbound chunk.
	OnBytes(chunk []byte) Transition

	// OnClose reports that the transport ended with err (io.EOF for a clean
	// hang-up).
	OnClose(err error) Transition
}

// Credentials for proxies that support authentication.
type Credentials struct {
	Username string
	Password string
}

// Present reports whether both username and password are set. Credentials
// only take part in negotiation when this is true.
func (c Credentials) Present() bool {
	return c.Username != "" && c.Password != ""
}

// Target is the host and port the proxy should connect to.
type Target struct {
	Host string
	Port int
}

// Options configure a new Machine.
type Options struct {
	Target      Target
	Credentials Credentials

	// Resolver is used by the SOCKS variants to turn Target.Host into an
	// IPv4 address. Defaults to addr.NetResolver.
	Resolver addr.Resolver

	// Logger receives transition traces at debug level. Defaults to the
	// logrus standard logger.
	Logger logrus.FieldLogger
}

// New returns a fresh machine for proto.
func New(proto Protocol, opts Options) (Machine, error) {
	switch proto {
	case ProtocolSOCKS4:
		return NewSOCKS4(opts), nil
	case ProtocolSOCKS5:
		return NewSOCKS5(opts), nil
	case ProtocolHTTPConnect:
		return NewHTTPConnect(opts), nil
	default:
		return nil, fmt.Errorf("unknown proxy protocol: %v", proto)
	}
}

const eventFail = "fail"

// failEvent lets a machine fail from any of its non-terminal states.
func failEvent(from ...State) fsm.EventDesc {
	return edge(eventFail, from, StateFailed)
}

func edge(name string, from []State, to State) fsm.EventDesc {
	src := make([]string, 0, len(from))
	for _, s := range from {
		src = append(src, string(s))
	}
	return fsm.EventDesc{Name: name, Src: src, Dst: string(to)}
}

// machine holds the pieces shared by every protocol: the transition table
// and the failure bookkeeping.
type machine struct {
	proto Protocol
	fsm   *fsm.FSM
	log   logrus.FieldLogger
}

func newMachine(proto Protocol, events fsm.Events, logger logrus.FieldLogger) machine {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	log := logger.WithField("protocol", proto.String())

	return machine{
		proto: proto,
		log:   log,
		fsm: fsm.NewFSM(string(StateInit), events, fsm.Callbacks{
			"enter_state": func(_ context.Context, e *fsm.Event) {
				log.WithFields(logrus.Fields{
					"event": e.Event,
					"from":  e.Src,
					"to":    e.Dst,
				}).Debug("handshake transition")
			},
		}),
	}
}

func (m *machine) Protocol() Protocol {
	return m.proto
}

func (m *machine) State() State {
	return State(m.fsm.Current())
}

// current reports the present state without changing anything.
func (m *machine) current() Transition {
	return Transition{State: m.State()}
}

// advance fires ev and, if the table allows it, asks the caller to write out.
func (m *machine) advance(ev string, out []byte) Transition {
	if err := m.fsm.Event(context.Background(), ev); err != nil {
		return m.fail(fmt.Errorf("%w: %v", ErrDesync, err))
	}
	return Transition{State: m.State(), Write: out}
}

func (m *machine) fail(err error) Transition {
	from := m.State()
	if from.Terminal() {
		return m.current()
	}
	_ = m.fsm.Event(context.Background(), eventFail)
	return Transition{
		State: StateFailed,
		Err:   &Error{Protocol: m.proto, State: from, Err: err},
	}
}

func (m *machine) desync(chunk []byte) Transition {
	const maxShown = 16
	if len(chunk) > maxShown {
		return m.fail(fmt.Errorf("%w: % x ... (%d bytes)", ErrDesync, chunk[:maxShown], len(chunk)))
	}
	return m.fail(fmt.Errorf("%w: % x", ErrDesync, chunk))
}

func (m *machine) OnClose(err error) Transition {
	if m.State().Terminal() {
		return m.current()
	}
	if err == nil || errors.Is(err, io.EOF) {
		return m.fail(ErrUnexpectedClose)
	}
	return m.fail(fmt.Errorf("%w: %w", ErrUnexpectedClose, err))
}
