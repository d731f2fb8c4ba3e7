// Package handshake implements the client side of the SOCKS4, SOCKS5 and
// HTTP CONNECT proxy handshakes as explicit state machines.
//
// A Machine never touches the network. The caller feeds it events
// (OnConnect, OnBytes, OnClose) and performs the I/O described by each
// returned Transition: write Transition.Write to the proxy, and stop once
// Transition.State is terminal. This keeps the protocol logic testable
// without a socket; package dialer supplies the socket.
//
// Each machine treats one inbound chunk as one complete proxy message.
// Replies split across reads are not reassembled.
package handshake
