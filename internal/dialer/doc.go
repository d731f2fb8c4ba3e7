// Package dialer establishes outbound TCP connections, either directly or
// through a SOCKS4, SOCKS5 or HTTP CONNECT proxy.
//
// A proxied connection is made in two steps: CreateProxyConnection dials the
// proxy and returns a single-use Session, and Session.Connect runs the
// handshake for one target. On success the caller gets the proxy socket,
// ready to carry tunneled traffic; on any failure the socket has already been
// aborted. Connect and the ProxyDialer types wrap both steps.
//
// Importing the package registers the "socks4" and "http" schemes with
// golang.org/x/net/proxy, alongside its built-in "socks5".
package dialer
