package testutil

import (
	"bufio"
	"context"
	"encoding/binary"
	"io"
	"net"
	"net/http"
	"strconv"

	"github.com/txthinking/socks5"

	"github.com/die-net/proxydial/internal/relay"
)

// SOCKS4Handler serves one SOCKS4 CONNECT, then relays to the target.
func SOCKS4Handler(ctx context.Context) func(net.Conn) {
	return func(c net.Conn) {
		br := bufio.NewReader(c)

		var hdr [8]byte
		if _, err := io.ReadFull(br, hdr[:]); err != nil {
			return
		}
		if _, err := br.ReadBytes(0x00); err != nil {
			return
		}
		if hdr[0] != 0x04 || hdr[1] != 0x01 {
			_, _ = c.Write([]byte{0x00, 0x5b, 0, 0, 0, 0, 0, 0})
			return
		}

		port := binary.BigEndian.Uint16(hdr[2:4])
		ip := net.IP(hdr[4:8])
		target := net.JoinHostPort(ip.String(), strconv.Itoa(int(port)))

		d := net.Dialer{}
		dst, err := d.DialContext(ctx, "tcp", target)
		if err != nil {
			_, _ = c.Write([]byte{0x00, 0x5b, 0, 0, 0, 0, 0, 0})
			return
		}

		reply := append([]byte{0x00, 0x5a}, hdr[2:8]...)
		if _, err := c.Write(reply); err != nil {
			_ = dst.Close()
			return
		}

		_ = relay.Bidirectional(ctx, c, dst)
	}
}

// SOCKS5Handler serves one SOCKS5 CONNECT, requiring user and pass when
// either is set, then relays to the target.
func SOCKS5Handler(ctx context.Context, user, pass string) func(net.Conn) {
	return func(c net.Conn) {
		if _, err := socks5.NewNegotiationRequestFrom(c); err != nil {
			return
		}

		if user == "" && pass == "" {
			if _, err := socks5.NewNegotiationReply(socks5.MethodNone).WriteTo(c); err != nil {
				return
			}
		} else {
			if _, err := socks5.NewNegotiationReply(socks5.MethodUsernamePassword).WriteTo(c); err != nil {
				return
			}

			urq, err := socks5.NewUserPassNegotiationRequestFrom(c)
			if err != nil {
				return
			}
			if string(urq.Uname) != user || string(urq.Passwd) != pass {
				_, _ = socks5.NewUserPassNegotiationReply(socks5.UserPassStatusFailure).WriteTo(c)
				return
			}
			if _, err := socks5.NewUserPassNegotiationReply(socks5.UserPassStatusSuccess).WriteTo(c); err != nil {
				return
			}
		}

		req, err := socks5.NewRequestFrom(c)
		if err != nil {
			return
		}
		if req.Cmd != socks5.CmdConnect {
			_, _ = socks5.NewReply(socks5.RepCommandNotSupported, socks5.ATYPIPv4, []byte{0x00, 0x00, 0x00, 0x00}, []byte{0x00, 0x00}).WriteTo(c)
			return
		}

		d := net.Dialer{}
		dst, err := d.DialContext(ctx, "tcp", req.Address())
		if err != nil {
			_, _ = socks5.NewReply(socks5.RepHostUnreachable, socks5.ATYPIPv4, []byte{0x00, 0x00, 0x00, 0x00}, []byte{0x00, 0x00}).WriteTo(c)
			return
		}

		a, addr, port, err := socks5.ParseAddress(dst.LocalAddr().String())
		if err != nil {
			_ = dst.Close()
			return
		}
		if _, err := socks5.NewReply(socks5.RepSuccess, a, addr, port).WriteTo(c); err != nil {
			_ = dst.Close()
			return
		}

		_ = relay.Bidirectional(ctx, c, dst)
	}
}

// HTTPConnectHandler serves one HTTP CONNECT, then relays to the target.
func HTTPConnectHandler(ctx context.Context) func(net.Conn) {
	return func(c net.Conn) {
		br := bufio.NewReader(c)
		req, err := http.ReadRequest(br)
		if err != nil {
			return
		}
		_ = req.Body.Close()
		if req.Method != http.MethodConnect {
			_, _ = io.WriteString(c, "HTTP/1.1 405 Method Not Allowed\r\n\r\n")
			return
		}

		d := net.Dialer{}
		dst, err := d.DialContext(ctx, "tcp", req.Host)
		if err != nil {
			_, _ = io.WriteString(c, "HTTP/1.1 502 Bad Gateway\r\n\r\n")
			return
		}

		if _, err := io.WriteString(c, "HTTP/1.1 200 Connection Established\r\n\r\n"); err != nil {
			_ = dst.Close()
			return
		}

		_ = relay.Bidirectional(ctx, c, dst)
	}
}
