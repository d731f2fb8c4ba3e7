package addr

import (
	"encoding/binary"
	"net"
	"strconv"
	"strings"
)

// IPv4ToBytes encodes a dotted-quad IPv4 address into its 4-byte network
// order form.
func IPv4ToBytes(ip string) ([4]byte, error) {
	var b [4]byte

	parts := strings.Split(ip, ".")
	if len(parts) != len(b) {
		return b, &EncodingError{Value: ip, Reason: "expected four dot-separated octets"}
	}
	for i, p := range parts {
		n, err := strconv.ParseUint(p, 10, 8)
		if err != nil {
			return b, &EncodingError{Value: ip, Reason: "octet " + strconv.Itoa(i+1) + " is not in 0-255"}
		}
		b[i] = byte(n)
	}

	return b, nil
}

// BytesToIPv4 is the inverse of IPv4ToBytes.
func BytesToIPv4(b [4]byte) string {
	return strconv.Itoa(int(b[0])) + "." +
		strconv.Itoa(int(b[1])) + "." +
		strconv.Itoa(int(b[2])) + "." +
		strconv.Itoa(int(b[3]))
}

// PortToBytes encodes port as 2 bytes, big-endian.
func PortToBytes(port int) ([2]byte, error) {
	var b [2]byte
	if port < 0 || port > 65535 {
		return b, &EncodingError{Value: strconv.Itoa(port), Reason: "port out of range 0-65535"}
	}
	binary.BigEndian.PutUint16(b[:], uint16(port))
	return b, nil
}

// BytesToPort is the inverse of PortToBytes.
func BytesToPort(b [2]byte) int {
	return int(binary.BigEndian.Uint16(b[:]))
}

// SplitHostPort splits a "host:port" address and parses the port.
func SplitHostPort(address string) (string, int, error) {
	host, portStr, err := net.SplitHostPort(address)
	if err != nil {
		return "", 0, &EncodingError{Value: address, Reason: err.Error()}
	}
	port, err := strconv.ParseUint(portStr, 10, 16)
	if err != nil {
		return "", 0, &EncodingError{Value: address, Reason: "invalid port " + strconv.Quote(portStr)}
	}
	return host, int(port), nil
}
