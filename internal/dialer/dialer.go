package dialer

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"strings"
)

// New parses upstream and constructs the appropriate outbound Dialer.
//
// Supported schemes:
//   - direct://
//   - socks4://[user@]host:port
//   - socks5://[user:pass@]host:port
//   - http://host:port
//
// For schemes that require a host, a default port is applied if the URL host is
// missing a port.
func New(cfg Config, upstream string) (Dialer, error) {
	u, err := url.Parse(upstream)
	if err != nil {
		return nil, fmt.Errorf("invalid url: %w", err)
	}

	u.Scheme = strings.ToLower(u.Scheme)

	if u.Path != "" && u.Path != "/" {
		return nil, errors.New("invalid URL: path should be empty")
	}

	switch u.Scheme {
	case "":
		return nil, errors.New("invalid url: missing scheme")
	case "direct":
		return NewDirectDialer(cfg), nil
	case "socks4", "socks5", "http":
		host := u.Hostname()
		if host == "" {
			return nil, errors.New("invalid url: missing host")
		}
		if u.Port() == "" {
			u.Host = net.JoinHostPort(host, defaultPortForScheme(u.Scheme))
		}

		var user, pass string
		if u.User != nil {
			user = u.User.Username()
			pass, _ = u.User.Password()
		}

		switch u.Scheme {
		case "socks4":
			return NewSOCKS4ProxyDialer(cfg, u.Host, user), nil
		case "socks5":
			return NewSOCKS5ProxyDialer(cfg, u.Host, user, pass), nil
		case "http":
			if u.User != nil {
				return nil, errors.New("invalid url: http proxy authentication is not supported")
			}
			return NewHTTPProxyDialer(cfg, u.Host), nil
		default:
			return nil, errors.New("unreachable url scheme")
		}
	default:
		return nil, fmt.Errorf("invalid url scheme: %q", u.Scheme)
	}
}

func defaultPortForScheme(scheme string) string {
	switch scheme {
	case "http":
		return "80"
	case "socks4", "socks5":
		return "1080"
	default:
		return ""
	}
}
