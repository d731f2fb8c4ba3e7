package addr

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/miekg/dns"
	"github.com/sirupsen/logrus"
)

const (
	defaultResolvConf = "/etc/resolv.conf"
	defaultDNSPort    = "53"
	defaultDNSTimeout = 2 * time.Second
)

// Resolver maps a hostname to an IPv4 address in dotted-quad form.
type Resolver interface {
	Resolve(ctx context.Context, host string) (string, error)
}

// IsNumeric reports whether host consists solely of digits and dots, and
// therefore should be passed through without a lookup. Malformed values such
// as "1.2.3" still count; they are rejected later by IPv4ToBytes.
func IsNumeric(host string) bool {
	digits := 0
	for _, c := range host {
		switch {
		case c == '.':
		case c >= '0' && c <= '9':
			digits++
		default:
			return false
		}
	}
	return digits > 0
}

// DNSResolver resolves A records by querying DNS servers directly. A
// truncated UDP answer is retried over TCP.
type DNSResolver struct {
	client    *dns.Client
	tcpClient *dns.Client
	servers   []string

	// search and ndots expand relative names as resolv.conf describes.
	search []string
	ndots  int
}

// NewDNSResolver returns a resolver that queries servers in order. Servers
// without a port use port 53. Non-IP entries are ignored.
func NewDNSResolver(servers []string, timeout time.Duration) *DNSResolver {
	if timeout <= 0 {
		timeout = defaultDNSTimeout
	}

	var nss []string
	for _, s := range servers {
		host, port, err := net.SplitHostPort(s)
		if err != nil {
			host, port = strings.Trim(s, "[]"), defaultDNSPort
		}
		if net.ParseIP(host) == nil {
			continue
		}
		nss = append(nss, net.JoinHostPort(host, port))
	}

	return &DNSResolver{
		servers: nss,
		ndots:   1,
		client: &dns.Client{
			Net:     "udp",
			Timeout: timeout,
		},
		tcpClient: &dns.Client{
			Net:     "tcp",
			Timeout: timeout,
		},
	}
}

// SetSearch sets the search domains and ndots threshold used to expand
// names, as in resolv.conf.
func (r *DNSResolver) SetSearch(search []string, ndots int) {
	r.search = search
	r.ndots = ndots
}

// NewDNSResolverFromFile reads nameservers from a resolv.conf style file.
func NewDNSResolverFromFile(path string, timeout time.Duration) (*DNSResolver, error) {
	cc, err := dns.ClientConfigFromFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}

	servers := make([]string, 0, len(cc.Servers))
	for _, s := range cc.Servers {
		servers = append(servers, net.JoinHostPort(s, cc.Port))
	}
	if len(servers) == 0 {
		return nil, fmt.Errorf("read %s: no nameservers", path)
	}

	r := NewDNSResolver(servers, timeout)
	r.SetSearch(cc.Search, cc.Ndots)
	return r, nil
}

// Servers returns the host:port of every configured nameserver.
func (r *DNSResolver) Servers() []string {
	return r.servers
}

// Resolve returns the first A record for host, trying each search-list
// expansion of host in turn.
func (r *DNSResolver) Resolve(ctx context.Context, host string) (string, error) {
	if IsNumeric(host) {
		return host, nil
	}
	if len(r.servers) == 0 {
		return "", &ResolutionError{Host: host, Err: errors.New("no nameservers configured")}
	}

	var lastErr error
	for _, name := range r.names(host) {
		ip, err := r.lookup(ctx, name)
		if err == nil {
			return ip, nil
		}
		lastErr = err
		if ctx.Err() != nil {
			break
		}
	}

	return "", &ResolutionError{Host: host, Err: lastErr}
}

func (r *DNSResolver) names(host string) []string {
	cc := dns.ClientConfig{Search: r.search, Ndots: r.ndots}
	return cc.NameList(host)
}

// lookup asks each server in order for name's A record. NXDOMAIN and an
// empty answer are final for name.
func (r *DNSResolver) lookup(ctx context.Context, name string) (string, error) {
	req := &dns.Msg{}
	req.SetQuestion(name, dns.TypeA)
	req.RecursionDesired = true

	var lastErr error
	for _, server := range r.servers {
		resp, err := r.exchange(ctx, req, server)
		if err != nil {
			lastErr = fmt.Errorf("%s: %w", server, err)
			if ctx.Err() != nil {
				break
			}
			continue
		}

		switch resp.Rcode {
		case dns.RcodeSuccess:
		case dns.RcodeNameError:
			// NXDOMAIN is authoritative; asking the next server won't help.
			return "", fmt.Errorf("%s: %s %s", server, name, dns.RcodeToString[resp.Rcode])
		default:
			lastErr = fmt.Errorf("%s: %s", server, dns.RcodeToString[resp.Rcode])
			continue
		}

		for _, rr := range resp.Answer {
			if a, ok := rr.(*dns.A); ok {
				if ip4 := a.A.To4(); ip4 != nil {
					return ip4.String(), nil
				}
			}
		}
		return "", ErrNoAddress
	}

	return "", lastErr
}

func (r *DNSResolver) exchange(ctx context.Context, req *dns.Msg, server string) (*dns.Msg, error) {
	resp, _, err := r.client.ExchangeContext(ctx, req, server)
	if err == nil && resp.Truncated {
		resp, _, err = r.tcpClient.ExchangeContext(ctx, req, server)
	}
	return resp, err
}

// NetResolver resolves through the Go runtime resolver, which honours the
// platform's name service configuration.
type NetResolver struct {
	Resolver *net.Resolver
}

func (r NetResolver) Resolve(ctx context.Context, host string) (string, error) {
	if IsNumeric(host) {
		return host, nil
	}

	res := r.Resolver
	if res == nil {
		res = net.DefaultResolver
	}

	ips, err := res.LookupIP(ctx, "ip4", host)
	if err != nil {
		return "", &ResolutionError{Host: host, Err: err}
	}
	for _, ip := range ips {
		if ip4 := ip.To4(); ip4 != nil {
			return ip4.String(), nil
		}
	}
	return "", &ResolutionError{Host: host, Err: ErrNoAddress}
}

// ResolverConfig configures NewResolver.
type ResolverConfig struct {
	// Servers are queried directly when set. Otherwise nameservers come from
	// /etc/resolv.conf, falling back to the Go runtime resolver.
	Servers []string
	Timeout time.Duration

	// HostsFile consults the system hosts file before DNS.
	HostsFile bool

	// CacheTTL caches successful lookups; zero disables caching.
	CacheTTL time.Duration

	Logger logrus.FieldLogger
}

// NewResolver composes the hosts, DNS and cache layers described by cfg.
func NewResolver(cfg ResolverConfig) Resolver {
	log := cfg.Logger
	if log == nil {
		log = logrus.StandardLogger()
	}

	var r Resolver
	if len(cfg.Servers) > 0 {
		dr := NewDNSResolver(cfg.Servers, cfg.Timeout)
		log.WithField("servers", dr.Servers()).Debug("using configured dns servers")
		r = dr
	} else if dr, err := NewDNSResolverFromFile(defaultResolvConf, cfg.Timeout); err == nil {
		log.WithField("servers", dr.Servers()).Debug("using dns servers from resolv.conf")
		r = dr
	} else {
		log.WithError(err).Debug("falling back to system resolver")
		r = NetResolver{}
	}

	if cfg.HostsFile {
		hr, err := NewHostsResolver(r)
		if err != nil {
			log.WithError(err).Debug("hosts file unavailable")
		} else {
			r = hr
		}
	}

	if cfg.CacheTTL > 0 {
		r = NewCachingResolver(r, cfg.CacheTTL)
	}

	return r
}
