package addr

import (
	"context"
	"net"
	"strings"

	"github.com/jaytaylor/go-hostsfile"
)

// HostsResolver answers from static hosts file entries and defers everything
// else to Next. Only IPv4 entries are kept.
type HostsResolver struct {
	Next  Resolver
	hosts map[string]string
}

// NewHostsResolver reads the system hosts file.
func NewHostsResolver(next Resolver) (*HostsResolver, error) {
	content, err := hostsfile.ReadHostsFile()
	return parseHostsResolver(next, content, err)
}

// NewHostsResolverFromBytes parses content in hosts file format.
func NewHostsResolverFromBytes(next Resolver, content []byte) (*HostsResolver, error) {
	return parseHostsResolver(next, content, nil)
}

func parseHostsResolver(next Resolver, content []byte, readErr error) (*HostsResolver, error) {
	mp, err := hostsfile.ParseHosts(content, readErr)
	if err != nil {
		return nil, err
	}

	hosts := make(map[string]string)
	for ip, names := range mp {
		parsed := net.ParseIP(ip)
		if parsed == nil || parsed.To4() == nil {
			continue
		}
		for _, name := range names {
			name = strings.ToLower(name)
			// First entry wins, like the C library.
			if _, ok := hosts[name]; !ok {
				hosts[name] = parsed.To4().String()
			}
		}
	}

	return &HostsResolver{Next: next, hosts: hosts}, nil
}

func (r *HostsResolver) Resolve(ctx context.Context, host string) (string, error) {
	if IsNumeric(host) {
		return host, nil
	}
	if ip, ok := r.hosts[strings.ToLower(strings.TrimSuffix(host, "."))]; ok {
		return ip, nil
	}
	if r.Next == nil {
		return "", &ResolutionError{Host: host, Err: ErrNoAddress}
	}
	return r.Next.Resolve(ctx, host)
}
