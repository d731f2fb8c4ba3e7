// Package addr resolves target hostnames to IPv4 addresses and encodes
// addresses and ports into the fixed-width big-endian forms used on the wire
// by SOCKS proxies.
//
// Resolvers are composable: a [HostsResolver] answers from the hosts file and
// defers to a [DNSResolver] (or [NetResolver]), optionally behind a
// [CachingResolver]. Every resolver returns numeric hosts unchanged without a
// lookup; see [IsNumeric].
package addr
