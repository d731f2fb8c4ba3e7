package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/pflag"

	"github.com/die-net/proxydial/internal/addr"
	"github.com/die-net/proxydial/internal/dialer"
	"github.com/die-net/proxydial/internal/relay"
	"github.com/die-net/proxydial/internal/sockopt"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	var (
		proxyURL = pflag.String("proxy", defaultUpstream(), "Proxy URL: direct:// | socks4://[user@]host:port | socks5://[user:pass@]host:port | http://host:port")

		dialTimeout        = pflag.Duration("dial-timeout", dialer.DefaultDialTimeout, "Timeout for TCP connect to the proxy or target")
		negotiationTimeout = pflag.Duration("negotiation-timeout", dialer.DefaultNegotiationTimeout, "Timeout for the whole proxy handshake, including connect")
		tcpKeepAlive       = pflag.String("tcp-keepalive", "45:45:3", "TCP keepalive: on|off|keepidle:keepintvl:keepcnt")
		tcpUserTimeout     = pflag.Duration("tcp-user-timeout", 0, "TCP_USER_TIMEOUT for outbound sockets; 0 keeps the system default")
		dnsServers         = pflag.StringSlice("dns-server", nil, "DNS server ip[:port] for resolving SOCKS targets; repeatable. Default: /etc/resolv.conf")
		dnsTimeout         = pflag.Duration("dns-timeout", 2*time.Second, "Timeout per DNS query")
		dnsCacheTTL        = pflag.Duration("dns-cache-ttl", time.Minute, "How long to cache resolved targets; 0 disables")
		verbose            = pflag.Bool("verbose", false, "Log handshake progress to stderr")
	)

	if !sockopt.IsSupported {
		_ = pflag.CommandLine.MarkHidden("tcp-user-timeout")
	}

	pflag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s [flags] host:port\n", os.Args[0])
		pflag.PrintDefaults()
	}
	pflag.CommandLine.SortFlags = false
	pflag.Parse()

	if pflag.NArg() != 1 {
		pflag.Usage()
		return errors.New("expected exactly one host:port argument")
	}
	target := pflag.Arg(0)
	if _, _, err := addr.SplitHostPort(target); err != nil {
		return fmt.Errorf("invalid target: %w", err)
	}

	logger := logrus.New()
	logger.SetOutput(os.Stderr)
	if *verbose {
		logger.SetLevel(logrus.DebugLevel)
	}

	ka, err := parseTCPKeepAlive(*tcpKeepAlive)
	if err != nil {
		return fmt.Errorf("invalid --tcp-keepalive: %w", err)
	}

	cfg := dialer.Config{
		DialTimeout:        *dialTimeout,
		NegotiationTimeout: *negotiationTimeout,
		KeepAlive:          ka,
		UserTimeout:        *tcpUserTimeout,
		Resolver: addr.NewResolver(addr.ResolverConfig{
			Servers:   *dnsServers,
			Timeout:   *dnsTimeout,
			HostsFile: true,
			CacheTTL:  *dnsCacheTTL,
			Logger:    logger,
		}),
		Logger: logger,
	}

	d, err := dialer.New(cfg, *proxyURL)
	if err != nil {
		return fmt.Errorf("invalid --proxy: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	conn, err := d.DialContext(ctx, "tcp", target)
	if err != nil {
		return err
	}
	logger.WithField("target", target).Debug("connected")

	err = relay.Pipe(ctx, conn, os.Stdin, os.Stdout)
	if errors.Is(err, context.Canceled) {
		err = nil
	}
	return err
}

func parseTCPKeepAlive(s string) (net.KeepAliveConfig, error) {
	s = strings.TrimSpace(strings.ToLower(s))
	if s == "" {
		return net.KeepAliveConfig{}, errors.New("empty")
	}
	if s == "on" {
		return net.KeepAliveConfig{Enable: true}, nil
	}
	if s == "off" {
		return net.KeepAliveConfig{Enable: false}, nil
	}

	parts := strings.Split(s, ":")
	if len(parts) != 3 {
		return net.KeepAliveConfig{}, errors.New("expected on|off|keepidle:keepintvl:keepcnt")
	}
	keepIdle, err := parsePositiveSeconds(parts[0])
	if err != nil {
		return net.KeepAliveConfig{}, fmt.Errorf("keepidle: %w", err)
	}
	keepIntvl, err := parsePositiveSeconds(parts[1])
	if err != nil {
		return net.KeepAliveConfig{}, fmt.Errorf("keepintvl: %w", err)
	}
	keepCnt, err := parsePositiveInt(parts[2])
	if err != nil {
		return net.KeepAliveConfig{}, fmt.Errorf("keepcnt: %w", err)
	}

	return net.KeepAliveConfig{
		Enable:   true,
		Idle:     keepIdle,
		Interval: keepIntvl,
		Count:    keepCnt,
	}, nil
}

func parsePositiveSeconds(s string) (time.Duration, error) {
	n, err := parsePositiveInt(s)
	if err != nil {
		return 0, err
	}
	return time.Duration(n) * time.Second, nil
}

func parsePositiveInt(s string) (int, error) {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return 0, err
	}
	if n <= 0 {
		return 0, errors.New("must be > 0")
	}
	return n, nil
}

func defaultUpstream() string {
	if p := os.Getenv("ALL_PROXY"); p != "" {
		return p
	}

	if p := os.Getenv("all_proxy"); p != "" {
		return p
	}

	return "direct://"
}
