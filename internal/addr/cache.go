package addr

import (
	"context"
	"errors"
	"time"

	"github.com/patrickmn/go-cache"
	"golang.org/x/sync/singleflight"
)

const defaultLookupTimeout = 10 * time.Second

// CachingResolver remembers successful lookups for a fixed TTL. Concurrent
// lookups of the same name share one call to the underlying resolver.
// Failures are not cached.
//
// The shared call is detached from any single caller's context and bounded
// by LookupTimeout instead, so one caller giving up does not fail the others.
type CachingResolver struct {
	LookupTimeout time.Duration

	next  Resolver
	cache *cache.Cache
	sf    singleflight.Group
}

func NewCachingResolver(next Resolver, ttl time.Duration) *CachingResolver {
	return &CachingResolver{
		LookupTimeout: defaultLookupTimeout,
		next:          next,
		cache:         cache.New(ttl, 2*ttl),
	}
}

func (r *CachingResolver) Resolve(ctx context.Context, host string) (string, error) {
	if IsNumeric(host) {
		return host, nil
	}
	if ip, ok := r.cache.Get(host); ok {
		return ip.(string), nil
	}

	ch := r.sf.DoChan(host, func() (any, error) {
		if ip, ok := r.cache.Get(host); ok {
			return ip, nil
		}

		timeout := r.LookupTimeout
		if timeout <= 0 {
			timeout = defaultLookupTimeout
		}
		lctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), timeout)
		defer cancel()

		ip, err := r.next.Resolve(lctx, host)
		if err != nil {
			return "", err
		}
		r.cache.SetDefault(host, ip)
		return ip, nil
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return "", asResolutionError(host, res.Err)
		}
		return res.Val.(string), nil
	case <-ctx.Done():
		return "", &ResolutionError{Host: host, Err: ctx.Err()}
	}
}

// Flush drops all cached entries.
func (r *CachingResolver) Flush() {
	r.cache.Flush()
}

func asResolutionError(host string, err error) error {
	var re *ResolutionError
	if errors.As(err, &re) {
		return err
	}
	return &ResolutionError{Host: host, Err: err}
}
