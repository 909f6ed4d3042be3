// Package dns provides the process-wide hostname cache consulted before every
// connection attempt.
//
// A miss races an IPv4 and an IPv6 lookup and keeps whichever family answers
// first with at least one address. Entries expire after the record TTL,
// measured on an injectable clock.
package dns

import (
	"context"
	"net/netip"
	"sync"
	"sync/atomic"
	"time"

	"github.com/benbjohnson/clock"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"
)

const (
	// DefaultSize bounds the number of cached hostnames.
	DefaultSize = 4096
	// DefaultLookupTimeout bounds one race of lookups, independent of the caller.
	DefaultLookupTimeout = 10 * time.Second
)

// Entry is an immutable cached resolution.
type Entry struct {
	Host    string
	Addr    netip.Addr
	Family  Family
	Expires time.Time
}

// Expired reports whether the entry is stale at now.
func (e Entry) Expired(now time.Time) bool {
	return !now.Before(e.Expires)
}

// Stats counts cache lookups.
type Stats struct {
	Hits    int64
	Misses  int64
	Entries int
}

type Cache struct {
	resolver      Resolver
	clock         clock.Clock
	logger        logrus.FieldLogger
	size          int
	minTTL        time.Duration
	lookupTimeout time.Duration

	entries *lru.Cache[string, Entry]
	group   singleflight.Group

	hits   atomic.Int64
	misses atomic.Int64
}

type Option func(*Cache)

func WithClock(c clock.Clock) Option {
	return func(cache *Cache) {
		cache.clock = c
	}
}

func WithLogger(l logrus.FieldLogger) Option {
	return func(cache *Cache) {
		cache.logger = l
	}
}

// WithSize bounds the number of cached hostnames; the least recently used entry is evicted.
func WithSize(n int) Option {
	return func(cache *Cache) {
		cache.size = n
	}
}

// WithMinTTL raises record TTLs below d to d.
func WithMinTTL(d time.Duration) Option {
	return func(cache *Cache) {
		cache.minTTL = d
	}
}

func WithLookupTimeout(d time.Duration) Option {
	return func(cache *Cache) {
		cache.lookupTimeout = d
	}
}

func NewCache(resolver Resolver, opts ...Option) (*Cache, error) {
	c := &Cache{
		resolver:      resolver,
		clock:         clock.New(),
		size:          DefaultSize,
		lookupTimeout: DefaultLookupTimeout,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.logger == nil {
		l := logrus.New()
		l.SetLevel(logrus.WarnLevel)
		c.logger = l
	}
	if c.resolver == nil {
		c.resolver = NewDefaultResolver()
	}

	entries, err := lru.New[string, Entry](c.size)
	if err != nil {
		return nil, errors.Wrap(err, "creating dns cache")
	}
	c.entries = entries
	return c, nil
}

var (
	defaultOnce  sync.Once
	defaultCache *Cache
)

// Default returns the process-wide cache backed by NewDefaultResolver.
func Default() *Cache {
	defaultOnce.Do(func() {
		c, err := NewCache(NewDefaultResolver())
		if err != nil {
			panic(err)
		}
		defaultCache = c
	})
	return defaultCache
}

// Resolve returns the cached address for host, resolving it when missing or
// stale. IP literals are returned as is.
func (c *Cache) Resolve(ctx context.Context, host string) (Entry, error) {
	if addr, err := netip.ParseAddr(host); err == nil {
		addr = addr.Unmap()
		family := IPv4
		if addr.Is6() {
			family = IPv6
		}
		return Entry{Host: host, Addr: addr, Family: family}, nil
	}

	if e, ok := c.entries.Get(host); ok && !e.Expired(c.clock.Now()) {
		c.hits.Add(1)
		c.logger.WithFields(logrus.Fields{"host": host, "addr": e.Addr, "family": e.Family}).Debug("dns cache hit")
		return e, nil
	}
	c.misses.Add(1)

	ch := c.group.DoChan(host, func() (any, error) {
		lookupCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.lookupTimeout)
		defer cancel()
		return c.race(lookupCtx, host)
	})

	select {
	case <-ctx.Done():
		return Entry{}, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return Entry{}, res.Err
		}
		return res.Val.(Entry), nil
	}
}

type lookupResult struct {
	family Family
	answer Answer
	err    error
}

// race queries both families concurrently and stores the first usable answer.
// When both fail, the error of the lookup that finished last is returned.
func (c *Cache) race(ctx context.Context, host string) (Entry, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	results := make(chan lookupResult, 2)
	for _, family := range []Family{IPv4, IPv6} {
		go func(family Family) {
			ans, err := c.resolver.Lookup(ctx, host, family)
			if err == nil && len(ans.Addrs) == 0 {
				err = errors.Wrapf(ErrNoAddresses, "%s %s", family, host)
			}
			results <- lookupResult{family: family, answer: ans, err: err}
		}(family)
	}

	var lastErr error
	for i := 0; i < 2; i++ {
		res := <-results
		if res.err != nil {
			lastErr = res.err
			continue
		}

		ttl := res.answer.TTL
		if ttl < c.minTTL {
			ttl = c.minTTL
		}
		entry := Entry{
			Host:    host,
			Addr:    res.answer.Addrs[0],
			Family:  res.family,
			Expires: c.clock.Now().Add(ttl),
		}
		c.entries.Add(host, entry)
		c.logger.WithFields(logrus.Fields{
			"host":   host,
			"addr":   entry.Addr,
			"family": entry.Family,
			"ttl":    ttl,
		}).Debug("dns resolved")
		return entry, nil
	}

	return Entry{}, errors.Wrapf(lastErr, "resolving %s", host)
}

// Lookup returns the cached entry for host without resolving.
func (c *Cache) Lookup(host string) (Entry, bool) {
	e, ok := c.entries.Peek(host)
	if !ok || e.Expired(c.clock.Now()) {
		return Entry{}, false
	}
	return e, true
}

// Purge drops every entry.
func (c *Cache) Purge() {
	c.entries.Purge()
}

func (c *Cache) Stats() Stats {
	return Stats{
		Hits:    c.hits.Load(),
		Misses:  c.misses.Load(),
		Entries: c.entries.Len(),
	}
}
