package dns

import (
	"context"
	"errors"
	"net/netip"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type familyAnswer struct {
	answer Answer
	err    error
	delay  time.Duration
}

// fakeResolver answers per family and counts calls.
type fakeResolver struct {
	mu      sync.Mutex
	answers map[Family]familyAnswer
	calls   atomic.Int32
}

func (f *fakeResolver) set(family Family, a familyAnswer) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.answers[family] = a
}

func (f *fakeResolver) Lookup(ctx context.Context, host string, family Family) (Answer, error) {
	f.calls.Add(1)
	f.mu.Lock()
	a := f.answers[family]
	f.mu.Unlock()

	if a.delay > 0 {
		select {
		case <-time.After(a.delay):
		case <-ctx.Done():
			return Answer{}, ctx.Err()
		}
	}
	return a.answer, a.err
}

func newFakeResolver() *fakeResolver {
	return &fakeResolver{answers: make(map[Family]familyAnswer)}
}

type CacheSuite struct {
	suite.Suite
	clock    *clock.Mock
	resolver *fakeResolver
	cache    *Cache
}

func (s *CacheSuite) SetupTest() {
	s.clock = clock.NewMock()
	s.resolver = newFakeResolver()
	cache, err := NewCache(s.resolver, WithClock(s.clock))
	s.Require().NoError(err)
	s.cache = cache
}

func (s *CacheSuite) TestHitWithinTTL() {
	s.resolver.set(IPv4, familyAnswer{answer: Answer{Addrs: []netip.Addr{netip.MustParseAddr("10.0.0.1")}, TTL: time.Minute}})
	s.resolver.set(IPv6, familyAnswer{err: errors.New("no AAAA"), delay: 10 * time.Millisecond})

	first, err := s.cache.Resolve(context.Background(), "api.example")
	s.Require().NoError(err)
	s.Eventually(func() bool { return s.resolver.calls.Load() == 2 }, time.Second, time.Millisecond)

	s.clock.Add(30 * time.Second)
	second, err := s.cache.Resolve(context.Background(), "api.example")
	s.Require().NoError(err)

	s.Equal(first, second)
	s.Equal(int32(2), s.resolver.calls.Load())
	s.Equal(Stats{Hits: 1, Misses: 1, Entries: 1}, s.cache.Stats())
}

func (s *CacheSuite) TestReResolveAfterExpiry() {
	s.resolver.set(IPv4, familyAnswer{answer: Answer{Addrs: []netip.Addr{netip.MustParseAddr("10.0.0.1")}, TTL: time.Minute}})
	s.resolver.set(IPv6, familyAnswer{err: errors.New("no AAAA"), delay: 10 * time.Millisecond})

	first, err := s.cache.Resolve(context.Background(), "api.example")
	s.Require().NoError(err)
	s.Equal(IPv4, first.Family)
	s.Equal(s.clock.Now().Add(time.Minute), first.Expires)

	s.resolver.set(IPv4, familyAnswer{err: errors.New("no A"), delay: 10 * time.Millisecond})
	s.resolver.set(IPv6, familyAnswer{answer: Answer{Addrs: []netip.Addr{netip.MustParseAddr("fd00::1")}, TTL: time.Minute}})

	s.clock.Add(time.Minute)
	_, ok := s.cache.Lookup("api.example")
	s.False(ok)

	second, err := s.cache.Resolve(context.Background(), "api.example")
	s.Require().NoError(err)
	s.Equal(IPv6, second.Family)
	s.Equal(netip.MustParseAddr("fd00::1"), second.Addr)
	s.Equal(int64(2), s.cache.Stats().Misses)
}

func (s *CacheSuite) TestFastestFamilyWins() {
	s.resolver.set(IPv4, familyAnswer{answer: Answer{Addrs: []netip.Addr{netip.MustParseAddr("10.0.0.1")}, TTL: time.Minute}, delay: 200 * time.Millisecond})
	s.resolver.set(IPv6, familyAnswer{answer: Answer{Addrs: []netip.Addr{netip.MustParseAddr("fd00::1")}, TTL: time.Minute}})

	entry, err := s.cache.Resolve(context.Background(), "dual.example")
	s.Require().NoError(err)
	s.Equal(IPv6, entry.Family)
}

func (s *CacheSuite) TestEmptyAnswerLoses() {
	s.resolver.set(IPv4, familyAnswer{answer: Answer{TTL: time.Minute}})
	s.resolver.set(IPv6, familyAnswer{answer: Answer{Addrs: []netip.Addr{netip.MustParseAddr("fd00::2")}, TTL: time.Minute}, delay: 20 * time.Millisecond})

	entry, err := s.cache.Resolve(context.Background(), "v6only.example")
	s.Require().NoError(err)
	s.Equal(IPv6, entry.Family)
}

func (s *CacheSuite) TestBothFailReturnsLastError() {
	first := errors.New("first failure")
	last := errors.New("last failure")
	s.resolver.set(IPv4, familyAnswer{err: first})
	s.resolver.set(IPv6, familyAnswer{err: last, delay: 50 * time.Millisecond})

	_, err := s.cache.Resolve(context.Background(), "down.example")
	s.Require().Error(err)
	s.ErrorIs(err, last)
	s.NotErrorIs(err, first)
	s.Equal(0, s.cache.Stats().Entries)
}

func (s *CacheSuite) TestIPLiteralBypassesCache() {
	entry, err := s.cache.Resolve(context.Background(), "::ffff:127.0.0.1")
	s.Require().NoError(err)
	s.Equal(IPv4, entry.Family)
	s.Equal(netip.MustParseAddr("127.0.0.1"), entry.Addr)

	entry, err = s.cache.Resolve(context.Background(), "::1")
	s.Require().NoError(err)
	s.Equal(IPv6, entry.Family)

	s.Zero(s.resolver.calls.Load())
	s.Equal(Stats{}, s.cache.Stats())
}

func (s *CacheSuite) TestMinTTL() {
	cache, err := NewCache(s.resolver, WithClock(s.clock), WithMinTTL(10*time.Second))
	s.Require().NoError(err)
	s.resolver.set(IPv4, familyAnswer{answer: Answer{Addrs: []netip.Addr{netip.MustParseAddr("10.0.0.3")}}})
	s.resolver.set(IPv6, familyAnswer{err: errors.New("no AAAA"), delay: 10 * time.Millisecond})

	entry, err := cache.Resolve(context.Background(), "short.example")
	s.Require().NoError(err)
	s.Equal(s.clock.Now().Add(10*time.Second), entry.Expires)
}

func (s *CacheSuite) TestPurge() {
	s.resolver.set(IPv4, familyAnswer{answer: Answer{Addrs: []netip.Addr{netip.MustParseAddr("10.0.0.1")}, TTL: time.Minute}})
	s.resolver.set(IPv6, familyAnswer{err: errors.New("no AAAA"), delay: 10 * time.Millisecond})

	_, err := s.cache.Resolve(context.Background(), "api.example")
	s.Require().NoError(err)
	s.cache.Purge()

	_, ok := s.cache.Lookup("api.example")
	s.False(ok)
	s.Equal(0, s.cache.Stats().Entries)
}

func (s *CacheSuite) TestSizeBound() {
	cache, err := NewCache(s.resolver, WithClock(s.clock), WithSize(2))
	s.Require().NoError(err)
	s.resolver.set(IPv4, familyAnswer{answer: Answer{Addrs: []netip.Addr{netip.MustParseAddr("10.0.0.1")}, TTL: time.Minute}})
	s.resolver.set(IPv6, familyAnswer{err: errors.New("no AAAA"), delay: 10 * time.Millisecond})

	for _, host := range []string{"a.example", "b.example", "c.example"} {
		_, err := cache.Resolve(context.Background(), host)
		s.Require().NoError(err)
	}

	s.Equal(2, cache.Stats().Entries)
	_, ok := cache.Lookup("a.example")
	s.False(ok)
}

func TestCacheSuite(t *testing.T) {
	suite.Run(t, new(CacheSuite))
}

func TestCache_ConcurrentMissesShareLookup(t *testing.T) {
	resolver := newFakeResolver()
	resolver.set(IPv4, familyAnswer{answer: Answer{Addrs: []netip.Addr{netip.MustParseAddr("10.0.0.9")}, TTL: time.Minute}, delay: 50 * time.Millisecond})
	resolver.set(IPv6, familyAnswer{err: errors.New("no AAAA"), delay: 100 * time.Millisecond})

	cache, err := NewCache(resolver)
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			entry, err := cache.Resolve(context.Background(), "busy.example")
			assert.NoError(t, err)
			assert.Equal(t, netip.MustParseAddr("10.0.0.9"), entry.Addr)
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(2), resolver.calls.Load())
}

func TestStaticResolver(t *testing.T) {
	r := &StaticResolver{
		Hosts: map[string][]netip.Addr{
			"mixed.example": {netip.MustParseAddr("10.0.0.1"), netip.MustParseAddr("fd00::1")},
		},
		TTL: time.Minute,
	}

	ans, err := r.Lookup(context.Background(), "mixed.example", IPv6)
	require.NoError(t, err)
	assert.Equal(t, []netip.Addr{netip.MustParseAddr("fd00::1")}, ans.Addrs)

	_, err = r.Lookup(context.Background(), "missing.example", IPv4)
	assert.ErrorIs(t, err, ErrNoAddresses)
}

func TestFallbackResolver(t *testing.T) {
	primary := newFakeResolver()
	primary.set(IPv4, familyAnswer{err: errors.New("primary down")})
	secondary := &StaticResolver{Hosts: map[string][]netip.Addr{"x.example": {netip.MustParseAddr("10.1.1.1")}}}

	r := &FallbackResolver{Primary: primary, Secondary: secondary}
	ans, err := r.Lookup(context.Background(), "x.example", IPv4)
	require.NoError(t, err)
	assert.Equal(t, netip.MustParseAddr("10.1.1.1"), ans.Addrs[0])
}

func TestFamily(t *testing.T) {
	assert.Equal(t, "ipv4", IPv4.String())
	assert.Equal(t, "tcp6", IPv6.Network())
	assert.Equal(t, "tcp4", IPv4.Network())
}
