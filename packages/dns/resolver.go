package dns

import (
	"context"
	"net"
	"net/netip"
	"os"
	"strings"
	"time"

	mdns "github.com/miekg/dns"
	"github.com/pkg/errors"
)

// Family is an IP address family.
type Family int

const (
	IPv4 Family = 4
	IPv6 Family = 6
)

func (f Family) String() string {
	if f == IPv6 {
		return "ipv6"
	}
	return "ipv4"
}

// Network returns the dial network for the family.
func (f Family) Network() string {
	if f == IPv6 {
		return "tcp6"
	}
	return "tcp4"
}

// DefaultSystemTTL is used for answers from resolvers that do not report a TTL.
const DefaultSystemTTL = 30 * time.Second

// ErrNoAddresses is returned when a lookup succeeds without any address.
var ErrNoAddresses = errors.New("no addresses found")

// Answer is the result of one single-family lookup.
type Answer struct {
	Addrs []netip.Addr
	TTL   time.Duration
}

// Resolver looks up the addresses of one family for a hostname.
type Resolver interface {
	Lookup(ctx context.Context, host string, family Family) (Answer, error)
}

// SystemResolver resolves through the Go/system resolver. It has no access to
// record TTLs and reports DefaultSystemTTL.
type SystemResolver struct {
	Resolver *net.Resolver
	TTL      time.Duration
}

var _ Resolver = (*SystemResolver)(nil)

func (s *SystemResolver) Lookup(ctx context.Context, host string, family Family) (Answer, error) {
	r := s.Resolver
	if r == nil {
		r = net.DefaultResolver
	}
	network := "ip4"
	if family == IPv6 {
		network = "ip6"
	}

	addrs, err := r.LookupNetIP(ctx, network, host)
	if err != nil {
		return Answer{}, errors.Wrapf(err, "system lookup %s %s", network, host)
	}

	ttl := s.TTL
	if ttl <= 0 {
		ttl = DefaultSystemTTL
	}
	out := make([]netip.Addr, 0, len(addrs))
	for _, a := range addrs {
		out = append(out, a.Unmap())
	}
	return Answer{Addrs: out, TTL: ttl}, nil
}

// WireResolver sends A/AAAA queries to nameservers directly so that record
// TTLs are available.
type WireResolver struct {
	Servers []string // host:port
	Client  *mdns.Client
}

var _ Resolver = (*WireResolver)(nil)

// NewWireResolverFromFile reads nameservers from a resolv.conf style file.
func NewWireResolverFromFile(path string) (*WireResolver, error) {
	cfg, err := mdns.ClientConfigFromFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "reading %s", path)
	}
	if len(cfg.Servers) == 0 {
		return nil, errors.Errorf("no nameservers in %s", path)
	}

	servers := make([]string, 0, len(cfg.Servers))
	for _, s := range cfg.Servers {
		servers = append(servers, net.JoinHostPort(s, cfg.Port))
	}
	return &WireResolver{
		Servers: servers,
		Client:  &mdns.Client{Timeout: time.Duration(cfg.Timeout) * time.Second},
	}, nil
}

// NewWireResolver uses the given nameserver addresses; a missing port defaults to 53.
func NewWireResolver(servers ...string) *WireResolver {
	out := make([]string, 0, len(servers))
	for _, s := range servers {
		if _, _, err := net.SplitHostPort(s); err != nil {
			s = net.JoinHostPort(s, "53")
		}
		out = append(out, s)
	}
	return &WireResolver{Servers: out, Client: &mdns.Client{Timeout: 5 * time.Second}}
}

func (w *WireResolver) Lookup(ctx context.Context, host string, family Family) (Answer, error) {
	qtype := mdns.TypeA
	if family == IPv6 {
		qtype = mdns.TypeAAAA
	}

	msg := new(mdns.Msg)
	msg.SetQuestion(mdns.Fqdn(host), qtype)
	msg.RecursionDesired = true

	client := w.Client
	if client == nil {
		client = &mdns.Client{}
	}

	var lastErr error = ErrNoAddresses
	for _, server := range w.Servers {
		resp, _, err := client.ExchangeContext(ctx, msg, server)
		if err == nil && resp.Truncated {
			tcp := &mdns.Client{Net: "tcp", Timeout: client.Timeout}
			resp, _, err = tcp.ExchangeContext(ctx, msg, server)
		}
		if err != nil {
			lastErr = errors.Wrapf(err, "querying %s", server)
			if ctx.Err() != nil {
				break
			}
			continue
		}
		if resp.Rcode != mdns.RcodeSuccess {
			lastErr = errors.Errorf("%s answered %s for %s", server, mdns.RcodeToString[resp.Rcode], host)
			continue
		}
		return answerFrom(resp, family), nil
	}
	return Answer{}, lastErr
}

// answerFrom collects addresses of the family and the smallest TTL among them.
func answerFrom(resp *mdns.Msg, family Family) Answer {
	var ans Answer
	var minTTL uint32
	for _, rr := range resp.Answer {
		var ip net.IP
		switch rec := rr.(type) {
		case *mdns.A:
			if family == IPv4 {
				ip = rec.A
			}
		case *mdns.AAAA:
			if family == IPv6 {
				ip = rec.AAAA
			}
		}
		addr, ok := netip.AddrFromSlice(ip)
		if !ok {
			continue
		}
		if len(ans.Addrs) == 0 || rr.Header().Ttl < minTTL {
			minTTL = rr.Header().Ttl
		}
		ans.Addrs = append(ans.Addrs, addr.Unmap())
	}
	ans.TTL = time.Duration(minTTL) * time.Second
	return ans
}

// FallbackResolver asks Secondary when Primary fails.
type FallbackResolver struct {
	Primary   Resolver
	Secondary Resolver
}

var _ Resolver = (*FallbackResolver)(nil)

func (f *FallbackResolver) Lookup(ctx context.Context, host string, family Family) (Answer, error) {
	ans, err := f.Primary.Lookup(ctx, host, family)
	if err == nil && len(ans.Addrs) > 0 {
		return ans, nil
	}
	if ctx.Err() != nil {
		return Answer{}, ctx.Err()
	}
	return f.Secondary.Lookup(ctx, host, family)
}

// DefaultHostsPath is the hosts file consulted before any nameserver.
const DefaultHostsPath = "/etc/hosts"

// HostsResolver answers from a hosts(5) file and hands other names to Next.
// A name listed in the file is answered from the file alone, for both
// families, so entries there override DNS. The file is read on every lookup;
// an unreadable file is treated as empty.
type HostsResolver struct {
	Path string
	TTL  time.Duration
	Next Resolver
}

var _ Resolver = (*HostsResolver)(nil)

func (h *HostsResolver) Lookup(ctx context.Context, host string, family Family) (Answer, error) {
	path := h.Path
	if path == "" {
		path = DefaultHostsPath
	}

	data, err := os.ReadFile(path)
	if err == nil {
		if addrs, listed := hostsEntries(data, host, family); listed {
			if len(addrs) == 0 {
				return Answer{}, errors.Wrapf(ErrNoAddresses, "%s %s in %s", family, host, path)
			}
			ttl := h.TTL
			if ttl <= 0 {
				ttl = DefaultSystemTTL
			}
			return Answer{Addrs: addrs, TTL: ttl}, nil
		}
	}

	if h.Next == nil {
		return Answer{}, errors.Wrapf(ErrNoAddresses, "%s %s", family, host)
	}
	return h.Next.Lookup(ctx, host, family)
}

// hostsEntries returns the addresses of family listed for host, and whether
// host appears in the file at all.
func hostsEntries(data []byte, host string, family Family) ([]netip.Addr, bool) {
	host = strings.TrimSuffix(host, ".")
	var addrs []netip.Addr
	listed := false
	for _, line := range strings.Split(string(data), "\n") {
		if i := strings.IndexByte(line, '#'); i >= 0 {
			line = line[:i]
		}
		fields := strings.Fields(line)
		if len(fields) < 2 {
			continue
		}
		addr, err := netip.ParseAddr(fields[0])
		if err != nil {
			continue
		}
		addr = addr.Unmap()

		for _, name := range fields[1:] {
			if !strings.EqualFold(strings.TrimSuffix(name, "."), host) {
				continue
			}
			listed = true
			if (family == IPv4) == addr.Is4() {
				addrs = append(addrs, addr)
			}
			break
		}
	}
	return addrs, listed
}

// NewDefaultResolver consults /etc/hosts, then the nameservers from
// /etc/resolv.conf, then the system resolver (platform resolvers).
func NewDefaultResolver() Resolver {
	return &HostsResolver{Next: nameserverResolver()}
}

func nameserverResolver() Resolver {
	system := &SystemResolver{}
	wire, err := NewWireResolverFromFile("/etc/resolv.conf")
	if err != nil {
		return system
	}
	return &FallbackResolver{Primary: wire, Secondary: system}
}

// StaticResolver answers from a fixed table. Useful for tests and host overrides.
type StaticResolver struct {
	Hosts map[string][]netip.Addr
	TTL   time.Duration
}

var _ Resolver = (*StaticResolver)(nil)

func (s *StaticResolver) Lookup(ctx context.Context, host string, family Family) (Answer, error) {
	var out []netip.Addr
	for _, a := range s.Hosts[host] {
		if (family == IPv4) == a.Is4() {
			out = append(out, a)
		}
	}
	if len(out) == 0 {
		return Answer{}, errors.Wrapf(ErrNoAddresses, "%s %s", family, host)
	}
	return Answer{Addrs: out, TTL: s.TTL}, nil
}
