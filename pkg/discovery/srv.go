package discovery

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/miekg/dns"

	"github.com/r9s-ai/open-endpoint-router/pkg/endpoint"
)

type SRVOptions struct {
	// Server is the DNS server as host:port.
	Server string
	// Domain is appended to _service._proto.
	Domain string
	Proto  string
	// Scheme of the resulting endpoint url. Defaults to https.
	Scheme  string
	Timeout time.Duration
}

// SRVResolver resolves _{service}._{proto}.[{zone}.]{domain} SRV records.
// The record with the lowest priority wins; ties go to the highest weight,
// then to the lexically smallest target so results are stable.
type SRVResolver struct {
	client *dns.Client
	server string
	domain string
	proto  string
	scheme string
}

func NewSRVResolver(opts SRVOptions) (*SRVResolver, error) {
	server := strings.TrimSpace(opts.Server)
	if server == "" {
		return nil, errors.New("srv dns server is empty")
	}
	if _, _, err := net.SplitHostPort(server); err != nil {
		server = net.JoinHostPort(server, "53")
	}
	domain := strings.Trim(strings.TrimSpace(opts.Domain), ".")
	if domain == "" {
		return nil, errors.New("srv domain is empty")
	}
	proto := strings.TrimSpace(opts.Proto)
	if proto == "" {
		proto = "tcp"
	}
	scheme := strings.TrimSpace(opts.Scheme)
	if scheme == "" {
		scheme = "https"
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	return &SRVResolver{
		client: &dns.Client{Net: "udp", Timeout: timeout},
		server: server,
		domain: domain,
		proto:  proto,
		scheme: scheme,
	}, nil
}

// QueryName returns the fully qualified SRV name looked up for p.
func (r *SRVResolver) QueryName(p Params) string {
	name := "_" + p.Service + "._" + r.proto + "."
	if z := strings.Trim(p.Zone, "."); z != "" {
		name += z + "."
	}
	return dns.Fqdn(name + r.domain)
}

func (r *SRVResolver) ResolveEndpoint(ctx context.Context, p Params) (endpoint.Endpoint, error) {
	if err := checkService(p.Service); err != nil {
		return endpoint.Endpoint{}, err
	}
	if !endpoint.ValidHostLabel(p.Service) {
		return endpoint.Endpoint{}, fmt.Errorf("%w: %q is not a dns label", ErrInvalidService, p.Service)
	}
	name := r.QueryName(p)
	m := new(dns.Msg)
	m.SetQuestion(name, dns.TypeSRV)
	m.RecursionDesired = true

	in, _, err := r.client.ExchangeContext(ctx, m, r.server)
	if err != nil {
		return endpoint.Endpoint{}, fmt.Errorf("discovery: srv %s: %w", name, err)
	}
	if in.Rcode != dns.RcodeSuccess {
		return endpoint.Endpoint{}, fmt.Errorf("discovery: srv %s: rcode %s", name, dns.RcodeToString[in.Rcode])
	}
	var records []*dns.SRV
	for _, rr := range in.Answer {
		if srv, ok := rr.(*dns.SRV); ok {
			records = append(records, srv)
		}
	}
	if len(records) == 0 {
		return endpoint.Endpoint{}, fmt.Errorf("discovery: srv %s: no records", name)
	}
	best := pickSRV(records)
	if best == nil {
		return endpoint.Endpoint{}, fmt.Errorf("discovery: srv %s: service not available", name)
	}
	host := strings.TrimSuffix(best.Target, ".")
	u := r.scheme + "://" + net.JoinHostPort(host, strconv.Itoa(int(best.Port)))
	return endpoint.NewBuilder().
		URL(u).
		Property(SRVTargetKey{}, best.Target).
		Build(), nil
}

// SRVTargetKey is the endpoint property holding the chosen SRV target.
type SRVTargetKey struct{}

// pickSRV returns the preferred record, or nil when none is usable. A target
// of "." means the service is not available at that name (RFC 2782).
func pickSRV(records []*dns.SRV) *dns.SRV {
	sorted := make([]*dns.SRV, 0, len(records))
	for _, rr := range records {
		if rr.Target == "." || rr.Target == "" {
			continue
		}
		sorted = append(sorted, rr)
	}
	if len(sorted) == 0 {
		return nil
	}
	sort.SliceStable(sorted, func(i, j int) bool {
		a, b := sorted[i], sorted[j]
		if a.Priority != b.Priority {
			return a.Priority < b.Priority
		}
		if a.Weight != b.Weight {
			return a.Weight > b.Weight
		}
		return a.Target < b.Target
	})
	return sorted[0]
}
