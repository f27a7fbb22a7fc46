package server

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/r9s-ai/open-endpoint-router/internal/metrics"
	"github.com/r9s-ai/open-endpoint-router/pkg/config"
	"github.com/r9s-ai/open-endpoint-router/pkg/discovery"
	"github.com/r9s-ai/open-endpoint-router/pkg/endpoint"
	"github.com/r9s-ai/open-endpoint-router/pkg/httpclient"
	"github.com/r9s-ai/open-endpoint-router/pkg/rules"
)

// route carries the routing inputs taken from a gateway request.
type route struct {
	Service string
	Region  string
	Tenant  string
	FIPS    bool
}

// backend is the configured resolution strategy plus the adapter turning a
// route into the parameter type that strategy expects.
type backend struct {
	kind     string
	resolver endpoint.Resolver
	params   func(route) any

	rules      *rules.Registry
	invalidate func()
}

func newBackend(cfg *config.Config, m *metrics.Metrics, doer httpclient.HTTPDoer) (*backend, error) {
	b := &backend{kind: cfg.Resolver.Kind}
	var r endpoint.Resolver
	switch cfg.Resolver.Kind {
	case config.ResolverStatic:
		sr, err := endpoint.NewStaticResolver(cfg.Resolver.StaticURL)
		if err != nil {
			return nil, err
		}
		r = sr
		b.params = func(route) any { return endpoint.StaticParams{} }

	case config.ResolverRules:
		reg := rules.NewRegistry()
		res, err := reg.ReloadFromDir(cfg.Rules.Dir)
		if err != nil {
			return nil, fmt.Errorf("load rules dir %q: %w", cfg.Rules.Dir, err)
		}
		if m != nil {
			m.SetRulesLoaded(res.Rules)
		}
		b.rules = reg
		r = reg.Resolver()
		b.params = func(rt route) any {
			return rules.Params{Service: rt.Service, Region: rt.Region, Tenant: rt.Tenant, UseFIPS: rt.FIPS}
		}

	case config.ResolverDiscovery:
		if doer == nil {
			doer = &http.Client{Timeout: time.Duration(cfg.Upstream.TimeoutMs) * time.Millisecond}
		}
		hr, err := discovery.NewHTTPResolver(discovery.HTTPOptions{
			RegistryURL:        cfg.Discovery.RegistryURL,
			Client:             doer,
			CacheTTL:           time.Duration(cfg.Discovery.CacheTTLMs) * time.Millisecond,
			RequestIDHeaderKey: cfg.Server.RequestIDHeader,
		})
		if err != nil {
			return nil, err
		}
		r = endpoint.NewDelegating[discovery.Params](hr)
		b.params = discoveryParams
		b.invalidate = hr.Invalidate

	case config.ResolverSRV:
		sr, err := discovery.NewSRVResolver(discovery.SRVOptions{
			Server: cfg.Discovery.DNSServer,
			Domain: cfg.Discovery.SRVDomain,
			Proto:  cfg.Discovery.SRVProto,
			Scheme: cfg.Discovery.SRVScheme,
		})
		if err != nil {
			return nil, err
		}
		r = endpoint.NewDelegating[discovery.Params](sr)
		b.params = discoveryParams

	default:
		return nil, fmt.Errorf("unknown resolver kind %q", cfg.Resolver.Kind)
	}

	if m != nil {
		r = m.Instrument(b.kind, r)
	}
	b.resolver = r
	return b, nil
}

var errInvalidPrefix = errors.New("invalid endpoint prefix")

func discoveryParams(rt route) any {
	return discovery.Params{Service: rt.Service, Zone: rt.Region}
}

// prefixFor expands the configured endpoint prefix template for rt. A nil
// result means no prefix.
func prefixFor(template string, rt route) (*endpoint.Prefix, error) {
	template = strings.TrimSpace(template)
	if template == "" {
		return nil, nil
	}
	p, err := endpoint.ExpandPrefix(template, map[string]string{
		"service": rt.Service,
		"region":  rt.Region,
		"tenant":  rt.Tenant,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errInvalidPrefix, err)
	}
	return &p, nil
}
