package proxy

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
)

type serviceKey struct{}

func WithService(ctx context.Context, service string) context.Context {
	return context.WithValue(ctx, serviceKey{}, service)
}

func ServiceFromContext(ctx context.Context) string {
	s, _ := ctx.Value(serviceKey{}).(string)
	return s
}

// NewTransport clones the default transport and routes each service through
// its configured outbound proxy. Services without an entry fall back to the
// environment (HTTP_PROXY and friends).
func NewTransport(proxies map[string]string) (*http.Transport, error) {
	parsed := make(map[string]*url.URL, len(proxies))
	for svc, raw := range proxies {
		u, err := url.Parse(strings.TrimSpace(raw))
		if err != nil {
			return nil, fmt.Errorf("upstream proxy for %q: %w", svc, err)
		}
		if u.Scheme == "" || u.Host == "" {
			return nil, fmt.Errorf("upstream proxy for %q must be absolute: %q", svc, raw)
		}
		parsed[strings.ToLower(svc)] = u
	}
	t := http.DefaultTransport.(*http.Transport).Clone()
	t.Proxy = func(req *http.Request) (*url.URL, error) {
		if u, ok := parsed[strings.ToLower(ServiceFromContext(req.Context()))]; ok {
			return u, nil
		}
		return http.ProxyFromEnvironment(req)
	}
	return t, nil
}
