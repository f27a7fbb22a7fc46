package discovery

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/r9s-ai/open-endpoint-router/pkg/endpoint"
	"github.com/r9s-ai/open-endpoint-router/pkg/httpclient"
	"github.com/r9s-ai/open-endpoint-router/pkg/requestid"
)

const maxRegistryResponseBytes = 1 << 20

type HTTPOptions struct {
	// RegistryURL is the registry base, e.g. http://registry.internal:8500.
	RegistryURL string
	Client      httpclient.HTTPDoer
	// CacheTTL keeps successful lookups for this long. Zero disables caching.
	CacheTTL           time.Duration
	RequestIDHeaderKey string
	Now                func() time.Time
}

// HTTPResolver resolves endpoints by calling
// GET {registry}/v1/services/{service}?zone={zone}, which answers
// {"url": "...", "headers": {"Name": ["v1", ...]}}.
type HTTPResolver struct {
	base   *url.URL
	doer   httpclient.HTTPDoer
	ttl    time.Duration
	ridKey string
	now    func() time.Time

	mu    sync.Mutex
	cache map[Params]cachedEndpoint
}

type cachedEndpoint struct {
	ep        endpoint.Endpoint
	expiresAt time.Time
}

type registryResponse struct {
	URL     string         `json:"url"`
	Headers orderedHeaders `json:"headers"`
}

type headerField struct {
	name   string
	values []string
}

// orderedHeaders decodes a JSON object of header lists keeping key order.
type orderedHeaders []headerField

func (h *orderedHeaders) UnmarshalJSON(b []byte) error {
	dec := json.NewDecoder(bytes.NewReader(b))
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if tok == nil {
		*h = nil
		return nil
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return fmt.Errorf("headers: expected object, got %v", tok)
	}
	var out orderedHeaders
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return err
		}
		name, _ := tok.(string)
		var values []string
		if err := dec.Decode(&values); err != nil {
			return fmt.Errorf("headers %q: %w", name, err)
		}
		out = append(out, headerField{name: name, values: values})
	}
	*h = out
	return nil
}

func NewHTTPResolver(opts HTTPOptions) (*HTTPResolver, error) {
	raw := strings.TrimSpace(opts.RegistryURL)
	if raw == "" {
		return nil, errors.New("discovery registry url is empty")
	}
	base, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("discovery registry url: %w", err)
	}
	if base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("discovery registry url %q must be absolute", raw)
	}
	doer := opts.Client
	if doer == nil {
		doer = http.DefaultClient
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &HTTPResolver{
		base:   base,
		doer:   doer,
		ttl:    opts.CacheTTL,
		ridKey: requestid.ResolveHeaderKey(opts.RequestIDHeaderKey),
		now:    now,
		cache:  map[Params]cachedEndpoint{},
	}, nil
}

func (r *HTTPResolver) ResolveEndpoint(ctx context.Context, p Params) (endpoint.Endpoint, error) {
	if err := checkService(p.Service); err != nil {
		return endpoint.Endpoint{}, err
	}
	if ep, ok := r.cached(p); ok {
		return ep, nil
	}

	u := r.base.JoinPath("v1", "services", p.Service)
	if p.Zone != "" {
		u.RawQuery = url.Values{"zone": {p.Zone}}.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), http.NoBody)
	if err != nil {
		return endpoint.Endpoint{}, err
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set(r.ridKey, requestid.GenUUID())

	resp, err := r.doer.Do(req)
	if err != nil {
		return endpoint.Endpoint{}, fmt.Errorf("discovery: lookup %q: %w", p.Service, err)
	}
	defer resp.Body.Close() //nolint:errcheck
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxRegistryResponseBytes))
	if err != nil {
		return endpoint.Endpoint{}, fmt.Errorf("discovery: read %q: %w", p.Service, err)
	}
	if resp.StatusCode != http.StatusOK {
		return endpoint.Endpoint{}, fmt.Errorf("discovery: lookup %q failed: status=%d body=%s", p.Service, resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var out registryResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return endpoint.Endpoint{}, fmt.Errorf("discovery: decode %q: %w", p.Service, err)
	}
	if strings.TrimSpace(out.URL) == "" {
		return endpoint.Endpoint{}, fmt.Errorf("discovery: registry returned no url for %q", p.Service)
	}

	b := endpoint.NewBuilder().URL(out.URL)
	for _, h := range out.Headers {
		for _, v := range h.values {
			b.Header(h.name, v)
		}
	}
	ep := b.Build()
	r.store(p, ep)
	return ep, nil
}

// Invalidate drops every cached lookup.
func (r *HTTPResolver) Invalidate() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cache = map[Params]cachedEndpoint{}
}

func (r *HTTPResolver) cached(p Params) (endpoint.Endpoint, bool) {
	if r.ttl <= 0 {
		return endpoint.Endpoint{}, false
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.cache[p]
	if !ok {
		return endpoint.Endpoint{}, false
	}
	if !r.now().Before(c.expiresAt) {
		delete(r.cache, p)
		return endpoint.Endpoint{}, false
	}
	return c.ep, true
}

func (r *HTTPResolver) store(p Params, ep endpoint.Endpoint) {
	if r.ttl <= 0 {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cache[p] = cachedEndpoint{ep: ep, expiresAt: r.now().Add(r.ttl)}
}
