package server

import (
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/r9s-ai/open-endpoint-router/internal/metrics"
	"github.com/r9s-ai/open-endpoint-router/internal/proxy"
	"github.com/r9s-ai/open-endpoint-router/pkg/config"
	"github.com/r9s-ai/open-endpoint-router/pkg/httpclient"
	"github.com/r9s-ai/open-endpoint-router/pkg/protocol"
	"github.com/r9s-ai/open-endpoint-router/pkg/requestid"
	"github.com/r9s-ai/open-endpoint-router/pkg/rules"
)

var errNoRules = errors.New("resolver kind has no rule set")

// App wires the configured resolver into the request pipeline shared by the
// proxy and admin handlers.
type App struct {
	cfg      *config.Config
	backend  *backend
	pipeline *httpclient.Client
	proxy    *proxy.Client
	metrics  *metrics.Metrics
	reqIDKey string

	reloadMu sync.Mutex
}

// Options override collaborators, mostly for tests.
type Options struct {
	Metrics *metrics.Metrics
	// Upstream sends proxied requests. Defaults to an http.Client over the
	// per-service proxy transport.
	Upstream httpclient.HTTPDoer
	// Discovery is used by the discovery resolver to reach the registry.
	Discovery httpclient.HTTPDoer
}

func NewApp(cfg *config.Config, opts Options) (*App, error) {
	if cfg == nil {
		return nil, errors.New("nil config")
	}
	m := opts.Metrics
	if m == nil {
		m = metrics.New()
	}
	b, err := newBackend(cfg, m, opts.Discovery)
	if err != nil {
		return nil, err
	}

	upstream := opts.Upstream
	if upstream == nil {
		transport, err := proxy.NewTransport(cfg.Upstream.Proxies)
		if err != nil {
			return nil, err
		}
		upstream = &http.Client{
			Transport: transport,
			Timeout:   time.Duration(cfg.Upstream.TimeoutMs) * time.Millisecond,
			CheckRedirect: func(*http.Request, []*http.Request) error {
				return http.ErrUseLastResponse
			},
		}
	}

	proto, err := protocol.Parse(cfg.Resolver.Protocol)
	if err != nil {
		return nil, fmt.Errorf("resolver.protocol: %w", err)
	}
	reqIDKey := requestid.ResolveHeaderKey(cfg.Server.RequestIDHeader)
	pipeline := httpclient.New(upstream, b.resolver,
		httpclient.WithRequestIDHeaderKey(reqIDKey),
		httpclient.WithProtocol(proto),
	)
	return &App{
		cfg:      cfg,
		backend:  b,
		pipeline: pipeline,
		proxy:    &proxy.Client{Pipeline: pipeline},
		metrics:  m,
		reqIDKey: reqIDKey,
	}, nil
}

func (a *App) Metrics() *metrics.Metrics { return a.metrics }

// ReloadRules reloads the rules directory. Concurrent reloads serialize; a
// failed reload keeps the active rule set.
func (a *App) ReloadRules() (rules.LoadResult, error) {
	if a.backend.rules == nil {
		return rules.LoadResult{}, errNoRules
	}
	a.reloadMu.Lock()
	defer a.reloadMu.Unlock()
	res, err := a.backend.rules.ReloadFromDir(a.cfg.Rules.Dir)
	a.metrics.ObserveReload(err)
	if err != nil {
		return res, fmt.Errorf("reload rules dir %q: %w", a.cfg.Rules.Dir, err)
	}
	a.metrics.SetRulesLoaded(res.Rules)
	return res, nil
}

// Reload refreshes whatever the active resolver caches.
func (a *App) Reload() (rules.LoadResult, error) {
	if a.backend.invalidate != nil {
		a.backend.invalidate()
	}
	if a.backend.rules == nil {
		return rules.LoadResult{}, nil
	}
	return a.ReloadRules()
}
