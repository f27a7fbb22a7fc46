package server

import (
	"bytes"
	"encoding/json"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/fsnotify/fsnotify"
	"github.com/gin-gonic/gin"

	"github.com/r9s-ai/open-endpoint-router/internal/logx"
	"github.com/r9s-ai/open-endpoint-router/pkg/config"
	"github.com/r9s-ai/open-endpoint-router/pkg/httpclient/httpclienttest"
)

type upstreamHit struct {
	Method string
	Path   string
	Query  string
	Header http.Header
	Body   string
}

func newUpstream(t *testing.T) (*httptest.Server, chan upstreamHit) {
	t.Helper()
	hits := make(chan upstreamHit, 8)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		hits <- upstreamHit{Method: r.Method, Path: r.URL.Path, Query: r.URL.RawQuery, Header: r.Header.Clone(), Body: string(b)}
		w.Header().Set("X-Upstream", "yes")
		w.Header().Set("Connection", "close")
		w.WriteHeader(http.StatusCreated)
		_, _ = io.WriteString(w, "upstream-body")
	}))
	t.Cleanup(srv.Close)
	return srv, hits
}

func writeRules(t *testing.T, dir, name, body string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte(body), 0o600); err != nil {
		t.Fatalf("write rules: %v", err)
	}
}

func mustConfig(t *testing.T, doc string) *config.Config {
	t.Helper()
	cfg, err := config.Parse([]byte(doc))
	if err != nil {
		t.Fatalf("config.Parse: %v", err)
	}
	return cfg
}

type testEnv struct {
	app    *App
	router *gin.Engine
	logs   *bytes.Buffer
}

func newTestEnv(t *testing.T, cfg *config.Config, opts Options) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)
	a, err := NewApp(cfg, opts)
	if err != nil {
		t.Fatalf("NewApp: %v", err)
	}
	f, err := compileAccessFormat(cfg)
	if err != nil {
		t.Fatalf("compileAccessFormat: %v", err)
	}
	var logs bytes.Buffer
	return &testEnv{app: a, router: NewRouter(a, log.New(&logs, "", 0), false, f), logs: &logs}
}

func (e *testEnv) do(req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func rulesEnv(t *testing.T, upstreamURL string) (*testEnv, string) {
	t.Helper()
	dir := t.TempDir()
	writeRules(t, dir, "10-storage.yaml", `
rules:
  - match: {service: storage}
    url: "`+upstreamURL+`/base"
    headers:
      X-Api-Version: ["2024-01-01"]
      X-Region: ["{region}"]
`)
	cfg := mustConfig(t, "auth:\n  api_key: admin-key\nrules:\n  dir: "+dir+"\n")
	return newTestEnv(t, cfg, Options{}), dir
}

func TestProxyForwardsToResolvedEndpoint(t *testing.T) {
	up, hits := newUpstream(t)
	env, _ := rulesEnv(t, up.URL)

	req := httptest.NewRequest(http.MethodPost, "/proxy/storage/objects/a?x=1", strings.NewReader(`{"k":"v"}`))
	req.Header.Set("X-Oer-Region", "eu-west-1")
	req.Header.Set("X-Api-Version", "client-supplied")
	req.Header.Set("X-Custom", "kept")
	w := env.do(req)

	if w.Code != http.StatusCreated {
		t.Fatalf("status=%d body=%s", w.Code, w.Body.String())
	}
	if w.Body.String() != "upstream-body" {
		t.Fatalf("body=%q", w.Body.String())
	}
	if w.Header().Get("X-Upstream") != "yes" || w.Header().Get("Connection") != "" {
		t.Fatalf("unexpected response headers: %v", w.Header())
	}
	hit := <-hits
	if hit.Method != http.MethodPost || hit.Path != "/base/objects/a" || hit.Query != "x=1" {
		t.Fatalf("unexpected upstream request: %+v", hit)
	}
	if hit.Body != `{"k":"v"}` {
		t.Fatalf("body not forwarded: %q", hit.Body)
	}
	if got := hit.Header.Values("X-Api-Version"); len(got) != 1 || got[0] != "2024-01-01" {
		t.Fatalf("endpoint header must replace client value, got %v", got)
	}
	if hit.Header.Get("X-Region") != "eu-west-1" || hit.Header.Get("X-Custom") != "kept" {
		t.Fatalf("unexpected upstream headers: %v", hit.Header)
	}
	if hit.Header.Get("X-Oer-Region") != "" {
		t.Fatalf("control header leaked upstream")
	}
	rid := w.Header().Get("X-Oer-Request-Id")
	if rid == "" || hit.Header.Get("X-Oer-Request-Id") != rid {
		t.Fatalf("request id not propagated: downstream=%q upstream=%q", rid, hit.Header.Get("X-Oer-Request-Id"))
	}

	line := env.logs.String()
	for _, want := range []string{"service=storage", "region=eu-west-1", "resolver=rules", "endpoint=" + up.URL + "/base", "upstream_status=201"} {
		if !strings.Contains(line, want) {
			t.Fatalf("access log missing %q: %q", want, line)
		}
	}
}

func TestProxyNoRuleMatched(t *testing.T) {
	up, _ := newUpstream(t)
	env, _ := rulesEnv(t, up.URL)

	w := env.do(httptest.NewRequest(http.MethodGet, "/proxy/queue/x", nil))
	if w.Code != http.StatusNotFound {
		t.Fatalf("status=%d body=%s", w.Code, w.Body.String())
	}
	if !strings.Contains(w.Body.String(), `"code":"no_endpoint"`) {
		t.Fatalf("body=%s", w.Body.String())
	}
	if !strings.Contains(env.logs.String(), "resolve_error=no_endpoint") {
		t.Fatalf("access log: %q", env.logs.String())
	}
}

func TestProxyRejectsHostInjectionThroughRouteHeaders(t *testing.T) {
	dir := t.TempDir()
	writeRules(t, dir, "10-tenants.yaml", `
rules:
  - match: {service: tenant-db}
    url: "https://{tenant}.tenant-db.example.net"
`)
	doer := httpclienttest.NewFakeDoer(t)
	env := newTestEnv(t, mustConfig(t, "rules:\n  dir: "+dir+"\n"), Options{Upstream: doer})

	req := httptest.NewRequest(http.MethodGet, "/proxy/tenant-db/secret", nil)
	req.Header.Set("X-Oer-Tenant", "attacker.example.org/#")
	w := env.do(req)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status=%d body=%s", w.Code, w.Body.String())
	}
	if !strings.Contains(w.Body.String(), `"code":"invalid_params"`) {
		t.Fatalf("body=%s", w.Body.String())
	}
	if n := len(doer.Requests()); n != 0 {
		t.Fatalf("upstream must not be called, got %d requests", n)
	}
}

func TestProxyStaticWithPrefixTemplate(t *testing.T) {
	doer := httpclienttest.NewFakeDoer(t, httpclienttest.NewStringResponse(http.StatusOK, "ok"))
	cfg := mustConfig(t, `
resolver:
  kind: static
  static_url: http://svc.example.com:8080/api
  endpoint_prefix: "{tenant}."
logging:
  access_log: false
`)
	env := newTestEnv(t, cfg, Options{Upstream: doer})

	req := httptest.NewRequest(http.MethodGet, "/proxy/any/v1/items", nil)
	req.Header.Set("X-Oer-Tenant", "acme")
	w := env.do(req)
	if w.Code != http.StatusOK || w.Body.String() != "ok" {
		t.Fatalf("status=%d body=%q", w.Code, w.Body.String())
	}
	reqs := doer.Requests()
	if len(reqs) != 1 {
		t.Fatalf("expected 1 upstream request, got %d", len(reqs))
	}
	if got := reqs[0].URL.String(); got != "http://acme.svc.example.com:8080/api/v1/items" {
		t.Fatalf("upstream url=%q", got)
	}
	if env.logs.Len() != 0 {
		t.Fatalf("access log disabled but got %q", env.logs.String())
	}

	w = env.do(httptest.NewRequest(http.MethodGet, "/proxy/any/v1/items", nil))
	if w.Code != http.StatusBadRequest || !strings.Contains(w.Body.String(), "invalid_prefix") {
		t.Fatalf("missing tenant: status=%d body=%s", w.Code, w.Body.String())
	}
	if len(doer.Requests()) != 1 {
		t.Fatalf("no request may be sent when the prefix is invalid")
	}
}

func TestProxyUpstreamFailure(t *testing.T) {
	doer := httpclienttest.NewFakeDoer(t).FailNext(io.ErrUnexpectedEOF)
	cfg := mustConfig(t, "resolver:\n  kind: static\n  static_url: http://svc.example.com\n")
	env := newTestEnv(t, cfg, Options{Upstream: doer})

	w := env.do(httptest.NewRequest(http.MethodGet, "/proxy/any/x", nil))
	if w.Code != http.StatusBadGateway || !strings.Contains(w.Body.String(), "upstream_error") {
		t.Fatalf("status=%d body=%s", w.Code, w.Body.String())
	}
}

func TestProxyDiscoveryResolver(t *testing.T) {
	registry := httpclienttest.NewFakeDoer(t, httpclienttest.NewStringResponse(http.StatusOK,
		`{"url":"https://storage-1.eu.internal","headers":{"X-Shard":["7"]}}`))
	upstream := httpclienttest.NewFakeDoer(t, httpclienttest.NewStringResponse(http.StatusAccepted, ""))
	cfg := mustConfig(t, "resolver:\n  kind: discovery\ndiscovery:\n  registry_url: http://registry.internal\n")
	env := newTestEnv(t, cfg, Options{Discovery: registry, Upstream: upstream})

	req := httptest.NewRequest(http.MethodDelete, "/proxy/storage/objects/9", nil)
	req.Header.Set("X-Oer-Region", "eu")
	w := env.do(req)
	if w.Code != http.StatusAccepted {
		t.Fatalf("status=%d body=%s", w.Code, w.Body.String())
	}
	if got := registry.Requests()[0].URL.String(); got != "http://registry.internal/v1/services/storage?zone=eu" {
		t.Fatalf("registry url=%q", got)
	}
	sent := upstream.Requests()[0]
	if sent.URL.String() != "https://storage-1.eu.internal/objects/9" || sent.Header.Get("X-Shard") != "7" {
		t.Fatalf("unexpected upstream request %s %v", sent.URL, sent.Header)
	}
}

func TestAdminResolve(t *testing.T) {
	up, _ := newUpstream(t)
	env, _ := rulesEnv(t, up.URL)

	body := `{"service":"storage","region":"us-east-1","path":"objects/a"}`
	req := httptest.NewRequest(http.MethodPost, "/admin/resolve", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if w := env.do(req); w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without key, got %d", w.Code)
	}

	req = httptest.NewRequest(http.MethodPost, "/admin/resolve", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer admin-key")
	w := env.do(req)
	if w.Code != http.StatusOK {
		t.Fatalf("status=%d body=%s", w.Code, w.Body.String())
	}
	var out struct {
		Endpoint struct {
			URL     string              `json:"url"`
			Headers map[string][]string `json:"headers"`
		} `json:"endpoint"`
		Request struct {
			Method string `json:"method"`
			URL    string `json:"url"`
		} `json:"request"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if out.Endpoint.URL != up.URL+"/base" || out.Request.URL != up.URL+"/base/objects/a" || out.Request.Method != http.MethodGet {
		t.Fatalf("unexpected resolve output: %+v", out)
	}
	if got := out.Endpoint.Headers["X-Region"]; len(got) != 1 || got[0] != "us-east-1" {
		t.Fatalf("endpoint headers=%v", out.Endpoint.Headers)
	}

	req = httptest.NewRequest(http.MethodPost, "/admin/resolve", strings.NewReader(`{"region":"x"}`))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-key", "admin-key")
	if w := env.do(req); w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for missing service, got %d", w.Code)
	}
}

func TestAdminRulesAndReload(t *testing.T) {
	up, _ := newUpstream(t)
	env, dir := rulesEnv(t, up.URL)

	get := func(method, path string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(method, path, nil)
		req.Header.Set("x-api-key", "admin-key")
		return env.do(req)
	}

	w := get(http.MethodGet, "/admin/rules")
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), `"service":"storage"`) {
		t.Fatalf("rules: status=%d body=%s", w.Code, w.Body.String())
	}

	writeRules(t, dir, "20-queue.yaml", "rules:\n  - match: {service: queue}\n    url: https://queue.example.com\n")
	w = get(http.MethodPost, "/admin/rules/reload")
	if w.Code != http.StatusOK {
		t.Fatalf("reload: status=%d body=%s", w.Code, w.Body.String())
	}
	if !strings.Contains(w.Body.String(), `"changed_services":["queue"]`) || !strings.Contains(w.Body.String(), `"rules":2`) {
		t.Fatalf("reload body=%s", w.Body.String())
	}

	writeRules(t, dir, "30-bad.yaml", "rules:\n  - url: ftp://nope\n")
	w = get(http.MethodPost, "/admin/rules/reload")
	if w.Code != http.StatusUnprocessableEntity {
		t.Fatalf("bad reload: status=%d body=%s", w.Code, w.Body.String())
	}
	if n := env.app.backend.rules.Current().Len(); n != 2 {
		t.Fatalf("failed reload must keep the active set, got %d rules", n)
	}
}

func TestAdminRoutesDisabledWithoutKey(t *testing.T) {
	cfg := mustConfig(t, "resolver:\n  kind: static\n  static_url: http://svc.example.com\n")
	env := newTestEnv(t, cfg, Options{Upstream: httpclienttest.NewFakeDoer(t)})

	w := env.do(httptest.NewRequest(http.MethodGet, "/admin/rules", nil))
	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", w.Code)
	}
}

func TestHealthzAndMetrics(t *testing.T) {
	up, _ := newUpstream(t)
	env, _ := rulesEnv(t, up.URL)

	if w := env.do(httptest.NewRequest(http.MethodGet, "/healthz", nil)); w.Code != http.StatusOK {
		t.Fatalf("healthz status=%d", w.Code)
	}
	req := httptest.NewRequest(http.MethodGet, "/proxy/storage/x", nil)
	req.Header.Set("X-Oer-Region", "eu-west-1")
	env.do(req)

	w := env.do(httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("metrics status=%d", w.Code)
	}
	body := w.Body.String()
	for _, want := range []string{
		`oer_endpoint_resolutions_total{resolver="rules",result="ok"} 1`,
		"oer_rules_loaded 1",
	} {
		if !strings.Contains(body, want) {
			t.Fatalf("metrics missing %q", want)
		}
	}
}

func TestShouldTriggerRulesReload(t *testing.T) {
	cases := []struct {
		name string
		path string
		want bool
	}{
		{"empty", "", false},
		{"dotfile", "/rules/.swp", false},
		{"yaml", "/rules/a.yaml", true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := shouldTriggerRulesReload(fsnotify.Event{Name: tc.path, Op: fsnotify.Write}); got != tc.want {
				t.Fatalf("got %v want %v", got, tc.want)
			}
		})
	}
}

func TestCompileAccessFormatDefaultsToCombined(t *testing.T) {
	cfg := mustConfig(t, "resolver:\n  kind: static\n  static_url: http://a.example.com\n")
	f, err := compileAccessFormat(cfg)
	if err != nil || f == nil {
		t.Fatalf("expected default formatter, err=%v", err)
	}
	cfg.Logging.AccessLogFormatPreset = "nope"
	if _, err := compileAccessFormat(cfg); err == nil {
		t.Fatalf("expected error for unknown preset")
	}
	cfg.Logging.AccessLogFormatPreset = ""
	cfg.Logging.AccessLogFormat = "$status $service"
	f, err = compileAccessFormat(cfg)
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	if got := f.Format(logx.AccessEntry{Status: 200, Fields: map[string]string{"service": "s"}}, false); got != "200 s" {
		t.Fatalf("format=%q", got)
	}
}

func TestWritePIDFile(t *testing.T) {
	cfg := mustConfig(t, "resolver:\n  kind: static\n  static_url: http://a.example.com\n")
	cfg.Server.PidFile = filepath.Join(t.TempDir(), "run", "oer.pid")
	closer, err := writePIDFile(cfg)
	if err != nil {
		t.Fatalf("writePIDFile: %v", err)
	}
	if _, err := os.Stat(cfg.Server.PidFile); err != nil {
		t.Fatalf("pid file missing: %v", err)
	}
	if err := closer.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if _, err := os.Stat(cfg.Server.PidFile); !os.IsNotExist(err) {
		t.Fatalf("pid file should be removed, err=%v", err)
	}
}
