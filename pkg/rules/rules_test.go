package rules

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/r9s-ai/open-endpoint-router/pkg/endpoint"
)

const sampleRules = `
rules:
  - match: {service: storage, region: "eu-*", fips: true}
    url: "https://{service}-fips.{region}.example.com"
    headers:
      X-Region: ["{region}"]
  - match: {service: storage}
    url: "https://{service}.{region}.example.com/v1"
    headers:
      X-Multi: ["a", "b"]
      X-Region: ["{region}"]
    properties:
      auth_scheme: sigv4
  - match: {service: "tenant-*"}
    url: "https://{tenant}.{service}.example.net"
`

func mustParse(t *testing.T, s string) *RuleSet {
	t.Helper()
	set, err := Parse("inline.yaml", []byte(s))
	require.NoError(t, err)
	return set
}

func TestResolve_FirstMatchWins(t *testing.T) {
	set := mustParse(t, sampleRules)
	require.Equal(t, 3, set.Len())

	ep, err := set.ResolveEndpoint(context.Background(), Params{Service: "storage", Region: "eu-west-1", UseFIPS: true})
	require.NoError(t, err)
	assert.Equal(t, "https://storage-fips.eu-west-1.example.com", ep.URL())
	assert.Equal(t, []string{"eu-west-1"}, ep.HeaderValues("X-Region"))

	ep, err = set.ResolveEndpoint(context.Background(), Params{Service: "storage", Region: "us-east-1", UseFIPS: true})
	require.NoError(t, err)
	assert.Equal(t, "https://storage.us-east-1.example.com/v1", ep.URL())
	assert.Equal(t, []string{"a", "b"}, ep.HeaderValues("X-Multi"))
	assert.Equal(t, []string{"X-Multi", "X-Region"}, ep.HeaderNames())
	assert.Equal(t, "sigv4", ep.Property(PropertyKey("auth_scheme")))
}

func TestResolve_TenantPlaceholder(t *testing.T) {
	set := mustParse(t, sampleRules)

	ep, err := set.ResolveEndpoint(context.Background(), Params{Service: "tenant-db", Tenant: "acme"})
	require.NoError(t, err)
	assert.Equal(t, "https://acme.tenant-db.example.net", ep.URL())

	_, err = set.ResolveEndpoint(context.Background(), Params{Service: "tenant-db"})
	assert.ErrorContains(t, err, "{tenant} is empty")
}

func TestResolve_RejectsHostInjection(t *testing.T) {
	set := mustParse(t, sampleRules)
	for _, p := range []Params{
		{Service: "tenant-db", Tenant: "attacker.example.org/#"},
		{Service: "tenant-db", Tenant: "x.example.org/#"},
		{Service: "tenant-db", Tenant: "user@evil"},
		{Service: "storage", Region: "evil.example.org:443/?"},
		{Service: "storage", Region: "eu-west-1.evil"},
	} {
		ep, err := set.ResolveEndpoint(context.Background(), p)
		require.Error(t, err, "params %+v resolved to %s", p, ep.URL())
		assert.ErrorIs(t, err, ErrInvalidParam)
		assert.True(t, ep.IsZero())
	}
}

func TestResolve_HeadersKeepDeclarationOrder(t *testing.T) {
	set := mustParse(t, `
rules:
  - url: "https://x.example.com"
    headers:
      X-Zulu: ["z"]
      X-Alpha: ["a1", "a2"]
      X-Mike: ["m"]
`)
	ep, err := set.ResolveEndpoint(context.Background(), Params{Service: "any"})
	require.NoError(t, err)
	assert.Equal(t, []string{"X-Zulu", "X-Alpha", "X-Mike"}, ep.HeaderNames())
	assert.Equal(t, []string{"a1", "a2"}, ep.HeaderValues("X-Alpha"))

	r := set.Rules()[0]
	assert.Equal(t, map[string][]string{"X-Zulu": {"z"}, "X-Alpha": {"a1", "a2"}, "X-Mike": {"m"}}, r.Headers.Map())
}

func TestResolve_NoMatch(t *testing.T) {
	set := mustParse(t, sampleRules)
	_, err := set.ResolveEndpoint(context.Background(), Params{Service: "queue", Region: "x"})
	assert.True(t, errors.Is(err, ErrNoRuleMatched))
}

func TestResolve_CanceledContext(t *testing.T) {
	set := mustParse(t, sampleRules)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := set.ResolveEndpoint(ctx, Params{Service: "storage", Region: "x"})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestParse_ValidationIssues(t *testing.T) {
	cases := map[string]string{
		"missing url":       "rules:\n  - match: {service: a}\n",
		"bad scheme":        "rules:\n  - url: \"ftp://x.example.com\"\n",
		"unknown hole":      "rules:\n  - url: \"https://{zone}.example.com\"\n",
		"bad header name":   "rules:\n  - url: \"https://x.example.com\"\n    headers:\n      \"Bad Name\": [\"v\"]\n",
		"bad header value":  "rules:\n  - url: \"https://x.example.com\"\n    headers:\n      X-A: [\"a\\u0001b\"]\n",
		"bad glob":          "rules:\n  - match: {region: \"[\"}\n    url: \"https://x.example.com\"\n",
		"empty header list": "rules:\n  - url: \"https://x.example.com\"\n    headers:\n      X-A: []\n",
		"duplicate header":  "rules:\n  - url: \"https://x.example.com\"\n    headers:\n      X-A: [\"1\"]\n      x-a: [\"2\"]\n",
	}
	for name, doc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Parse("bad.yaml", []byte(doc))
			require.Error(t, err)
			var issue *ValidationIssue
			require.ErrorAs(t, err, &issue)
			assert.Equal(t, "bad.yaml", issue.File)
			assert.Equal(t, 0, issue.Index)
		})
	}
}

func TestParse_UnknownFieldRejected(t *testing.T) {
	_, err := Parse("typo.yaml", []byte("rules:\n  - urll: \"https://x.example.com\"\n"))
	assert.Error(t, err)
}

func TestParse_Empty(t *testing.T) {
	set, err := Parse("empty.yaml", []byte("  \n"))
	require.NoError(t, err)
	assert.Equal(t, 0, set.Len())
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o750))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
}

func TestLoadDir_OrderAndSkips(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "20-storage.yaml"), "rules:\n  - match: {service: storage}\n    url: \"https://second.example.com\"\n")
	writeFile(t, filepath.Join(dir, "10-storage.yml"), "rules:\n  - match: {service: storage}\n    url: \"https://first.example.com\"\n")
	writeFile(t, filepath.Join(dir, ".hidden.yaml"), "not: [valid")
	writeFile(t, filepath.Join(dir, "README.md"), "# docs")
	writeFile(t, filepath.Join(dir, "nested", "30-queue.yaml"), "rules:\n  - match: {service: queue}\n    url: \"https://queue.example.com\"\n")

	set, err := LoadDir(dir)
	require.NoError(t, err)
	require.Equal(t, 3, set.Len())

	ep, err := set.ResolveEndpoint(context.Background(), Params{Service: "storage"})
	require.NoError(t, err)
	assert.Equal(t, "https://first.example.com", ep.URL())
}

func TestRegistry_ReloadSwapsAndReportsChanges(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "rules.yaml")
	writeFile(t, path, "rules:\n  - match: {service: storage}\n    url: \"https://v1.example.com\"\n  - match: {service: queue}\n    url: \"https://q.example.com\"\n")

	reg := NewRegistry()
	res, err := reg.ReloadFromDir(dir)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Rules)
	assert.Equal(t, []string{"queue", "storage"}, res.ChangedServices)

	resolver := reg.Resolver()
	ep, err := resolver.ResolveEndpoint(context.Background(), endpoint.NewParams(Params{Service: "storage"}))
	require.NoError(t, err)
	assert.Equal(t, "https://v1.example.com", ep.URL())

	writeFile(t, path, "rules:\n  - match: {service: storage}\n    url: \"https://v2.example.com\"\n  - match: {service: queue}\n    url: \"https://q.example.com\"\n")
	res, err = reg.ReloadFromDir(dir)
	require.NoError(t, err)
	assert.Equal(t, []string{"storage"}, res.ChangedServices)

	ep, err = resolver.ResolveEndpoint(context.Background(), endpoint.NewParams(Params{Service: "storage"}))
	require.NoError(t, err)
	assert.Equal(t, "https://v2.example.com", ep.URL())

	writeFile(t, path, "rules:\n  - url: \"ftp://broken\"\n")
	_, err = reg.ReloadFromDir(dir)
	require.Error(t, err)
	ep, err = resolver.ResolveEndpoint(context.Background(), endpoint.NewParams(Params{Service: "storage"}))
	require.NoError(t, err)
	assert.Equal(t, "https://v2.example.com", ep.URL(), "failed reload must keep previous rules")

	_, err = resolver.ResolveEndpoint(context.Background(), endpoint.NewParams("storage"))
	assert.ErrorIs(t, err, endpoint.ErrMissingParams)
}
