package rules

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"

	"github.com/r9s-ai/open-endpoint-router/pkg/endpoint"
)

var ErrNoRuleMatched = errors.New("no endpoint rule matched")

// ErrInvalidParam is returned when a value substituted into a template is
// not a single host label.
var ErrInvalidParam = errors.New("invalid rule parameter")

// PropertyKey namespaces rule properties on the resolved endpoint.
type PropertyKey string

// ResolveEndpoint renders the first rule matching p.
func (s *RuleSet) ResolveEndpoint(ctx context.Context, p Params) (endpoint.Endpoint, error) {
	if err := ctx.Err(); err != nil {
		return endpoint.Endpoint{}, err
	}
	if s != nil {
		for _, r := range s.rules {
			if r.matches(p) {
				return r.build(p)
			}
		}
	}
	return endpoint.Endpoint{}, fmt.Errorf("%w: service=%q region=%q fips=%t", ErrNoRuleMatched, p.Service, p.Region, p.UseFIPS)
}

func (r Rule) matches(p Params) bool {
	if !globMatch(r.Match.Service, p.Service) || !globMatch(r.Match.Region, p.Region) {
		return false
	}
	if r.Match.FIPS != nil && *r.Match.FIPS != p.UseFIPS {
		return false
	}
	return true
}

func (r Rule) build(p Params) (endpoint.Endpoint, error) {
	u, err := render(r.URL, p)
	if err != nil {
		return endpoint.Endpoint{}, fmt.Errorf("rule %s[%d]: %w", r.File, r.Index, err)
	}
	b := endpoint.NewBuilder().URL(u)

	for _, h := range r.Headers {
		for _, v := range h.Values {
			hv, err := render(v, p)
			if err != nil {
				return endpoint.Endpoint{}, fmt.Errorf("rule %s[%d] header %s: %w", r.File, r.Index, h.Name, err)
			}
			b.Header(h.Name, hv)
		}
	}
	for k, v := range r.Properties {
		b.Property(PropertyKey(k), v)
	}
	return b.Build(), nil
}

func globMatch(pattern, value string) bool {
	if pattern == "" || pattern == "*" {
		return true
	}
	ok, err := path.Match(pattern, value)
	return err == nil && ok
}

// render substitutes {service}, {region} and {tenant}.
func render(tmpl string, p Params) (string, error) {
	var b strings.Builder
	rest := tmpl
	for {
		open := strings.IndexByte(rest, '{')
		if open < 0 {
			b.WriteString(rest)
			return b.String(), nil
		}
		end := strings.IndexByte(rest[open:], '}')
		if end < 0 {
			return "", fmt.Errorf("template %q: unterminated placeholder", tmpl)
		}
		b.WriteString(rest[:open])
		name := rest[open+1 : open+end]
		var v string
		switch name {
		case "service":
			v = p.Service
		case "region":
			v = p.Region
		case "tenant":
			v = p.Tenant
		default:
			return "", fmt.Errorf("template %q: unknown placeholder {%s}", tmpl, name)
		}
		if v == "" {
			return "", fmt.Errorf("template %q: {%s} is empty", tmpl, name)
		}
		if !endpoint.ValidHostLabel(v) {
			return "", fmt.Errorf("%w: {%s}=%q is not a host label", ErrInvalidParam, name, v)
		}
		b.WriteString(v)
		rest = rest[open+end+1:]
	}
}
