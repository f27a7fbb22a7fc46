package rules

import (
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"path"
	"strings"

	"golang.org/x/net/http/httpguts"
)

var samplePlaceholderValues = Params{Service: "service", Region: "region", Tenant: "tenant"}

// Validate checks every rule and joins all issues found.
func Validate(set *RuleSet) error {
	if set == nil {
		return nil
	}
	var errs []error
	for _, r := range set.rules {
		if err := ValidateRule(r); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func ValidateRule(r Rule) error {
	for _, g := range []struct {
		field   string
		pattern string
	}{
		{field: "match.service", pattern: r.Match.Service},
		{field: "match.region", pattern: r.Match.Region},
	} {
		if g.pattern == "" {
			continue
		}
		if _, err := path.Match(g.pattern, ""); err != nil {
			return validationIssue(r, g.field, fmt.Errorf("invalid glob %q: %w", g.pattern, err))
		}
	}

	if strings.TrimSpace(r.URL) == "" {
		return validationIssue(r, "url", errors.New("url is empty"))
	}
	rendered, err := render(r.URL, samplePlaceholderValues)
	if err != nil {
		return validationIssue(r, "url", err)
	}
	u, err := url.Parse(rendered)
	if err != nil {
		return validationIssue(r, "url", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return validationIssue(r, "url", fmt.Errorf("scheme must be http or https, got %q", u.Scheme))
	}
	if u.Host == "" {
		return validationIssue(r, "url", errors.New("url has no host"))
	}

	seen := make(map[string]bool, len(r.Headers))
	for _, h := range r.Headers {
		name, values := h.Name, h.Values
		if !httpguts.ValidHeaderFieldName(name) {
			return validationIssue(r, "headers", fmt.Errorf("invalid header name %q", name))
		}
		if seen[http.CanonicalHeaderKey(name)] {
			return validationIssue(r, "headers."+name, errors.New("duplicate header name"))
		}
		seen[http.CanonicalHeaderKey(name)] = true
		if len(values) == 0 {
			return validationIssue(r, "headers."+name, errors.New("no values"))
		}
		for _, v := range values {
			rv, err := render(v, samplePlaceholderValues)
			if err != nil {
				return validationIssue(r, "headers."+name, err)
			}
			if !httpguts.ValidHeaderFieldValue(rv) {
				return validationIssue(r, "headers."+name, fmt.Errorf("invalid header value %q", v))
			}
		}
	}
	for k := range r.Properties {
		if strings.TrimSpace(k) == "" {
			return validationIssue(r, "properties", errors.New("empty property key"))
		}
	}
	return nil
}
