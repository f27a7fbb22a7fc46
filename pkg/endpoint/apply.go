package endpoint

import (
	"fmt"
	"log"
	"net"
	"net/http"
	"net/url"
	"strings"

	"golang.org/x/net/http/httpguts"
)

// Apply merges ep into req. The endpoint supplies scheme and authority (and
// optionally a base path); the request keeps its own path and query. Endpoint
// headers replace any request header of the same name.
//
// Nothing is written to req unless every step succeeds.
func Apply(req *http.Request, ep Endpoint, prefix *Prefix) error {
	epURL, err := url.Parse(ep.URL())
	if err != nil {
		return &Error{Kind: KindMalformedURI, Msg: "endpoint did not have a valid uri", Err: err}
	}
	if epURL.Scheme == "" || epURL.Hostname() == "" {
		return &Error{
			Kind: KindMalformedURI,
			Msg:  "endpoint did not have a valid uri",
			Err:  fmt.Errorf("%q is not absolute or has no hostname", ep.URL()),
		}
	}

	merged, err := mergeURL(req.URL, epURL, prefix)
	if err != nil {
		return &Error{
			Kind:     KindApplication,
			Msg:      "failed to apply endpoint to request",
			Endpoint: epURL.String(),
			Request:  describeRequest(req),
			Err:      err,
		}
	}

	if err := validateHeaders(ep); err != nil {
		return err
	}

	// commit
	req.URL = merged
	req.Host = ""
	if req.Header == nil {
		req.Header = make(http.Header)
	}
	for _, h := range ep.headers {
		delete(req.Header, h.name)
		req.Header.Del(h.name)
		for _, v := range h.values {
			req.Header.Add(h.name, v)
		}
	}
	return nil
}

func validateHeaders(ep Endpoint) error {
	for _, h := range ep.headers {
		if !httpguts.ValidHeaderFieldName(h.name) {
			return &Error{
				Kind: KindInvalidHeader,
				Msg:  "invalid header name",
				Err:  fmt.Errorf("header name %q", h.name),
			}
		}
		for _, v := range h.values {
			if !httpguts.ValidHeaderFieldValue(v) {
				return &Error{
					Kind: KindInvalidHeader,
					Msg:  "invalid header value",
					Err:  fmt.Errorf("header %q value %q", h.name, v),
				}
			}
		}
	}
	return nil
}

func mergeURL(reqURL, epURL *url.URL, prefix *Prefix) (*url.URL, error) {
	if epURL.RawQuery != "" {
		log.Printf("endpoint: query %q in endpoint %q is ignored", epURL.RawQuery, epURL.Redacted())
	}
	authority := epURL.Host
	if prefix != nil && *prefix != "" {
		authority = string(*prefix) + authority
		if err := validateAuthority(authority); err != nil {
			return nil, err
		}
	}

	var reqPath, reqRawPath, reqQuery string
	if reqURL != nil {
		reqPath = reqURL.Path
		reqRawPath = reqURL.EscapedPath()
		reqQuery = reqURL.RawQuery
	}

	out := &url.URL{
		Scheme:   epURL.Scheme,
		User:     epURL.User,
		Host:     authority,
		Path:     joinPath(epURL.Path, reqPath),
		RawQuery: reqQuery,
	}
	if reqURL != nil {
		out.Fragment = reqURL.Fragment
	}
	raw := joinPath(epURL.EscapedPath(), reqRawPath)
	if raw != out.EscapedPath() {
		out.RawPath = raw
	}
	return out, nil
}

// joinPath strips the trailing slash of base and the leading slash of p and
// joins them with exactly one slash. An empty base leaves p untouched.
func joinPath(base, p string) string {
	if base == "" {
		return p
	}
	if p == "" {
		return base
	}
	return strings.TrimSuffix(base, "/") + "/" + strings.TrimPrefix(p, "/")
}

func validateAuthority(authority string) error {
	if !httpguts.ValidHostHeader(authority) {
		return fmt.Errorf("invalid authority %q", authority)
	}
	host := authority
	if h, _, err := net.SplitHostPort(authority); err == nil {
		host = h
	}
	if err := validatePrefix(host); err != nil {
		return fmt.Errorf("invalid authority %q: %w", authority, err)
	}
	return nil
}

func describeRequest(req *http.Request) string {
	if req == nil {
		return "<nil>"
	}
	u := "<nil>"
	if req.URL != nil {
		u = req.URL.Redacted()
	}
	return req.Method + " " + u
}
