package endpoint

import (
	"net/http"
	"strings"

	"github.com/aws/smithy-go"
)

// Endpoint is a resolved network target: a base URL plus headers every
// request to it must carry. It is immutable once built.
type Endpoint struct {
	url        string
	headers    []headerEntry
	properties smithy.Properties
}

type headerEntry struct {
	name   string
	values []string
}

func (e Endpoint) URL() string { return e.url }

// HeaderNames returns header names in declaration order.
func (e Endpoint) HeaderNames() []string {
	out := make([]string, 0, len(e.headers))
	for _, h := range e.headers {
		out = append(out, h.name)
	}
	return out
}

// HeaderValues returns the values declared for name (exact match), in order.
func (e Endpoint) HeaderValues(name string) []string {
	for _, h := range e.headers {
		if h.name == name {
			return append([]string(nil), h.values...)
		}
	}
	return nil
}

// Headers returns the endpoint headers as an http.Header copy.
func (e Endpoint) Headers() http.Header {
	out := make(http.Header, len(e.headers))
	for _, h := range e.headers {
		for _, v := range h.values {
			out.Add(h.name, v)
		}
	}
	return out
}

// Property returns a resolver-specific attribute, or nil.
func (e Endpoint) Property(key any) any {
	return e.properties.Get(key)
}

func (e Endpoint) IsZero() bool {
	return e.url == "" && len(e.headers) == 0
}

func (e Endpoint) String() string {
	if len(e.headers) == 0 {
		return e.url
	}
	return e.url + " headers=" + strings.Join(e.HeaderNames(), ",")
}

type Builder struct {
	ep Endpoint
}

func NewBuilder() *Builder {
	return &Builder{}
}

func (b *Builder) URL(u string) *Builder {
	b.ep.url = strings.TrimSpace(u)
	return b
}

// Header appends value to name. Repeated calls for the same name keep the
// order in which values were added.
func (b *Builder) Header(name, value string) *Builder {
	for i := range b.ep.headers {
		if b.ep.headers[i].name == name {
			b.ep.headers[i].values = append(b.ep.headers[i].values, value)
			return b
		}
	}
	b.ep.headers = append(b.ep.headers, headerEntry{name: name, values: []string{value}})
	return b
}

func (b *Builder) Property(key, value any) *Builder {
	b.ep.properties.Set(key, value)
	return b
}

// Build returns a copy so the builder may be reused without aliasing.
func (b *Builder) Build() Endpoint {
	out := Endpoint{url: b.ep.url}
	if len(b.ep.headers) > 0 {
		out.headers = make([]headerEntry, len(b.ep.headers))
		for i, h := range b.ep.headers {
			out.headers[i] = headerEntry{name: h.name, values: append([]string(nil), h.values...)}
		}
	}
	out.properties.SetAll(&b.ep.properties)
	return out
}
