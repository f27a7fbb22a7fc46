// Package httpclient sends requests through the endpoint resolution stage.
package httpclient

import (
	"context"
	"errors"
	"net/http"

	"github.com/r9s-ai/open-endpoint-router/pkg/configbag"
	"github.com/r9s-ai/open-endpoint-router/pkg/endpoint"
	"github.com/r9s-ai/open-endpoint-router/pkg/protocol"
	"github.com/r9s-ai/open-endpoint-router/pkg/requestid"
)

// HTTPDoer captures the subset of *http.Client the pipeline relies on.
// Tests inject fakes so no upstream request is made.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Hook runs after the endpoint was applied and before the request is sent.
// The resolved endpoint is available through endpoint.Resolved(bag).
type Hook func(ctx context.Context, req *http.Request, bag *configbag.Bag) error

type Client struct {
	doer         HTTPDoer
	shared       *configbag.Bag
	requestIDKey string
	protocol     protocol.Protocol
	hooks        []Hook
}

type ClientOption func(*Client)

func WithRequestIDHeaderKey(key string) ClientOption {
	return func(c *Client) { c.requestIDKey = requestid.ResolveHeaderKey(key) }
}

// WithProtocol sets a default Content-Type for requests with a body.
func WithProtocol(p protocol.Protocol) ClientOption {
	return func(c *Client) { c.protocol = p }
}

func WithHook(h Hook) ClientOption {
	return func(c *Client) {
		if h != nil {
			c.hooks = append(c.hooks, h)
		}
	}
}

// WithSharedPrefix applies prefix to every request unless a call overrides it.
func WithSharedPrefix(p endpoint.Prefix) ClientOption {
	return func(c *Client) { endpoint.SetPrefix(c.shared, p) }
}

// New builds a client whose shared configuration layer holds resolver. The
// layer is frozen before New returns.
func New(doer HTTPDoer, resolver endpoint.Resolver, opts ...ClientOption) *Client {
	if doer == nil {
		doer = http.DefaultClient
	}
	c := &Client{
		doer:         doer,
		shared:       configbag.New("client"),
		requestIDKey: requestid.DefaultHeaderKey,
	}
	if resolver != nil {
		endpoint.SetResolver(c.shared, resolver)
	}
	for _, opt := range opts {
		opt(c)
	}
	c.shared.Freeze()
	return c
}

// CallOption customizes the per-request layer.
type CallOption func(bag *configbag.Bag)

func WithPrefix(p endpoint.Prefix) CallOption {
	return func(bag *configbag.Bag) { endpoint.SetPrefix(bag, p) }
}

func WithResolver(r endpoint.Resolver) CallOption {
	return func(bag *configbag.Bag) { endpoint.SetResolver(bag, r) }
}

// Prepare clones req, resolves and applies its endpoint and runs the hooks.
// The caller's request is never modified.
func (c *Client) Prepare(ctx context.Context, req *http.Request, params any, opts ...CallOption) (*http.Request, *configbag.Bag, error) {
	if req == nil {
		return nil, nil, errors.New("httpclient: nil request")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	bag := c.shared.Layer("attempt")
	if params != nil {
		endpoint.SetParams(bag, endpoint.NewParams(params))
	}
	for _, opt := range opts {
		opt(bag)
	}

	out := req.Clone(ctx)
	requestid.Stamp(ctx, out, c.requestIDKey)
	if ct := c.protocol.ContentType(); ct != "" && out.Body != nil && out.Body != http.NoBody && out.Header.Get("Content-Type") == "" {
		out.Header.Set("Content-Type", ct)
	}
	if err := endpoint.Orchestrate(ctx, out, bag); err != nil {
		return nil, nil, err
	}
	for _, h := range c.hooks {
		if err := h(ctx, out, bag); err != nil {
			return nil, nil, err
		}
	}
	return out, bag, nil
}

// Do prepares req and sends it.
func (c *Client) Do(ctx context.Context, req *http.Request, params any, opts ...CallOption) (*http.Response, error) {
	out, _, err := c.Prepare(ctx, req, params, opts...)
	if err != nil {
		return nil, err
	}
	return c.doer.Do(out)
}

// Send transmits a request returned by Prepare.
func (c *Client) Send(req *http.Request) (*http.Response, error) {
	return c.doer.Do(req)
}
