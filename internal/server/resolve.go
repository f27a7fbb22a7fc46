package server

import (
	"context"
	"net/http"
	"strings"

	"github.com/r9s-ai/open-endpoint-router/pkg/endpoint"
	"github.com/r9s-ai/open-endpoint-router/pkg/httpclient"
)

// ResolveInput names a service and the request that would be sent to it.
type ResolveInput struct {
	Service string `json:"service" binding:"required"`
	Region  string `json:"region"`
	Tenant  string `json:"tenant"`
	FIPS    bool   `json:"fips"`
	Method  string `json:"method"`
	Path    string `json:"path"`
}

func (in ResolveInput) route() route {
	return route{Service: in.Service, Region: in.Region, Tenant: in.Tenant, FIPS: in.FIPS}
}

type ResolvedEndpoint struct {
	URL     string      `json:"url"`
	Headers http.Header `json:"headers"`
}

type PreparedRequest struct {
	Method  string      `json:"method"`
	URL     string      `json:"url"`
	Headers http.Header `json:"headers"`
}

type ResolveOutput struct {
	Endpoint ResolvedEndpoint `json:"endpoint"`
	Request  PreparedRequest  `json:"request"`
}

// Resolve runs the request pipeline on a scratch request without sending it.
func (a *App) Resolve(ctx context.Context, in ResolveInput) (ResolveOutput, error) {
	rt := in.route()
	prefix, err := prefixFor(a.cfg.Resolver.EndpointPrefix, rt)
	if err != nil {
		return ResolveOutput{}, err
	}
	method := strings.ToUpper(strings.TrimSpace(in.Method))
	if method == "" {
		method = http.MethodGet
	}
	path := strings.TrimSpace(in.Path)
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	scratch, err := http.NewRequestWithContext(ctx, method, path, nil)
	if err != nil {
		return ResolveOutput{}, err
	}
	var opts []httpclient.CallOption
	if prefix != nil {
		opts = append(opts, httpclient.WithPrefix(*prefix))
	}
	out, bag, err := a.pipeline.Prepare(ctx, scratch, a.backend.params(rt), opts...)
	if err != nil {
		return ResolveOutput{}, err
	}
	ep, _ := endpoint.Resolved(bag)
	return ResolveOutput{
		Endpoint: ResolvedEndpoint{URL: ep.URL(), Headers: ep.Headers()},
		Request:  PreparedRequest{Method: out.Method, URL: out.URL.String(), Headers: out.Header},
	}, nil
}
