package endpoint

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
)

// Resolver maps the per-request Params to an Endpoint. Implementations are
// shared by all in-flight requests of a client and must not observe or modify
// the request being built. Blocking implementations must honour ctx.
type Resolver interface {
	ResolveEndpoint(ctx context.Context, params Params) (Endpoint, error)
}

type ResolverFunc func(ctx context.Context, params Params) (Endpoint, error)

func (f ResolverFunc) ResolveEndpoint(ctx context.Context, params Params) (Endpoint, error) {
	return f(ctx, params)
}

// ParamsResolver is a resolution strategy that understands one concrete
// parameter type. Wrap it with NewDelegating to plug it into a pipeline.
type ParamsResolver[P any] interface {
	ResolveEndpoint(ctx context.Context, params P) (Endpoint, error)
}

type ParamsResolverFunc[P any] func(ctx context.Context, params P) (Endpoint, error)

func (f ParamsResolverFunc[P]) ResolveEndpoint(ctx context.Context, params P) (Endpoint, error) {
	return f(ctx, params)
}

// StaticResolver returns the same endpoint for every call.
type StaticResolver struct {
	endpoint Endpoint
}

// StaticParams is the empty parameter type used alongside StaticResolver.
type StaticParams struct{}

func NewStaticResolver(uri string) (*StaticResolver, error) {
	u, err := url.Parse(uri)
	if err != nil {
		return nil, &Error{Kind: KindMalformedURI, Msg: "static endpoint did not have a valid uri", Err: err}
	}
	if u.Scheme == "" || u.Hostname() == "" {
		return nil, &Error{Kind: KindMalformedURI, Msg: fmt.Sprintf("static endpoint %q must be absolute with a hostname", uri)}
	}
	return &StaticResolver{endpoint: NewBuilder().URL(u.String()).Build()}, nil
}

// HTTPLocalhost targets http://localhost:port.
func HTTPLocalhost(port uint16) *StaticResolver {
	return &StaticResolver{
		endpoint: NewBuilder().URL("http://localhost:" + strconv.Itoa(int(port))).Build(),
	}
}

func (r *StaticResolver) ResolveEndpoint(_ context.Context, _ Params) (Endpoint, error) {
	return r.endpoint, nil
}

// Delegating unwraps Params to P and forwards to the wrapped strategy.
type Delegating[P any] struct {
	inner ParamsResolver[P]
}

func NewDelegating[P any](inner ParamsResolver[P]) *Delegating[P] {
	return &Delegating[P]{inner: inner}
}

func (d *Delegating[P]) ResolveEndpoint(ctx context.Context, params Params) (Endpoint, error) {
	p, ok := ParamsAs[P](params)
	if !ok {
		var want P
		return Endpoint{}, &Error{
			Kind: KindMissingParams,
			Msg:  fmt.Sprintf("params of expected type was not present (want %T, got %s)", want, params.TypeName()),
		}
	}
	return d.inner.ResolveEndpoint(ctx, p)
}
