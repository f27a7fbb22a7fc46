package endpoint

import (
	"context"
	"fmt"
	"net/http"

	"github.com/r9s-ai/open-endpoint-router/pkg/configbag"
)

// SetResolver installs r as the active resolver of bag.
func SetResolver(bag *configbag.Bag, r Resolver) {
	configbag.Put[Resolver](bag, r)
}

func SetParams(bag *configbag.Bag, p Params) {
	configbag.Put(bag, p)
}

func SetPrefix(bag *configbag.Bag, p Prefix) {
	configbag.Put(bag, p)
}

// Resolved returns the endpoint published by Orchestrate.
func Resolved(bag *configbag.Bag) (Endpoint, bool) {
	return configbag.Get[Endpoint](bag)
}

// Orchestrate resolves the endpoint for one request attempt, applies it to
// req and publishes it into bag. bag must be the per-request layer.
//
// On error neither req nor bag is modified.
func Orchestrate(ctx context.Context, req *http.Request, bag *configbag.Bag) error {
	if bag == nil || bag.Frozen() {
		return &Error{
			Kind: KindMissingResolver,
			Msg:  "orchestrate needs a writable per-request layer",
			Err:  fmt.Errorf("got %s", bag),
		}
	}
	resolver, ok := configbag.Get[Resolver](bag)
	if !ok || resolver == nil {
		return &Error{Kind: KindMissingResolver, Msg: "no endpoint resolver configured"}
	}
	params, _ := configbag.Get[Params](bag)
	var prefix *Prefix
	if p, ok := configbag.Get[Prefix](bag); ok {
		prefix = &p
	}

	if err := ctx.Err(); err != nil {
		return &Error{Kind: KindCanceled, Msg: "request attempt canceled before resolution", Err: err}
	}
	ep, err := resolver.ResolveEndpoint(ctx, params)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return &Error{Kind: KindCanceled, Msg: "endpoint resolution canceled", Err: err}
		}
		return resolutionError(err)
	}
	if err := ctx.Err(); err != nil {
		return &Error{Kind: KindCanceled, Msg: "request attempt canceled after resolution", Err: err}
	}

	if err := Apply(req, ep, prefix); err != nil {
		return err
	}
	configbag.Put(bag, ep)
	return nil
}
