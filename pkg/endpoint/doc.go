// Package endpoint resolves the network endpoint an outgoing request must be
// sent to and merges it into that request.
//
// # Flow
//
// A pipeline stage calls Orchestrate with the request and its per-request
// configbag layer. Orchestrate reads the resolver Params, the optional Prefix
// and the active Resolver from the bag, resolves an Endpoint, applies it to
// the request and publishes the Endpoint back into the bag so later stages
// (signing, access logging) can read the resolved target.
//
// # Resolvers
//
// StaticResolver always returns one fixed endpoint. Delegating adapts a
// concretely typed ParamsResolver to the type-erased Resolver contract by
// extracting its parameter type from Params. Custom strategies (rule tables,
// discovery services) implement either interface.
//
// # Atomicity
//
// Apply validates every header and computes the merged URL before touching
// the request. On any error the request and the bag are left as they were.
package endpoint
