// Package rules resolves endpoints from a table of YAML rules.
//
// A rules file lists rules matched in order against Params; the first match
// renders its URL and header templates:
//
//	rules:
//	  - match: {service: storage, region: "eu-*", fips: true}
//	    url: "https://{service}-fips.{region}.example.com"
//	    headers:
//	      X-Region: ["{region}"]
//	    properties:
//	      auth_scheme: sigv4
//
// Placeholders are {service}, {region} and {tenant}. Files in a directory are
// loaded in lexical order and their rules concatenated.
//
// Registry holds the active RuleSet and swaps it atomically on reload, so it
// can be wired once into an endpoint.Delegating and refreshed underneath.
package rules
