// Package discovery provides resolvers that look endpoints up at request
// time: HTTPResolver asks a service registry over HTTP, SRVResolver reads DNS
// SRV records. Both block on I/O and honour context cancellation.
package discovery

import (
	"errors"
	"fmt"
	"strings"
)

// ErrInvalidService is returned for a service name that is not a single
// registry path segment.
var ErrInvalidService = errors.New("discovery: invalid service name")

// Params select the service to discover.
type Params struct {
	Service string `json:"service"`
	// Zone narrows the lookup (registry zone query, or a DNS sub-domain).
	Zone string `json:"zone,omitempty"`
}

func checkService(s string) error {
	if strings.TrimSpace(s) == "" {
		return fmt.Errorf("%w: empty", ErrInvalidService)
	}
	if s == "." || s == ".." || strings.ContainsAny(s, "/\\?#%") {
		return fmt.Errorf("%w: %q", ErrInvalidService, s)
	}
	return nil
}
