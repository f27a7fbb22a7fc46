package proxy

import (
	"errors"
	"net/http"

	"github.com/r9s-ai/open-endpoint-router/pkg/discovery"
	"github.com/r9s-ai/open-endpoint-router/pkg/endpoint"
	"github.com/r9s-ai/open-endpoint-router/pkg/rules"
)

// StatusClientClosedRequest is the nginx convention for a client that went
// away before the response.
const StatusClientClosedRequest = 499

// Classify maps a Forward error onto the downstream status and error code.
func Classify(err error) (int, string) {
	var up *UpstreamError
	if errors.As(err, &up) {
		return http.StatusBadGateway, "upstream_error"
	}
	kind := endpoint.KindOf(err)
	switch kind {
	case endpoint.KindResolution:
		if errors.Is(err, rules.ErrNoRuleMatched) {
			return http.StatusNotFound, "no_endpoint"
		}
		if errors.Is(err, rules.ErrInvalidParam) || errors.Is(err, discovery.ErrInvalidService) {
			return http.StatusBadRequest, "invalid_params"
		}
		if endpoint.Retryable(err) {
			return http.StatusServiceUnavailable, kind.String()
		}
		return http.StatusBadGateway, kind.String()
	case endpoint.KindCanceled:
		return StatusClientClosedRequest, kind.String()
	case endpoint.KindMalformedURI, endpoint.KindApplication, endpoint.KindInvalidHeader:
		return http.StatusBadGateway, kind.String()
	case endpoint.KindMissingParams, endpoint.KindMissingResolver:
		return http.StatusInternalServerError, kind.String()
	}
	return http.StatusInternalServerError, "internal_error"
}
