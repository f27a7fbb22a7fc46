// Package proxy forwards gateway requests to the endpoint resolved for
// their service and streams the upstream response back.
package proxy

import (
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/r9s-ai/open-endpoint-router/pkg/endpoint"
	"github.com/r9s-ai/open-endpoint-router/pkg/httpclient"
)

// Control headers select routing parameters and are never sent upstream.
const (
	HeaderRegion = "X-Oer-Region"
	HeaderTenant = "X-Oer-Tenant"
	HeaderFIPS   = "X-Oer-Fips"
)

type Client struct {
	Pipeline *httpclient.Client
}

// Request describes one forwarded call.
type Request struct {
	Service string
	// Path is the upstream path, appended to the endpoint base path.
	Path   string
	Params any
	Prefix *endpoint.Prefix
}

type Result struct {
	Endpoint        endpoint.Endpoint
	UpstreamStatus  int
	UpstreamLatency time.Duration
	BytesOut        int64
}

// UpstreamError reports a failure after the endpoint was applied.
type UpstreamError struct {
	URL string
	Err error
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("upstream %s: %v", e.URL, e.Err)
}

func (e *UpstreamError) Unwrap() error { return e.Err }

// Forward resolves r against the pipeline, sends gc's request upstream and
// copies the response into gc. Nothing is written to gc on error.
func (c *Client) Forward(gc *gin.Context, r Request) (Result, error) {
	in := gc.Request
	ctx := WithService(in.Context(), r.Service)

	out, err := http.NewRequestWithContext(ctx, in.Method, (&url.URL{Path: r.Path, RawQuery: in.URL.RawQuery}).String(), in.Body)
	if err != nil {
		return Result{}, err
	}
	out.ContentLength = in.ContentLength
	out.Header = in.Header.Clone()
	removeHopHeaders(out.Header)
	out.Header.Del(HeaderRegion)
	out.Header.Del(HeaderTenant)
	out.Header.Del(HeaderFIPS)
	if ip := gc.ClientIP(); ip != "" {
		appendForwardedFor(out.Header, ip)
	}

	var opts []httpclient.CallOption
	if r.Prefix != nil {
		opts = append(opts, httpclient.WithPrefix(*r.Prefix))
	}
	prepared, bag, err := c.Pipeline.Prepare(ctx, out, r.Params, opts...)
	if err != nil {
		return Result{}, err
	}
	res := Result{}
	res.Endpoint, _ = endpoint.Resolved(bag)

	start := time.Now()
	resp, err := c.Pipeline.Send(prepared)
	res.UpstreamLatency = time.Since(start)
	if err != nil {
		return res, &UpstreamError{URL: prepared.URL.Redacted(), Err: err}
	}
	defer resp.Body.Close() //nolint:errcheck
	res.UpstreamStatus = resp.StatusCode

	n, err := streamToDownstream(gc, resp)
	res.BytesOut = n
	if err != nil {
		// Headers are already sent; the caller can only log this.
		return res, &UpstreamError{URL: prepared.URL.Redacted(), Err: err}
	}
	return res, nil
}
