package server

import (
	"errors"
	"log"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/r9s-ai/open-endpoint-router/internal/proxy"
)

func abortWithError(c *gin.Context, status int, code string, err error) {
	c.AbortWithStatusJSON(status, gin.H{
		"error": gin.H{
			"message": err.Error(),
			"type":    "endpoint_error",
			"code":    code,
		},
	})
}

func classify(err error) (int, string) {
	if errors.Is(err, errInvalidPrefix) {
		return http.StatusBadRequest, "invalid_prefix"
	}
	return proxy.Classify(err)
}

func routeFromRequest(c *gin.Context) route {
	fips, _ := strconv.ParseBool(strings.TrimSpace(c.GetHeader(proxy.HeaderFIPS)))
	return route{
		Service: strings.TrimSpace(c.Param("service")),
		Region:  strings.TrimSpace(c.GetHeader(proxy.HeaderRegion)),
		Tenant:  strings.TrimSpace(c.GetHeader(proxy.HeaderTenant)),
		FIPS:    fips,
	}
}

func (a *App) markRoute(c *gin.Context, rt route) {
	c.Set(ctxService, rt.Service)
	c.Set(ctxRegion, rt.Region)
	c.Set(ctxTenant, rt.Tenant)
	c.Set(ctxResolver, a.backend.kind)
}

func (a *App) handleProxy(c *gin.Context) {
	rt := routeFromRequest(c)
	a.markRoute(c, rt)

	prefix, err := prefixFor(a.cfg.Resolver.EndpointPrefix, rt)
	if err != nil {
		status, code := classify(err)
		c.Set(ctxResolveError, code)
		abortWithError(c, status, code, err)
		return
	}
	path := c.Param("path")
	if path == "" {
		path = "/"
	}
	res, err := a.proxy.Forward(c, proxy.Request{
		Service: rt.Service,
		Path:    path,
		Params:  a.backend.params(rt),
		Prefix:  prefix,
	})
	if !res.Endpoint.IsZero() {
		c.Set(ctxEndpoint, res.Endpoint.URL())
	}
	if res.UpstreamStatus != 0 {
		c.Set(ctxUpstreamStatus, res.UpstreamStatus)
		c.Set(ctxUpstreamLatency, res.UpstreamLatency.Milliseconds())
		c.Set(ctxBytesOut, res.BytesOut)
	}
	if err == nil {
		return
	}
	status, code := classify(err)
	c.Set(ctxResolveError, code)
	if c.Writer.Written() {
		log.Printf("proxy stream aborted: service=%q err=%v", rt.Service, err)
		return
	}
	abortWithError(c, status, code, err)
}

// handleAdminResolve runs the pipeline against a scratch request and
// reports the endpoint and the request as it would be sent.
func (a *App) handleAdminResolve(c *gin.Context) {
	var in ResolveInput
	if err := c.ShouldBindJSON(&in); err != nil {
		abortWithError(c, http.StatusBadRequest, "invalid_request", err)
		return
	}
	a.markRoute(c, in.route())

	out, err := a.Resolve(c.Request.Context(), in)
	if err != nil {
		status, code := classify(err)
		c.Set(ctxResolveError, code)
		abortWithError(c, status, code, err)
		return
	}
	c.Set(ctxEndpoint, out.Endpoint.URL)
	c.JSON(http.StatusOK, out)
}

type ruleView struct {
	File    string              `json:"file"`
	Index   int                 `json:"index"`
	Service string              `json:"service,omitempty"`
	Region  string              `json:"region,omitempty"`
	FIPS    *bool               `json:"fips,omitempty"`
	URL     string              `json:"url"`
	Headers map[string][]string `json:"headers,omitempty"`
}

func (a *App) handleAdminRules(c *gin.Context) {
	if a.backend.rules == nil {
		abortWithError(c, http.StatusNotFound, "no_rules", errors.New("resolver kind "+a.backend.kind+" has no rule set"))
		return
	}
	set := a.backend.rules.Current().Rules()
	out := make([]ruleView, 0, len(set))
	for _, r := range set {
		out = append(out, ruleView{
			File:    r.File,
			Index:   r.Index,
			Service: r.Match.Service,
			Region:  r.Match.Region,
			FIPS:    r.Match.FIPS,
			URL:     r.URL,
			Headers: r.Headers.Map(),
		})
	}
	c.JSON(http.StatusOK, gin.H{"dir": a.cfg.Rules.Dir, "rules": out})
}

func (a *App) handleAdminReload(c *gin.Context) {
	res, err := a.ReloadRules()
	if errors.Is(err, errNoRules) {
		abortWithError(c, http.StatusNotFound, "no_rules", err)
		return
	}
	if err != nil {
		abortWithError(c, http.StatusUnprocessableEntity, "reload_failed", err)
		return
	}
	changed := res.ChangedServices
	if changed == nil {
		changed = []string{}
	}
	c.JSON(http.StatusOK, gin.H{"rules": res.Rules, "changed_services": changed})
}
