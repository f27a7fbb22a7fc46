package server

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/r9s-ai/open-endpoint-router/internal/logx"
	"github.com/r9s-ai/open-endpoint-router/pkg/requestid"
)

// Context keys the handlers fill in for the access log.
const (
	ctxService         = "oer.service"
	ctxRegion          = "oer.region"
	ctxTenant          = "oer.tenant"
	ctxResolver        = "oer.resolver"
	ctxEndpoint        = "oer.endpoint"
	ctxUpstreamStatus  = "oer.upstream_status"
	ctxUpstreamLatency = "oer.upstream_latency_ms"
	ctxBytesOut        = "oer.bytes_out"
	ctxResolveError    = "oer.resolve_error"
)

type contextFieldSpec struct {
	ctxKey string
	logKey string
}

var accessLogContextFieldSpecs = []contextFieldSpec{
	{ctxKey: ctxService, logKey: "service"},
	{ctxKey: ctxRegion, logKey: "region"},
	{ctxKey: ctxTenant, logKey: "tenant"},
	{ctxKey: ctxResolver, logKey: "resolver"},
	{ctxKey: ctxEndpoint, logKey: "endpoint"},
	{ctxKey: ctxUpstreamStatus, logKey: "upstream_status"},
	{ctxKey: ctxUpstreamLatency, logKey: "upstream_latency_ms"},
	{ctxKey: ctxBytesOut, logKey: "bytes_out"},
	{ctxKey: ctxResolveError, logKey: "resolve_error"},
}

func requestIDMiddleware(headerKey string) gin.HandlerFunc {
	headerKey = requestid.ResolveHeaderKey(headerKey)
	return func(c *gin.Context) {
		id := strings.TrimSpace(c.GetHeader(headerKey))
		if id == "" {
			id = requestid.Gen()
		}
		c.Header(headerKey, id)
		c.Set(headerKey, id)
		c.Request = c.Request.WithContext(requestid.WithContext(c.Request.Context(), id))
		c.Next()
	}
}

func requestLoggerWithColor(l *log.Logger, color bool, requestIDHeaderKey string, f *logx.AccessLogFormatter) gin.HandlerFunc {
	requestIDHeaderKey = requestid.ResolveHeaderKey(requestIDHeaderKey)
	if l == nil {
		l = log.New(os.Stdout, "", log.LstdFlags)
	}
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		line := f.Format(logx.AccessEntry{
			Time:     time.Now(),
			Status:   c.Writer.Status(),
			Latency:  time.Since(start),
			ClientIP: c.ClientIP(),
			Method:   c.Request.Method,
			Path:     c.Request.URL.Path,
			Fields:   collectAccessFields(c, requestIDHeaderKey),
		}, color)
		if line != "" {
			l.Println(line)
		}
	}
}

func collectAccessFields(c *gin.Context, requestIDHeaderKey string) map[string]string {
	out := make(map[string]string, len(accessLogContextFieldSpecs)+1)
	if v := strings.TrimSpace(c.GetString(requestIDHeaderKey)); v != "" {
		out["request_id"] = v
	}
	for _, s := range accessLogContextFieldSpecs {
		v, ok := c.Get(s.ctxKey)
		if !ok {
			continue
		}
		switch n := v.(type) {
		case string:
			out[s.logKey] = n
		case int:
			out[s.logKey] = strconv.Itoa(n)
		case int64:
			out[s.logKey] = strconv.FormatInt(n, 10)
		}
	}
	return out
}
