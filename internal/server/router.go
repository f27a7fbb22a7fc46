package server

import (
	"log"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/r9s-ai/open-endpoint-router/internal/auth"
	"github.com/r9s-ai/open-endpoint-router/internal/logx"
)

func NewRouter(a *App, accessLogger *log.Logger, accessLoggerColor bool, accessFormatter *logx.AccessLogFormatter) *gin.Engine {
	cfg := a.cfg
	r := gin.New()
	r.Use(requestIDMiddleware(a.reqIDKey))
	if cfg.Logging.AccessLogEnabled() && accessFormatter != nil {
		r.Use(requestLoggerWithColor(accessLogger, accessLoggerColor, a.reqIDKey, accessFormatter))
	}
	r.Use(gin.Recovery())

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"ok": true, "resolver": a.backend.kind})
	})
	if cfg.MetricsEnabled() {
		r.GET(cfg.Metrics.Path, gin.WrapH(a.metrics.Handler()))
	}

	if strings.TrimSpace(cfg.Auth.APIKey) != "" {
		admin := r.Group("/admin")
		admin.Use(auth.Middleware(cfg.Auth.APIKey))
		admin.POST("/resolve", a.handleAdminResolve)
		admin.GET("/rules", a.handleAdminRules)
		admin.POST("/rules/reload", a.handleAdminReload)
	}

	r.Any("/proxy/:service/*path", a.handleProxy)
	return r
}
