// Package metrics exposes resolver instrumentation for the gateway.
package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/r9s-ai/open-endpoint-router/pkg/endpoint"
)

const (
	ResultOK       = "ok"
	ResultError    = "error"
	ResultCanceled = "canceled"
)

// Metrics owns a private registry so several gateways (or tests) can coexist
// in one process.
type Metrics struct {
	registry *prometheus.Registry

	resolutionsTotal   *prometheus.CounterVec
	resolutionDuration *prometheus.HistogramVec
	rulesLoaded        prometheus.Gauge
	rulesReloadsTotal  *prometheus.CounterVec
}

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		resolutionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "oer_endpoint_resolutions_total",
				Help: "Number of endpoint resolutions by resolver and result.",
			},
			[]string{"resolver", "result"},
		),
		resolutionDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "oer_endpoint_resolution_duration_seconds",
				Help:    "Time taken to resolve an endpoint.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"resolver"},
		),
		rulesLoaded: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "oer_rules_loaded",
				Help: "Number of endpoint rules in the active rule set.",
			},
		),
		rulesReloadsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "oer_rules_reloads_total",
				Help: "Number of rule reload attempts by result.",
			},
			[]string{"result"},
		),
	}
	m.registry.MustRegister(
		m.resolutionsTotal,
		m.resolutionDuration,
		m.rulesLoaded,
		m.rulesReloadsTotal,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) SetRulesLoaded(n int) {
	m.rulesLoaded.Set(float64(n))
}

func (m *Metrics) ObserveReload(err error) {
	if err != nil {
		m.rulesReloadsTotal.WithLabelValues(ResultError).Inc()
		return
	}
	m.rulesReloadsTotal.WithLabelValues(ResultOK).Inc()
}

// Instrument wraps r so every resolution is counted and timed under name.
func (m *Metrics) Instrument(name string, r endpoint.Resolver) endpoint.Resolver {
	return endpoint.ResolverFunc(func(ctx context.Context, p endpoint.Params) (endpoint.Endpoint, error) {
		start := time.Now()
		ep, err := r.ResolveEndpoint(ctx, p)
		m.resolutionDuration.WithLabelValues(name).Observe(time.Since(start).Seconds())
		m.resolutionsTotal.WithLabelValues(name, resultLabel(err)).Inc()
		return ep, err
	})
}

func resultLabel(err error) string {
	switch {
	case err == nil:
		return ResultOK
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return ResultCanceled
	default:
		return ResultError
	}
}
