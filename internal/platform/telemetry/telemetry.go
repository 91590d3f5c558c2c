// Package telemetry exposes Prometheus metrics for the kiosk API: HTTP
// request latency, admission decisions, cache lookups and database pool
// occupancy. Everything is registered on a provider-owned registry so tests
// can build as many providers as they need.
package telemetry

import (
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "totem"

// Config holds the static labels attached to totem_build_info.
type Config struct {
	ServiceName    string
	ServiceVersion string
	Environment    string
}

func (c *Config) applyDefaults() {
	if c.ServiceName == "" {
		c.ServiceName = "totem-server"
	}
	if c.ServiceVersion == "" {
		c.ServiceVersion = "0.0.0"
	}
	if c.Environment == "" {
		c.Environment = "development"
	}
}

// Admission outcomes used as the outcome label.
const (
	OutcomeAllowed = "allowed"
	OutcomeBurst   = "burst"
	OutcomeMinute  = "minute"
)

var durationBuckets = []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30}

// Provider owns the registry and every collector.
type Provider struct {
	cfg      Config
	registry *prometheus.Registry

	RequestDuration *prometheus.HistogramVec
	ActiveRequests  prometheus.Gauge
	ResponseSize    prometheus.Histogram
	Admissions      *prometheus.CounterVec
	CacheLookups    *prometheus.CounterVec
	DBPool          *prometheus.GaugeVec
}

// NewProvider builds a provider with Go runtime and process collectors
// registered alongside the kiosk metrics.
func NewProvider(cfg Config) *Provider {
	cfg.applyDefaults()
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	f := promauto.With(reg)

	p := &Provider{
		cfg:      cfg,
		registry: reg,
		RequestDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "Duration of HTTP requests in seconds.",
			Buckets:   durationBuckets,
		}, []string{"method", "route", "status"}),
		ActiveRequests: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "http_active_requests",
			Help:      "Number of in-flight HTTP requests.",
		}),
		ResponseSize: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_response_size_bytes",
			Help:      "Size of HTTP response bodies in bytes.",
			Buckets:   prometheus.ExponentialBuckets(100, 10, 6),
		}),
		Admissions: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "admission_decisions_total",
			Help:      "Rate limiter decisions by outcome.",
		}, []string{"outcome"}),
		CacheLookups: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_lookups_total",
			Help:      "Cache-aside lookups by result.",
		}, []string{"result"}),
		DBPool: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "db_pool_connections",
			Help:      "Database pool connections by state.",
		}, []string{"state"}),
	}

	f.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "build_info",
		Help:      "Build metadata; always 1.",
		ConstLabels: prometheus.Labels{
			"service":     cfg.ServiceName,
			"version":     cfg.ServiceVersion,
			"environment": cfg.Environment,
		},
	}).Set(1)

	return p
}

// Registry returns the provider's registry.
func (p *Provider) Registry() *prometheus.Registry { return p.registry }

// Resource returns the service identity labels.
func (p *Provider) Resource() map[string]string {
	return map[string]string{
		"service.name":           p.cfg.ServiceName,
		"service.version":        p.cfg.ServiceVersion,
		"deployment.environment": p.cfg.Environment,
	}
}

// RecordAdmission counts one limiter decision. A nil provider is a no-op.
func (p *Provider) RecordAdmission(outcome string) {
	if p == nil {
		return
	}
	p.Admissions.WithLabelValues(outcome).Inc()
}

// RecordCacheLookup counts one cache hit or miss. It matches the signature
// of cache.Cache.OnLookup.
func (p *Provider) RecordCacheLookup(hit bool) {
	if p == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	p.CacheLookups.WithLabelValues(result).Inc()
}

// SetDBPool publishes pool occupancy.
func (p *Provider) SetDBPool(total, idle, acquired int32) {
	if p == nil {
		return
	}
	p.DBPool.WithLabelValues("total").Set(float64(total))
	p.DBPool.WithLabelValues("idle").Set(float64(idle))
	p.DBPool.WithLabelValues("acquired").Set(float64(acquired))
}

// MetricsMiddleware records latency, in-flight count and response size for
// every request. Routes are labelled by their pattern, not the raw path.
func (p *Provider) MetricsMiddleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			p.ActiveRequests.Inc()
			start := time.Now()

			err := next(c)
			if err != nil {
				c.Error(err)
			}

			p.ActiveRequests.Dec()
			route := c.Path()
			if route == "" {
				route = "unmatched"
			}
			resp := c.Response()
			p.RequestDuration.
				WithLabelValues(c.Request().Method, route, strconv.Itoa(resp.Status)).
				Observe(time.Since(start).Seconds())
			if resp.Size > 0 {
				p.ResponseSize.Observe(float64(resp.Size))
			}
			return nil
		}
	}
}

// Handler serves the registry in Prometheus exposition format.
func (p *Provider) Handler() echo.HandlerFunc {
	return echo.WrapHandler(promhttp.HandlerFor(p.registry, promhttp.HandlerOpts{
		Registry: p.registry,
	}))
}
