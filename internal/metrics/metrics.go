// Package metrics exposes Prometheus instruments for indexer queries, the
// result cache, retries and health. A nil *Collector is valid and records
// nothing.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "lsindexer"

// Query outcomes.
const (
	OutcomeSuccess  = "success"
	OutcomeError    = "error"
	OutcomeCached   = "cached"
	OutcomeSiteDown = "site_down"
	OutcomeAuth     = "auth"
)

// Collector owns a private registry.
type Collector struct {
	registry *prometheus.Registry

	queries       *prometheus.CounterVec
	queryDuration *prometheus.HistogramVec
	cacheLookups  *prometheus.CounterVec
	retries       *prometheus.CounterVec
	requests      *prometheus.CounterVec
	health        *prometheus.GaugeVec
	errorCount    *prometheus.GaugeVec
	releases      *prometheus.CounterVec
}

// New creates a collector with Go and process collectors registered.
func New() *Collector {
	c := &Collector{
		registry: prometheus.NewRegistry(),
		queries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "queries_total",
			Help:      "Indexer queries by outcome.",
		}, []string{"indexer", "outcome"}),
		queryDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "query_duration_seconds",
			Help:      "Time spent in uncached indexer queries.",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		}, []string{"indexer"}),
		cacheLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_lookups_total",
			Help:      "Result cache lookups by result.",
		}, []string{"result"}),
		retries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "request_retries_total",
			Help:      "HTTP request retries.",
		}, []string{"indexer"}),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests sent to indexer sites by status class.",
		}, []string{"indexer", "class"}),
		health: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "indexer_health",
			Help:      "1 healthy, 0 unknown, -1 failing.",
		}, []string{"indexer"}),
		errorCount: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "indexer_consecutive_errors",
			Help:      "Consecutive failed queries.",
		}, []string{"indexer"}),
		releases: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "releases_returned_total",
			Help:      "Releases returned to callers.",
		}, []string{"indexer"}),
	}

	c.registry.MustRegister(
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		collectors.NewGoCollector(),
		c.queries, c.queryDuration, c.cacheLookups, c.retries,
		c.requests, c.health, c.errorCount, c.releases,
	)
	return c
}

// Registry returns the backing registry.
func (c *Collector) Registry() *prometheus.Registry {
	if c == nil {
		return nil
	}
	return c.registry
}

// Handler serves the registry in the Prometheus text format.
func (c *Collector) Handler() http.Handler {
	if c == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

func (c *Collector) QueryFinished(indexer, outcome string, took time.Duration, results int) {
	if c == nil {
		return
	}
	c.queries.WithLabelValues(indexer, outcome).Inc()
	if outcome != OutcomeCached {
		c.queryDuration.WithLabelValues(indexer).Observe(took.Seconds())
	}
	if results > 0 {
		c.releases.WithLabelValues(indexer).Add(float64(results))
	}
}

func (c *Collector) CacheLookup(hit bool) {
	if c == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	c.cacheLookups.WithLabelValues(result).Inc()
}

func (c *Collector) Retry(indexer string) {
	if c == nil {
		return
	}
	c.retries.WithLabelValues(indexer).Inc()
}

// Request counts one HTTP exchange. status 0 means a transport error.
func (c *Collector) Request(indexer string, status int) {
	if c == nil {
		return
	}
	c.requests.WithLabelValues(indexer, statusClass(status)).Inc()
}

// Health records the derived state: 1 healthy, 0 unknown, -1 failing.
func (c *Collector) Health(indexer string, state float64, errors int) {
	if c == nil {
		return
	}
	c.health.WithLabelValues(indexer).Set(state)
	c.errorCount.WithLabelValues(indexer).Set(float64(errors))
}

func statusClass(status int) string {
	switch {
	case status == 0:
		return "error"
	case status < 300:
		return "2xx"
	case status < 400:
		return "3xx"
	case status < 500:
		return "4xx"
	default:
		return "5xx"
	}
}
