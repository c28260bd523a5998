// Package metrics exposes the service's Prometheus collectors on a private
// registry so tests never collide on global state.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Collector struct {
	registry *prometheus.Registry

	RequestDuration *prometheus.HistogramVec
	RequestCount    *prometheus.CounterVec

	RetrievalChunks prometheus.Histogram
	FallbackTotal   *prometheus.CounterVec

	CacheHitsTotal      *prometheus.CounterVec
	CacheMissesTotal    *prometheus.CounterVec
	CacheEvictionsTotal *prometheus.CounterVec

	ProviderErrorsTotal *prometheus.CounterVec
}

func NewCollector() *Collector {
	c := &Collector{
		registry: prometheus.NewRegistry(),

		RequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "docqa_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10, 30},
			},
			[]string{"method", "endpoint", "status"},
		),
		RequestCount: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "docqa_http_requests_total",
				Help: "Total HTTP requests",
			},
			[]string{"method", "endpoint", "status"},
		),

		RetrievalChunks: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "docqa_retrieval_chunks",
				Help:    "Chunks returned per retrieval",
				Buckets: []float64{0, 1, 2, 4, 8, 12, 16, 24},
			},
		),
		FallbackTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "docqa_fallback_total",
				Help: "Fallback chain entries by stage",
			},
			[]string{"stage"},
		),

		CacheHitsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "docqa_cache_hits_total",
				Help: "Cache hits by tier and namespace",
			},
			[]string{"tier", "namespace"},
		),
		CacheMissesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "docqa_cache_misses_total",
				Help: "Cache misses by namespace",
			},
			[]string{"namespace"},
		),
		CacheEvictionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "docqa_cache_evictions_total",
				Help: "Cache evictions by tier",
			},
			[]string{"tier"},
		),

		ProviderErrorsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "docqa_provider_errors_total",
				Help: "Provider errors by operation and code",
			},
			[]string{"operation", "code"},
		),
	}

	c.registry.MustRegister(
		c.RequestDuration,
		c.RequestCount,
		c.RetrievalChunks,
		c.FallbackTotal,
		c.CacheHitsTotal,
		c.CacheMissesTotal,
		c.CacheEvictionsTotal,
		c.ProviderErrorsTotal,
	)
	return c
}

func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

// CacheHit, CacheMiss, and CacheEviction satisfy the cache manager's
// recorder contract.
func (c *Collector) CacheHit(tier, namespace string) {
	c.CacheHitsTotal.WithLabelValues(tier, namespace).Inc()
}

func (c *Collector) CacheMiss(namespace string) {
	c.CacheMissesTotal.WithLabelValues(namespace).Inc()
}

func (c *Collector) CacheEviction(tier string, count int) {
	c.CacheEvictionsTotal.WithLabelValues(tier).Add(float64(count))
}

func (c *Collector) ObserveRetrieval(chunkCount int) {
	c.RetrievalChunks.Observe(float64(chunkCount))
}

func (c *Collector) Fallback(stage string) {
	c.FallbackTotal.WithLabelValues(stage).Inc()
}

func (c *Collector) ProviderError(operation, code string) {
	c.ProviderErrorsTotal.WithLabelValues(operation, code).Inc()
}
