// Package metrics holds the Prometheus collectors for the search pipeline.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "lookalike"

// Latency buckets in milliseconds.
var latencyBuckets = []float64{
	5, 10, 25,
	50, 100, 250,
	500, 1000, 2500,
	5000, 10000, 30000,
}

// Metrics is a set of collectors on a private registry. A nil *Metrics is valid and
// records nothing.
type Metrics struct {
	registry *prometheus.Registry

	SearchRequests    *prometheus.CounterVec
	SearchDuration    *prometheus.HistogramVec
	EmbeddingDuration prometheus.Histogram
	StoredItems       prometheus.Gauge
}

// New creates the collectors and registers them with process and Go runtime collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		collectors.NewGoCollector(),
	)
	factory := promauto.With(reg)
	return &Metrics{
		registry: reg,
		SearchRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "search_requests_total",
			Help:      "Search requests by outcome code (ok or error code).",
		}, []string{"outcome"}),
		SearchDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "search_latency_ms",
			Help:      "End-to-end search latency in milliseconds.",
			Buckets:   latencyBuckets,
		}, []string{"strategy"}),
		EmbeddingDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "embedding_latency_ms",
			Help:      "Embedding service latency in milliseconds.",
			Buckets:   latencyBuckets,
		}),
		StoredItems: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "stored_items",
			Help:      "Number of items in the vector store at last count.",
		}),
	}
}

// ObserveSearch records one search outcome. code is "" on success.
func (m *Metrics) ObserveSearch(code, strategy string, d time.Duration) {
	if m == nil {
		return
	}
	if code == "" {
		code = "ok"
	}
	m.SearchRequests.WithLabelValues(code).Inc()
	m.SearchDuration.WithLabelValues(strategy).Observe(milliseconds(d))
}

// ObserveEmbedding records one embedding call.
func (m *Metrics) ObserveEmbedding(d time.Duration) {
	if m == nil {
		return
	}
	m.EmbeddingDuration.Observe(milliseconds(d))
}

// SetStoredItems updates the stored items gauge.
func (m *Metrics) SetStoredItems(n int64) {
	if m == nil {
		return
	}
	m.StoredItems.Set(float64(n))
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func milliseconds(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}
