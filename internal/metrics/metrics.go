// Package metrics defines the Prometheus collectors for the engine and
// exposes an HTTP handler for scraping.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus collectors.
type Metrics struct {
	DocumentsProcessed prometheus.Counter
	MatchesStored      prometheus.Counter
	MatchErrors        prometheus.Counter
	IngestQueueDepth   prometheus.Gauge
	RegisteredQueries  prometheus.Gauge
	HTTPRequestsTotal  *prometheus.CounterVec

	registry *prometheus.Registry
}

// New creates and registers all collectors on a private registry.
func New() *Metrics {
	m := &Metrics{
		DocumentsProcessed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "documents_processed_total",
			Help: "Total documents pulled through the ingestion pipeline.",
		}),
		MatchesStored: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "matches_stored_total",
			Help: "Total match records durably stored.",
		}),
		MatchErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "match_errors_total",
			Help: "Total per-query failures during matching or storing.",
		}),
		IngestQueueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "ingest_queue_depth",
			Help: "Documents currently waiting in the bounded ingestion channel.",
		}),
		RegisteredQueries: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "registered_queries",
			Help: "Number of live persistent queries.",
		}),
		HTTPRequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total HTTP requests by method, path, and status.",
		}, []string{"method", "path", "status"}),
		registry: prometheus.NewRegistry(),
	}
	m.registry.MustRegister(
		m.DocumentsProcessed,
		m.MatchesStored,
		m.MatchErrors,
		m.IngestQueueDepth,
		m.RegisteredQueries,
		m.HTTPRequestsTotal,
	)
	return m
}

// Handler returns the scrape endpoint handler.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
