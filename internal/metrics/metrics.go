// Package metrics holds the Prometheus collectors shared by the server and worker.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "fintrack"

// Insight sources.
const (
	SourceLocal    = "local"
	SourceExternal = "external"
	SourceFallback = "fallback"
	SourceCache    = "cache"
)

// Metrics bundles every collector the application records to.
type Metrics struct {
	registry *prometheus.Registry

	HTTPRequests   *prometheus.CounterVec
	HTTPDuration   *prometheus.HistogramVec
	RateLimited    prometheus.Counter
	Insights       *prometheus.CounterVec
	EventsOut      *prometheus.CounterVec
	SyncedRows     *prometheus.CounterVec
	ImportedRecord *prometheus.CounterVec
}

// New registers all collectors on a fresh registry, together with the Go
// runtime and process collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	f := promauto.With(reg)

	return &Metrics{
		registry: reg,
		HTTPRequests: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by route, method and status code.",
		}, []string{"route", "method", "code"}),
		HTTPDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency by route.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route"}),
		RateLimited: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_rate_limited_total",
			Help:      "Requests rejected by the rate limiter.",
		}),
		Insights: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "insights_generated_total",
			Help:      "Insight generations by source (local, external, fallback, cache).",
		}, []string{"source"}),
		EventsOut: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ledger_events_published_total",
			Help:      "Ledger change events published, by operation and outcome.",
		}, []string{"op", "outcome"}),
		SyncedRows: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sheet_sync_total",
			Help:      "Transactions mirrored to the spreadsheet, by operation and outcome.",
		}, []string{"op", "outcome"}),
		ImportedRecord: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "import_records_total",
			Help:      "Records restored from backups, by collection.",
		}, []string{"collection"}),
	}
}

// Registry exposes the underlying registry, mainly for tests.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}
