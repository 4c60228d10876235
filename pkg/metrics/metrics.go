// Package metrics defines the Prometheus metric collectors used across the
// services and exposes an HTTP handler for scraping.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus collectors. A nil *Metrics is valid and
// records nothing, so components can be built without a registry in tests.
type Metrics struct {
	HTTPRequestsTotal    *prometheus.CounterVec
	HTTPRequestDuration  *prometheus.HistogramVec
	HTTPRequestsInFlight prometheus.Gauge
	DocumentsIngested    *prometheus.CounterVec
	PhrasesPerDocument   prometheus.Histogram
	IndexUpdatesTotal    *prometheus.CounterVec
	IndexQueryDuration   *prometheus.HistogramVec
	ScansTotal           *prometheus.CounterVec
	ScanLatency          *prometheus.HistogramVec
	ScanDocuments        *prometheus.HistogramVec
	CacheHitsTotal       prometheus.Counter
	CacheMissesTotal     prometheus.Counter
	EventsConsumedTotal  *prometheus.CounterVec
	RateLimitedTotal     prometheus.Counter
	CircuitBreakerState  *prometheus.GaugeVec
}

// New creates all collectors and registers them with reg. A nil reg uses
// the process-wide default registerer.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	m := &Metrics{
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests by method, route, and status.",
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "HTTP request latency in seconds.",
				Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
			},
			[]string{"method", "path"},
		),
		HTTPRequestsInFlight: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "http_requests_in_flight",
				Help: "Number of HTTP requests currently being processed.",
			},
		),
		DocumentsIngested: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "documents_ingested_total",
				Help: "Documents accepted by the ingestion service by outcome (ok, index_error, error).",
			},
			[]string{"outcome"},
		),
		PhrasesPerDocument: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "phrases_per_document",
				Help:    "Distinct phrases extracted per ingested document.",
				Buckets: prometheus.ExponentialBuckets(1, 2, 14),
			},
		),
		IndexUpdatesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "index_updates_total",
				Help: "Frequency index word updates by backend and status.",
			},
			[]string{"backend", "status"},
		),
		IndexQueryDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "index_query_duration_seconds",
				Help:    "Frequency index read latency by query (words, section, word, distinctive).",
				Buckets: []float64{0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
			},
			[]string{"query"},
		),
		ScansTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "similarity_scans_total",
				Help: "Corpus scans by kind (fingerprint, words) and result (ok, timeout, error, cached).",
			},
			[]string{"kind", "result"},
		),
		ScanLatency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "similarity_scan_seconds",
				Help:    "Corpus scan latency in seconds.",
				Buckets: []float64{0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
			},
			[]string{"kind"},
		),
		ScanDocuments: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "similarity_scan_documents",
				Help:    "Documents visited per corpus scan.",
				Buckets: prometheus.ExponentialBuckets(1, 4, 10),
			},
			[]string{"kind"},
		),
		CacheHitsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "cache_hits_total",
				Help: "Total number of scan result cache hits.",
			},
		),
		CacheMissesTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "cache_misses_total",
				Help: "Total number of scan result cache misses.",
			},
		),
		EventsConsumedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "document_events_consumed_total",
				Help: "Document events handled by consumers by type and status.",
			},
			[]string{"type", "status"},
		),
		RateLimitedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "gateway_rate_limited_total",
				Help: "Requests rejected by the gateway rate limiter.",
			},
		),
		CircuitBreakerState: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "circuit_breaker_state",
				Help: "Circuit breaker state (0=closed, 1=open, 2=half-open).",
			},
			[]string{"name"},
		),
	}

	reg.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.HTTPRequestsInFlight,
		m.DocumentsIngested,
		m.PhrasesPerDocument,
		m.IndexUpdatesTotal,
		m.IndexQueryDuration,
		m.ScansTotal,
		m.ScanLatency,
		m.ScanDocuments,
		m.CacheHitsTotal,
		m.CacheMissesTotal,
		m.EventsConsumedTotal,
		m.RateLimitedTotal,
		m.CircuitBreakerState,
	)

	return m
}

func (m *Metrics) DocumentIngested(outcome string, phrases int) {
	if m == nil {
		return
	}
	m.DocumentsIngested.WithLabelValues(outcome).Inc()
	if outcome == "ok" {
		m.PhrasesPerDocument.Observe(float64(phrases))
	}
}

func (m *Metrics) IndexUpdate(backend string, err error) {
	if m == nil {
		return
	}
	status := "ok"
	if err != nil {
		status = "error"
	}
	m.IndexUpdatesTotal.WithLabelValues(backend, status).Inc()
}

func (m *Metrics) ObserveIndexQuery(query string, d time.Duration) {
	if m != nil {
		m.IndexQueryDuration.WithLabelValues(query).Observe(d.Seconds())
	}
}

// ObserveScan records one finished scan. docs is the number of documents
// visited; it is ignored for cached results.
func (m *Metrics) ObserveScan(kind, result string, docs int, d time.Duration) {
	if m == nil {
		return
	}
	m.ScansTotal.WithLabelValues(kind, result).Inc()
	if result == "cached" {
		return
	}
	m.ScanLatency.WithLabelValues(kind).Observe(d.Seconds())
	m.ScanDocuments.WithLabelValues(kind).Observe(float64(docs))
}

func (m *Metrics) CacheHit() {
	if m != nil {
		m.CacheHitsTotal.Inc()
	}
}

func (m *Metrics) CacheMiss() {
	if m != nil {
		m.CacheMissesTotal.Inc()
	}
}

func (m *Metrics) EventConsumed(eventType string, err error) {
	if m == nil {
		return
	}
	status := "ok"
	if err != nil {
		status = "error"
	}
	m.EventsConsumedTotal.WithLabelValues(eventType, status).Inc()
}

func (m *Metrics) RateLimited() {
	if m != nil {
		m.RateLimitedTotal.Inc()
	}
}

// SetBreakerState publishes a circuit breaker state as its numeric code.
func (m *Metrics) SetBreakerState(name string, state int) {
	if m != nil {
		m.CircuitBreakerState.WithLabelValues(name).Set(float64(state))
	}
}

// Handler returns the Prometheus scrape HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}
