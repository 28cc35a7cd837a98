// metrics.go - Prometheus collectors for scans, provider attempts and extraction

package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "invoice_scanner"

// Metrics holds the scanner's prometheus collectors on a private registry.
type Metrics struct {
	registry *prometheus.Registry

	scans            *prometheus.CounterVec
	providerAttempts *prometheus.CounterVec
	providerLatency  *prometheus.HistogramVec
	fallbacks        prometheus.Counter
	pages            prometheus.Counter
	cache            *prometheus.CounterVec
	extractions      *prometheus.CounterVec
}

// New registers every collector plus the Go and process collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	f := promauto.With(reg)

	return &Metrics{
		registry: reg,
		scans: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "scans_total",
			Help:      "Scans by outcome.",
		}, []string{"status"}),
		providerAttempts: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "provider_attempts_total",
			Help:      "Provider calls by provider and outcome category.",
		}, []string{"provider", "outcome"}),
		providerLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "provider_latency_seconds",
			Help:      "Provider call latency.",
			Buckets:   []float64{0.5, 1, 2.5, 5, 10, 20, 30, 60, 120},
		}, []string{"provider"}),
		fallbacks: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "provider_fallbacks_total",
			Help:      "Times a scan moved on to the next provider after a failure.",
		}),
		pages: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "pages_normalized_total",
			Help:      "Pages converted into attachments.",
		}),
		cache: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "result_cache_total",
			Help:      "Result cache lookups by result.",
		}, []string{"result"}),
		extractions: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "extractions_total",
			Help:      "Extracted records by document type.",
		}, []string{"document_type"}),
	}
}

// Handler serves the registry in the prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry exposes the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// The recorders below accept a nil receiver so callers can run without metrics.

func (m *Metrics) RecordScan(status string) {
	if m == nil {
		return
	}
	m.scans.WithLabelValues(status).Inc()
}

func (m *Metrics) RecordProviderAttempt(provider, outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.providerAttempts.WithLabelValues(provider, outcome).Inc()
	m.providerLatency.WithLabelValues(provider).Observe(d.Seconds())
}

func (m *Metrics) RecordFallback() {
	if m == nil {
		return
	}
	m.fallbacks.Inc()
}

func (m *Metrics) RecordPages(n int) {
	if m == nil {
		return
	}
	m.pages.Add(float64(n))
}

func (m *Metrics) RecordCache(hit bool) {
	if m == nil {
		return
	}
	if hit {
		m.cache.WithLabelValues("hit").Inc()
	} else {
		m.cache.WithLabelValues("miss").Inc()
	}
}

func (m *Metrics) RecordExtraction(documentType string) {
	if m == nil {
		return
	}
	m.extractions.WithLabelValues(documentType).Inc()
}
