// Package metrics exposes the aggregator's Prometheus collectors. A nil
// *Metrics is valid and records nothing.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Metrics struct {
	registry *prometheus.Registry

	Searches       *prometheus.CounterVec
	SearchDuration prometheus.Histogram
	CacheLookups   *prometheus.CounterVec
	SourceScans    *prometheus.CounterVec
	ScannedStubs   *prometheus.CounterVec
	Enriched       *prometheus.CounterVec
	HTTPRequests   *prometheus.CounterVec
}

// New builds the collectors on a private registry together with the Go and
// process collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		Searches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "secondhand",
			Name:      "searches_total",
			Help:      "Orchestrated searches by outcome (ok, partial, failed, invalid).",
		}, []string{"outcome"}),
		SearchDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "secondhand",
			Name:      "search_duration_seconds",
			Help:      "Wall time of searches that were not served from cache.",
			Buckets:   []float64{0.5, 1, 2, 5, 10, 20, 40, 80},
		}),
		CacheLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "secondhand",
			Name:      "cache_lookups_total",
			Help:      "Result cache lookups by tier (memory, redis) and result (hit, miss).",
		}, []string{"tier", "result"}),
		SourceScans: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "secondhand",
			Name:      "source_scans_total",
			Help:      "Price scans per source by result (ok, error).",
		}, []string{"source", "result"}),
		ScannedStubs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "secondhand",
			Name:      "scanned_listings_total",
			Help:      "Listings returned by price scans per source.",
		}, []string{"source"}),
		Enriched: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "secondhand",
			Name:      "enriched_listings_total",
			Help:      "Detail enrichment per source by result (ok, dropped).",
		}, []string{"source", "result"}),
		HTTPRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "secondhand",
			Name:      "http_requests_total",
			Help:      "API requests by route and status code.",
		}, []string{"route", "code"}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.Searches,
		m.SearchDuration,
		m.CacheLookups,
		m.SourceScans,
		m.ScannedStubs,
		m.Enriched,
		m.HTTPRequests,
	)
	return m
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) Search(outcome string, took time.Duration, cached bool) {
	if m == nil {
		return
	}
	m.Searches.WithLabelValues(outcome).Inc()
	if !cached {
		m.SearchDuration.Observe(took.Seconds())
	}
}

func (m *Metrics) CacheLookup(tier string, hit bool) {
	if m == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	m.CacheLookups.WithLabelValues(tier, result).Inc()
}

func (m *Metrics) SourceScan(source string, stubs int, err error) {
	if m == nil {
		return
	}
	if err != nil {
		m.SourceScans.WithLabelValues(source, "error").Inc()
		return
	}
	m.SourceScans.WithLabelValues(source, "ok").Inc()
	m.ScannedStubs.WithLabelValues(source).Add(float64(stubs))
}

func (m *Metrics) Enrichment(source string, requested, enriched int) {
	if m == nil {
		return
	}
	m.Enriched.WithLabelValues(source, "ok").Add(float64(enriched))
	if dropped := requested - enriched; dropped > 0 {
		m.Enriched.WithLabelValues(source, "dropped").Add(float64(dropped))
	}
}

func (m *Metrics) HTTPRequest(route string, code int) {
	if m == nil {
		return
	}
	m.HTTPRequests.WithLabelValues(route, strconv.Itoa(code)).Inc()
}
