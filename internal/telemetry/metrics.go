// Package telemetry exposes Prometheus collectors for the ad-context service.
package telemetry

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	enrichRequestsTotal  *prometheus.CounterVec
	crawlJobsTotal       *prometheus.CounterVec
	crawlDurationSeconds prometheus.Histogram
	matchDurationSeconds prometheus.Histogram
	productsMatchedTotal prometheus.Counter
	cacheLookupsTotal    *prometheus.CounterVec
	httpRequestsTotal    *prometheus.CounterVec
	httpRequestDuration  *prometheus.HistogramVec

	once sync.Once
)

// Enrichment outcomes recorded per request.
const (
	EnrichOutcomeHit      = "hit"
	EnrichOutcomeCrawled  = "crawled"
	EnrichOutcomeDegraded = "degraded"
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		enrichRequestsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "adcontext_enrich_requests_total",
				Help: "Total enrichment requests, labeled by outcome.",
			},
			[]string{"outcome"},
		)

		crawlJobsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "adcontext_crawl_jobs_total",
				Help: "Total crawl jobs awaited, labeled by terminal status.",
			},
			[]string{"status"},
		)

		crawlDurationSeconds = promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "adcontext_crawl_duration_seconds",
				Help:    "Histogram of crawl-and-wait durations.",
				Buckets: []float64{1, 5, 10, 30, 60, 120, 300},
			},
		)

		matchDurationSeconds = promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "adcontext_match_duration_seconds",
				Help:    "Histogram of product matching durations.",
				Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5},
			},
		)

		productsMatchedTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "adcontext_products_matched_total",
				Help: "Total products returned across match requests.",
			},
		)

		cacheLookupsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "adcontext_cache_lookups_total",
				Help: "Page-context cache lookups, labeled by result.",
			},
			[]string{"result"},
		)

		httpRequestsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests, labeled by method and code.",
			},
			[]string{"method", "code"},
		)

		httpRequestDuration = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "Histogram of HTTP request latencies, labeled by method and route.",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5},
			},
			[]string{"method", "route"},
		)
	})
}

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveEnrich increments the enrichment counter for the given outcome.
// Like all Observe helpers it is a no-op before Init, so library packages
// can record unconditionally.
func ObserveEnrich(outcome string) {
	if enrichRequestsTotal == nil {
		return
	}
	enrichRequestsTotal.WithLabelValues(outcome).Inc()
}

// ObserveCrawl records one awaited crawl with its terminal status and duration.
func ObserveCrawl(status string, duration time.Duration) {
	if crawlJobsTotal == nil {
		return
	}
	crawlJobsTotal.WithLabelValues(status).Inc()
	crawlDurationSeconds.Observe(duration.Seconds())
}

// ObserveMatch records a match computation and the number of results returned.
func ObserveMatch(duration time.Duration, results int) {
	if matchDurationSeconds == nil {
		return
	}
	matchDurationSeconds.Observe(duration.Seconds())
	if results > 0 {
		productsMatchedTotal.Add(float64(results))
	}
}

// ObserveCacheLookup increments the cache lookup counter ("hit", "miss" or
// "expired").
func ObserveCacheLookup(result string) {
	if cacheLookupsTotal == nil {
		return
	}
	cacheLookupsTotal.WithLabelValues(result).Inc()
}

// ObserveHTTPRequest increments the HTTP request metrics.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	if httpRequestsTotal == nil {
		return
	}
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDuration.WithLabelValues(method, route).Observe(duration.Seconds())
}
