// Package metrics exposes Prometheus collectors for the scraper service.
package metrics

import (
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	scraperRunsTotal             *prometheus.CounterVec
	scraperRunDurationSeconds    prometheus.Histogram
	scraperRecordsExtracted      prometheus.Counter
	scraperLastRunRecords        prometheus.Gauge
	scraperEmptyExtractionsTotal prometheus.Counter
	scraperSinkFailuresTotal     *prometheus.CounterVec
	scraperSnapshotsTotal        *prometheus.CounterVec
	scraperFetchBytesTotal       *prometheus.CounterVec
	httpRequestsTotal            *prometheus.CounterVec
	httpRequestDurationSeconds   *prometheus.HistogramVec

	once sync.Once
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		scraperRunsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "scraper_runs_total",
				Help: "Total number of pipeline runs, labeled by outcome status.",
			},
			[]string{"status"},
		)

		scraperRunDurationSeconds = promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "scraper_run_duration_seconds",
				Help:    "Histogram of pipeline run durations.",
				Buckets: []float64{0.5, 1, 2, 5, 10, 30, 60, 120},
			},
		)

		scraperRecordsExtracted = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "scraper_records_extracted_total",
				Help: "Total number of records extracted across all runs.",
			},
		)

		scraperLastRunRecords = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "scraper_last_run_records",
				Help: "Number of records extracted by the most recent run.",
			},
		)

		scraperEmptyExtractionsTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "scraper_empty_extractions_total",
				Help: "Total number of runs whose selector matched nothing.",
			},
		)

		scraperSinkFailuresTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "scraper_sink_failures_total",
				Help: "Total number of persistence failures, labeled by sink.",
			},
			[]string{"sink"},
		)

		scraperSnapshotsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "scraper_snapshot_captures_total",
				Help: "Total number of page snapshot captures, labeled by status.",
			},
			[]string{"status"},
		)

		scraperFetchBytesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "scraper_fetch_bytes_total",
				Help: "Total number of bytes fetched, labeled by site.",
			},
			[]string{"site"},
		)

		httpRequestsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests, labeled by method and code.",
			},
			[]string{"method", "code"},
		)

		httpRequestDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "Histogram of HTTP request latencies, labeled by method and route.",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5},
			},
			[]string{"method", "route"},
		)
	})
}

// SanitizeSite sanitizes a URL to extract a lowercase hostname.
// It returns "unknown" if the URL is invalid.
func SanitizeSite(rawURL string) string {
	if !strings.HasPrefix(rawURL, "http") {
		rawURL = "http://" + rawURL
	}
	u, err := url.Parse(rawURL)
	if err != nil || u.Hostname() == "" {
		return "unknown"
	}
	return strings.ToLower(u.Hostname())
}

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveRun records the outcome of one pipeline run.
func ObserveRun(status string, duration time.Duration) {
	scraperRunsTotal.WithLabelValues(status).Inc()
	scraperRunDurationSeconds.Observe(duration.Seconds())
}

// ObserveFetch records the size of a fetched source document.
func ObserveFetch(site string, bytesFetched int) {
	if bytesFetched > 0 {
		scraperFetchBytesTotal.WithLabelValues(SanitizeSite(site)).Add(float64(bytesFetched))
	}
}

// ObserveExtraction records how many records a run extracted.
func ObserveExtraction(records int) {
	scraperRecordsExtracted.Add(float64(records))
	scraperLastRunRecords.Set(float64(records))
	if records == 0 {
		scraperEmptyExtractionsTotal.Inc()
	}
}

// ObserveSinkFailure increments the failure counter for sink.
func ObserveSinkFailure(sink string) {
	scraperSinkFailuresTotal.WithLabelValues(sink).Inc()
}

// ObserveSnapshot records a snapshot capture attempt.
func ObserveSnapshot(status string) {
	scraperSnapshotsTotal.WithLabelValues(status).Inc()
}

// ObserveHTTPRequest increments the HTTP request metrics.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}
