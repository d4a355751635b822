// Package telemetry exposes Prometheus collectors for the ETL pipeline
// and the read API.
package telemetry

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/Hali0321/Runwei-Government-Opportunity-ETL/internal/grants"
	"github.com/Hali0321/Runwei-Government-Opportunity-ETL/internal/source"
)

var (
	recordsIngestedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "etl_records_ingested_total",
			Help: "Records accepted into the store, labeled by source tier.",
		},
		[]string{"tier"},
	)

	recordsRejectedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "etl_records_rejected_total",
			Help: "Raw payloads rejected by the normalizer, labeled by reason.",
		},
		[]string{"reason"},
	)

	sourceAttemptsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "etl_source_attempts_total",
			Help: "Fetch attempts against upstream sources, labeled by tier and outcome.",
		},
		[]string{"tier", "outcome"},
	)

	runsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "etl_runs_total",
			Help: "Collection runs, labeled by final status.",
		},
		[]string{"status"},
	)

	activeWorkers = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "etl_active_workers",
			Help: "Number of enrichment workers currently processing a task.",
		},
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
)

// ObserveIngested counts one record accepted into the store.
func ObserveIngested(tier grants.Tier) {
	recordsIngestedTotal.WithLabelValues(string(tier)).Inc()
}

// ObserveRejected counts one payload the normalizer refused.
func ObserveRejected(reason string) {
	recordsRejectedTotal.WithLabelValues(reason).Inc()
}

// ObserveSourceAttempt records the terminal outcome of one fetch attempt.
// It satisfies source.Observer.
func ObserveSourceAttempt(tier grants.Tier, outcome source.Outcome) {
	sourceAttemptsTotal.WithLabelValues(string(tier), string(outcome)).Inc()
}

// ObserveRun counts a finished collection run.
func ObserveRun(status string) {
	runsTotal.WithLabelValues(status).Inc()
}

// IncActiveWorkers increments the active workers gauge.
func IncActiveWorkers() { activeWorkers.Inc() }

// DecActiveWorkers decrements the active workers gauge.
func DecActiveWorkers() { activeWorkers.Dec() }

// ObserveHTTPRequest increments the HTTP request metrics.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}

// Handler returns the standard Prometheus HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Middleware is a chi middleware that records HTTP request metrics.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := &statusRecorder{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(ww, r)

		routePattern := chi.RouteContext(r.Context()).RoutePattern()
		if routePattern == "" {
			routePattern = "unknown"
		}
		ObserveHTTPRequest(r.Method, routePattern, ww.statusCode, time.Since(start))
	})
}

// statusRecorder wraps http.ResponseWriter to capture the status code.
type statusRecorder struct {
	http.ResponseWriter
	statusCode int
}

func (rw *statusRecorder) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}
