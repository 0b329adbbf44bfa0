// Package metrics exposes Prometheus collectors for the composite query
// gateway and the chi middleware that records the generic HTTP surface.
package metrics

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	subqueriesTotal       *prometheus.CounterVec
	subqueryRetriesTotal  *prometheus.CounterVec
	subqueryWarningsTotal *prometheus.CounterVec
	barrierReleasesTotal    prometheus.Counter
	compositeTimeoutsTotal  prometheus.Counter
	compositeDurationSeconds prometheus.Histogram
	rateLimitDelaysSeconds   *prometheus.HistogramVec

	httpRequestsTotal          *prometheus.CounterVec
	httpRequestDurationSeconds *prometheus.HistogramVec

	once sync.Once
)

// Init initializes the Prometheus metrics collectors. Safe to call more
// than once.
func Init() {
	once.Do(func() {
		subqueriesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "composite_subqueries_total",
				Help: "Total number of subqueries reaching a terminal state, labeled by upstream and terminal status.",
			},
			[]string{"upstream", "status"},
		)

		subqueryRetriesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "composite_subquery_retries_total",
				Help: "Total number of subquery retries, labeled by upstream.",
			},
			[]string{"upstream"},
		)

		subqueryWarningsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "composite_subquery_warnings_total",
				Help: "Total number of warnings pushed by an upstream adapter, labeled by upstream.",
			},
			[]string{"upstream"},
		)

		barrierReleasesTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "composite_barrier_releases_total",
				Help: "Total number of completion barrier debits released across all composite requests.",
			},
		)

		compositeTimeoutsTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "composite_timeouts_total",
				Help: "Total number of composite requests that tripped their deadline before every subquery finished.",
			},
		)

		compositeDurationSeconds = promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "composite_duration_seconds",
				Help:    "Histogram of composite request wall-clock duration.",
				Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
			},
		)

		rateLimitDelaysSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "composite_rate_limit_delays_seconds",
				Help:    "Histogram of per-upstream-host rate limit wait durations.",
				Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30},
			},
			[]string{"host"},
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

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveSubquery records one subquery reaching a terminal state.
func ObserveSubquery(upstream, status string) {
	subqueriesTotal.WithLabelValues(upstream, status).Inc()
}

// ObserveRetry records one subquery retry attempt.
func ObserveRetry(upstream string) {
	subqueryRetriesTotal.WithLabelValues(upstream).Inc()
}

// ObserveWarning records one adapter-pushed warning.
func ObserveWarning(upstream string) {
	subqueryWarningsTotal.WithLabelValues(upstream).Inc()
}

// ObserveBarrierRelease records one completion barrier debit released.
func ObserveBarrierRelease() {
	barrierReleasesTotal.Inc()
}

// ObserveTimeout records one composite request tripping its deadline.
func ObserveTimeout() {
	compositeTimeoutsTotal.Inc()
}

// ObserveCompositeDuration records one composite request's wall-clock
// duration from the start of Run to Run returning.
func ObserveCompositeDuration(d time.Duration) {
	compositeDurationSeconds.Observe(d.Seconds())
}

// ObserveRateLimitDelay records the duration of a rate limit wait against
// one upstream host.
func ObserveRateLimitDelay(host string, d time.Duration) {
	rateLimitDelaysSeconds.WithLabelValues(host).Observe(d.Seconds())
}

// ObserveHTTPRequest records one inbound HTTP request/response.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}

// Middleware is a chi middleware that records HTTP request metrics for
// every request it wraps.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := &responseWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(ww, r)

		routePattern := chi.RouteContext(r.Context()).RoutePattern()
		if routePattern == "" {
			routePattern = "unknown"
		}

		ObserveHTTPRequest(r.Method, routePattern, ww.status, time.Since(start))
	})
}

type responseWriter struct {
	http.ResponseWriter
	status int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}
