package sinks

import (
	"context"
	"fmt"
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/paleoapi/compositegw/internal/progress"
)

// PrometheusSink exports composite request progress metrics via Prometheus.
// It owns all collectors for requests started/completed/running and
// per-upstream subquery counters.
type PrometheusSink struct {
	requestsStarted   prometheus.Counter
	requestsCompleted *prometheus.CounterVec
	requestsRunning   prometheus.Gauge
	requestRuntime    *prometheus.HistogramVec

	subqueryRequests *prometheus.CounterVec
	subqueryBytes    *prometheus.CounterVec
	subqueryDuration *prometheus.HistogramVec

	tracker *requestTracker
}

// NewPrometheusSink registers the collectors against the provided registry.
func NewPrometheusSink(reg prometheus.Registerer) (*PrometheusSink, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	s := &PrometheusSink{
		requestsStarted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "compositegw_requests_started_total",
			Help: "Total composite requests that have started.",
		}),
		requestsCompleted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "compositegw_requests_completed_total",
			Help: "Total composite requests completed partitioned by result.",
		}, []string{"result"}),
		requestsRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "compositegw_requests_running",
			Help: "Current number of in-flight composite requests.",
		}),
		requestRuntime: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "compositegw_request_runtime_seconds",
			Help:    "Wall time per completed composite request.",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
		}, []string{"result"}),
		subqueryRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "compositegw_subquery_requests_total",
			Help: "Subquery completions partitioned by upstream and status class.",
		}, []string{"upstream", "status_class"}),
		subqueryBytes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "compositegw_subquery_bytes_total",
			Help: "Bytes downloaded per upstream.",
		}, []string{"upstream"}),
		subqueryDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "compositegw_subquery_duration_seconds",
			Help:    "Subquery duration partitioned by upstream and status class.",
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10},
		}, []string{"upstream", "status_class"}),
		tracker: newRequestTracker(),
	}
	for _, collector := range []prometheus.Collector{
		s.requestsStarted,
		s.requestsCompleted,
		s.requestsRunning,
		s.requestRuntime,
		s.subqueryRequests,
		s.subqueryBytes,
		s.subqueryDuration,
	} {
		if err := reg.Register(collector); err != nil {
			return nil, fmt.Errorf("register progress collector: %w", err)
		}
	}
	return s, nil
}

// Consume updates the Prometheus collectors using the provided batch. It is
// safe for concurrent use by multiple goroutines.
func (s *PrometheusSink) Consume(_ context.Context, batch []progress.Event) error {
	for _, evt := range batch {
		s.consumeEvent(evt)
	}
	return nil
}

func (s *PrometheusSink) consumeEvent(evt progress.Event) {
	switch evt.Stage {
	case progress.StageRequestStart, progress.StageRequestDone, progress.StageRequestTimeout:
		s.handleRequestEvent(evt)
	case progress.StageSubqueryDone:
		s.handleSubqueryEvent(evt)
	}
}

func (s *PrometheusSink) handleRequestEvent(evt progress.Event) {
	switch evt.Stage {
	case progress.StageRequestStart:
		s.requestsStarted.Inc()
		if s.tracker.start(evt.RequestID) {
			s.requestsRunning.Inc()
		}
	case progress.StageRequestDone:
		s.requestsCompleted.WithLabelValues("success").Inc()
		s.observeRuntime(evt, "success")
	case progress.StageRequestTimeout:
		s.requestsCompleted.WithLabelValues("timeout").Inc()
		s.observeRuntime(evt, "timeout")
	}
	if evt.Stage != progress.StageRequestStart && s.tracker.complete(evt.RequestID) {
		s.requestsRunning.Dec()
	}
}

func (s *PrometheusSink) observeRuntime(evt progress.Event, label string) {
	if evt.Dur > 0 {
		s.requestRuntime.WithLabelValues(label).Observe(evt.Dur.Seconds())
	}
}

func (s *PrometheusSink) handleSubqueryEvent(evt progress.Event) {
	upstream := evt.Upstream
	if upstream == "" {
		upstream = "unknown"
	}
	statusClass := string(evt.StatusClass)
	if statusClass == "" {
		statusClass = string(progress.StatusOther)
	}
	s.subqueryRequests.WithLabelValues(upstream, statusClass).Inc()
	if evt.Bytes > 0 {
		s.subqueryBytes.WithLabelValues(upstream).Add(float64(evt.Bytes))
	}
	if evt.Dur > 0 {
		s.subqueryDuration.WithLabelValues(upstream, statusClass).Observe(evt.Dur.Seconds())
	}
}

// Close implements the Sink interface; it performs no action.
func (s *PrometheusSink) Close(context.Context) error {
	return nil
}

type requestTracker struct {
	mu      sync.Mutex
	running map[[16]byte]struct{}
}

func newRequestTracker() *requestTracker {
	return &requestTracker{running: make(map[[16]byte]struct{})}
}

func (t *requestTracker) start(id [16]byte) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.running[id]; ok {
		return false
	}
	t.running[id] = struct{}{}
	return true
}

func (t *requestTracker) complete(id [16]byte) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.running[id]; !ok {
		return false
	}
	delete(t.running, id)
	return true
}
