package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// RenewalMetrics records metadata for the renewal worker runs.
type RenewalMetrics struct {
	runDuration *prometheus.HistogramVec
	runSuccess  *prometheus.CounterVec
	runFailure  *prometheus.CounterVec
	processed   *prometheus.CounterVec
}

// NewRenewalMetrics registers the renewal worker metrics on the provided registerer.
func NewRenewalMetrics(reg prometheus.Registerer) *RenewalMetrics {
	if reg == nil {
		return &RenewalMetrics{}
	}
	runDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "renewal_run_duration_seconds",
		Help:    "Duration of renewal worker runs in seconds.",
		Buckets: prometheus.DefBuckets,
	}, []string{"job"})
	runSuccess := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "renewal_run_success",
		Help: "Successful renewal worker runs.",
	}, []string{"job"})
	runFailure := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "renewal_run_failure",
		Help: "Failed renewal worker runs.",
	}, []string{"job"})
	processed := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "renewals_processed_total",
		Help: "Renewal charges processed, labeled by outcome.",
	}, []string{"outcome"})
	reg.MustRegister(runDuration, runSuccess, runFailure, processed)
	return &RenewalMetrics{
		runDuration: runDuration,
		runSuccess:  runSuccess,
		runFailure:  runFailure,
		processed:   processed,
	}
}

// ObserveRunDuration records the duration for the named worker run.
func (m *RenewalMetrics) ObserveRunDuration(job string, duration time.Duration) {
	if m == nil || m.runDuration == nil {
		return
	}
	m.runDuration.WithLabelValues(normalizeLabel(job)).Observe(duration.Seconds())
}

// IncRunSuccess increments the success counter for the named worker run.
func (m *RenewalMetrics) IncRunSuccess(job string) {
	if m == nil || m.runSuccess == nil {
		return
	}
	m.runSuccess.WithLabelValues(normalizeLabel(job)).Inc()
}

// IncRunFailure increments the failure counter for the named worker run.
func (m *RenewalMetrics) IncRunFailure(job string) {
	if m == nil || m.runFailure == nil {
		return
	}
	m.runFailure.WithLabelValues(normalizeLabel(job)).Inc()
}

// IncProcessed increments the processed counter for the given renewal outcome.
func (m *RenewalMetrics) IncProcessed(outcome string) {
	if m == nil || m.processed == nil {
		return
	}
	m.processed.WithLabelValues(normalizeLabel(outcome)).Inc()
}

func normalizeLabel(value string) string {
	if value == "" {
		return "unknown"
	}
	return value
}
