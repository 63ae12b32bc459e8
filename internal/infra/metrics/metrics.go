// Package metrics provides Prometheus metrics for writing-comparator.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "writing"

var (
	// ProviderCallsTotal counts finished text-provider calls.
	ProviderCallsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "provider_calls_total",
			Help:      "Total number of text provider calls by operation and outcome",
		},
		[]string{"op", "status"},
	)

	// ProviderCallDuration measures whole-call latency including retries.
	ProviderCallDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "provider_call_duration_seconds",
			Help:      "Duration of text provider calls in seconds",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 20, 40, 80},
		},
		[]string{"op"},
	)

	// ProviderRetriesTotal counts scheduled retries.
	ProviderRetriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "provider_retries_total",
			Help:      "Total number of retried text provider attempts",
		},
		[]string{"op", "reason"},
	)

	// ProviderQueueDepth tracks calls waiting for a concurrency slot.
	ProviderQueueDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "provider_queue_depth",
			Help:      "Number of provider calls waiting for a concurrency slot",
		},
	)

	// StageFailuresTotal counts partial failures recorded by batch stages.
	StageFailuresTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stage_failures_total",
			Help:      "Total number of recorded per-item stage failures",
		},
		[]string{"pipeline", "stage"},
	)

	// QueryRoutesTotal counts how generated SQL was executed.
	QueryRoutesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "query_routes_total",
			Help:      "Total number of executed questions by execution route",
		},
		[]string{"route"},
	)

	// JobsTotal counts background jobs by type and final status.
	JobsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "jobs_total",
			Help:      "Total number of processed background jobs",
		},
		[]string{"job_type", "status"},
	)
)

// RecordProviderCall records one finished provider call.
func RecordProviderCall(op, status string, seconds float64) {
	ProviderCallsTotal.WithLabelValues(op, status).Inc()
	ProviderCallDuration.WithLabelValues(op).Observe(seconds)
}

// RecordRetry records a scheduled retry.
func RecordRetry(op, reason string) {
	ProviderRetriesTotal.WithLabelValues(op, reason).Inc()
}

// RecordStageFailures adds n failures for a pipeline stage.
func RecordStageFailures(pipeline, stage string, n int) {
	if n <= 0 {
		return
	}
	StageFailuresTotal.WithLabelValues(pipeline, stage).Add(float64(n))
}

// RecordQueryRoute records the execution route chosen for a question.
func RecordQueryRoute(route string) {
	QueryRoutesTotal.WithLabelValues(route).Inc()
}

// RecordJob records a processed background job.
func RecordJob(jobType, status string) {
	JobsTotal.WithLabelValues(jobType, status).Inc()
}
