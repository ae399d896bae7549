// Package metrics provides Prometheus metrics for the field pipeline.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Watcher metrics
	FilesDetected = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fieldpipe_files_detected_total",
			Help: "Files the readiness detector emitted or abandoned",
		},
		[]string{"outcome"},
	)

	FilesIngested = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fieldpipe_files_ingested_total",
			Help: "Files registered by the ingestor",
		},
		[]string{"outcome"},
	)

	// Lifecycle metrics
	StageOutcomes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fieldpipe_stage_outcomes_total",
			Help: "Lifecycle stage results",
		},
		[]string{"stage", "outcome"},
	)

	TickDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "fieldpipe_tick_duration_seconds",
			Help:    "Time taken by one lifecycle tick",
			Buckets: []float64{0.05, 0.1, 0.5, 1, 5, 10, 30, 60, 300},
		},
	)

	// Validation metrics
	Findings = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fieldpipe_findings_total",
			Help: "Findings recorded in the ledger",
		},
		[]string{"zone", "code"},
	)

	// HTTP metrics
	HTTPRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fieldpipe_http_requests_total",
			Help: "Curator API requests",
		},
		[]string{"method", "route", "status"},
	)

	HTTPDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "fieldpipe_http_request_duration_seconds",
			Help:    "Curator API request duration",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)

	// Reference-data metrics
	ReferenceCalls = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fieldpipe_reference_calls_total",
			Help: "Calls made to the reference-data service",
		},
		[]string{"operation", "status"},
	)

	ReferenceCallDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "fieldpipe_reference_call_duration_seconds",
			Help:    "Duration of calls to the reference-data service",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation"},
	)
)

// RecordReferenceCall records one reference-data call.
func RecordReferenceCall(operation string, start time.Time, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	ReferenceCalls.WithLabelValues(operation, status).Inc()
	ReferenceCallDuration.WithLabelValues(operation).Observe(time.Since(start).Seconds())
}

// RecordStage records the outcome of a lifecycle stage.
func RecordStage(stage string, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	StageOutcomes.WithLabelValues(stage, outcome).Inc()
}

// RecordFindings counts findings by zone and base code.
func RecordFindings(zone string, codes []string) {
	for _, c := range codes {
		Findings.WithLabelValues(zone, c).Inc()
	}
}
