package monitor

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds all Prometheus metrics for the script engine service.
type Metrics struct {
	Registry *prometheus.Registry

	ExecutionsTotal      *prometheus.CounterVec
	ExecutionDuration    prometheus.Histogram
	ValidationRejections *prometheus.CounterVec
	ActiveExecutions     prometheus.Gauge
	RequestsInFlight     prometheus.Gauge
	SourceSizeBytes      prometheus.Histogram
	LogLinesPerRun       prometheus.Histogram
	LogTruncationsTotal  prometheus.Counter
	EvaluatorFaultsTotal prometheus.Counter
}

// NewMetrics creates and registers all Prometheus metrics using a dedicated registry.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()

	m := &Metrics{
		Registry: reg,

		ExecutionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "script_engine",
				Name:      "executions_total",
				Help:      "Total number of guest-script executions by terminal status.",
			},
			[]string{"status"},
		),

		ExecutionDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: "script_engine",
				Name:      "execution_duration_seconds",
				Help:      "Duration of guest-script executions in seconds.",
				Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
			},
		),

		ValidationRejections: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "script_engine",
				Name:      "validation_rejections_total",
				Help:      "Sources rejected by the static validator, by rule.",
			},
			[]string{"rule"},
		),

		ActiveExecutions: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "script_engine",
				Name:      "active_executions",
				Help:      "Number of currently running guest-script executions.",
			},
		),

		RequestsInFlight: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "script_engine",
				Subsystem: "api",
				Name:      "requests_in_flight",
				Help:      "Number of HTTP requests currently being processed.",
			},
		),

		SourceSizeBytes: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: "script_engine",
				Name:      "source_size_bytes",
				Help:      "Size of submitted guest source in bytes.",
				Buckets:   prometheus.ExponentialBuckets(100, 4, 8),
			},
		),

		LogLinesPerRun: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: "script_engine",
				Name:      "log_lines_per_run",
				Help:      "Log lines captured per execution.",
				Buckets:   prometheus.ExponentialBuckets(1, 4, 8),
			},
		),

		LogTruncationsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: "script_engine",
				Name:      "log_truncations_total",
				Help:      "Executions whose log output hit the collector cap.",
			},
		),

		EvaluatorFaultsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: "script_engine",
				Name:      "evaluator_faults_total",
				Help:      "Faults in the evaluator's own orchestration (not guest errors).",
			},
		),
	}

	reg.MustRegister(
		m.ExecutionsTotal,
		m.ExecutionDuration,
		m.ValidationRejections,
		m.ActiveExecutions,
		m.RequestsInFlight,
		m.SourceSizeBytes,
		m.LogLinesPerRun,
		m.LogTruncationsTotal,
		m.EvaluatorFaultsTotal,
	)

	return m
}

// RecordExecution records metrics for a completed execution.
func (m *Metrics) RecordExecution(status string, durationSec float64) {
	m.ExecutionsTotal.WithLabelValues(status).Inc()
	m.ExecutionDuration.Observe(durationSec)
}

// RecordValidationRejection records a denylist rule hit.
func (m *Metrics) RecordValidationRejection(rule string) {
	m.ValidationRejections.WithLabelValues(rule).Inc()
}
