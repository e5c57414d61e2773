// Package observability wires the service's metrics, traces and logs to
// their backends: Prometheus for metrics, OpenTelemetry for traces and
// log/slog for structured logs.
package observability

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ahrav/go-owls/internal/ports"
)

const namespace = "owls"

// PrometheusMetrics implements the MetricsCollector interface using
// Prometheus. Known metric names map onto dedicated vectors; anything else
// lands in the generic event counter, state gauge or operation histogram.
type PrometheusMetrics struct {
	registry *prometheus.Registry

	normLookupLatency *prometheus.HistogramVec
	normLookups       *prometheus.CounterVec
	circuitRejections *prometheus.CounterVec
	circuitState      *prometheus.GaugeVec
	responses         *prometheus.CounterVec
	calculations      *prometheus.CounterVec
	operationLatency  *prometheus.HistogramVec
	events            *prometheus.CounterVec
	stateGauges       *prometheus.GaugeVec
}

// NewPrometheusMetrics creates the collectors in a fresh registry that
// also carries the Go runtime and process collectors.
func NewPrometheusMetrics() *PrometheusMetrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	return &PrometheusMetrics{
		registry: reg,

		// Normative lookup metrics.
		normLookupLatency: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "norm_lookup_duration_seconds",
				Help:      "Latency of normative table lookups.",
				Buckets:   []float64{.0005, .001, .005, .01, .05, .1, .25, .5, 1, 2.5},
			},
			[]string{"source", "table", "status"},
		),
		normLookups: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "norm_lookups_total",
				Help:      "Normative table lookups by outcome.",
			},
			[]string{"source", "table", "status"},
		),
		circuitRejections: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "norm_circuit_rejections_total",
				Help:      "Lookups rejected by an open circuit breaker.",
			},
			[]string{"source"},
		),
		circuitState: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "norm_circuit_state",
				Help:      "Circuit breaker state: 0 closed, 1 open, 2 half-open.",
			},
			[]string{"source"},
		),

		// Evaluation workflow metrics.
		responses: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "responses_recorded_total",
				Help:      "Item responses recorded, by subtest and value.",
			},
			[]string{"subtest", "response"},
		),
		calculations: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "calculations_total",
				Help:      "Score calculations by outcome.",
			},
			[]string{"outcome"},
		),

		// Generic fallbacks.
		operationLatency: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "operation_duration_seconds",
				Help:      "Execution time of service operations.",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"operation", "outcome"},
		),
		events: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "events_total",
				Help:      "Lifecycle events such as evaluations created, completed and undone responses.",
			},
			[]string{"event"},
		),
		stateGauges: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "state",
				Help:      "Current values of internal state gauges.",
			},
			[]string{"metric"},
		),
	}
}

// Handler serves the registry in the Prometheus exposition format.
func (pm *PrometheusMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(pm.registry, promhttp.HandlerOpts{Registry: pm.registry})
}

// Registry returns the registry the collectors are registered in.
func (pm *PrometheusMetrics) Registry() *prometheus.Registry { return pm.registry }

// RecordLatency implements the MetricsCollector interface by recording
// execution latency in a Prometheus histogram.
func (pm *PrometheusMetrics) RecordLatency(operation string, duration time.Duration, labels map[string]string) {
	pm.operationLatency.WithLabelValues(operation, labelOr(labels, "outcome", "unknown")).Observe(duration.Seconds())
}

// RecordCounter implements the MetricsCollector interface by incrementing
// Prometheus counters.
func (pm *PrometheusMetrics) RecordCounter(metric string, value float64, labels map[string]string) {
	switch metric {
	case "norm_lookups_total":
		pm.normLookups.WithLabelValues(
			labelOr(labels, "source", "unknown"),
			labelOr(labels, "table", "unknown"),
			labelOr(labels, "status", "unknown"),
		).Add(value)
	case "norm_circuit_rejections_total":
		pm.circuitRejections.WithLabelValues(labelOr(labels, "source", "unknown")).Add(value)
	case "responses_recorded_total":
		pm.responses.WithLabelValues(
			labelOr(labels, "subtest", "unknown"),
			labelOr(labels, "response", "unknown"),
		).Add(value)
	case "calculations_total":
		pm.calculations.WithLabelValues(labelOr(labels, "outcome", "unknown")).Add(value)
	default:
		pm.events.WithLabelValues(metric).Add(value)
	}
}

// RecordGauge implements the MetricsCollector interface by setting
// Prometheus gauge values.
func (pm *PrometheusMetrics) RecordGauge(metric string, value float64, labels map[string]string) {
	switch metric {
	case "norm_circuit_state":
		pm.circuitState.WithLabelValues(labelOr(labels, "source", "unknown")).Set(value)
	default:
		pm.stateGauges.WithLabelValues(metric).Set(value)
	}
}

// RecordHistogram implements the MetricsCollector interface by recording
// values in a Prometheus histogram.
func (pm *PrometheusMetrics) RecordHistogram(metric string, value float64, labels map[string]string) {
	switch metric {
	case "norm_lookup_latency_seconds":
		pm.normLookupLatency.WithLabelValues(
			labelOr(labels, "source", "unknown"),
			labelOr(labels, "table", "unknown"),
			labelOr(labels, "status", "unknown"),
		).Observe(value)
	default:
		pm.operationLatency.WithLabelValues(metric, labelOr(labels, "outcome", "unknown")).Observe(value)
	}
}

func labelOr(labels map[string]string, key, fallback string) string {
	if v, ok := labels[key]; ok && v != "" {
		return v
	}
	return fallback
}

// Compile-time verification that PrometheusMetrics implements MetricsCollector.
var _ ports.MetricsCollector = (*PrometheusMetrics)(nil)
