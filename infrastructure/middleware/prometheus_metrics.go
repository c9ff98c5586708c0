// Package middleware provides cross-cutting concerns for the reconciliation
// engine: metrics, tracing, size limits and result verification, applied
// as decorators around workflow executables.
package middleware

import (
	"errors"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/ahrav/go-concord/internal/ports"
)

// Metric names accepted by PrometheusMetrics. The exported series carry the
// "concord_" namespace prefix.
const (
	MetricReconciliations   = "reconciliations_total"
	MetricStageDuration     = "stage_duration_seconds"
	MetricKernelPairs       = "kernel_pairs"
	MetricConsensusClusters = "consensus_clusters"
	MetricUniverseSize      = "universe_size"
	MetricLimitRejections   = "limit_rejections_total"
	MetricSymmetryChecks    = "symmetry_checks_total"
)

const namespace = "concord"

// PrometheusMetrics implements the MetricsCollector interface using Prometheus.
// It exports reconciliation outcomes, per-stage latency and the shape of
// inputs and results.
type PrometheusMetrics struct {
	reconciliations   *prometheus.CounterVec
	stageDuration     *prometheus.HistogramVec
	kernelPairs       prometheus.Histogram
	consensusClusters prometheus.Histogram
	universeSize      prometheus.Gauge
	limitRejections   prometheus.Counter
	symmetryChecks    *prometheus.CounterVec

	onError func(error)
}

// PrometheusOption configures PrometheusMetrics.
type PrometheusOption func(*PrometheusMetrics)

// WithErrorHandler installs a callback for metrics that cannot be recorded,
// such as unknown metric names. The default discards them.
func WithErrorHandler(fn func(error)) PrometheusOption {
	return func(pm *PrometheusMetrics) {
		if fn != nil {
			pm.onError = fn
		}
	}
}

// NewPrometheusMetrics creates the collectors and registers them with reg.
// Collectors that are already registered, for instance by another engine
// sharing the registry, are reused.
func NewPrometheusMetrics(reg prometheus.Registerer, opts ...PrometheusOption) (*PrometheusMetrics, error) {
	pm := &PrometheusMetrics{onError: func(error) {}}
	for _, opt := range opts {
		opt(pm)
	}

	var err error
	if pm.reconciliations, err = register(reg, MetricReconciliations, prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      MetricReconciliations,
			Help:      "Total number of reconciliations by outcome.",
		},
		[]string{"status"},
	)); err != nil {
		return nil, err
	}

	if pm.stageDuration, err = register(reg, MetricStageDuration, prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      MetricStageDuration,
			Help:      "Execution time of workflow stages by outcome.",
			Buckets:   prometheus.ExponentialBuckets(0.00005, 4, 10),
		},
		[]string{"stage", "status"},
	)); err != nil {
		return nil, err
	}

	if pm.kernelPairs, err = register(reg, MetricKernelPairs, prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      MetricKernelPairs,
			Help:      "Number of contradictory pairs per reconciliation.",
			Buckets:   []float64{0, 1, 2, 5, 10, 25, 50, 100, 500, 1000},
		},
	)); err != nil {
		return nil, err
	}

	if pm.consensusClusters, err = register(reg, MetricConsensusClusters, prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      MetricConsensusClusters,
			Help:      "Number of levels in the consensus ranking.",
			Buckets:   prometheus.ExponentialBuckets(1, 2, 12),
		},
	)); err != nil {
		return nil, err
	}

	if pm.universeSize, err = register(reg, MetricUniverseSize, prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      MetricUniverseSize,
			Help:      "Number of distinct objects in the most recent reconciliation.",
		},
	)); err != nil {
		return nil, err
	}

	if pm.limitRejections, err = register(reg, MetricLimitRejections, prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      MetricLimitRejections,
			Help:      "Reconciliations rejected because the universe exceeded the object cap.",
		},
	)); err != nil {
		return nil, err
	}

	if pm.symmetryChecks, err = register(reg, MetricSymmetryChecks, prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      MetricSymmetryChecks,
			Help:      "Side-swap verifications by outcome.",
		},
		[]string{"status"},
	)); err != nil {
		return nil, err
	}

	return pm, nil
}

// register adds c to reg, returning the existing collector when an
// identical one is already registered.
func register[C prometheus.Collector](reg prometheus.Registerer, name string, c C) (C, error) {
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(C); ok {
				return existing, nil
			}
		}
		var zero C
		return zero, ports.NewMetricsError(name, "register", err)
	}
	return c, nil
}

// RecordLatency implements the MetricsCollector interface by recording
// execution latency in the stage histogram. The stage label is taken from
// labels["stage"], falling back to the operation name; the status label
// from labels["status"].
func (pm *PrometheusMetrics) RecordLatency(
	operation string,
	duration time.Duration,
	labels map[string]string,
) {
	stage := labels["stage"]
	if stage == "" {
		stage = operation
	}
	pm.stageDuration.WithLabelValues(stage, statusLabel(labels)).Observe(duration.Seconds())
}

// RecordCounter implements the MetricsCollector interface by incrementing
// Prometheus counters.
func (pm *PrometheusMetrics) RecordCounter(
	metric string, value float64, labels map[string]string,
) {
	switch metric {
	case MetricReconciliations:
		pm.reconciliations.WithLabelValues(statusLabel(labels)).Add(value)
	case MetricLimitRejections:
		pm.limitRejections.Add(value)
	case MetricSymmetryChecks:
		pm.symmetryChecks.WithLabelValues(statusLabel(labels)).Add(value)
	default:
		pm.unknown(metric, "RecordCounter")
	}
}

// RecordGauge implements the MetricsCollector interface by setting
// Prometheus gauge values.
func (pm *PrometheusMetrics) RecordGauge(
	metric string, value float64, labels map[string]string,
) {
	switch metric {
	case MetricUniverseSize:
		pm.universeSize.Set(value)
	default:
		pm.unknown(metric, "RecordGauge")
	}
}

// RecordHistogram implements the MetricsCollector interface by recording
// values in a Prometheus histogram.
func (pm *PrometheusMetrics) RecordHistogram(
	metric string, value float64, labels map[string]string,
) {
	switch metric {
	case MetricKernelPairs:
		pm.kernelPairs.Observe(value)
	case MetricConsensusClusters:
		pm.consensusClusters.Observe(value)
	default:
		pm.unknown(metric, "RecordHistogram")
	}
}

func (pm *PrometheusMetrics) unknown(metric, operation string) {
	pm.onError(ports.NewMetricsError(metric, operation, fmt.Errorf("%w: %q", ports.ErrUnknownMetric, metric)))
}

func statusLabel(labels map[string]string) string {
	if s := labels["status"]; s != "" {
		return s
	}
	return "unknown"
}

// Compile-time verification that PrometheusMetrics implements MetricsCollector.
var _ ports.MetricsCollector = (*PrometheusMetrics)(nil)
