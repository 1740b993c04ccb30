/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package ratelimit

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/acronis/go-reqguard/internal/libinfo"
)

// Decision outcomes used as metric label values.
const (
	OutcomeAllowed  = "allowed"
	OutcomeRejected = "rejected"
	OutcomeFailOpen = "failopen"
)

const (
	metricsLabelPolicy  = "policy"
	metricsLabelOutcome = "outcome"
	metricsLabelOp      = "op"
	metricsLabelKind    = "kind"
)

// MetricsCollector represents a collector of rate limiting metrics.
type MetricsCollector interface {
	// IncDecision increments the number of decisions with the given outcome for the policy.
	IncDecision(policy, outcome string)

	// IncStoreErrors increments the number of failed store operations.
	IncStoreErrors(op, kind string)

	// ObserveStoreLatency observes the duration of a store operation.
	ObserveStoreLatency(op string, d time.Duration)
}

// DefaultStoreDurationBuckets are the histogram buckets used for store operations (in seconds).
var DefaultStoreDurationBuckets = []float64{0.0005, 0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1, 0.2, 0.5}

// PrometheusMetricsOpts represents options for PrometheusMetrics.
type PrometheusMetricsOpts struct {
	// Namespace is a namespace for metrics. It will be prepended to all metric names.
	Namespace string

	// ConstLabels is a set of labels that will be applied to all metrics.
	ConstLabels prometheus.Labels

	// StoreDurationBuckets overrides DefaultStoreDurationBuckets.
	StoreDurationBuckets []float64
}

// PrometheusMetrics represents Prometheus metrics for the rate limiter.
type PrometheusMetrics struct {
	DecisionsTotal   *prometheus.CounterVec
	StoreErrorsTotal *prometheus.CounterVec
	StoreDurations   *prometheus.HistogramVec
}

// NewPrometheusMetrics creates a new instance of PrometheusMetrics with default options.
func NewPrometheusMetrics() *PrometheusMetrics {
	return NewPrometheusMetricsWithOpts(PrometheusMetricsOpts{})
}

// NewPrometheusMetricsWithOpts creates a new instance of PrometheusMetrics with the provided options.
func NewPrometheusMetricsWithOpts(opts PrometheusMetricsOpts) *PrometheusMetrics {
	constLabels := libinfo.AddPrometheusLibVersionLabel(opts.ConstLabels)
	buckets := opts.StoreDurationBuckets
	if len(buckets) == 0 {
		buckets = DefaultStoreDurationBuckets
	}
	return &PrometheusMetrics{
		DecisionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   opts.Namespace,
			Name:        "ratelimit_decisions_total",
			Help:        "Number of rate limiting decisions.",
			ConstLabels: constLabels,
		}, []string{metricsLabelPolicy, metricsLabelOutcome}),
		StoreErrorsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   opts.Namespace,
			Name:        "ratelimit_store_errors_total",
			Help:        "Number of failed rate limit store operations.",
			ConstLabels: constLabels,
		}, []string{metricsLabelOp, metricsLabelKind}),
		StoreDurations: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace:   opts.Namespace,
			Name:        "ratelimit_store_duration_seconds",
			Help:        "Duration of rate limit store operations.",
			Buckets:     buckets,
			ConstLabels: constLabels,
		}, []string{metricsLabelOp}),
	}
}

// MustRegister does registration of metrics collector in Prometheus and panics if any error occurs.
func (pm *PrometheusMetrics) MustRegister() {
	prometheus.MustRegister(pm.DecisionsTotal, pm.StoreErrorsTotal, pm.StoreDurations)
}

// Unregister cancels registration of metrics collector in Prometheus.
func (pm *PrometheusMetrics) Unregister() {
	prometheus.Unregister(pm.DecisionsTotal)
	prometheus.Unregister(pm.StoreErrorsTotal)
	prometheus.Unregister(pm.StoreDurations)
}

// IncDecision increments the number of decisions with the given outcome for the policy.
func (pm *PrometheusMetrics) IncDecision(policy, outcome string) {
	pm.DecisionsTotal.WithLabelValues(policy, outcome).Inc()
}

// IncStoreErrors increments the number of failed store operations.
func (pm *PrometheusMetrics) IncStoreErrors(op, kind string) {
	pm.StoreErrorsTotal.WithLabelValues(op, kind).Inc()
}

// ObserveStoreLatency observes the duration of a store operation.
func (pm *PrometheusMetrics) ObserveStoreLatency(op string, d time.Duration) {
	pm.StoreDurations.WithLabelValues(op).Observe(d.Seconds())
}

type disabledMetrics struct{}

func (disabledMetrics) IncDecision(string, string)                {}
func (disabledMetrics) IncStoreErrors(string, string)             {}
func (disabledMetrics) ObserveStoreLatency(string, time.Duration) {}

var disabledMetricsCollector = disabledMetrics{}
