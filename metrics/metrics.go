// Package metrics defines the Prometheus collectors for certificate and
// signing operations. A nil *Metrics is valid and records nothing.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "taxsign"

// Metrics manages the Prometheus metrics.
type Metrics struct {
	BundleLoads        *prometheus.CounterVec
	Validations        *prometheus.CounterVec
	ValidationFindings *prometheus.CounterVec
	Signatures         *prometheus.CounterVec
	SigningLatency     prometheus.Histogram
	Verifications      *prometheus.CounterVec
	Notifications      *prometheus.CounterVec
	DedupStoreFailures prometheus.Counter
}

// New creates the metrics and registers them with reg. A nil reg uses a
// private registry.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	factory := promauto.With(reg)

	return &Metrics{
		BundleLoads: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "bundle_loads_total",
				Help:      "Total number of PKCS#12 bundle loads by result.",
			},
			[]string{"result"},
		),
		Validations: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "certificate_validations_total",
				Help:      "Total number of certificate validations by outcome.",
			},
			[]string{"valid"},
		),
		ValidationFindings: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "certificate_validation_findings_total",
				Help:      "Validation errors and warnings by kind.",
			},
			[]string{"severity", "kind"},
		),
		Signatures: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "signatures_total",
				Help:      "Total number of signing attempts by result.",
			},
			[]string{"result"},
		),
		SigningLatency: factory.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "signing_duration_seconds",
				Help:      "Latency of document signing.",
				Buckets:   prometheus.DefBuckets,
			},
		),
		Verifications: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "verifications_total",
				Help:      "Total number of signature verifications by outcome.",
			},
			[]string{"result"},
		),
		Notifications: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "expiry_notifications_total",
				Help:      "Expiry notification decisions by tier and outcome.",
			},
			[]string{"tier", "outcome"},
		),
		DedupStoreFailures: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "dedup_store_failures_total",
				Help:      "Dedup store errors that caused a notification to fail open.",
			},
		),
	}
}

// RecordBundleLoad records a bundle load result ("ok" or an error kind).
func (m *Metrics) RecordBundleLoad(result string) {
	if m == nil {
		return
	}
	m.BundleLoads.WithLabelValues(result).Inc()
}

// RecordValidation records a validation outcome and its findings.
func (m *Metrics) RecordValidation(valid bool, errors, warnings []string) {
	if m == nil {
		return
	}
	if valid {
		m.Validations.WithLabelValues("true").Inc()
	} else {
		m.Validations.WithLabelValues("false").Inc()
	}
	for _, k := range errors {
		m.ValidationFindings.WithLabelValues("error", k).Inc()
	}
	for _, k := range warnings {
		m.ValidationFindings.WithLabelValues("warning", k).Inc()
	}
}

// RecordSignature records a signing attempt.
func (m *Metrics) RecordSignature(result string, duration time.Duration) {
	if m == nil {
		return
	}
	m.Signatures.WithLabelValues(result).Inc()
	m.SigningLatency.Observe(duration.Seconds())
}

// RecordVerification records a verification outcome.
func (m *Metrics) RecordVerification(result string) {
	if m == nil {
		return
	}
	m.Verifications.WithLabelValues(result).Inc()
}

// RecordNotification records a notification decision ("emitted" or
// "deduplicated").
func (m *Metrics) RecordNotification(tier, outcome string) {
	if m == nil {
		return
	}
	m.Notifications.WithLabelValues(tier, outcome).Inc()
}

// RecordDedupStoreFailure records a dedup store error.
func (m *Metrics) RecordDedupStoreFailure() {
	if m == nil {
		return
	}
	m.DedupStoreFailures.Inc()
}
