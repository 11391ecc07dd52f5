// Package metrics holds the prometheus instruments for verification and
// validation runs. All methods are safe on a nil *Metrics.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics groups the validator's instruments.
type Metrics struct {
	VerifierLatency   *prometheus.HistogramVec
	VerifierOutcome   *prometheus.CounterVec
	BreakerState      *prometheus.GaugeVec
	ValidationLatency prometheus.Histogram
	ValidationOutcome *prometheus.CounterVec
	ReviewsEnqueued   *prometheus.CounterVec

	PendingReviews    prometheus.Gauge
	HumanReviewShare  prometheus.Gauge
	SourceFailureRate *prometheus.GaugeVec
}

// New registers the instruments with reg. A nil reg uses the default
// registerer.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	f := promauto.With(reg)
	return &Metrics{
		VerifierLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "validator_verifier_duration_seconds",
			Help:    "Duration of verifier calls by kind and source",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}, []string{"kind", "source"}),

		VerifierOutcome: f.NewCounterVec(prometheus.CounterOpts{
			Name: "validator_verifier_calls_total",
			Help: "Verifier calls by kind, source and outcome",
		}, []string{"kind", "source", "outcome"}), // outcome: "success", "failure", "rejected"

		BreakerState: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "validator_breaker_state",
			Help: "Circuit breaker state per source (0 closed, 1 open, 2 half-open)",
		}, []string{"source"}),

		ValidationLatency: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "validator_validation_duration_seconds",
			Help:    "Duration of a full validation run",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		}),

		ValidationOutcome: f.NewCounterVec(prometheus.CounterOpts{
			Name: "validator_validations_total",
			Help: "Validation runs by routing path and tier",
		}, []string{"path", "tier"}),

		ReviewsEnqueued: f.NewCounterVec(prometheus.CounterOpts{
			Name: "validator_reviews_enqueued_total",
			Help: "Review queue insertions by priority",
		}, []string{"priority"}),

		PendingReviews: f.NewGauge(prometheus.GaugeOpts{
			Name: "validator_pending_reviews",
			Help: "Review queue items awaiting a decision at the last health check",
		}),

		HumanReviewShare: f.NewGauge(prometheus.GaugeOpts{
			Name: "validator_human_review_share",
			Help: "Share of validations routed to human review over the lookback window",
		}),

		SourceFailureRate: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "validator_source_failure_rate",
			Help: "Failed share of verifier calls per source over the lookback window",
		}, []string{"source"}),
	}
}

// ObserveVerifier records one verifier call.
func (m *Metrics) ObserveVerifier(kind, source, outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.VerifierLatency.WithLabelValues(kind, source).Observe(d.Seconds())
	m.VerifierOutcome.WithLabelValues(kind, source, outcome).Inc()
}

// SetBreakerState records a breaker transition.
func (m *Metrics) SetBreakerState(source string, state int) {
	if m != nil {
		m.BreakerState.WithLabelValues(source).Set(float64(state))
	}
}

// ObserveValidation records a finished validation run.
func (m *Metrics) ObserveValidation(path, tier string, d time.Duration) {
	if m == nil {
		return
	}
	m.ValidationLatency.Observe(d.Seconds())
	m.ValidationOutcome.WithLabelValues(path, tier).Inc()
}

// IncReview records a review queue insertion.
func (m *Metrics) IncReview(priority string) {
	if m != nil {
		m.ReviewsEnqueued.WithLabelValues(priority).Inc()
	}
}

// SetQueueHealth records the outcome of a periodic health check.
func (m *Metrics) SetQueueHealth(pending int, reviewShare float64, failureRates map[string]float64) {
	if m == nil {
		return
	}
	m.PendingReviews.Set(float64(pending))
	m.HumanReviewShare.Set(reviewShare)
	for source, rate := range failureRates {
		m.SourceFailureRate.WithLabelValues(source).Set(rate)
	}
}
