package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetrics_Record(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.ObserveVerifier("identity", "nppes", "success", 120*time.Millisecond)
	m.ObserveVerifier("identity", "nppes", "failure", time.Second)
	m.SetBreakerState("nppes", 1)
	m.ObserveValidation("auto-approve", "high-trust", 2*time.Second)
	m.IncReview("HIGH")
	m.SetQueueHealth(12, 0.25, map[string]float64{"nppes": 0.1, "oig-leie": 0})

	assert.InDelta(t, 1, testutil.ToFloat64(m.VerifierOutcome.WithLabelValues("identity", "nppes", "failure")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.BreakerState.WithLabelValues("nppes")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.ValidationOutcome.WithLabelValues("auto-approve", "high-trust")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.ReviewsEnqueued.WithLabelValues("HIGH")), 0)
	assert.InDelta(t, 12, testutil.ToFloat64(m.PendingReviews), 0)
	assert.InDelta(t, 0.25, testutil.ToFloat64(m.HumanReviewShare), 1e-9)
	assert.InDelta(t, 0.1, testutil.ToFloat64(m.SourceFailureRate.WithLabelValues("nppes")), 1e-9)

	families, err := reg.Gather()
	require.NoError(t, err)
	assert.NotEmpty(t, families)
}

func TestMetrics_NilSafe(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.ObserveVerifier("geo", "places", "success", time.Millisecond)
		m.SetBreakerState("places", 0)
		m.ObserveValidation("human-review", "needs-review", time.Millisecond)
		m.IncReview("LOW")
		m.SetQueueHealth(1, 0, nil)
	})
}
