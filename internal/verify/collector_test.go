package verify

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/provider-validator/internal/metrics"
	"github.com/sells-group/provider-validator/internal/model"
	"github.com/sells-group/provider-validator/internal/resilience"
	"github.com/sells-group/provider-validator/internal/verify/verifytest"
)

func testRecord() model.SubmittedRecord {
	return model.SubmittedRecord{
		FullName:      "Jane Doe",
		NPI:           "1234567893",
		Street:        "123 Main St",
		City:          "Springfield",
		State:         "IL",
		Zip:           "62701",
		LicenseNumber: "036-123456",
	}
}

func fastConfig() Config {
	return Config{
		Timeout: 200 * time.Millisecond,
		Retry:   resilience.RetryPolicy{Attempts: 1, Backoff: time.Millisecond},
		Breaker: resilience.BreakerConfig{Threshold: 2, Cooldown: time.Hour},
	}
}

func TestCollect_AllKindsInOrder(t *testing.T) {
	reg := NewRegistry(
		verifytest.WebPresence(model.WebPresenceCheck{PresenceScore: 0.8}),
		verifytest.Geo(model.GeoCheck{IsMatchingFacilityType: true}),
		verifytest.Identity(model.IdentityMatch{MatchConfidence: 1, ResultCount: 1}),
		verifytest.Exclusion(false),
		verifytest.License(model.LicenseCheck{Status: model.LicenseActive}),
	)
	c := NewCollector(reg, fastConfig(), nil)

	rs := c.Collect(context.Background(), testRecord())
	require.Len(t, rs, 5)
	for i, k := range model.VerifierKinds {
		assert.Equal(t, k, rs[i].Kind)
		assert.True(t, rs[i].Success, k)
		assert.True(t, rs[i].Valid(), k)
		assert.False(t, rs[i].VerifiedAt.IsZero(), k)
		assert.Equal(t, model.AuthorityRank(k), rs[i].Rank)
	}
	assert.NotNil(t, rs.Identity())
	assert.NotNil(t, rs.WebPresence())
}

func TestCollect_TimeoutFailsOnlyThatVerifier(t *testing.T) {
	slow := verifytest.Geo(model.GeoCheck{})
	slow.Delay = time.Second
	reg := NewRegistry(
		verifytest.Identity(model.IdentityMatch{MatchConfidence: 1, ResultCount: 1}),
		slow,
	)
	c := NewCollector(reg, fastConfig(), nil)

	start := time.Now()
	rs := c.Collect(context.Background(), testRecord())
	assert.Less(t, time.Since(start), 900*time.Millisecond)

	require.Len(t, rs, 2)
	assert.True(t, rs[0].Success)
	assert.False(t, rs[1].Success)
	assert.Equal(t, model.KindGeo, rs[1].Kind)
	assert.Contains(t, rs[1].Error, "deadline exceeded")
	assert.Nil(t, rs.Geo())
	assert.Equal(t, []model.VerifierKind{model.KindGeo}, rs.Failed())
}

func TestCollect_ErrorBecomesFailedResult(t *testing.T) {
	reg := NewRegistry(verifytest.Failing(model.KindExclusion, errors.New("list unavailable")))
	c := NewCollector(reg, fastConfig(), nil)

	rs := c.Collect(context.Background(), testRecord())
	require.Len(t, rs, 1)
	assert.False(t, rs[0].Success)
	assert.Equal(t, "list unavailable", rs[0].Error)
	assert.True(t, rs[0].Valid())
}

func TestCollect_PanicRecovered(t *testing.T) {
	f := &verifytest.Fake{FakeKind: model.KindWebPresence, Respond: func(context.Context, model.SubmittedRecord) (model.VerifierResult, error) {
		panic("boom")
	}}
	c := NewCollector(NewRegistry(f), fastConfig(), nil)

	rs := c.Collect(context.Background(), testRecord())
	require.Len(t, rs, 1)
	assert.False(t, rs[0].Success)
	assert.Contains(t, rs[0].Error, "panicked")
}

func TestCollect_MalformedResultRejected(t *testing.T) {
	f := &verifytest.Fake{
		FakeKind: model.KindIdentity,
		Result:   model.NewGeoResult("wrong", time.Now(), model.GeoCheck{}),
	}
	c := NewCollector(NewRegistry(f), fastConfig(), nil)

	rs := c.Collect(context.Background(), testRecord())
	assert.False(t, rs[0].Success)
	assert.Contains(t, rs[0].Error, "malformed")
}

func TestCollect_BreakerOpensAfterRepeatedFailures(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	f := verifytest.Failing(model.KindIdentity, errors.New("down"))
	c := NewCollector(NewRegistry(f), fastConfig(), m)

	for i := 0; i < 2; i++ {
		c.Collect(context.Background(), testRecord())
	}
	assert.Equal(t, 2, f.Calls())
	assert.Equal(t, resilience.Open, c.Breakers()[f.Source()])

	rs := c.Collect(context.Background(), testRecord())
	assert.Equal(t, 2, f.Calls(), "open breaker skips the call")
	assert.Contains(t, rs[0].Error, "circuit open")

	assert.InDelta(t, 2, testutil.ToFloat64(m.VerifierOutcome.WithLabelValues("identity", f.Source(), "failure")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.VerifierOutcome.WithLabelValues("identity", f.Source(), "rejected")), 0)
	assert.InDelta(t, float64(resilience.Open), testutil.ToFloat64(m.BreakerState.WithLabelValues(f.Source())), 0)
}

func TestCollect_RetriesTransient(t *testing.T) {
	calls := 0
	f := &verifytest.Fake{FakeKind: model.KindExclusion, Respond: func(context.Context, model.SubmittedRecord) (model.VerifierResult, error) {
		calls++
		if calls == 1 {
			return model.VerifierResult{}, &resilience.StatusError{Source: "leie", StatusCode: 503}
		}
		return model.NewExclusionResult("leie", time.Time{}, model.ExclusionCheck{}), nil
	}}
	cfg := fastConfig()
	cfg.Retry = resilience.RetryPolicy{Attempts: 3, Backoff: time.Millisecond}
	c := NewCollector(NewRegistry(f), cfg, nil)

	rs := c.Collect(context.Background(), testRecord())
	assert.True(t, rs[0].Success)
	assert.Equal(t, 2, calls)
}

func TestCollect_EmptyRegistry(t *testing.T) {
	c := NewCollector(NewRegistry(), fastConfig(), nil)
	assert.Empty(t, c.Collect(context.Background(), testRecord()))
}

func TestAdapters(t *testing.T) {
	ctx := context.Background()
	rec := testRecord()

	id := Identity("nppes", identityFunc(func(_ context.Context, name, npi, state string) (model.IdentityMatch, error) {
		assert.Equal(t, "Jane Doe", name)
		assert.Equal(t, "1234567893", npi)
		assert.Equal(t, "IL", state)
		return model.IdentityMatch{MatchConfidence: 1, ResultCount: 1}, nil
	}))
	r, err := id.Verify(ctx, rec)
	require.NoError(t, err)
	assert.Equal(t, model.KindIdentity, r.Kind)
	assert.Equal(t, "nppes", id.Source())

	geo := Geo("places", geoFunc(func(_ context.Context, addr string) (model.GeoCheck, error) {
		assert.Equal(t, "123 Main St, Springfield, IL 62701", addr)
		return model.GeoCheck{}, nil
	}))
	_, err = geo.Verify(ctx, rec)
	require.NoError(t, err)

	_, err = geo.Verify(ctx, model.SubmittedRecord{FullName: "x"})
	assert.ErrorIs(t, err, ErrSkipped)

	lic := License("boards", NewBoards())
	_, err = lic.Verify(ctx, model.SubmittedRecord{FullName: "x", State: "IL"})
	assert.ErrorIs(t, err, ErrSkipped)
}

func TestCollect_SkippedIsFailedNotCounted(t *testing.T) {
	c := NewCollector(NewRegistry(License("boards", NewBoards())), fastConfig(), nil)
	rec := testRecord()
	rec.LicenseNumber = ""
	for i := 0; i < 3; i++ {
		rs := c.Collect(context.Background(), rec)
		assert.False(t, rs[0].Success)
		assert.Contains(t, rs[0].Error, "not applicable")
	}
	assert.Equal(t, resilience.Closed, c.Breakers()["boards"])
}

type identityFunc func(ctx context.Context, name, npi, state string) (model.IdentityMatch, error)

func (f identityFunc) Lookup(ctx context.Context, name, npi, state string) (model.IdentityMatch, error) {
	return f(ctx, name, npi, state)
}

type geoFunc func(ctx context.Context, addr string) (model.GeoCheck, error)

func (f geoFunc) Check(ctx context.Context, addr string) (model.GeoCheck, error) { return f(ctx, addr) }
