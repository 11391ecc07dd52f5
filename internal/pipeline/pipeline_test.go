package pipeline

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/provider-validator/internal/arbitrate"
	"github.com/sells-group/provider-validator/internal/model"
	"github.com/sells-group/provider-validator/internal/scorer"
	"github.com/sells-group/provider-validator/internal/store"
	"github.com/sells-group/provider-validator/internal/synth"
)

var testNow = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

type stubCollector struct {
	results func(rec model.SubmittedRecord) model.Results
	delay   time.Duration

	mu       sync.Mutex
	inFlight int
	peak     int
}

func (c *stubCollector) Collect(_ context.Context, rec model.SubmittedRecord) model.Results {
	c.mu.Lock()
	c.inFlight++
	if c.inFlight > c.peak {
		c.peak = c.inFlight
	}
	c.mu.Unlock()

	if c.delay > 0 {
		time.Sleep(c.delay)
	}

	c.mu.Lock()
	c.inFlight--
	c.mu.Unlock()
	return c.results(rec)
}

type failingSummarizer struct{}

func (failingSummarizer) Summarize(context.Context, synth.Input) (string, error) {
	return "", errors.New("model unavailable")
}

type failingStore struct {
	store.Store
	saves atomic.Int64
}

func (f *failingStore) SaveValidation(context.Context, *model.Validation) error {
	f.saves.Add(1)
	return errors.New("disk full")
}

func cleanRecord() model.SubmittedRecord {
	confirmed := testNow.AddDate(0, 0, -10)
	return model.SubmittedRecord{
		FullName:       "Jane Doe",
		NPI:            "1234567893",
		Street:         "100 Main St",
		City:           "Springfield",
		State:          "IL",
		Zip:            "62701",
		Phone:          "217-555-0100",
		Website:        "https://janedoe.example",
		Specialty:      "Family Medicine",
		LicenseNumber:  "036-123456",
		LastConfirmed:  &confirmed,
		Source:         model.SourceCSVUpload,
		Education:      []string{"Rush Medical College"},
		Certifications: []string{"ABFM"},
		Languages:      []string{"English"},
	}
}

func cleanResults(rec model.SubmittedRecord) model.Results {
	updated := testNow.AddDate(0, 0, -5)
	return model.Results{
		model.NewIdentityResult("nppes", testNow, model.IdentityMatch{
			MatchConfidence: 1,
			ResultCount:     1,
			NPI:             rec.NPI,
			Name:            rec.FullName,
			Address:         "100 Main St, Springfield, IL 62701",
			Phone:           "2175550100",
			Specialties:     []model.Taxonomy{{Description: "Family Medicine", Primary: true}},
			EntityType:      model.EntityIndividual,
			LastConfirmed:   &updated,
		}),
		model.NewExclusionResult("oig-leie", testNow, model.ExclusionCheck{}),
		model.NewLicenseResult("il-idfpr", testNow, model.LicenseCheck{
			Status:        model.LicenseActive,
			LicenseNumber: rec.LicenseNumber,
			State:         "IL",
		}),
		model.NewGeoResult("google-places", testNow, model.GeoCheck{
			IsMatchingFacilityType: true,
			FacilityType:           "doctor",
			FormattedAddress:       "100 Main St, Springfield, IL 62701",
		}),
	}
}

func newTestPipeline(t *testing.T, c Collector, s synth.Summarizer, st store.Store) *Pipeline {
	t.Helper()
	p := New(Config{}, c, nil, scorer.Default(), s, st, nil)
	p.now = func() time.Time { return testNow }
	return p
}

func newTestStore(t *testing.T) *store.SQLiteStore {
	t.Helper()
	st, err := store.NewSQLite(filepath.Join(t.TempDir(), "pipeline.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	require.NoError(t, st.Migrate(context.Background()))
	return st
}

func TestValidate_CleanRecordAutoApproves(t *testing.T) {
	st := newTestStore(t)
	p := newTestPipeline(t, &stubCollector{results: cleanResults}, synth.Template{}, st)
	ctx := context.Background()

	v, err := p.Validate(ctx, cleanRecord())
	require.NoError(t, err)

	assert.NotEmpty(t, v.ID)
	assert.Equal(t, model.PathAutoApprove, v.Breakdown.Path)
	assert.False(t, v.Breakdown.Decision.NeedsReview)
	assert.Empty(t, v.ReviewID)
	assert.Empty(t, v.QA.Flags)
	assert.NotEmpty(t, v.Summary)

	require.NotNil(t, v.QA.Address)
	assert.Equal(t, model.AddressVerified, v.QA.Address.Action)
	assert.Equal(t, "nppes", v.QA.Address.Authority)

	prov, err := st.GetProvider(ctx, "1234567893")
	require.NoError(t, err)
	assert.Equal(t, v.ID, prov.LastValidation)
	assert.Equal(t, v.Breakdown.Score, prov.Score)

	reviews, err := st.ListReviews(ctx, store.ReviewFilter{Status: model.ReviewPending})
	require.NoError(t, err)
	assert.Empty(t, reviews)

	stats, err := st.Stats(ctx, testNow.Add(-time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Validations)
	assert.Len(t, stats.Sources, 4)
}

func TestValidate_FreshnessUsesRegistryDate(t *testing.T) {
	p := newTestPipeline(t, &stubCollector{results: cleanResults}, nil, nil)

	v, err := p.Validate(context.Background(), cleanRecord())
	require.NoError(t, err)

	id := v.Results.Identity()
	require.NotNil(t, id)
	require.NotNil(t, id.Freshness)
	assert.Equal(t, model.SourceNPIRegistry, id.Freshness.Source)
	assert.Equal(t, 5, id.Freshness.DaysSinceUpdate)
	assert.Equal(t, model.FreshnessHealthy, id.Freshness.Status)
	assert.Equal(t, id.Freshness, v.QA.Freshness)
}

func TestValidate_FreshnessFallsBackToSubmission(t *testing.T) {
	results := func(rec model.SubmittedRecord) model.Results {
		rs := cleanResults(rec)
		rs[0] = model.NewFailedResult(model.KindIdentity, "nppes", testNow, errors.New("timeout"))
		return rs
	}
	p := newTestPipeline(t, &stubCollector{results: results}, nil, nil)

	v, err := p.Validate(context.Background(), cleanRecord())
	require.NoError(t, err)

	require.NotNil(t, v.QA.Freshness)
	assert.Equal(t, model.SourceCSVUpload, v.QA.Freshness.Source)
	assert.Equal(t, 10, v.QA.Freshness.DaysSinceUpdate)

	// Registry down: address reconciles against the geo result instead.
	require.NotNil(t, v.QA.Address)
	assert.Equal(t, "google-places", v.QA.Address.Authority)

	assert.Equal(t, model.PathHumanReview, v.Breakdown.Path)
	assert.Equal(t, "primary source failure: registry lookup failed", v.Breakdown.Decision.Reason)
}

func TestValidate_ExcludedProviderQueuedHigh(t *testing.T) {
	results := func(rec model.SubmittedRecord) model.Results {
		rs := cleanResults(rec)
		rs[1] = model.NewExclusionResult("oig-leie", testNow, model.ExclusionCheck{
			Excluded: true,
			Details:  &model.ExclusionDetails{Name: "DOE, JANE", ExclusionType: "1128a1"},
		})
		return rs
	}
	st := newTestStore(t)
	p := newTestPipeline(t, &stubCollector{results: results}, nil, st)
	ctx := context.Background()

	v, err := p.Validate(ctx, cleanRecord())
	require.NoError(t, err)

	assert.Equal(t, model.PathHumanReview, v.Breakdown.Path)
	assert.Contains(t, v.Breakdown.Override, "exclusion list")
	require.NotEmpty(t, v.ReviewID)

	codes := flagCodes(v.QA)
	assert.Contains(t, codes, FlagExcluded)

	item, err := st.GetReview(ctx, v.ReviewID)
	require.NoError(t, err)
	assert.Equal(t, model.PriorityHigh, item.Priority)
	assert.Equal(t, model.ReviewPending, item.Status)
	assert.Equal(t, v.ID, item.ValidationID)
	assert.Equal(t, "1234567893", item.NPI)
	assert.Contains(t, item.Reason, "primary source failure")

	prov, err := st.GetProvider(ctx, "1234567893")
	require.NoError(t, err)
	assert.True(t, prov.Excluded)
}

func TestValidate_ExclusionCheckFailureQueuesReview(t *testing.T) {
	results := func(rec model.SubmittedRecord) model.Results {
		rs := cleanResults(rec)
		rs[1] = model.NewFailedResult(model.KindExclusion, "oig-leie", testNow, errors.New("list unavailable"))
		return rs
	}
	st := newTestStore(t)
	p := newTestPipeline(t, &stubCollector{results: results}, nil, st)
	ctx := context.Background()

	v, err := p.Validate(ctx, cleanRecord())
	require.NoError(t, err)

	assert.Equal(t, model.PathHumanReview, v.Breakdown.Path)
	assert.Equal(t, "primary source failure: exclusion check unavailable", v.Breakdown.Decision.Reason)
	assert.Zero(t, v.Breakdown.Dimension(model.DimIdentity).Raw)
	require.NotEmpty(t, v.ReviewID)

	item, err := st.GetReview(ctx, v.ReviewID)
	require.NoError(t, err)
	assert.Equal(t, model.PriorityHigh, item.Priority)
}

func TestValidate_SpecialtyMismatchFollowsPolicy(t *testing.T) {
	rec := cleanRecord()
	rec.Specialty = "Dermatology"

	tests := []struct {
		name        string
		autoCorrect bool
		wantFlag    bool
		wantValue   string
	}{
		{"flagged when kept", false, true, "Dermatology"},
		{"corrected silently", true, false, "Family Medicine"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Config{Arbitration: arbitrate.Policy{AutoCorrectSpecialty: tt.autoCorrect}}
			p := New(cfg, &stubCollector{results: cleanResults}, nil, scorer.Default(), nil, nil, nil)
			p.now = func() time.Time { return testNow }

			v, err := p.Validate(context.Background(), rec)
			require.NoError(t, err)

			codes := flagCodes(v.QA)
			if tt.wantFlag {
				assert.Contains(t, codes, FlagSpecialtyMismatch)
			} else {
				assert.NotContains(t, codes, FlagSpecialtyMismatch)
			}
			assert.Equal(t, tt.wantValue, v.Golden.Value(model.FieldSpecialty))
		})
	}
}

func TestValidate_AddressTypoAutoCorrected(t *testing.T) {
	rec := cleanRecord()
	rec.Street = "100 Mane St"
	p := newTestPipeline(t, &stubCollector{results: cleanResults}, nil, nil)

	v, err := p.Validate(context.Background(), rec)
	require.NoError(t, err)

	require.NotNil(t, v.QA.Address)
	assert.Equal(t, model.AddressAutoCorrect, v.QA.Address.Action)
	assert.Equal(t, "100 Main St, Springfield, IL 62701", v.Golden.Value(model.FieldAddress))
	assert.Equal(t, "nppes", v.Golden.Source(model.FieldAddress))

	require.Len(t, v.Golden.Corrections, 1)
	c := v.Golden.Corrections[0]
	assert.Equal(t, model.FieldAddress, c.Field)
	assert.Equal(t, "100 Mane St, Springfield, IL 62701", c.From)
	assert.Equal(t, model.AuthorityRank(model.KindIdentity), c.Rank)
}

func TestValidate_HouseNumberMismatchFlagged(t *testing.T) {
	rec := cleanRecord()
	rec.Street = "102 Main St"
	p := newTestPipeline(t, &stubCollector{results: cleanResults}, nil, nil)

	v, err := p.Validate(context.Background(), rec)
	require.NoError(t, err)

	assert.Equal(t, model.AddressFlag, v.QA.Address.Action)
	assert.Contains(t, flagCodes(v.QA), FlagAddressMismatch)
	assert.Equal(t, "102 Main St, Springfield, IL 62701", v.Golden.Value(model.FieldAddress))
	assert.Empty(t, v.Golden.Corrections)
}

func TestValidate_SummarizerFailureDegrades(t *testing.T) {
	p := newTestPipeline(t, &stubCollector{results: cleanResults}, failingSummarizer{}, nil)

	v, err := p.Validate(context.Background(), cleanRecord())
	require.NoError(t, err)

	assert.True(t, v.QA.SynthesisDegraded)
	assert.NotEmpty(t, v.Summary)
	risk := v.Breakdown.Dimension(model.DimRisk)
	assert.InDelta(t, 0.8, risk.Raw, 0.0001)
}

func TestValidate_SaveFailureReturnsValidation(t *testing.T) {
	st := &failingStore{}
	p := newTestPipeline(t, &stubCollector{results: cleanResults}, nil, st)

	v, err := p.Validate(context.Background(), cleanRecord())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "save validation")
	require.NotNil(t, v)
	assert.NotZero(t, v.Breakdown.Score)
	assert.Equal(t, int64(1), st.saves.Load())
}

func TestValidate_CanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	p := newTestPipeline(t, &stubCollector{results: cleanResults}, nil, nil)

	v, err := p.Validate(ctx, cleanRecord())
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Nil(t, v)
}

func TestValidateBatch_BoundsConcurrency(t *testing.T) {
	c := &stubCollector{results: cleanResults, delay: 20 * time.Millisecond}
	p := New(Config{MaxConcurrent: 2}, c, nil, nil, nil, nil, nil)
	p.now = func() time.Time { return testNow }

	recs := make([]model.SubmittedRecord, 6)
	for i := range recs {
		recs[i] = cleanRecord()
	}

	out := p.ValidateBatch(context.Background(), recs)
	require.Len(t, out, 6)
	for i, r := range out {
		assert.Equal(t, i, r.Index)
		require.NoError(t, r.Err)
		require.NotNil(t, r.Validation)
	}
	assert.LessOrEqual(t, c.peak, 2)
}

func TestValidateBatch_ReportsPerRecordErrors(t *testing.T) {
	st := &failingStore{}
	p := newTestPipeline(t, &stubCollector{results: cleanResults}, nil, st)

	out := p.ValidateBatch(context.Background(), []model.SubmittedRecord{cleanRecord(), cleanRecord()})
	require.Len(t, out, 2)
	for _, r := range out {
		assert.Error(t, r.Err)
		assert.NotEmpty(t, r.Error)
	}
	assert.Equal(t, int64(2), st.saves.Load())
}

func flagCodes(qa model.QASignals) []string {
	var out []string
	for _, f := range qa.Flags {
		out = append(out, f.Code)
	}
	return out
}
