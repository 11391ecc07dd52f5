// Package pipeline runs one provider record through collection,
// reconciliation, arbitration, summary, scoring and persistence.
package pipeline

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/provider-validator/internal/arbitrate"
	"github.com/sells-group/provider-validator/internal/freshness"
	"github.com/sells-group/provider-validator/internal/metrics"
	"github.com/sells-group/provider-validator/internal/model"
	"github.com/sells-group/provider-validator/internal/scorer"
	"github.com/sells-group/provider-validator/internal/store"
	"github.com/sells-group/provider-validator/internal/synth"
)

// Config tunes the pipeline.
type Config struct {
	Arbitration arbitrate.Policy `mapstructure:"arbitration"`
	// NameSimilarityMin is the lowest registry name similarity (0..100)
	// that raises no flag.
	NameSimilarityMin int `mapstructure:"name_similarity_min"`
	// MaxConcurrent bounds ValidateBatch.
	MaxConcurrent int `mapstructure:"max_concurrent"`
}

// DefaultConfig returns the pipeline defaults.
func DefaultConfig() Config {
	return Config{NameSimilarityMin: 80, MaxConcurrent: 5}
}

// Collector gathers verifier results for a record.
type Collector interface {
	Collect(ctx context.Context, rec model.SubmittedRecord) model.Results
}

// Pipeline orchestrates a validation run.
type Pipeline struct {
	cfg        Config
	collector  Collector
	freshness  *freshness.Model
	scorer     *scorer.Scorer
	summarizer synth.Summarizer
	store      store.Store
	metrics    *metrics.Metrics
	now        func() time.Time
}

// New creates a Pipeline. st, summarizer and m may be nil: without a store
// nothing is persisted, and without a summarizer the template is used.
func New(
	cfg Config,
	collector Collector,
	fm *freshness.Model,
	sc *scorer.Scorer,
	summarizer synth.Summarizer,
	st store.Store,
	m *metrics.Metrics,
) *Pipeline {
	def := DefaultConfig()
	if cfg.NameSimilarityMin <= 0 {
		cfg.NameSimilarityMin = def.NameSimilarityMin
	}
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = def.MaxConcurrent
	}
	if fm == nil {
		fm = freshness.Default()
	}
	if sc == nil {
		sc = scorer.Default()
	}
	return &Pipeline{
		cfg:        cfg,
		collector:  collector,
		freshness:  fm,
		scorer:     sc,
		summarizer: summarizer,
		store:      st,
		metrics:    m,
		now:        time.Now,
	}
}

// Validate runs the full pipeline for one record. When persistence fails
// the validation is still returned alongside the error.
func (p *Pipeline) Validate(ctx context.Context, rec model.SubmittedRecord) (*model.Validation, error) {
	start := p.now()
	v := &model.Validation{
		ID:        uuid.New().String(),
		Record:    rec,
		StartedAt: start.UTC(),
	}
	log := zap.L().With(
		zap.String("validation_id", v.ID),
		zap.String("npi", rec.NPI),
		zap.String("provider", rec.FullName),
	)
	log.Info("pipeline: starting validation")

	results := p.collector.Collect(ctx, rec)
	if err := ctx.Err(); err != nil {
		return nil, eris.Wrap(err, "pipeline: collect")
	}
	if failed := results.Failed(); len(failed) > 0 {
		log.Warn("pipeline: verifiers unavailable", zap.Any("kinds", failed))
	}

	var qa model.QASignals
	reconcileAddress(rec, results, &qa)
	assessFreshness(p.freshness, rec, results, &qa, start)
	collectSignals(rec, results, p.cfg, &qa)

	conflicts := arbitrate.Detect(rec, results, p.cfg.Arbitration)
	corrections := arbitrate.AddressCorrection(rec, qa.Address, authorityRank(results, qa.Address))
	golden := arbitrate.ArbitrateWith(rec, corrections, conflicts)

	summary := synth.Summarize(ctx, p.summarizer, synth.Input{Record: rec, Golden: golden, Results: results, QA: qa})
	qa.SynthesisDegraded = summary.Degraded

	breakdown := p.scorer.Score(golden, results, qa)

	v.Results = results
	v.Golden = golden
	v.QA = qa
	v.Breakdown = breakdown
	v.Summary = summary.Text
	v.Duration = p.now().Sub(start)

	log.Info("pipeline: scored",
		zap.Float64("score", breakdown.Score),
		zap.String("tier", breakdown.Tier),
		zap.String("path", string(breakdown.Path)),
		zap.Int("conflicts", len(conflicts)),
		zap.Int("flags", len(qa.Flags)),
		zap.Duration("elapsed", v.Duration),
	)

	err := p.persist(ctx, v, log)
	p.metrics.ObserveValidation(string(breakdown.Path), breakdown.Tier, v.Duration)
	return v, err
}

// BatchResult is the outcome for one record of a batch.
type BatchResult struct {
	Index      int               `json:"index"`
	Validation *model.Validation `json:"validation,omitempty"`
	Err        error             `json:"-"`
	Error      string            `json:"error,omitempty"`
}

// ValidateBatch validates recs with at most MaxConcurrent runs in flight.
// One record failing does not stop the others; results keep input order.
func (p *Pipeline) ValidateBatch(ctx context.Context, recs []model.SubmittedRecord) []BatchResult {
	out := make([]BatchResult, len(recs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.cfg.MaxConcurrent)

	for i, rec := range recs {
		g.Go(func() error {
			v, err := p.Validate(gctx, rec)
			out[i] = BatchResult{Index: i, Validation: v, Err: err}
			if err != nil {
				out[i].Error = err.Error()
			}
			return nil
		})
	}
	_ = g.Wait()

	var failed int
	for _, r := range out {
		if r.Err != nil {
			failed++
		}
	}
	zap.L().Info("pipeline: batch complete",
		zap.Int("records", len(recs)),
		zap.Int("failed", failed),
	)
	return out
}

func (p *Pipeline) persist(ctx context.Context, v *model.Validation, log *zap.Logger) error {
	var item *model.ReviewItem
	if v.Breakdown.Decision.NeedsReview {
		item = reviewItem(v)
		v.ReviewID = item.ID
	}
	if p.store == nil {
		return nil
	}

	if err := p.store.SaveValidation(ctx, v); err != nil {
		return eris.Wrap(err, "pipeline: save validation")
	}
	if err := p.store.LogSources(ctx, sourceLogs(v)); err != nil {
		log.Warn("pipeline: failed to log sources", zap.Error(err))
	}
	if item == nil {
		return nil
	}
	if err := p.store.EnqueueReview(ctx, item); err != nil {
		return eris.Wrap(err, "pipeline: enqueue review")
	}
	p.metrics.IncReview(string(item.Priority))
	log.Info("pipeline: queued for review",
		zap.String("review_id", item.ID),
		zap.String("priority", string(item.Priority)),
		zap.String("reason", item.Reason),
	)
	return nil
}

func reviewItem(v *model.Validation) *model.ReviewItem {
	name := v.Golden.Value(model.FieldName)
	if name == "" {
		name = v.Record.FullName
	}
	return &model.ReviewItem{
		ID:              uuid.New().String(),
		ValidationID:    v.ID,
		NPI:             v.Golden.Value(model.FieldNPI),
		ProviderName:    name,
		Score:           v.Breakdown.Score,
		Tier:            v.Breakdown.Tier,
		Priority:        scorer.PriorityFor(v.Breakdown, v.QA),
		Status:          model.ReviewPending,
		Reason:          v.Breakdown.Decision.Reason,
		Flags:           v.QA.Flags,
		FraudIndicators: v.QA.FraudIndicators,
		CreatedAt:       time.Now().UTC(),
	}
}

func sourceLogs(v *model.Validation) []model.SourceLog {
	logs := make([]model.SourceLog, 0, len(v.Results))
	for _, r := range v.Results {
		at := r.VerifiedAt
		if at.IsZero() {
			at = v.StartedAt
		}
		logs = append(logs, model.SourceLog{
			ValidationID: v.ID,
			Kind:         r.Kind,
			Source:       r.Source,
			LatencyMS:    r.Latency.Milliseconds(),
			Success:      r.Success,
			Error:        r.Error,
			CreatedAt:    at,
		})
	}
	return logs
}

// authorityRank is the rank of the source an address verdict came from.
func authorityRank(results model.Results, v *model.AddressVerdict) int {
	if v == nil {
		return model.SubmittedRank
	}
	for _, r := range results {
		if r.Source == v.Authority && r.Success {
			return r.Rank
		}
	}
	return model.SubmittedRank
}
