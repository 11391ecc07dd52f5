package main

import (
	"context"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"

	"github.com/sells-group/provider-validator/internal/arbitrate"
	"github.com/sells-group/provider-validator/internal/config"
	"github.com/sells-group/provider-validator/internal/fetcher"
	"github.com/sells-group/provider-validator/internal/freshness"
	"github.com/sells-group/provider-validator/internal/metrics"
	"github.com/sells-group/provider-validator/internal/pipeline"
	"github.com/sells-group/provider-validator/internal/resilience"
	"github.com/sells-group/provider-validator/internal/scorer"
	"github.com/sells-group/provider-validator/internal/store"
	"github.com/sells-group/provider-validator/internal/synth"
	"github.com/sells-group/provider-validator/internal/verify"
	anthropicpkg "github.com/sells-group/provider-validator/pkg/anthropic"
	"github.com/sells-group/provider-validator/pkg/geocode"
	"github.com/sells-group/provider-validator/pkg/google"
	"github.com/sells-group/provider-validator/pkg/nppes"
)

// Verifier source names, used as breaker and metric labels.
const (
	sourceNPPES  = "nppes"
	sourceLEIE   = "oig-leie"
	sourceBoards = "state-board"
	sourcePlaces = "google-places"
	sourceCensus = "census-geocoder"
)

// validatorEnv holds everything the validate and serve commands need.
type validatorEnv struct {
	Store      store.Store
	Pipeline   *pipeline.Pipeline
	Collector  *verify.Collector
	Exclusions *verify.ExclusionList
	Metrics    *prometheus.Registry
	// Instruments are registered on Metrics.
	Instruments *metrics.Metrics
}

// Close releases resources held by the environment.
func (e *validatorEnv) Close() {
	if e.Store != nil {
		_ = e.Store.Close()
	}
}

// initValidator opens the store, builds every verifier from config and
// assembles the pipeline. Callers should defer env.Close().
func initValidator(ctx context.Context, mode string) (*validatorEnv, error) {
	if err := cfg.Validate(mode); err != nil {
		return nil, err
	}

	sc, err := buildScorer(cfg.Scoring)
	if err != nil {
		return nil, err
	}
	fm, err := buildFreshness(cfg.Freshness)
	if err != nil {
		return nil, err
	}

	st, err := openStore(ctx)
	if err != nil {
		return nil, err
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	exclusions := initExclusions(ctx, cfg.LEIE)
	registry, err := buildRegistry(cfg, exclusions)
	if err != nil {
		_ = st.Close()
		return nil, err
	}
	collector := verify.NewCollector(registry, collectorConfig(cfg.Verify), m)

	p := pipeline.New(
		pipeline.Config{
			Arbitration:       arbitrate.Policy{AutoCorrectSpecialty: cfg.Review.AutoCorrectSpecialty},
			NameSimilarityMin: cfg.Review.NameSimilarityMin,
			MaxConcurrent:     cfg.Batch.MaxConcurrent,
		},
		collector,
		fm,
		sc,
		buildSummarizer(cfg.Anthropic),
		st,
		m,
	)

	zap.L().Info("validator initialized",
		zap.Int("verifiers", registry.Len()),
		zap.String("store", cfg.Store.Driver),
		zap.String("tier_scheme", cfg.Scoring.TierScheme),
		zap.Int("exclusions", exclusions.Len()),
	)

	return &validatorEnv{
		Store:       st,
		Pipeline:    p,
		Collector:   collector,
		Exclusions:  exclusions,
		Metrics:     reg,
		Instruments: m,
	}, nil
}

func buildScorer(c config.ScoringConfig) (*scorer.Scorer, error) {
	var sc scorer.Config
	if c.WeightsFile != "" {
		w, err := scorer.LoadWeights(c.WeightsFile)
		if err != nil {
			return nil, err
		}
		sc.Weights = w
	}
	tiers, err := scorer.TierScheme(c.TierScheme)
	if err != nil {
		return nil, err
	}
	sc.Tiers = tiers
	return scorer.New(sc)
}

// buildFreshness overlays configured entries on the default tables. Keys
// are matched case-insensitively because viper lowercases map keys.
func buildFreshness(c config.FreshnessConfig) (*freshness.Model, error) {
	if len(c.SourceTrust) == 0 && len(c.DecayRates) == 0 {
		return freshness.Default(), nil
	}
	t := freshness.DefaultTables()
	for k, v := range c.SourceTrust {
		t.SourceTrust[strings.ToUpper(k)] = v
	}
	for k, v := range c.DecayRates {
		t.DecayRates[strings.ToUpper(k)] = v
	}
	return freshness.New(t)
}

func collectorConfig(c config.VerifyConfig) verify.Config {
	vc := verify.DefaultConfig()
	if c.TimeoutSecs > 0 {
		vc.Timeout = time.Duration(c.TimeoutSecs) * time.Second
	}
	if c.RetryAttempts > 0 {
		vc.Retry.Attempts = c.RetryAttempts
	}
	if c.RetryBackoff > 0 {
		vc.Retry.Backoff = c.RetryBackoff
	}
	vc.Breaker = resilience.BreakerConfig{
		Threshold: c.BreakerThreshold,
		Cooldown:  c.BreakerCooldown,
		Trials:    vc.Breaker.Trials,
	}
	return vc
}

// initExclusions loads the exclusion list from a local file when one is
// configured and downloads it otherwise. A failed load leaves the list
// empty, so exclusion checks fail and lower confidence instead of
// aborting startup.
func initExclusions(ctx context.Context, c config.LEIEConfig) *verify.ExclusionList {
	ex := verify.NewExclusionList(fetcher.NewHTTPFetcher(fetcher.HTTPOptions{}), c.URL)
	if c.File != "" {
		if err := ex.LoadFile(c.File); err != nil {
			zap.L().Warn("exclusion list not loaded", zap.String("file", c.File), zap.Error(err))
		}
		return ex
	}
	if _, err := ex.Refresh(ctx); err != nil {
		zap.L().Warn("exclusion list not loaded", zap.String("url", c.URL), zap.Error(err))
	}
	return ex
}

// buildRegistry registers one verifier per kind. Web presence needs a
// Places key and is skipped without one, scoring at the floor. Geo falls
// back to the Census geocoder, which confirms the address but cannot
// classify the facility.
func buildRegistry(c *config.Config, exclusions *verify.ExclusionList) (*verify.Registry, error) {
	nppesOpts := []nppes.Option{nppes.WithRateLimit(c.NPPES.RateLimit)}
	if c.NPPES.BaseURL != "" {
		nppesOpts = append(nppesOpts, nppes.WithBaseURL(c.NPPES.BaseURL))
	}

	boards := verify.NewBoards()
	for state, path := range c.Licenses.Rosters {
		rb, err := verify.LoadRosterFile(state, path)
		if err != nil {
			return nil, err
		}
		if err := boards.Register(state, rb); err != nil {
			return nil, err
		}
		zap.L().Debug("license roster loaded", zap.String("state", state), zap.Int("licensees", rb.Len()))
	}

	reg := verify.NewRegistry(
		verify.Identity(sourceNPPES, verify.NewNPIRegistry(nppes.NewClient(nppesOpts...))),
		verify.Exclusion(sourceLEIE, exclusions),
		verify.License(sourceBoards, boards),
	)

	if c.Google.Key == "" {
		if c.Census.Enabled {
			censusOpts := []geocode.Option{geocode.WithRateLimit(c.Census.RateLimit)}
			if c.Census.BaseURL != "" {
				censusOpts = append(censusOpts, geocode.WithBaseURL(c.Census.BaseURL))
			}
			reg.Register(verify.Geo(sourceCensus, verify.NewCensusGeo(geocode.NewClient(censusOpts...))))
		}
		zap.L().Warn("google.key not set; web presence checks disabled", zap.Bool("census_geo", c.Census.Enabled))
		return reg, nil
	}
	googleOpts := []google.Option{google.WithRateLimit(c.Google.RateLimit)}
	if c.Google.BaseURL != "" {
		googleOpts = append(googleOpts, google.WithBaseURL(c.Google.BaseURL))
	}
	places := google.NewClient(c.Google.Key, googleOpts...)
	reg.Register(verify.Geo(sourcePlaces, verify.NewPlacesGeo(places)))
	reg.Register(verify.WebPresence(sourcePlaces, verify.NewPlacesWebPresence(places)))
	return reg, nil
}

// buildSummarizer uses the LLM when an Anthropic key is configured and the
// template otherwise.
func buildSummarizer(c config.AnthropicConfig) synth.Summarizer {
	if c.Key == "" {
		return synth.Template{}
	}
	return synth.NewLLM(anthropicpkg.NewClient(c.Key), synth.LLMConfig{
		Model:     c.Model,
		MaxTokens: c.MaxTokens,
		Timeout:   time.Duration(c.TimeoutSecs) * time.Second,
	})
}
