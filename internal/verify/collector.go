package verify

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/provider-validator/internal/metrics"
	"github.com/sells-group/provider-validator/internal/model"
	"github.com/sells-group/provider-validator/internal/resilience"
)

// zeroTime is the placeholder verification time set by adapters; the
// collector stamps the real one.
var zeroTime time.Time

// Config controls how the collector calls verifiers.
type Config struct {
	// Timeout bounds each verifier call, retries included.
	Timeout time.Duration            `mapstructure:"timeout"`
	Retry   resilience.RetryPolicy   `mapstructure:"retry"`
	Breaker resilience.BreakerConfig `mapstructure:"breaker"`
}

// DefaultConfig returns the collector defaults.
func DefaultConfig() Config {
	return Config{
		Timeout: 15 * time.Second,
		Retry:   resilience.DefaultRetryPolicy(),
		Breaker: resilience.DefaultBreakerConfig(),
	}
}

// Collector fans a record out to every registered verifier and gathers the
// results. A verifier failure never fails the collection; it becomes a
// failed result.
type Collector struct {
	registry *Registry
	cfg      Config
	breakers *resilience.Breakers
	metrics  *metrics.Metrics
	now      func() time.Time
}

// NewCollector creates a collector over reg. m may be nil.
func NewCollector(reg *Registry, cfg Config, m *metrics.Metrics) *Collector {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultConfig().Timeout
	}
	return &Collector{
		registry: reg,
		cfg:      cfg,
		breakers: resilience.NewBreakers(cfg.Breaker, func(source string, _, to resilience.State) {
			m.SetBreakerState(source, int(to))
		}),
		metrics: m,
		now:     time.Now,
	}
}

// Breakers reports the breaker state of every source called so far.
func (c *Collector) Breakers() map[string]resilience.State {
	return c.breakers.States()
}

// Collect runs every verifier concurrently and returns one result per
// verifier in kind order.
func (c *Collector) Collect(ctx context.Context, rec model.SubmittedRecord) model.Results {
	vs := c.registry.All()
	out := make(model.Results, len(vs))

	var g errgroup.Group
	for i, v := range vs {
		g.Go(func() error {
			out[i] = c.run(ctx, v, rec)
			return nil
		})
	}
	_ = g.Wait()
	return out
}

func (c *Collector) run(ctx context.Context, v Verifier, rec model.SubmittedRecord) (res model.VerifierResult) {
	kind, source := v.Kind(), v.Source()
	start := c.now()
	outcome := "success"

	defer func() {
		if r := recover(); r != nil {
			res = model.NewFailedResult(kind, source, c.now().UTC(), eris.Errorf("verify: %s panicked: %v", source, r))
			outcome = "failure"
		}
		res.Latency = c.now().Sub(start)
		c.metrics.ObserveVerifier(string(kind), source, outcome, res.Latency)
	}()

	vctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	skipped := false
	r, err := resilience.Guard(vctx, c.breakers.For(source), c.cfg.Retry, func(ctx context.Context) (model.VerifierResult, error) {
		r, err := v.Verify(ctx, rec)
		if eris.Is(err, ErrSkipped) {
			skipped = true
			return model.VerifierResult{}, nil
		}
		return r, err
	})

	at := c.now().UTC()
	switch {
	case skipped:
		outcome = "skipped"
		return model.NewFailedResult(kind, source, at, ErrSkipped)
	case err != nil:
		outcome = "failure"
		if eris.Is(err, resilience.ErrOpen) {
			outcome = "rejected"
		}
		zap.L().Warn("verify: verifier failed",
			zap.String("kind", string(kind)),
			zap.String("source", source),
			zap.String("npi", rec.NPI),
			zap.Error(err),
		)
		return model.NewFailedResult(kind, source, at, err)
	case r.Kind != kind || !r.Valid():
		outcome = "failure"
		return model.NewFailedResult(kind, source, at, eris.Errorf("verify: %s returned a malformed %s result", source, kind))
	}

	r.Source = source
	r.VerifiedAt = at
	zap.L().Debug("verify: verifier succeeded",
		zap.String("kind", string(kind)),
		zap.String("source", source),
		zap.Duration("latency", c.now().Sub(start)),
	)
	return r
}
