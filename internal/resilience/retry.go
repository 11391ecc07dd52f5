package resilience

import (
	"context"
	"math"
	"math/rand/v2"
	"time"

	"go.uber.org/zap"
)

// RetryPolicy bounds retries of transient failures.
type RetryPolicy struct {
	// Attempts is the total number of tries, including the first.
	Attempts int `mapstructure:"attempts"`
	// Backoff is the delay before the first retry; it doubles per retry.
	Backoff time.Duration `mapstructure:"backoff"`
	// MaxBackoff caps a single delay.
	MaxBackoff time.Duration `mapstructure:"max_backoff"`
	// Jitter is the +/- fraction applied to each delay.
	Jitter float64 `mapstructure:"jitter"`
}

// DefaultRetryPolicy returns the defaults used for verifier calls.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{Attempts: 2, Backoff: 250 * time.Millisecond, MaxBackoff: 2 * time.Second, Jitter: 0.2}
}

func (p RetryPolicy) withDefaults() RetryPolicy {
	if p.Attempts <= 0 {
		p.Attempts = 1
	}
	if p.Backoff <= 0 {
		p.Backoff = 100 * time.Millisecond
	}
	if p.MaxBackoff < p.Backoff {
		p.MaxBackoff = p.Backoff
	}
	if p.Jitter < 0 {
		p.Jitter = 0
	}
	return p
}

// Delay returns the wait before retry n (n starts at 1).
func (p RetryPolicy) Delay(n int) time.Duration {
	p = p.withDefaults()
	d := float64(p.Backoff) * math.Pow(2, float64(n-1))
	d = math.Min(d, float64(p.MaxBackoff))
	if p.Jitter > 0 {
		d += (rand.Float64()*2 - 1) * d * p.Jitter // #nosec G404 -- jitter only
	}
	return time.Duration(math.Max(d, 0))
}

// Retry calls fn until it succeeds, returns a non-transient error, the
// attempts run out, or ctx ends. The last error is returned.
func Retry[T any](ctx context.Context, p RetryPolicy, source string, fn func(context.Context) (T, error)) (T, error) {
	p = p.withDefaults()
	var zero T
	var err error
	for attempt := 1; attempt <= p.Attempts; attempt++ {
		var v T
		v, err = fn(ctx)
		if err == nil {
			return v, nil
		}
		if ctx.Err() != nil || !IsTransient(err) || attempt == p.Attempts {
			break
		}

		wait := p.Delay(attempt)
		zap.L().Debug("resilience: retrying",
			zap.String("source", source),
			zap.Int("attempt", attempt),
			zap.Duration("wait", wait),
			zap.Error(err),
		)
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return zero, err
		case <-timer.C:
		}
	}
	return zero, err
}

// Guard runs fn through the breaker with retries. A rejected call returns
// ErrOpen without invoking fn. Only the final outcome is recorded.
func Guard[T any](ctx context.Context, b *Breaker, p RetryPolicy, fn func(context.Context) (T, error)) (T, error) {
	var zero T
	if err := b.Allow(); err != nil {
		return zero, err
	}
	v, err := Retry(ctx, p, b.Name(), fn)
	b.Record(err)
	return v, err
}
