// Package resilience wraps verifier calls with per-source circuit breakers
// and bounded retries.
package resilience

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// State is a circuit breaker state.
type State int

const (
	// Closed lets calls through.
	Closed State = iota
	// Open rejects calls until the cool-down elapses.
	Open
	// HalfOpen lets trial calls through to test recovery.
	HalfOpen
)

func (s State) String() string {
	switch s {
	case Closed:
		return "closed"
	case Open:
		return "open"
	case HalfOpen:
		return "half-open"
	}
	return "unknown"
}

// ErrOpen is returned when a breaker rejects a call.
var ErrOpen = eris.New("resilience: circuit open")

// BreakerConfig controls a breaker.
type BreakerConfig struct {
	// Threshold is the number of consecutive failures that opens the breaker.
	Threshold int `mapstructure:"threshold"`
	// Cooldown is how long the breaker stays open before probing.
	Cooldown time.Duration `mapstructure:"cooldown"`
	// Trials is the number of successful half-open calls needed to close.
	Trials int `mapstructure:"trials"`
}

// DefaultBreakerConfig returns the defaults used for verifier sources.
func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{Threshold: 5, Cooldown: 30 * time.Second, Trials: 1}
}

func (c BreakerConfig) withDefaults() BreakerConfig {
	d := DefaultBreakerConfig()
	if c.Threshold <= 0 {
		c.Threshold = d.Threshold
	}
	if c.Cooldown <= 0 {
		c.Cooldown = d.Cooldown
	}
	if c.Trials <= 0 {
		c.Trials = d.Trials
	}
	return c
}

// Breaker guards one upstream source.
type Breaker struct {
	name string
	cfg  BreakerConfig
	now  func() time.Time

	// OnChange, if set, observes state transitions. It runs with the
	// breaker's lock held and must not call back into the breaker.
	OnChange func(name string, from, to State)

	mu       sync.Mutex
	state    State
	failures int
	trials   int
	openedAt time.Time
}

// NewBreaker creates a closed breaker.
func NewBreaker(name string, cfg BreakerConfig) *Breaker {
	return &Breaker{name: name, cfg: cfg.withDefaults(), now: time.Now}
}

// Name returns the guarded source name.
func (b *Breaker) Name() string { return b.name }

// State reports the current state, accounting for an elapsed cool-down.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state == Open && b.now().Sub(b.openedAt) >= b.cfg.Cooldown {
		return HalfOpen
	}
	return b.state
}

// Failures returns the current consecutive failure count.
func (b *Breaker) Failures() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.failures
}

// Allow reports whether a call may proceed.
func (b *Breaker) Allow() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state != Open {
		return nil
	}
	if b.now().Sub(b.openedAt) >= b.cfg.Cooldown {
		b.set(HalfOpen)
		return nil
	}
	return eris.Wrapf(ErrOpen, "source %s", b.name)
}

// Record feeds a call outcome into the breaker. Context cancellation by the
// caller is not counted against the source.
func (b *Breaker) Record(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if err == nil || errors.Is(err, context.Canceled) {
		switch b.state {
		case HalfOpen:
			b.trials++
			if b.trials >= b.cfg.Trials {
				b.failures, b.trials = 0, 0
				b.set(Closed)
			}
		case Closed:
			b.failures = 0
		}
		return
	}

	b.failures++
	switch b.state {
	case Closed:
		if b.failures >= b.cfg.Threshold {
			b.openedAt = b.now()
			b.set(Open)
		}
	case HalfOpen:
		b.trials = 0
		b.openedAt = b.now()
		b.set(Open)
	}
}

// Reset closes the breaker.
func (b *Breaker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failures, b.trials = 0, 0
	b.set(Closed)
}

func (b *Breaker) set(to State) {
	from := b.state
	if from == to {
		return
	}
	b.state = to
	if b.OnChange != nil {
		b.OnChange(b.name, from, to)
	}
	zap.L().Info("resilience: breaker state change",
		zap.String("source", b.name),
		zap.Stringer("from", from),
		zap.Stringer("to", to),
	)
}

// Breakers holds one breaker per source name.
type Breakers struct {
	cfg      BreakerConfig
	onChange func(name string, from, to State)

	mu sync.RWMutex
	m  map[string]*Breaker
}

// NewBreakers creates an empty set. onChange may be nil.
func NewBreakers(cfg BreakerConfig, onChange func(name string, from, to State)) *Breakers {
	return &Breakers{cfg: cfg, onChange: onChange, m: make(map[string]*Breaker)}
}

// For returns the breaker for name, creating it on first use.
func (bs *Breakers) For(name string) *Breaker {
	bs.mu.RLock()
	b, ok := bs.m[name]
	bs.mu.RUnlock()
	if ok {
		return b
	}

	bs.mu.Lock()
	defer bs.mu.Unlock()
	if b, ok = bs.m[name]; ok {
		return b
	}
	b = NewBreaker(name, bs.cfg)
	b.OnChange = bs.onChange
	bs.m[name] = b
	return b
}

// States snapshots every breaker's state.
func (bs *Breakers) States() map[string]State {
	bs.mu.RLock()
	defer bs.mu.RUnlock()
	out := make(map[string]State, len(bs.m))
	for name, b := range bs.m {
		out[name] = b.State()
	}
	return out
}
