package monitoring

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/sells-group/provider-validator/internal/config"
	"github.com/sells-group/provider-validator/internal/metrics"
)

const defaultCheckInterval = 5 * time.Minute

// Checker periodically snapshots validation health, publishes it as
// gauges and posts alerts. An alert is posted when it starts firing and
// not again until it has cleared for at least one check.
type Checker struct {
	collector *Collector
	alerter   *Alerter
	metrics   *metrics.Metrics
	interval  time.Duration
	lookback  int

	// firing is only touched by the goroutine running Run.
	firing map[string]bool
}

// NewChecker creates a background health checker. m may be nil.
func NewChecker(collector *Collector, alerter *Alerter, m *metrics.Metrics, cfg config.MonitoringConfig) *Checker {
	interval := time.Duration(cfg.CheckIntervalSecs) * time.Second
	if interval <= 0 {
		interval = defaultCheckInterval
	}
	return &Checker{
		collector: collector,
		alerter:   alerter,
		metrics:   m,
		interval:  interval,
		lookback:  cfg.LookbackWindowHours,
		firing:    make(map[string]bool),
	}
}

// Run checks once per interval until ctx is cancelled.
func (c *Checker) Run(ctx context.Context) {
	log := zap.L().With(zap.String("component", "monitoring.checker"))
	log.Info("health checker started",
		zap.Duration("interval", c.interval),
		zap.Int("lookback_hours", c.lookback),
	)

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info("health checker stopped")
			return
		case <-ticker.C:
			c.Check(ctx)
		}
	}
}

// Check runs one pass and returns the alerts that started firing on it.
func (c *Checker) Check(ctx context.Context) []Alert {
	snap, err := c.collector.Collect(ctx, c.lookback)
	if err != nil {
		zap.L().Error("monitoring: collect snapshot", zap.Error(err))
		return nil
	}
	c.publish(snap)

	raised := c.track(c.alerter.Evaluate(snap))
	if len(raised) == 0 {
		return nil
	}
	sent := c.alerter.SendAlerts(ctx, raised)
	zap.L().Info("monitoring: alerts raised",
		zap.Int("raised", len(raised)),
		zap.Int("sent", sent),
		zap.Int("pending_reviews", snap.PendingReviews),
	)
	return raised
}

func (c *Checker) publish(snap *MetricsSnapshot) {
	rates := make(map[string]float64, len(snap.Sources))
	for _, s := range snap.Sources {
		rates[s.Source] = s.FailureRate()
	}
	c.metrics.SetQueueHealth(snap.PendingReviews, snap.HumanReviewRate, rates)
}

// track replaces the firing set with alerts and returns those not firing
// on the previous check.
func (c *Checker) track(alerts []Alert) []Alert {
	next := make(map[string]bool, len(alerts))
	var raised []Alert
	for _, a := range alerts {
		key := alertKey(a)
		next[key] = true
		if !c.firing[key] {
			raised = append(raised, a)
		}
	}
	c.firing = next
	return raised
}

// alertKey separates per-source alerts of the same type.
func alertKey(a Alert) string {
	if src, ok := a.Details["source"].(string); ok {
		return string(a.Type) + ":" + src
	}
	return string(a.Type)
}
