package monitoring

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/provider-validator/internal/model"
	"github.com/sells-group/provider-validator/internal/store"
)

// MetricsSnapshot holds a point-in-time view of validation health.
type MetricsSnapshot struct {
	// Validation metrics (within lookback window).
	Validations     int     `json:"validations"`
	AutoApproved    int     `json:"auto_approved"`
	Monitored       int     `json:"monitored"`
	HumanReview     int     `json:"human_review"`
	HumanReviewRate float64 `json:"human_review_rate"`
	AvgScore        float64 `json:"avg_score"`

	// Review queue depth.
	PendingReviews int `json:"pending_reviews"`

	// Per-source reliability (within lookback window).
	Sources []store.SourceStat `json:"sources"`

	// Metadata.
	LookbackHours int       `json:"lookback_hours"`
	CollectedAt   time.Time `json:"collected_at"`
}

// StatsQuerier is the store method the collector needs.
type StatsQuerier interface {
	Stats(ctx context.Context, since time.Time) (*store.Stats, error)
}

// Collector gathers metrics from the store.
type Collector struct {
	store StatsQuerier
	now   func() time.Time
}

// NewCollector creates a new metrics collector.
func NewCollector(st StatsQuerier) *Collector {
	return &Collector{store: st, now: time.Now}
}

// Collect gathers a snapshot of validation metrics over the given lookback window.
func (c *Collector) Collect(ctx context.Context, lookbackHours int) (*MetricsSnapshot, error) {
	now := c.now().UTC()
	snap := &MetricsSnapshot{
		LookbackHours: lookbackHours,
		CollectedAt:   now,
	}

	cutoff := now.Add(-time.Duration(lookbackHours) * time.Hour)
	stats, err := c.store.Stats(ctx, cutoff)
	if err != nil {
		return nil, eris.Wrap(err, "monitoring: load stats")
	}

	snap.Validations = stats.Validations
	snap.AutoApproved = stats.ByPath[model.PathAutoApprove]
	snap.Monitored = stats.ByPath[model.PathMonitoredApprove]
	snap.HumanReview = stats.ByPath[model.PathHumanReview]
	snap.AvgScore = stats.AvgScore
	snap.PendingReviews = stats.PendingReviews
	snap.Sources = stats.Sources
	if snap.Validations > 0 {
		snap.HumanReviewRate = float64(snap.HumanReview) / float64(snap.Validations)
	}

	return snap, nil
}
