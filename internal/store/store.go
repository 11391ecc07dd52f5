// Package store persists validations, golden provider records, the human
// review queue and per-source call logs.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/sells-group/provider-validator/internal/model"
)

// ErrNotFound is returned when a requested row does not exist.
var ErrNotFound = errors.New("store: not found")

// ProviderFilter specifies criteria for searching validated providers.
type ProviderFilter struct {
	Name          string  `json:"name,omitempty"`
	State         string  `json:"state,omitempty"`
	Specialty     string  `json:"specialty,omitempty"`
	MinConfidence float64 `json:"min_confidence,omitempty"`
	Limit         int     `json:"limit,omitempty"`
	Offset        int     `json:"offset,omitempty"`
}

// ReviewFilter specifies criteria for listing review queue entries.
type ReviewFilter struct {
	Status   model.ReviewStatus   `json:"status,omitempty"`
	Priority model.ReviewPriority `json:"priority,omitempty"`
	Limit    int                  `json:"limit,omitempty"`
	Offset   int                  `json:"offset,omitempty"`
}

// SourceStat summarizes calls to one verification source.
type SourceStat struct {
	Source       string  `json:"source"`
	Calls        int     `json:"calls"`
	Failures     int     `json:"failures"`
	AvgLatencyMS float64 `json:"avg_latency_ms"`
}

// FailureRate returns the fraction of failed calls.
func (s SourceStat) FailureRate() float64 {
	if s.Calls == 0 {
		return 0
	}
	return float64(s.Failures) / float64(s.Calls)
}

// Stats is an aggregate view of recent validation activity.
type Stats struct {
	Validations    int                `json:"validations"`
	ByPath         map[model.Path]int `json:"by_path"`
	AvgScore       float64            `json:"avg_score"`
	PendingReviews int                `json:"pending_reviews"`
	Sources        []SourceStat       `json:"sources"`
}

// Store defines the persistence interface for provider validation.
type Store interface {
	// Validations
	SaveValidation(ctx context.Context, v *model.Validation) error
	GetProvider(ctx context.Context, npi string) (*model.ProviderRecord, error)
	SearchProviders(ctx context.Context, filter ProviderFilter) ([]model.ProviderRecord, error)
	ListHistory(ctx context.Context, npi string) ([]model.HistoryEntry, error)

	// Review queue
	EnqueueReview(ctx context.Context, item *model.ReviewItem) error
	GetReview(ctx context.Context, id string) (*model.ReviewItem, error)
	ListReviews(ctx context.Context, filter ReviewFilter) ([]model.ReviewItem, error)
	ResolveReview(ctx context.Context, id string, status model.ReviewStatus, reviewer, notes string) error

	// Source logs
	LogSources(ctx context.Context, logs []model.SourceLog) error

	Stats(ctx context.Context, since time.Time) (*Stats, error)

	Migrate(ctx context.Context) error
	Close() error
}

const defaultLimit = 100

func limitOr(n int) int {
	if n <= 0 {
		return defaultLimit
	}
	return n
}
