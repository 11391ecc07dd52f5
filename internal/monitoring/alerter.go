package monitoring

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/provider-validator/internal/config"
	"github.com/sells-group/provider-validator/internal/resilience"
)

// AlertType identifies the kind of alert.
type AlertType string

const (
	AlertReviewBacklog     AlertType = "review_backlog"
	AlertSourceFailureRate AlertType = "source_failure_rate"
	AlertHumanReviewRate   AlertType = "human_review_rate"
)

// minSample is the fewest calls or validations a rate alert needs.
const minSample = 5

// Alert represents a single alert to be sent.
type Alert struct {
	Type      AlertType      `json:"type"`
	Severity  string         `json:"severity"`
	Message   string         `json:"message"`
	Details   map[string]any `json:"details,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// Alerter compares a snapshot with the monitoring thresholds and posts
// breaches to a webhook.
type Alerter struct {
	cfg    config.MonitoringConfig
	client *http.Client
	retry  resilience.RetryPolicy
}

// NewAlerter creates a new Alerter with the given monitoring config.
func NewAlerter(cfg config.MonitoringConfig) *Alerter {
	return &Alerter{
		cfg:    cfg,
		client: &http.Client{Timeout: 10 * time.Second},
		retry:  resilience.RetryPolicy{Attempts: 3, Backoff: 500 * time.Millisecond, MaxBackoff: 5 * time.Second, Jitter: 0.2},
	}
}

// Evaluate checks the snapshot against thresholds and returns any alerts.
func (a *Alerter) Evaluate(snap *MetricsSnapshot) []Alert {
	var alerts []Alert
	now := time.Now().UTC()

	// Check review backlog.
	if a.cfg.PendingReviewThreshold > 0 && snap.PendingReviews > a.cfg.PendingReviewThreshold {
		alerts = append(alerts, Alert{
			Type:     AlertReviewBacklog,
			Severity: "medium",
			Message: fmt.Sprintf(
				"%d reviews pending, threshold %d",
				snap.PendingReviews, a.cfg.PendingReviewThreshold,
			),
			Details: map[string]any{
				"pending":   snap.PendingReviews,
				"threshold": a.cfg.PendingReviewThreshold,
			},
			Timestamp: now,
		})
	}

	// Check each verification source.
	for _, s := range snap.Sources {
		rate := s.FailureRate()
		if s.Calls < minSample || rate <= a.cfg.SourceFailureRateThreshold {
			continue
		}
		alerts = append(alerts, Alert{
			Type:     AlertSourceFailureRate,
			Severity: "high",
			Message: fmt.Sprintf(
				"Source %s failure rate %.1f%% exceeds threshold %.1f%% (%d failed / %d calls in last %dh)",
				s.Source, rate*100, a.cfg.SourceFailureRateThreshold*100,
				s.Failures, s.Calls, snap.LookbackHours,
			),
			Details: map[string]any{
				"source":       s.Source,
				"failure_rate": rate,
				"threshold":    a.cfg.SourceFailureRateThreshold,
				"failed":       s.Failures,
				"calls":        s.Calls,
			},
			Timestamp: now,
		})
	}

	// Check the share of records routed to people.
	if a.cfg.ReviewShareThreshold > 0 && snap.Validations >= minSample && snap.HumanReviewRate > a.cfg.ReviewShareThreshold {
		alerts = append(alerts, Alert{
			Type:     AlertHumanReviewRate,
			Severity: "medium",
			Message: fmt.Sprintf(
				"Human review rate %.1f%% exceeds threshold %.1f%% (%d of %d validations in last %dh)",
				snap.HumanReviewRate*100, a.cfg.ReviewShareThreshold*100,
				snap.HumanReview, snap.Validations, snap.LookbackHours,
			),
			Details: map[string]any{
				"review_rate": snap.HumanReviewRate,
				"threshold":   a.cfg.ReviewShareThreshold,
				"reviews":     snap.HumanReview,
				"validations": snap.Validations,
			},
			Timestamp: now,
		})
	}

	return alerts
}

// SendAlerts posts each alert to the webhook, retrying transient
// failures, and returns how many were delivered.
func (a *Alerter) SendAlerts(ctx context.Context, alerts []Alert) int {
	if a.cfg.WebhookURL == "" || len(alerts) == 0 {
		return 0
	}

	sent := 0
	for _, alert := range alerts {
		_, err := resilience.Retry(ctx, a.retry, "webhook", func(ctx context.Context) (struct{}, error) {
			return struct{}{}, a.post(ctx, alert)
		})
		if err != nil {
			zap.L().Error("monitoring: alert not delivered",
				zap.String("type", string(alert.Type)),
				zap.Error(err),
			)
			continue
		}
		sent++
	}
	return sent
}

func (a *Alerter) post(ctx context.Context, alert Alert) error {
	payload, err := json.Marshal(alert)
	if err != nil {
		return eris.Wrap(err, "monitoring: marshal alert")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.cfg.WebhookURL, bytes.NewReader(payload))
	if err != nil {
		return eris.Wrap(err, "monitoring: create webhook request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode >= 300 {
		return &resilience.StatusError{Source: "webhook", StatusCode: resp.StatusCode}
	}
	return nil
}
