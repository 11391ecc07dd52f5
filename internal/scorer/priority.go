package scorer

import "github.com/sells-group/provider-validator/internal/model"

// Review priority thresholds.
const (
	HighPriorityBelow   = 0.5
	NormalPriorityBelow = 0.65
)

// PriorityFor ranks a review item. Overrides, fraud indicators and very low
// scores go first.
func PriorityFor(b model.ConfidenceBreakdown, qa model.QASignals) model.ReviewPriority {
	switch {
	case b.Override != "", len(qa.FraudIndicators) > 0, b.Score < HighPriorityBelow:
		return model.PriorityHigh
	case b.Score < NormalPriorityBelow:
		return model.PriorityNormal
	}
	return model.PriorityLow
}
