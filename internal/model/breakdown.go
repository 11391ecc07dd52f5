package model

// Dimension names one scoring dimension.
type Dimension string

const (
	DimIdentity     Dimension = "identity"
	DimAddress      Dimension = "address"
	DimCompleteness Dimension = "completeness"
	DimFreshness    Dimension = "freshness"
	DimEnrichment   Dimension = "enrichment"
	DimRisk         Dimension = "risk"
)

// Dimensions lists the scoring dimensions in report order.
var Dimensions = []Dimension{DimIdentity, DimAddress, DimCompleteness, DimFreshness, DimEnrichment, DimRisk}

// DimensionScore is one dimension's raw value and weighted contribution.
type DimensionScore struct {
	Dimension    Dimension `json:"dimension"`
	Raw          float64   `json:"raw"`
	Weight       float64   `json:"weight"`
	Contribution float64   `json:"contribution"`
}

// Path is the routing decision for a scored record.
type Path string

const (
	PathAutoApprove      Path = "auto-approve"
	PathMonitoredApprove Path = "auto-approve-with-monitoring"
	PathHumanReview      Path = "human-review"
)

// ReviewDecision says whether a person must look at the record, and why.
type ReviewDecision struct {
	NeedsReview bool   `json:"needs_human_review"`
	Reason      string `json:"reason,omitempty"`
}

// ConfidenceBreakdown is the scorer's output.
type ConfidenceBreakdown struct {
	Dimensions     []DimensionScore `json:"dimensions"`
	Score          float64          `json:"score"`
	Tier           string           `json:"tier"`
	Path           Path             `json:"path"`
	Reasons        []string         `json:"reasons"`
	WeightsVersion string           `json:"weights_version"`
	Override       string           `json:"override,omitempty"`
	Decision       ReviewDecision   `json:"decision"`
}

// Dimension returns the score for d.
func (b ConfidenceBreakdown) Dimension(d Dimension) DimensionScore {
	for _, s := range b.Dimensions {
		if s.Dimension == d {
			return s
		}
	}
	return DimensionScore{Dimension: d}
}
