package model

// FreshnessStatus buckets a decayed reliability score.
type FreshnessStatus string

const (
	FreshnessHealthy  FreshnessStatus = "HEALTHY"
	FreshnessDecaying FreshnessStatus = "DECAYING"
	FreshnessStale    FreshnessStatus = "STALE"
)

// Freshness is the decayed reliability of a fact. DaysSinceUpdate is -1
// when the confirmation date was missing or unusable.
type Freshness struct {
	Score                  float64         `json:"score"`
	Status                 FreshnessStatus `json:"status"`
	DaysSinceUpdate        int             `json:"days_since_update"`
	RecommendedRecheckDays int             `json:"recommended_recheck_days"`
	Source                 SourceType      `json:"source"`
	Entity                 EntityType      `json:"entity"`
}

// AddressAction is the reconciler's verdict on an address pair.
type AddressAction string

const (
	AddressVerified     AddressAction = "VERIFIED"
	AddressAutoCorrect  AddressAction = "AUTO_CORRECT"
	AddressFlag         AddressAction = "FLAG"
	AddressManualReview AddressAction = "NEEDS_MANUAL_REVIEW"
)

// AddressVerdict is the output of address reconciliation.
type AddressVerdict struct {
	Action         AddressAction `json:"action"`
	Reason         string        `json:"reason"`
	CorrectedValue string        `json:"corrected_value,omitempty"`
	Confidence     float64       `json:"confidence,omitempty"`
	Authority      string        `json:"authority,omitempty"`
}

// Severity grades a QA flag.
type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityWarning  Severity = "warning"
)

// QAFlag is one quality issue found while validating.
type QAFlag struct {
	Severity Severity `json:"severity"`
	Code     string   `json:"code"`
	Message  string   `json:"message"`
}

// QASignals collects the non-verifier inputs to scoring.
type QASignals struct {
	Flags             []QAFlag        `json:"flags,omitempty"`
	FraudIndicators   []string        `json:"fraud_indicators,omitempty"`
	SynthesisDegraded bool            `json:"synthesis_degraded"`
	Address           *AddressVerdict `json:"address,omitempty"`
	Freshness         *Freshness      `json:"freshness,omitempty"`
}

// Count returns how many flags have the given severity.
func (q QASignals) Count(s Severity) int {
	n := 0
	for _, f := range q.Flags {
		if f.Severity == s {
			n++
		}
	}
	return n
}

// Add appends a flag.
func (q *QASignals) Add(s Severity, code, msg string) {
	q.Flags = append(q.Flags, QAFlag{Severity: s, Code: code, Message: msg})
}
