package model

import "time"

// ReviewStatus is the lifecycle state of a review queue entry.
type ReviewStatus string

const (
	ReviewPending  ReviewStatus = "PENDING"
	ReviewApproved ReviewStatus = "APPROVED"
	ReviewRejected ReviewStatus = "REJECTED"
)

// Valid reports whether s is a known status.
func (s ReviewStatus) Valid() bool {
	return s == ReviewPending || s == ReviewApproved || s == ReviewRejected
}

// ReviewPriority orders the review queue.
type ReviewPriority string

const (
	PriorityHigh   ReviewPriority = "HIGH"
	PriorityNormal ReviewPriority = "NORMAL"
	PriorityLow    ReviewPriority = "LOW"
)

// Rank orders priorities, highest first.
func (p ReviewPriority) Rank() int {
	switch p {
	case PriorityHigh:
		return 3
	case PriorityNormal:
		return 2
	case PriorityLow:
		return 1
	}
	return 0
}

// ReviewItem is one entry in the human review queue.
type ReviewItem struct {
	ID              string         `json:"id"`
	ValidationID    string         `json:"validation_id"`
	NPI             string         `json:"npi,omitempty"`
	ProviderName    string         `json:"provider_name"`
	Score           float64        `json:"score"`
	Tier            string         `json:"tier"`
	Priority        ReviewPriority `json:"priority"`
	Status          ReviewStatus   `json:"status"`
	Reason          string         `json:"reason"`
	Flags           []QAFlag       `json:"flags,omitempty"`
	FraudIndicators []string       `json:"fraud_indicators,omitempty"`
	Reviewer        string         `json:"reviewer,omitempty"`
	Notes           string         `json:"notes,omitempty"`
	CreatedAt       time.Time      `json:"created_at"`
	ReviewedAt      *time.Time     `json:"reviewed_at,omitempty"`
}

// Validation is the full output of one validation run.
type Validation struct {
	ID        string              `json:"id"`
	Record    SubmittedRecord     `json:"record"`
	Results   Results             `json:"results"`
	Golden    GoldenRecord        `json:"golden"`
	QA        QASignals           `json:"qa"`
	Breakdown ConfidenceBreakdown `json:"breakdown"`
	Summary   string              `json:"summary,omitempty"`
	StartedAt time.Time           `json:"started_at"`
	Duration  time.Duration       `json:"duration_ns"`
	ReviewID  string              `json:"review_id,omitempty"`
}

// ProviderRecord is a persisted golden record.
type ProviderRecord struct {
	NPI             string              `json:"npi"`
	Name            string              `json:"name"`
	Address         string              `json:"address,omitempty"`
	State           string              `json:"state,omitempty"`
	Phone           string              `json:"phone,omitempty"`
	Website         string              `json:"website,omitempty"`
	Specialty       string              `json:"specialty,omitempty"`
	LicenseNumber   string              `json:"license_number,omitempty"`
	LicenseStatus   LicenseStatus       `json:"license_status,omitempty"`
	Excluded        bool                `json:"excluded"`
	Score           float64             `json:"score"`
	Tier            string              `json:"tier"`
	Path            Path                `json:"path"`
	Golden          GoldenRecord        `json:"golden"`
	Breakdown       ConfidenceBreakdown `json:"breakdown"`
	FraudIndicators []string            `json:"fraud_indicators,omitempty"`
	LastValidation  string              `json:"last_validation_id"`
	CreatedAt       time.Time           `json:"created_at"`
	UpdatedAt       time.Time           `json:"updated_at"`
}

// HistoryEntry is one past validation of a provider.
type HistoryEntry struct {
	ValidationID string    `json:"validation_id"`
	NPI          string    `json:"npi"`
	Score        float64   `json:"score"`
	Tier         string    `json:"tier"`
	Path         Path      `json:"path"`
	Summary      string    `json:"summary,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

// SourceLog is one verifier call, kept for source reliability reporting.
type SourceLog struct {
	ValidationID string       `json:"validation_id"`
	Kind         VerifierKind `json:"kind"`
	Source       string       `json:"source"`
	LatencyMS    int64        `json:"latency_ms"`
	Success      bool         `json:"success"`
	Error        string       `json:"error,omitempty"`
	CreatedAt    time.Time    `json:"created_at"`
}
