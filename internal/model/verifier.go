package model

import (
	"time"
)

// VerifierKind identifies one class of external check.
type VerifierKind string

const (
	KindIdentity    VerifierKind = "identity"
	KindExclusion   VerifierKind = "exclusion"
	KindLicense     VerifierKind = "license"
	KindGeo         VerifierKind = "geo"
	KindWebPresence VerifierKind = "web_presence"
)

// VerifierKinds lists every kind in collection order.
var VerifierKinds = []VerifierKind{KindIdentity, KindExclusion, KindLicense, KindGeo, KindWebPresence}

// SubmittedRank is the authority rank of values taken from the submission itself.
const SubmittedRank = 10

// SubmittedSource is the provenance name for values taken from the submission.
const SubmittedSource = "submitted"

var authorityRanks = map[VerifierKind]int{
	KindLicense:     50,
	KindIdentity:    40,
	KindExclusion:   30,
	KindGeo:         25,
	KindWebPresence: 20,
}

// AuthorityRank returns the fixed authority rank for a verifier kind.
// Unknown kinds rank with the submission.
func AuthorityRank(kind VerifierKind) int {
	if r, ok := authorityRanks[kind]; ok {
		return r
	}
	return SubmittedRank
}

// Taxonomy is one specialty classification returned by the registry.
type Taxonomy struct {
	Code        string `json:"code"`
	Description string `json:"description"`
	Primary     bool   `json:"primary"`
}

// IdentityMatch is the payload of a registry lookup.
type IdentityMatch struct {
	MatchConfidence float64    `json:"match_confidence"`
	ResultCount     int        `json:"result_count"`
	NPI             string     `json:"npi,omitempty"`
	Name            string     `json:"name,omitempty"`
	Address         string     `json:"address,omitempty"`
	Phone           string     `json:"phone,omitempty"`
	Specialties     []Taxonomy `json:"specialties,omitempty"`
	EntityType      EntityType `json:"entity_type,omitempty"`
	LastConfirmed   *time.Time `json:"last_confirmed,omitempty"`
	Freshness       *Freshness `json:"freshness,omitempty"`
}

// PrimarySpecialty returns the primary taxonomy description, or the first
// one when none is flagged primary.
func (m IdentityMatch) PrimarySpecialty() string {
	for _, t := range m.Specialties {
		if t.Primary {
			return t.Description
		}
	}
	if len(m.Specialties) > 0 {
		return m.Specialties[0].Description
	}
	return ""
}

// ExclusionDetails describes an exclusion list entry.
type ExclusionDetails struct {
	Name              string `json:"name"`
	ExclusionType     string `json:"exclusion_type"`
	ExclusionDate     string `json:"exclusion_date,omitempty"`
	ReinstatementDate string `json:"reinstatement_date,omitempty"`
	WaiverState       string `json:"waiver_state,omitempty"`
	Specialty         string `json:"specialty,omitempty"`
}

// ExclusionCheck is the payload of an exclusion list check.
type ExclusionCheck struct {
	Excluded bool              `json:"is_excluded"`
	Details  *ExclusionDetails `json:"details,omitempty"`
}

// LicenseStatus is the standing reported by a license board.
type LicenseStatus string

const (
	LicenseActive         LicenseStatus = "ACTIVE"
	LicenseExpired        LicenseStatus = "EXPIRED"
	LicenseSuspended      LicenseStatus = "SUSPENDED"
	LicenseRevoked        LicenseStatus = "REVOKED"
	LicenseProbation      LicenseStatus = "PROBATION"
	LicenseManualRequired LicenseStatus = "MANUAL_VERIFICATION_REQUIRED"
	LicenseNotFound       LicenseStatus = "NOT_FOUND"
)

// Disqualifying reports whether the status forces human review on its own.
func (s LicenseStatus) Disqualifying() bool {
	return s == LicenseSuspended || s == LicenseRevoked
}

// LicenseCheck is the payload of a license board check.
type LicenseCheck struct {
	Status              LicenseStatus `json:"status"`
	ExpirationDate      *time.Time    `json:"expiration_date,omitempty"`
	DisciplinaryActions []string      `json:"disciplinary_actions,omitempty"`
	LicenseNumber       string        `json:"license_number,omitempty"`
	State               string        `json:"state,omitempty"`
}

// GeoCheck is the payload of a facility location check.
type GeoCheck struct {
	IsMatchingFacilityType bool     `json:"is_matching_facility_type"`
	FacilityType           string   `json:"facility_type,omitempty"`
	FormattedAddress       string   `json:"formatted_address,omitempty"`
	FraudIndicators        []string `json:"fraud_indicators,omitempty"`
}

// WebPresenceCheck is the payload of a web presence check.
type WebPresenceCheck struct {
	PresenceScore float64 `json:"presence_score"`
	Rating        float64 `json:"rating,omitempty"`
	ReviewCount   int     `json:"review_count,omitempty"`
	Listing       string  `json:"listing,omitempty"`
}

// VerifierResult is the output of one verifier invocation. Exactly one
// payload pointer is set, and it matches Kind. Failed results carry no
// payload and a non-empty Error.
type VerifierResult struct {
	Kind       VerifierKind  `json:"kind"`
	Source     string        `json:"source"`
	Rank       int           `json:"rank"`
	Success    bool          `json:"success"`
	Error      string        `json:"error,omitempty"`
	Latency    time.Duration `json:"latency_ns"`
	VerifiedAt time.Time     `json:"verified_at"`

	Identity    *IdentityMatch    `json:"identity,omitempty"`
	Exclusion   *ExclusionCheck   `json:"exclusion,omitempty"`
	License     *LicenseCheck     `json:"license,omitempty"`
	Geo         *GeoCheck         `json:"geo,omitempty"`
	WebPresence *WebPresenceCheck `json:"web_presence,omitempty"`
}

func newResult(kind VerifierKind, source string, at time.Time) VerifierResult {
	return VerifierResult{
		Kind:       kind,
		Source:     source,
		Rank:       AuthorityRank(kind),
		Success:    true,
		VerifiedAt: at,
	}
}

// NewIdentityResult wraps a registry match.
func NewIdentityResult(source string, at time.Time, m IdentityMatch) VerifierResult {
	r := newResult(KindIdentity, source, at)
	r.Identity = &m
	return r
}

// NewExclusionResult wraps an exclusion check.
func NewExclusionResult(source string, at time.Time, c ExclusionCheck) VerifierResult {
	r := newResult(KindExclusion, source, at)
	r.Exclusion = &c
	return r
}

// NewLicenseResult wraps a license board check.
func NewLicenseResult(source string, at time.Time, c LicenseCheck) VerifierResult {
	r := newResult(KindLicense, source, at)
	r.License = &c
	return r
}

// NewGeoResult wraps a facility location check.
func NewGeoResult(source string, at time.Time, c GeoCheck) VerifierResult {
	r := newResult(KindGeo, source, at)
	r.Geo = &c
	return r
}

// NewWebPresenceResult wraps a web presence check.
func NewWebPresenceResult(source string, at time.Time, c WebPresenceCheck) VerifierResult {
	r := newResult(KindWebPresence, source, at)
	r.WebPresence = &c
	return r
}

// NewFailedResult records a verifier that could not produce a result.
func NewFailedResult(kind VerifierKind, source string, at time.Time, err error) VerifierResult {
	r := newResult(kind, source, at)
	r.Success = false
	r.Error = "unknown error"
	if err != nil {
		r.Error = err.Error()
	}
	return r
}

// Valid reports whether the result's payload matches its kind.
func (r VerifierResult) Valid() bool {
	set := 0
	for _, p := range []bool{r.Identity != nil, r.Exclusion != nil, r.License != nil, r.Geo != nil, r.WebPresence != nil} {
		if p {
			set++
		}
	}
	if !r.Success {
		return set == 0
	}
	if set != 1 {
		return false
	}
	switch r.Kind {
	case KindIdentity:
		return r.Identity != nil
	case KindExclusion:
		return r.Exclusion != nil
	case KindLicense:
		return r.License != nil
	case KindGeo:
		return r.Geo != nil
	case KindWebPresence:
		return r.WebPresence != nil
	}
	return false
}

// Results is the snapshot of verifier outputs for one validation run.
type Results []VerifierResult

// Get returns the successful result for kind, if any.
func (rs Results) Get(kind VerifierKind) (VerifierResult, bool) {
	for _, r := range rs {
		if r.Kind == kind && r.Success && r.Valid() {
			return r, true
		}
	}
	return VerifierResult{}, false
}

// Failed returns the kinds whose verifier reported a failure.
func (rs Results) Failed() []VerifierKind {
	var out []VerifierKind
	for _, r := range rs {
		if !r.Success {
			out = append(out, r.Kind)
		}
	}
	return out
}

// Identity returns the registry payload, if present.
func (rs Results) Identity() *IdentityMatch {
	if r, ok := rs.Get(KindIdentity); ok {
		return r.Identity
	}
	return nil
}

// Exclusion returns the exclusion payload, if present.
func (rs Results) Exclusion() *ExclusionCheck {
	if r, ok := rs.Get(KindExclusion); ok {
		return r.Exclusion
	}
	return nil
}

// License returns the license payload, if present.
func (rs Results) License() *LicenseCheck {
	if r, ok := rs.Get(KindLicense); ok {
		return r.License
	}
	return nil
}

// Geo returns the geo payload, if present.
func (rs Results) Geo() *GeoCheck {
	if r, ok := rs.Get(KindGeo); ok {
		return r.Geo
	}
	return nil
}

// WebPresence returns the web presence payload, if present.
func (rs Results) WebPresence() *WebPresenceCheck {
	if r, ok := rs.Get(KindWebPresence); ok {
		return r.WebPresence
	}
	return nil
}
