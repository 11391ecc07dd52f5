package model

import "time"

// Field names a golden record field.
type Field string

const (
	FieldName          Field = "name"
	FieldNPI           Field = "npi"
	FieldAddress       Field = "address"
	FieldPhone         Field = "phone"
	FieldWebsite       Field = "website"
	FieldSpecialty     Field = "specialty"
	FieldLicenseNumber Field = "license_number"
)

// GoldenFields lists every field carried from the submission into the golden record.
var GoldenFields = []Field{FieldName, FieldNPI, FieldAddress, FieldPhone, FieldWebsite, FieldSpecialty, FieldLicenseNumber}

// Value returns the submitted value for a golden field.
func (r SubmittedRecord) Value(f Field) string {
	switch f {
	case FieldName:
		return r.FullName
	case FieldNPI:
		return r.NPI
	case FieldAddress:
		return r.AddressLine()
	case FieldPhone:
		return r.Phone
	case FieldWebsite:
		return r.Website
	case FieldSpecialty:
		return r.Specialty
	case FieldLicenseNumber:
		return r.LicenseNumber
	}
	return ""
}

// Candidate is one source's value for a contested field.
type Candidate struct {
	Value      string    `json:"value"`
	Source     string    `json:"source"`
	Rank       int       `json:"rank"`
	VerifiedAt time.Time `json:"verified_at,omitempty"`
}

// FieldConflict is one contested field with two or more candidates.
type FieldConflict struct {
	Field      Field       `json:"field"`
	Candidates []Candidate `json:"candidates"`
}

// Correction records an auto-correction applied before arbitration.
type Correction struct {
	Field      Field   `json:"field"`
	From       string  `json:"from"`
	To         string  `json:"to"`
	Source     string  `json:"source"`
	Rank       int     `json:"rank"`
	Confidence float64 `json:"confidence"`
	Reason     string  `json:"reason"`
}

// FieldValue is a golden record value annotated with where it came from.
type FieldValue struct {
	Value  string `json:"value"`
	Source string `json:"source"`
	Rank   int    `json:"rank"`
}

// Arbitration rules recorded in provenance.
const (
	RuleAuthorityRank = "authority_rank"
	RuleRecency       = "recency"
	RuleFirstListed   = "first_listed"
)

// ProvenanceEntry is the audit trail for one arbitrated field.
type ProvenanceEntry struct {
	Field      Field       `json:"field"`
	Winner     Candidate   `json:"winner"`
	Candidates []Candidate `json:"candidates"`
	Rule       string      `json:"rule"`
}

// Synthesis modes.
const (
	SynthesisStandard   = "standard"
	SynthesisArbitrated = "arbitrated"
)

// GoldenRecord is the reconciled provider record. Every golden field holds
// exactly one value; fields without an authoritative alternative keep the
// submitted value.
type GoldenRecord struct {
	Fields      map[Field]FieldValue `json:"fields"`
	Provenance  []ProvenanceEntry    `json:"provenance,omitempty"`
	Corrections []Correction         `json:"corrections,omitempty"`
	Synthesis   string               `json:"synthesis"`

	// Enrichment data carried through from the submission.
	Education      []string `json:"education,omitempty"`
	Certifications []string `json:"certifications,omitempty"`
	Languages      []string `json:"languages,omitempty"`
	Insurance      []string `json:"insurance,omitempty"`
}

// Value returns the golden value for a field.
func (g GoldenRecord) Value(f Field) string {
	return g.Fields[f].Value
}

// Source returns which source supplied a field.
func (g GoldenRecord) Source(f Field) string {
	return g.Fields[f].Source
}
