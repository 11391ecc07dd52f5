package arbitrate

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/provider-validator/internal/model"
)

func identity(m model.IdentityMatch) model.VerifierResult {
	return model.NewIdentityResult("nppes", t1, m)
}

func TestDetect_PhoneConflict(t *testing.T) {
	seed := seedRecord()
	results := model.Results{identity(model.IdentityMatch{MatchConfidence: 1, ResultCount: 1, Phone: "(555) 010-0999"})}

	got := Detect(seed, results, Policy{})
	require.Len(t, got, 1)
	assert.Equal(t, model.FieldPhone, got[0].Field)
	assert.Equal(t, "(555) 010-0999", got[0].Candidates[1].Value)
	assert.Equal(t, 40, got[0].Candidates[1].Rank)

	g := Arbitrate(seed, got)
	assert.Equal(t, "(555) 010-0999", g.Value(model.FieldPhone))
}

func TestDetect_SamePhoneDifferentFormatting(t *testing.T) {
	seed := seedRecord()
	seed.Phone = "217-555-0100"
	results := model.Results{identity(model.IdentityMatch{ResultCount: 1, Phone: "+1 (217) 555 0100"})}
	assert.Empty(t, Detect(seed, results, Policy{}))
}

func TestDetect_AmbiguousIdentityIgnored(t *testing.T) {
	results := model.Results{identity(model.IdentityMatch{MatchConfidence: 0.7, ResultCount: 3, Phone: "999"})}
	assert.Empty(t, Detect(seedRecord(), results, Policy{}))
}

func TestDetect_FillsMissingNPI(t *testing.T) {
	seed := seedRecord()
	seed.NPI = ""
	results := model.Results{identity(model.IdentityMatch{ResultCount: 1, NPI: "1999999999"})}

	got := Detect(seed, results, Policy{})
	require.Len(t, got, 1)
	assert.Equal(t, model.FieldNPI, got[0].Field)
}

func TestDetect_SpecialtyBehindPolicy(t *testing.T) {
	seed := seedRecord()
	seed.Specialty = "Dermatology"
	results := model.Results{identity(model.IdentityMatch{
		ResultCount: 1,
		Specialties: []model.Taxonomy{{Code: "207RC0000X", Description: "Cardiovascular Disease", Primary: true}},
	})}

	assert.Empty(t, Detect(seed, results, Policy{}))

	got := Detect(seed, results, Policy{AutoCorrectSpecialty: true})
	require.Len(t, got, 1)
	assert.Equal(t, model.FieldSpecialty, got[0].Field)
}

func TestDetect_LicenseNumber(t *testing.T) {
	seed := seedRecord()
	results := model.Results{model.NewLicenseResult("ca-board", t1, model.LicenseCheck{Status: model.LicenseActive, LicenseNumber: "A-124"})}

	got := Detect(seed, results, Policy{})
	require.Len(t, got, 1)
	assert.Equal(t, model.FieldLicenseNumber, got[0].Field)
	assert.Equal(t, 50, got[0].Candidates[1].Rank)

	seed.LicenseNumber = "a 124"
	assert.Empty(t, Detect(seed, results, Policy{}))
}

func TestDetect_FailedResultsIgnored(t *testing.T) {
	results := model.Results{model.NewFailedResult(model.KindIdentity, "nppes", t1, nil)}
	assert.Empty(t, Detect(seedRecord(), results, Policy{AutoCorrectSpecialty: true}))
}

func TestSpecialtyMatches(t *testing.T) {
	tests := []struct {
		a, b string
		want bool
	}{
		{"Cardiology", "Cardiology", true},
		{"cardiologist", "Cardiology", true},
		{"Internal Medicine", "Internal Medicine, Cardiovascular Disease", true},
		{"Pediatrics", "Pediatric Cardiology", true},
		{"Dermatology", "Cardiovascular Disease", false},
		{"Family Medicine", "Internal Medicine", false},
		{"", "Cardiology", false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, SpecialtyMatches(tt.a, tt.b), "%q vs %q", tt.a, tt.b)
	}
}
