package arbitrate

import (
	"strings"

	"github.com/sells-group/provider-validator/internal/model"
	"github.com/sells-group/provider-validator/internal/normalize"
)

// Policy controls which disagreements become arbitration conflicts.
type Policy struct {
	// AutoCorrectSpecialty lets the registry taxonomy replace the submitted
	// specialty. Off by default: specialty has no safety gate like the
	// address house number and zip.
	AutoCorrectSpecialty bool `yaml:"auto_correct_specialty" mapstructure:"auto_correct_specialty"`
}

// Detect compares the seed with verifier payloads and returns one conflict
// per disagreeing field. Addresses are never returned here; they go through
// the address reconciler.
func Detect(seed model.SubmittedRecord, results model.Results, p Policy) []model.FieldConflict {
	var out []model.FieldConflict

	if r, ok := results.Get(model.KindIdentity); ok && r.Identity.ResultCount == 1 {
		id := r.Identity
		if seed.NPI == "" && id.NPI != "" {
			out = append(out, conflict(model.FieldNPI, seed.NPI, r, id.NPI))
		}
		if id.Phone != "" && normalize.Phone(id.Phone) != normalize.Phone(seed.Phone) {
			out = append(out, conflict(model.FieldPhone, seed.Phone, r, id.Phone))
		}
		if primary := id.PrimarySpecialty(); p.AutoCorrectSpecialty && primary != "" && !SpecialtyMatches(seed.Specialty, primary) {
			out = append(out, conflict(model.FieldSpecialty, seed.Specialty, r, primary))
		}
	}

	if r, ok := results.Get(model.KindLicense); ok && r.License.LicenseNumber != "" {
		if normalize.Identifier(r.License.LicenseNumber) != normalize.Identifier(seed.LicenseNumber) {
			out = append(out, conflict(model.FieldLicenseNumber, seed.LicenseNumber, r, r.License.LicenseNumber))
		}
	}
	return out
}

func conflict(f model.Field, submitted string, r model.VerifierResult, value string) model.FieldConflict {
	return model.FieldConflict{
		Field: f,
		Candidates: []model.Candidate{
			{Value: submitted, Source: model.SubmittedSource, Rank: model.SubmittedRank},
			{Value: value, Source: r.Source, Rank: r.Rank, VerifiedAt: r.VerifiedAt},
		},
	}
}

// SpecialtyMatches reports whether two specialty descriptions plausibly name
// the same thing: containment either way, a shared significant word, or a
// close spelling.
func SpecialtyMatches(submitted, registry string) bool {
	a := strings.ToLower(strings.TrimSpace(normalize.Fold(submitted)))
	b := strings.ToLower(strings.TrimSpace(normalize.Fold(registry)))
	if a == "" || b == "" {
		return a == b
	}
	if strings.Contains(a, b) || strings.Contains(b, a) {
		return true
	}
	if normalize.Ratio(a, b) >= 80 {
		return true
	}
	words := make(map[string]bool)
	for _, w := range strings.FieldsFunc(a, splitWord) {
		if len(w) > 4 && !genericWords[w] {
			words[stem(w)] = true
		}
	}
	for _, w := range strings.FieldsFunc(b, splitWord) {
		if len(w) > 4 && !genericWords[w] && words[stem(w)] {
			return true
		}
	}
	return false
}

// genericWords appear in many unrelated specialties.
var genericWords = map[string]bool{
	"medicine": true, "surgery": true, "health": true, "clinic": true, "practice": true,
	"physician": true, "services": true, "general": true, "specialist": true, "nurse": true,
	"practitioner": true, "therapy": true, "center": true,
}

func splitWord(r rune) bool {
	return r == ' ' || r == ',' || r == '/' || r == '-' || r == '&' || r == '(' || r == ')'
}

// stem trims common specialty endings so "cardiology" and "cardiologist"
// compare equal.
func stem(w string) string {
	for _, suf := range []string{"ology", "ologist", "ics", "ic", "ist", "y"} {
		if strings.HasSuffix(w, suf) && len(w)-len(suf) >= 4 {
			return strings.TrimSuffix(w, suf)
		}
	}
	return w
}
