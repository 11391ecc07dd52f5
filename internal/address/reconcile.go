package address

import (
	"fmt"
	"math"

	"github.com/sells-group/provider-validator/internal/model"
	"github.com/sells-group/provider-validator/internal/normalize"
)

const (
	// AutoCorrectMin is the lowest street similarity that may be auto-corrected.
	AutoCorrectMin = 80
	exactMatch     = 100
)

// Verdict is the reconciler's decision for one address pair.
type Verdict = model.AddressVerdict

// Reconcile compares a submitted address with an authoritative one. House
// number and zip must agree before any fuzzy street comparison runs; a
// mismatch on either is a different address, never a typo. Parse failures
// are reported as NEEDS_MANUAL_REVIEW and never corrected.
func Reconcile(submitted, authoritative string) (v Verdict) {
	defer func() {
		if r := recover(); r != nil {
			v = Verdict{
				Action: model.AddressManualReview,
				Reason: fmt.Sprintf("unparseable format: %v", r),
			}
		}
	}()

	sub, err := Parse(submitted)
	if err != nil {
		return Verdict{Action: model.AddressManualReview, Reason: "unparseable format: " + err.Error()}
	}
	auth, err := Parse(authoritative)
	if err != nil {
		return Verdict{Action: model.AddressManualReview, Reason: "unparseable format: " + err.Error()}
	}

	if sub.Number != auth.Number {
		return Verdict{
			Action: model.AddressFlag,
			Reason: fmt.Sprintf("CRITICAL: House Number Mismatch (%s vs %s). Auto-correction unsafe.", sub.Number, auth.Number),
		}
	}
	if sub.Zip != "" && auth.Zip != "" && sub.Zip != auth.Zip {
		return Verdict{
			Action: model.AddressFlag,
			Reason: fmt.Sprintf("CRITICAL: Zip Code Mismatch (%s vs %s). Auto-correction unsafe.", sub.Zip, auth.Zip),
		}
	}

	sim := StreetSimilarity(sub, auth)
	switch {
	case sim == exactMatch:
		return Verdict{Action: model.AddressVerified, Reason: "exact match (number, zip and street agree)"}
	case sim >= AutoCorrectMin:
		return Verdict{
			Action:         model.AddressAutoCorrect,
			Reason:         fmt.Sprintf("safe typo correction (number/zip verified, street similarity %d)", sim),
			CorrectedValue: authoritative,
			Confidence:     float64(sim) / 100,
		}
	default:
		return Verdict{
			Action: model.AddressFlag,
			Reason: fmt.Sprintf("street name too different (similarity %d)", sim),
		}
	}
}

// StreetSimilarity scores the street name and type on a 0..100 scale: the
// mean of the literal and USPS-canonical indel ratios. Only identical
// literal text scores 100, while a suffix spelled out on one side still
// lands in the correctable band.
func StreetSimilarity(a, b Components) int {
	if a.Street() == b.Street() {
		return exactMatch
	}
	literal := normalize.Ratio(a.Street(), b.Street())
	canonical := normalize.Ratio(a.CanonicalStreet(), b.CanonicalStreet())
	return min(int(math.Round(float64(literal+canonical)/2)), exactMatch-1)
}

// Similarity parses both addresses and returns their street similarity, or
// 0 when either cannot be parsed.
func Similarity(a, b string) int {
	pa, err := Parse(a)
	if err != nil {
		return 0
	}
	pb, err := Parse(b)
	if err != nil {
		return 0
	}
	return StreetSimilarity(pa, pb)
}
