// Package arbitrate merges a submitted provider record with authoritative
// verifier values into a golden record with per-field provenance.
package arbitrate

import (
	"github.com/sells-group/provider-validator/internal/model"
)

// Arbitrate builds the golden record. The seed supplies every field; each
// conflict replaces its field with the highest-ranked candidate. Ties go to
// the most recently verified candidate, then to the first listed. Conflicts
// with no candidates, or on fields outside the golden set, are ignored.
func Arbitrate(seed model.SubmittedRecord, conflicts []model.FieldConflict) model.GoldenRecord {
	return ArbitrateWith(seed, nil, conflicts)
}

// ArbitrateWith applies reconciler auto-corrections to the seed before any
// conflict is considered, then arbitrates.
func ArbitrateWith(seed model.SubmittedRecord, corrections []model.Correction, conflicts []model.FieldConflict) model.GoldenRecord {
	g := standardSynthesis(seed)
	for _, c := range corrections {
		if _, ok := g.Fields[c.Field]; !ok {
			continue
		}
		g.Fields[c.Field] = model.FieldValue{Value: c.To, Source: c.Source, Rank: c.Rank}
		g.Corrections = append(g.Corrections, c)
	}
	if len(conflicts) == 0 {
		return g
	}

	g.Synthesis = model.SynthesisArbitrated
	for _, c := range conflicts {
		if _, ok := g.Fields[c.Field]; !ok || len(c.Candidates) == 0 {
			continue
		}
		winner, rule := pick(c.Candidates)
		g.Fields[c.Field] = model.FieldValue{Value: winner.Value, Source: winner.Source, Rank: winner.Rank}
		g.Provenance = append(g.Provenance, model.ProvenanceEntry{
			Field:      c.Field,
			Winner:     winner,
			Candidates: append([]model.Candidate(nil), c.Candidates...),
			Rule:       rule,
		})
	}
	return g
}

// standardSynthesis copies the seed into a golden record unchanged. It is
// the common path: no source disagreed with the submission.
func standardSynthesis(seed model.SubmittedRecord) model.GoldenRecord {
	fields := make(map[model.Field]model.FieldValue, len(model.GoldenFields))
	for _, f := range model.GoldenFields {
		fields[f] = model.FieldValue{
			Value:  seed.Value(f),
			Source: model.SubmittedSource,
			Rank:   model.SubmittedRank,
		}
	}
	return model.GoldenRecord{
		Fields:         fields,
		Synthesis:      model.SynthesisStandard,
		Education:      seed.Education,
		Certifications: seed.Certifications,
		Languages:      seed.Languages,
		Insurance:      seed.Insurance,
	}
}

func pick(cands []model.Candidate) (model.Candidate, string) {
	best := 0
	for i := 1; i < len(cands); i++ {
		c, b := cands[i], cands[best]
		if c.Rank > b.Rank || (c.Rank == b.Rank && c.VerifiedAt.After(b.VerifiedAt)) {
			best = i
		}
	}

	w := cands[best]
	rule := model.RuleAuthorityRank
	for i, c := range cands {
		if i == best || c.Rank != w.Rank {
			continue
		}
		if c.VerifiedAt.Equal(w.VerifiedAt) {
			return w, model.RuleFirstListed
		}
		rule = model.RuleRecency
	}
	return w, rule
}

// AddressCorrection turns an AUTO_CORRECT verdict into a correction of the
// submitted address. Other verdicts yield nothing.
func AddressCorrection(rec model.SubmittedRecord, v *model.AddressVerdict, authorityRank int) []model.Correction {
	if v == nil || v.Action != model.AddressAutoCorrect || v.CorrectedValue == "" {
		return nil
	}
	return []model.Correction{{
		Field:      model.FieldAddress,
		From:       rec.AddressLine(),
		To:         v.CorrectedValue,
		Source:     v.Authority,
		Rank:       authorityRank,
		Confidence: v.Confidence,
		Reason:     v.Reason,
	}}
}
