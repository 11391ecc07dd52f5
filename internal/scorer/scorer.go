package scorer

import (
	"fmt"
	"math"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/provider-validator/internal/model"
)

// Address raw values per reconciler action.
var addressRaw = map[model.AddressAction]float64{
	model.AddressVerified:     1.0,
	model.AddressAutoCorrect:  0.65,
	model.AddressFlag:         0.35,
	model.AddressManualReview: 0.35,
}

const (
	geoFacilityBonus = 0.10

	criticalPenalty    = 0.25
	criticalPenaltyCap = 0.6
	warningPenalty     = 0.1
	warningPenaltyCap  = 0.3
	degradedPenalty    = 0.2

	enrichmentCredit = 0.25

	// addressUnreliable is the raw address value below which the address is
	// named as the review reason.
	addressUnreliable = 0.5
)

// ReasonBelowThreshold is the generic review reason.
const ReasonBelowThreshold = "confidence below threshold"

// ReasonExclusionUnavailable marks a record whose exclusion check failed or
// never ran.
const ReasonExclusionUnavailable = "exclusion check unavailable"

// Config configures a Scorer.
type Config struct {
	Weights WeightTable
	Tiers   []TierRule
}

// Scorer computes confidence breakdowns. It holds no mutable state and is
// safe for concurrent use.
type Scorer struct {
	weights WeightTable
	tiers   []TierRule
}

// New validates cfg and returns a Scorer. Zero-valued weights or tiers fall
// back to the defaults.
func New(cfg Config) (*Scorer, error) {
	w := cfg.Weights
	if w == (WeightTable{}) {
		w = DefaultWeights()
	}
	if err := w.Validate(); err != nil {
		return nil, err
	}
	tiers := cfg.Tiers
	if len(tiers) == 0 {
		tiers = DefaultTiers()
	}
	if err := ValidateTiers(tiers); err != nil {
		return nil, err
	}
	return &Scorer{weights: w, tiers: append([]TierRule(nil), tiers...)}, nil
}

// Default returns a Scorer with the built-in weights and tiers.
func Default() *Scorer {
	s, err := New(Config{})
	if err != nil {
		panic(eris.Wrap(err, "scorer: built-in config"))
	}
	return s
}

// Weights returns the active weight table.
func (s *Scorer) Weights() WeightTable { return s.weights }

// Tiers returns a copy of the active tier rules.
func (s *Scorer) Tiers() []TierRule { return append([]TierRule(nil), s.tiers...) }

// Score combines the golden record, verifier results and QA signals into a
// breakdown. Missing results score their dimension at its floor.
func (s *Scorer) Score(g model.GoldenRecord, results model.Results, qa model.QASignals) model.ConfidenceBreakdown {
	var reasons []string
	override := overrideReason(results)

	identity, why := identityRaw(results)
	reasons = append(reasons, why)

	address, why := addressScore(qa.Address, results.Geo())
	reasons = append(reasons, why)

	completeness, why := completenessRaw(g)
	reasons = append(reasons, why)

	fresh, why := freshnessRaw(qa.Freshness)
	reasons = append(reasons, why)

	enrichment, why := enrichmentRaw(g)
	reasons = append(reasons, why)

	risk, why := riskRaw(qa)
	reasons = append(reasons, why)

	raws := map[model.Dimension]float64{
		model.DimIdentity:     identity,
		model.DimAddress:      address,
		model.DimCompleteness: completeness,
		model.DimFreshness:    fresh,
		model.DimEnrichment:   enrichment,
		model.DimRisk:         risk,
	}

	b := model.ConfidenceBreakdown{WeightsVersion: s.weights.Version, Override: override}
	var total float64
	for _, d := range model.Dimensions {
		raw := clamp(raws[d])
		w := s.weights.Weight(d)
		b.Dimensions = append(b.Dimensions, model.DimensionScore{
			Dimension:    d,
			Raw:          round(raw, 4),
			Weight:       w,
			Contribution: raw * w,
		})
		total += raw * w
	}
	b.Score = round(clamp(total), 3)
	settleContributions(b.Dimensions, b.Score)

	rule := s.tierFor(b.Score)
	if override != "" {
		rule = s.tiers[len(s.tiers)-1]
		reasons = append([]string{"override: " + override}, reasons...)
	}
	b.Tier = rule.Tier
	b.Path = rule.Path
	b.Reasons = reasons

	if b.Path == model.PathHumanReview {
		b.Decision = model.ReviewDecision{
			NeedsReview: true,
			Reason:      decisionReason(override, results, qa, address, b.Score, s.tiers),
		}
	}
	return b
}

func (s *Scorer) tierFor(score float64) TierRule {
	for _, r := range s.tiers {
		if score >= r.Min {
			return r
		}
	}
	return s.tiers[len(s.tiers)-1]
}

// overrideReason reports a hard business-rule override, if any.
func overrideReason(results model.Results) string {
	if ex := results.Exclusion(); ex != nil && ex.Excluded {
		msg := "provider is on the exclusion list"
		if ex.Details != nil && ex.Details.ExclusionType != "" {
			msg += " (" + ex.Details.ExclusionType + ")"
		}
		return msg
	}
	if lic := results.License(); lic != nil && lic.Status.Disqualifying() {
		return fmt.Sprintf("license %s by state board", lic.Status)
	}
	if results.Exclusion() == nil {
		return ReasonExclusionUnavailable
	}
	return ""
}

// settleContributions moves the rounding residue of score onto the largest
// contribution so the contributions add up to the reported score.
func settleContributions(dims []model.DimensionScore, score float64) {
	if len(dims) == 0 {
		return
	}
	var sum float64
	top := 0
	for i, d := range dims {
		sum += d.Contribution
		if d.Contribution > dims[top].Contribution {
			top = i
		}
	}
	dims[top].Contribution += score - sum
}

func identityRaw(results model.Results) (float64, string) {
	if ex := results.Exclusion(); ex != nil && ex.Excluded {
		return 0, "identity: zeroed by exclusion list hit"
	}
	if results.Exclusion() == nil {
		return 0, "identity: zeroed, " + ReasonExclusionUnavailable
	}
	id := results.Identity()
	if id == nil {
		return 0, "identity: no registry result"
	}
	switch {
	case id.ResultCount == 0 || id.MatchConfidence <= 0:
		return 0, "identity: no registry match"
	case id.ResultCount > 1:
		return id.MatchConfidence, fmt.Sprintf("identity: %d registry candidates (%.2f)", id.ResultCount, id.MatchConfidence)
	}
	return id.MatchConfidence, fmt.Sprintf("identity: single registry match (%.2f)", id.MatchConfidence)
}

func addressScore(v *model.AddressVerdict, geo *model.GeoCheck) (float64, string) {
	raw := 0.0
	why := "address: no reconciliation"
	if v != nil {
		raw = addressRaw[v.Action]
		why = fmt.Sprintf("address: %s", v.Action)
	}
	if geo != nil && geo.IsMatchingFacilityType {
		raw = math.Min(raw+geoFacilityBonus, 1)
		why += " + medical facility"
	}
	return raw, why
}

func completenessRaw(g model.GoldenRecord) (float64, string) {
	present := func(f model.Field) bool { return strings.TrimSpace(g.Value(f)) != "" }
	checks := []struct {
		name string
		ok   bool
	}{
		{"name", present(model.FieldName)},
		{"npi", present(model.FieldNPI)},
		{"specialty", present(model.FieldSpecialty)},
		{"address", fullAddress(g.Value(model.FieldAddress))},
		{"phone", present(model.FieldPhone)},
		{"website_or_license", present(model.FieldWebsite) || present(model.FieldLicenseNumber)},
	}
	var missing []string
	for _, c := range checks {
		if !c.ok {
			missing = append(missing, c.name)
		}
	}
	raw := float64(len(checks)-len(missing)) / float64(len(checks))
	if len(missing) == 0 {
		return raw, "completeness: all required fields present"
	}
	return raw, "completeness: missing " + strings.Join(missing, ", ")
}

// fullAddress reports whether a rendered address line carries a street, a
// city and a state/zip part.
func fullAddress(line string) bool {
	parts := strings.Split(line, ",")
	if len(parts) < 3 {
		return false
	}
	for _, p := range parts {
		if strings.TrimSpace(p) == "" {
			return false
		}
	}
	return true
}

func freshnessRaw(f *model.Freshness) (float64, string) {
	if f == nil {
		return 0, "freshness: unknown"
	}
	if f.DaysSinceUpdate < 0 {
		return f.Score, fmt.Sprintf("freshness: %s (no usable date)", f.Status)
	}
	return f.Score, fmt.Sprintf("freshness: %s (%d days)", f.Status, f.DaysSinceUpdate)
}

func enrichmentRaw(g model.GoldenRecord) (float64, string) {
	var have []string
	if strings.TrimSpace(g.Value(model.FieldWebsite)) != "" {
		have = append(have, "website")
	}
	if len(g.Education) > 0 {
		have = append(have, "education")
	}
	if len(g.Certifications) > 0 {
		have = append(have, "certifications")
	}
	if len(g.Languages) > 0 || len(g.Insurance) > 0 {
		have = append(have, "languages/insurance")
	}
	raw := math.Min(float64(len(have))*enrichmentCredit, 1)
	if len(have) == 0 {
		return raw, "enrichment: none"
	}
	return raw, "enrichment: " + strings.Join(have, ", ")
}

func riskRaw(qa model.QASignals) (float64, string) {
	critical := qa.Count(model.SeverityCritical) + len(qa.FraudIndicators)
	warnings := qa.Count(model.SeverityWarning)

	raw := 1.0
	raw -= math.Min(criticalPenalty*float64(critical), criticalPenaltyCap)
	raw -= math.Min(warningPenalty*float64(warnings), warningPenaltyCap)
	if qa.SynthesisDegraded {
		raw -= degradedPenalty
	}
	raw = math.Max(raw, 0)

	why := fmt.Sprintf("risk: %d critical, %d warning", critical, warnings)
	if qa.SynthesisDegraded {
		why += ", degraded synthesis"
	}
	return raw, why
}

// decisionReason picks one review reason: primary-source failure, then
// fraud, then an unreliable address, then the generic threshold reason.
func decisionReason(override string, results model.Results, qa model.QASignals, address, score float64, tiers []TierRule) string {
	if override != "" && override != ReasonExclusionUnavailable {
		return "primary source failure: " + override
	}
	if id := results.Identity(); id == nil || id.ResultCount == 0 || id.MatchConfidence <= 0 {
		for _, k := range results.Failed() {
			if k == model.KindIdentity {
				return "primary source failure: registry lookup failed"
			}
		}
		return "primary source failure: no registry match"
	}
	if override != "" {
		return "primary source failure: " + override
	}
	if len(qa.FraudIndicators) > 0 {
		return "fraud indicator: " + qa.FraudIndicators[0]
	}
	if address < addressUnreliable {
		if qa.Address != nil && qa.Address.Reason != "" {
			return "address unreliable: " + qa.Address.Reason
		}
		return "address unreliable"
	}
	return fmt.Sprintf("%s (%.3f < %.2f)", ReasonBelowThreshold, score, reviewThreshold(tiers))
}

// reviewThreshold is the lowest score that avoids human review.
func reviewThreshold(tiers []TierRule) float64 {
	t := 0.0
	for _, r := range tiers {
		if r.Path != model.PathHumanReview {
			t = r.Min
		}
	}
	return t
}

func clamp(v float64) float64 {
	if math.IsNaN(v) || v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func round(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}
