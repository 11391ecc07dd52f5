// Package scorer turns a golden record, verifier results and QA signals into
// a bounded confidence score with a tier and routing path.
package scorer

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"math"
	"os"
	"strings"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/provider-validator/internal/model"
)

// DefaultWeightsVersion labels the built-in weight table.
const DefaultWeightsVersion = "2025-02"

// WeightTable holds one versioned set of dimension weights. Weights sum to 1.
type WeightTable struct {
	Version      string  `yaml:"version" mapstructure:"version" json:"version"`
	Identity     float64 `yaml:"identity" mapstructure:"identity" json:"identity"`
	Address      float64 `yaml:"address" mapstructure:"address" json:"address"`
	Completeness float64 `yaml:"completeness" mapstructure:"completeness" json:"completeness"`
	Freshness    float64 `yaml:"freshness" mapstructure:"freshness" json:"freshness"`
	Enrichment   float64 `yaml:"enrichment" mapstructure:"enrichment" json:"enrichment"`
	Risk         float64 `yaml:"risk" mapstructure:"risk" json:"risk"`
}

// DefaultWeights returns the built-in weight table.
func DefaultWeights() WeightTable {
	return WeightTable{
		Version:      DefaultWeightsVersion,
		Identity:     0.30,
		Address:      0.20,
		Completeness: 0.15,
		Freshness:    0.10,
		Enrichment:   0.15,
		Risk:         0.10,
	}
}

// Weight returns the weight for d.
func (w WeightTable) Weight(d model.Dimension) float64 {
	switch d {
	case model.DimIdentity:
		return w.Identity
	case model.DimAddress:
		return w.Address
	case model.DimCompleteness:
		return w.Completeness
	case model.DimFreshness:
		return w.Freshness
	case model.DimEnrichment:
		return w.Enrichment
	case model.DimRisk:
		return w.Risk
	}
	return 0
}

// Sum returns the sum of all dimension weights.
func (w WeightTable) Sum() float64 {
	var sum float64
	for _, d := range model.Dimensions {
		sum += w.Weight(d)
	}
	return sum
}

// Hash returns a short digest of the weights, stable across runs.
func (w WeightTable) Hash() string {
	var b strings.Builder
	for _, d := range model.Dimensions {
		fmt.Fprintf(&b, "%s=%.6f;", d, w.Weight(d))
	}
	sum := sha256.Sum256([]byte(b.String()))
	return hex.EncodeToString(sum[:])[:12]
}

// Validate checks that the table is usable.
func (w WeightTable) Validate() error {
	var errs []string
	if strings.TrimSpace(w.Version) == "" {
		errs = append(errs, "version is required")
	}
	for _, d := range model.Dimensions {
		if v := w.Weight(d); v < 0 || math.IsNaN(v) {
			errs = append(errs, fmt.Sprintf("%s weight must be >= 0", d))
		}
	}
	if sum := w.Sum(); math.Abs(sum-1) > 1e-9 {
		errs = append(errs, fmt.Sprintf("weights must sum to 1, got %.6f", sum))
	}
	if len(errs) > 0 {
		return eris.Errorf("scorer: weight validation failed: %s", strings.Join(errs, "; "))
	}
	return nil
}

// LoadWeights reads a weight table from a YAML file and validates it.
func LoadWeights(path string) (WeightTable, error) {
	data, err := os.ReadFile(path) // #nosec G304 -- operator-supplied config path
	if err != nil {
		return WeightTable{}, eris.Wrapf(err, "scorer: read weights %s", path)
	}
	var w WeightTable
	if err := yaml.Unmarshal(data, &w); err != nil {
		return WeightTable{}, eris.Wrapf(err, "scorer: parse weights %s", path)
	}
	if err := w.Validate(); err != nil {
		return WeightTable{}, err
	}
	return w, nil
}

// TierRule maps scores at or above Min to a tier and routing path.
type TierRule struct {
	Min  float64    `yaml:"min" mapstructure:"min" json:"min"`
	Tier string     `yaml:"tier" mapstructure:"tier" json:"tier"`
	Path model.Path `yaml:"path" mapstructure:"path" json:"path"`
}

// Tier schemes.
const (
	SchemeDefault = "default"
	SchemeGraded  = "graded"
)

// DefaultTiers is the two-threshold approve / monitor / review scheme.
func DefaultTiers() []TierRule {
	return []TierRule{
		{Min: 0.90, Tier: "high-trust", Path: model.PathAutoApprove},
		{Min: 0.65, Tier: "monitored-approve", Path: model.PathMonitoredApprove},
		{Min: 0, Tier: "needs-review", Path: model.PathHumanReview},
	}
}

// GradedTiers is the finer-grained metal tier scheme.
func GradedTiers() []TierRule {
	return []TierRule{
		{Min: 0.90, Tier: "platinum", Path: model.PathAutoApprove},
		{Min: 0.80, Tier: "gold", Path: model.PathMonitoredApprove},
		{Min: 0.70, Tier: "silver", Path: model.PathMonitoredApprove},
		{Min: 0.60, Tier: "bronze", Path: model.PathHumanReview},
		{Min: 0.40, Tier: "questionable", Path: model.PathHumanReview},
		{Min: 0, Tier: "unverified", Path: model.PathHumanReview},
	}
}

// TierScheme returns the rules for a named scheme. Empty selects the default.
func TierScheme(name string) ([]TierRule, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", SchemeDefault:
		return DefaultTiers(), nil
	case SchemeGraded:
		return GradedTiers(), nil
	}
	return nil, eris.Errorf("scorer: unknown tier scheme %q", name)
}

// ValidateTiers checks that rules are strictly descending, end at zero and
// name a known path.
func ValidateTiers(rules []TierRule) error {
	if len(rules) == 0 {
		return eris.New("scorer: at least one tier rule is required")
	}
	var errs []string
	for i, r := range rules {
		if strings.TrimSpace(r.Tier) == "" {
			errs = append(errs, fmt.Sprintf("rule %d has no tier name", i))
		}
		switch r.Path {
		case model.PathAutoApprove, model.PathMonitoredApprove, model.PathHumanReview:
		default:
			errs = append(errs, fmt.Sprintf("rule %d has unknown path %q", i, r.Path))
		}
		if r.Min < 0 || r.Min > 1 {
			errs = append(errs, fmt.Sprintf("rule %d min %.3f outside [0,1]", i, r.Min))
		}
		if i > 0 && r.Min >= rules[i-1].Min {
			errs = append(errs, fmt.Sprintf("rule %d min %.3f not below %.3f", i, r.Min, rules[i-1].Min))
		}
	}
	if last := rules[len(rules)-1]; last.Min != 0 {
		errs = append(errs, "last rule must have min 0")
	} else if last.Path != model.PathHumanReview {
		errs = append(errs, "last rule must route to human-review")
	}
	if len(errs) > 0 {
		return eris.Errorf("scorer: tier validation failed: %s", strings.Join(errs, "; "))
	}
	return nil
}
