// Package freshness models how trust in a provider fact decays with time
// since it was last confirmed.
package freshness

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/provider-validator/internal/model"
)

// DefaultScore is used when the confirmation date is missing or unusable.
// Freshness is advisory, so bad dates degrade rather than fail.
const DefaultScore = 0.3

const (
	healthyAbove  = 0.8
	decayingAbove = 0.5
)

// Tables holds the decay parameters: initial trust per source type (R0) and
// daily decay rate per entity type (λ).
type Tables struct {
	SourceTrust map[string]float64 `yaml:"source_trust" mapstructure:"source_trust"`
	DecayRates  map[string]float64 `yaml:"decay_rates" mapstructure:"decay_rates"`
}

// DefaultTables returns the standard trust and decay tables.
func DefaultTables() Tables {
	return Tables{
		SourceTrust: map[string]float64{
			string(model.SourceNPIRegistry): 1.0,
			string(model.SourceStateBoard):  0.95,
			string(model.SourceWebScrape):   0.70,
			string(model.SourceCSVUpload):   0.50,
		},
		DecayRates: map[string]float64{
			string(model.EntityOrganization): 0.001,
			string(model.EntityIndividual):   0.005,
		},
	}
}

// Validate checks that every source and entity type has exactly one known entry.
func (t Tables) Validate() error {
	var errs []string

	for k, v := range t.SourceTrust {
		if !knownSource(k) {
			errs = append(errs, fmt.Sprintf("unknown source type %q", k))
			continue
		}
		if v <= 0 || v > 1 {
			errs = append(errs, fmt.Sprintf("source_trust %s must be in (0, 1], got %g", k, v))
		}
	}
	for _, s := range model.SourceTypes {
		if _, ok := t.SourceTrust[string(s)]; !ok {
			errs = append(errs, fmt.Sprintf("missing source_trust for %s", s))
		}
	}

	for k, v := range t.DecayRates {
		if !knownEntity(k) {
			errs = append(errs, fmt.Sprintf("unknown entity type %q", k))
			continue
		}
		if v < 0 || math.IsNaN(v) {
			errs = append(errs, fmt.Sprintf("decay_rates %s must be >= 0, got %g", k, v))
		}
	}
	for _, e := range model.EntityTypes {
		if _, ok := t.DecayRates[string(e)]; !ok {
			errs = append(errs, fmt.Sprintf("missing decay_rates for %s", e))
		}
	}

	if len(errs) > 0 {
		sort.Strings(errs)
		return eris.Errorf("freshness: table validation failed: %s", strings.Join(errs, "; "))
	}
	return nil
}

func knownSource(k string) bool {
	for _, s := range model.SourceTypes {
		if string(s) == k {
			return true
		}
	}
	return false
}

func knownEntity(k string) bool {
	for _, e := range model.EntityTypes {
		if string(e) == k {
			return true
		}
	}
	return false
}

// Model computes decayed reliability from validated tables.
type Model struct {
	trust map[model.SourceType]float64
	decay map[model.EntityType]float64
}

// New validates the tables and builds a Model.
func New(t Tables) (*Model, error) {
	if err := t.Validate(); err != nil {
		return nil, err
	}
	m := &Model{
		trust: make(map[model.SourceType]float64, len(t.SourceTrust)),
		decay: make(map[model.EntityType]float64, len(t.DecayRates)),
	}
	for k, v := range t.SourceTrust {
		m.trust[model.SourceType(k)] = v
	}
	for k, v := range t.DecayRates {
		m.decay[model.EntityType(k)] = v
	}
	return m, nil
}

// Default returns a Model over DefaultTables.
func Default() *Model {
	m, err := New(DefaultTables())
	if err != nil {
		panic(err)
	}
	return m
}

// Reliability computes R0(source) * exp(-λ(entity) * days) where days is the
// whole number of days between lastConfirmed and now. A nil, zero or
// future date yields DefaultScore. Unknown source or entity types fall back
// to the upload trust and individual decay rate.
func (m *Model) Reliability(lastConfirmed *time.Time, source model.SourceType, entity model.EntityType, now time.Time) model.Freshness {
	if entity == "" {
		entity = model.EntityIndividual
	}
	if source == "" {
		source = model.SourceCSVUpload
	}

	if lastConfirmed == nil || lastConfirmed.IsZero() || lastConfirmed.After(now.Add(24*time.Hour)) {
		return bucket(model.Freshness{
			Score:           DefaultScore,
			DaysSinceUpdate: -1,
			Source:          source,
			Entity:          entity,
		})
	}

	days := int(now.Sub(*lastConfirmed).Hours() / 24)
	if days < 0 {
		days = 0
	}

	r0, ok := m.trust[source]
	if !ok {
		r0 = m.trust[model.SourceCSVUpload]
	}
	lambda, ok := m.decay[entity]
	if !ok {
		lambda = m.decay[model.EntityIndividual]
	}

	score := r0 * math.Exp(-lambda*float64(days))
	return bucket(model.Freshness{
		Score:           math.Round(score*10000) / 10000,
		DaysSinceUpdate: days,
		Source:          source,
		Entity:          entity,
	})
}

func bucket(f model.Freshness) model.Freshness {
	switch {
	case f.Score > healthyAbove:
		f.Status = model.FreshnessHealthy
		f.RecommendedRecheckDays = 90
	case f.Score > decayingAbove:
		f.Status = model.FreshnessDecaying
		f.RecommendedRecheckDays = 30
	default:
		f.Status = model.FreshnessStale
		f.RecommendedRecheckDays = 0
	}
	return f
}

var dateLayouts = []string{
	"2006-01-02",
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"01/02/2006",
	"20060102",
}

// ParseDate accepts the date formats seen in registry and upload data. It
// returns nil for anything it cannot read.
func ParseDate(s string) *time.Time {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			t = t.UTC()
			return &t
		}
	}
	return nil
}
