// Package synth writes the short reviewer-facing summary of a validation.
package synth

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/sells-group/provider-validator/internal/model"
)

// Input is what a summary is written from.
type Input struct {
	Record  model.SubmittedRecord
	Golden  model.GoldenRecord
	Results model.Results
	QA      model.QASignals
}

// Summarizer produces a summary for one validation.
type Summarizer interface {
	Summarize(ctx context.Context, in Input) (string, error)
}

// Summary is a written summary and whether it came from the fallback.
type Summary struct {
	Text     string `json:"text"`
	Degraded bool   `json:"degraded"`
}

// Summarize runs s and falls back to the template when s fails or returns
// nothing. A nil s uses the template without marking the result degraded.
func Summarize(ctx context.Context, s Summarizer, in Input) Summary {
	var tmpl Template
	if s == nil {
		text, _ := tmpl.Summarize(ctx, in)
		return Summary{Text: text}
	}
	if _, ok := s.(Template); ok {
		text, _ := tmpl.Summarize(ctx, in)
		return Summary{Text: text}
	}

	text, err := s.Summarize(ctx, in)
	if err == nil && strings.TrimSpace(text) != "" {
		return Summary{Text: strings.TrimSpace(text)}
	}
	if err != nil {
		zap.L().Warn("synth: summarizer failed, using template",
			zap.String("npi", in.Record.NPI),
			zap.Error(err),
		)
	}
	text, _ = tmpl.Summarize(ctx, in)
	return Summary{Text: text, Degraded: true}
}

// Template builds a deterministic summary from the validation facts.
type Template struct{}

// Summarize implements Summarizer.
func (Template) Summarize(_ context.Context, in Input) (string, error) {
	var lines []string

	name := in.Golden.Value(model.FieldName)
	if name == "" {
		name = in.Record.FullName
	}
	head := name
	if npi := in.Golden.Value(model.FieldNPI); npi != "" {
		head += fmt.Sprintf(" (NPI %s)", npi)
	}
	lines = append(lines, head+".")

	lines = append(lines, identityLine(in.Results))
	lines = append(lines, exclusionLine(in.Results))
	if l := licenseLine(in.Results); l != "" {
		lines = append(lines, l)
	}
	if a := in.QA.Address; a != nil {
		lines = append(lines, fmt.Sprintf("Address: %s (%s).", a.Action, a.Reason))
	}
	if g := in.Results.Geo(); g != nil && g.FacilityType != "" {
		lines = append(lines, fmt.Sprintf("Location: %s.", g.FacilityType))
	}
	if f := in.QA.Freshness; f != nil {
		lines = append(lines, fmt.Sprintf("Freshness: %s (%.2f).", f.Status, f.Score))
	}
	for _, c := range in.Golden.Corrections {
		lines = append(lines, fmt.Sprintf("Corrected %s from %q to %q per %s.", c.Field, c.From, c.To, c.Source))
	}
	for _, p := range in.Golden.Provenance {
		lines = append(lines, fmt.Sprintf("Took %s %q from %s (%s).", p.Field, p.Winner.Value, p.Winner.Source, p.Rule))
	}
	if len(in.QA.FraudIndicators) > 0 {
		lines = append(lines, "Fraud indicators: "+strings.Join(in.QA.FraudIndicators, "; ")+".")
	}
	for _, f := range in.QA.Flags {
		lines = append(lines, fmt.Sprintf("[%s] %s", f.Severity, f.Message))
	}
	if failed := in.Results.Failed(); len(failed) > 0 {
		names := make([]string, len(failed))
		for i, k := range failed {
			names[i] = string(k)
		}
		lines = append(lines, "Unavailable checks: "+strings.Join(names, ", ")+".")
	}
	return strings.Join(lines, "\n"), nil
}

func identityLine(rs model.Results) string {
	id := rs.Identity()
	switch {
	case id == nil:
		return "Registry: not checked."
	case id.ResultCount == 0:
		return "Registry: no match."
	case id.ResultCount == 1:
		return "Registry: single match."
	}
	return fmt.Sprintf("Registry: %d candidate matches.", id.ResultCount)
}

func exclusionLine(rs model.Results) string {
	ex := rs.Exclusion()
	switch {
	case ex == nil:
		return "Exclusion list: not checked."
	case ex.Excluded && ex.Details != nil:
		return fmt.Sprintf("Exclusion list: EXCLUDED (%s since %s).", ex.Details.ExclusionType, ex.Details.ExclusionDate)
	case ex.Excluded:
		return "Exclusion list: EXCLUDED."
	}
	return "Exclusion list: none found."
}

func licenseLine(rs model.Results) string {
	lc := rs.License()
	if lc == nil {
		return ""
	}
	s := fmt.Sprintf("License %s %s: %s", lc.State, lc.LicenseNumber, lc.Status)
	if len(lc.DisciplinaryActions) > 0 {
		s += fmt.Sprintf(", %d disciplinary action(s)", len(lc.DisciplinaryActions))
	}
	return s + "."
}
