package verify

import (
	"context"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/provider-validator/internal/freshness"
	"github.com/sells-group/provider-validator/internal/model"
	"github.com/sells-group/provider-validator/internal/normalize"
	"github.com/sells-group/provider-validator/pkg/nppes"
)

// Registry match confidence by result count.
const (
	singleMatchConfidence   = 1.0
	multipleMatchConfidence = 0.7
)

// NPIRegistry implements IdentityVerifier over the NPPES API.
type NPIRegistry struct {
	client nppes.Client
}

// NewNPIRegistry wraps an NPPES client.
func NewNPIRegistry(c nppes.Client) *NPIRegistry {
	return &NPIRegistry{client: c}
}

// Lookup searches by NPI when given, otherwise by name and state. The first
// result fills the match; confidence reflects how many came back.
func (r *NPIRegistry) Lookup(ctx context.Context, name, npi, state string) (model.IdentityMatch, error) {
	q := nppes.Query{Number: normalize.Digits(npi)}
	if q.Number == "" {
		first, last := normalize.SplitName(name)
		if first == "" {
			q.OrganizationName = normalize.Name(name)
		} else {
			q.FirstName, q.LastName = first, last
		}
		q.State = stateFilter(state)
	}
	if q.Empty() {
		return model.IdentityMatch{}, ErrSkipped
	}

	resp, err := r.client.Search(ctx, q)
	if err != nil {
		return model.IdentityMatch{}, eris.Wrap(err, "verify: registry lookup")
	}

	count := resp.ResultCount
	if count < len(resp.Results) {
		count = len(resp.Results)
	}
	if len(resp.Results) == 0 {
		return model.IdentityMatch{ResultCount: 0}, nil
	}

	m := toIdentityMatch(resp.Results[0])
	m.ResultCount = count
	m.MatchConfidence = singleMatchConfidence
	if count > 1 {
		m.MatchConfidence = multipleMatchConfidence
	}
	return m, nil
}

func stateFilter(state string) string {
	if len(strings.TrimSpace(state)) == 2 {
		return strings.ToUpper(strings.TrimSpace(state))
	}
	return ""
}

func toIdentityMatch(res nppes.Result) model.IdentityMatch {
	m := model.IdentityMatch{
		NPI:           res.Number,
		Name:          res.Name(),
		EntityType:    model.EntityIndividual,
		LastConfirmed: freshness.ParseDate(res.Basic.LastUpdated),
	}
	if res.EnumerationType == nppes.EnumerationOrganization {
		m.EntityType = model.EntityOrganization
	}
	if loc, ok := res.Location(); ok {
		street := strings.TrimSpace(strings.Join([]string{loc.Address1, loc.Address2}, " "))
		m.Address = model.FormatAddress(street, loc.City, loc.State, formatZip(loc.PostalCode))
		m.Phone = loc.TelephoneNumber
	}
	for _, t := range res.Taxonomies {
		m.Specialties = append(m.Specialties, model.Taxonomy{
			Code:        t.Code,
			Description: t.Desc,
			Primary:     t.Primary,
		})
	}
	return m
}

// formatZip renders a nine-digit registry postal code as ZIP+4.
func formatZip(z string) string {
	d := normalize.Digits(z)
	if len(d) == 9 {
		return d[:5] + "-" + d[5:]
	}
	return strings.TrimSpace(z)
}
