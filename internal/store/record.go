package store

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/provider-validator/internal/model"
	"github.com/sells-group/provider-validator/internal/normalize"
)

// providerFromValidation projects a validation onto the row stored in
// validated_providers. Golden values win over submitted ones.
func providerFromValidation(v *model.Validation, now time.Time) model.ProviderRecord {
	pick := func(f model.Field) string {
		if g := v.Golden.Value(f); g != "" {
			return g
		}
		return v.Record.Value(f)
	}

	p := model.ProviderRecord{
		NPI:             normalize.Digits(pick(model.FieldNPI)),
		Name:            pick(model.FieldName),
		Address:         pick(model.FieldAddress),
		State:           strings.ToUpper(strings.TrimSpace(v.Record.State)),
		Phone:           pick(model.FieldPhone),
		Website:         pick(model.FieldWebsite),
		Specialty:       pick(model.FieldSpecialty),
		LicenseNumber:   pick(model.FieldLicenseNumber),
		Score:           v.Breakdown.Score,
		Tier:            v.Breakdown.Tier,
		Path:            v.Breakdown.Path,
		Golden:          v.Golden,
		Breakdown:       v.Breakdown,
		FraudIndicators: v.QA.FraudIndicators,
		LastValidation:  v.ID,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if lc := v.Results.License(); lc != nil {
		p.LicenseStatus = lc.Status
	}
	if ex := v.Results.Exclusion(); ex != nil {
		p.Excluded = ex.Excluded
	}
	return p
}

// providerJSON is the blob column of validated_providers.
type providerJSON struct {
	Golden          model.GoldenRecord        `json:"golden"`
	Breakdown       model.ConfidenceBreakdown `json:"breakdown"`
	FraudIndicators []string                  `json:"fraud_indicators,omitempty"`
}

func marshalProvider(p model.ProviderRecord) ([]byte, error) {
	b, err := json.Marshal(providerJSON{Golden: p.Golden, Breakdown: p.Breakdown, FraudIndicators: p.FraudIndicators})
	return b, eris.Wrap(err, "store: marshal provider")
}

func unmarshalProvider(b []byte, p *model.ProviderRecord) error {
	if len(b) == 0 {
		return nil
	}
	var blob providerJSON
	if err := json.Unmarshal(b, &blob); err != nil {
		return eris.Wrap(err, "store: unmarshal provider")
	}
	p.Golden = blob.Golden
	p.Breakdown = blob.Breakdown
	p.FraudIndicators = blob.FraudIndicators
	return nil
}

// reviewJSON is the blob column of review_queue.
type reviewJSON struct {
	Flags           []model.QAFlag `json:"flags,omitempty"`
	FraudIndicators []string       `json:"fraud_indicators,omitempty"`
}

func marshalReview(r *model.ReviewItem) ([]byte, error) {
	b, err := json.Marshal(reviewJSON{Flags: r.Flags, FraudIndicators: r.FraudIndicators})
	return b, eris.Wrap(err, "store: marshal review")
}

func unmarshalReview(b []byte, r *model.ReviewItem) error {
	if len(b) == 0 {
		return nil
	}
	var blob reviewJSON
	if err := json.Unmarshal(b, &blob); err != nil {
		return eris.Wrap(err, "store: unmarshal review")
	}
	r.Flags = blob.Flags
	r.FraudIndicators = blob.FraudIndicators
	return nil
}

// validateResolution checks that a review can be moved to status.
func validateResolution(id string, status model.ReviewStatus) error {
	if id == "" {
		return eris.New("store: review id is required")
	}
	if status != model.ReviewApproved && status != model.ReviewRejected {
		return eris.Errorf("store: cannot resolve review to %q", status)
	}
	return nil
}
