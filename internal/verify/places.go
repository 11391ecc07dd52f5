package verify

import (
	"context"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/provider-validator/internal/model"
	"github.com/sells-group/provider-validator/pkg/google"
)

// medicalTypes are the place types that count as a healthcare facility.
var medicalTypes = []string{"doctor", "hospital", "health", "dentist", "physiotherapist", "pharmacy", "medical_lab"}

// Fraud indicators raised by the geo check.
const (
	IndicatorResidential = "Appears to be residential address"
	IndicatorParking     = "Address is a parking lot"
)

// Facility types reported by the geo check.
const (
	FacilityMedical    = "Medical Facility"
	FacilityNonMedical = "Non-Medical"
	FacilityNotFound   = "Address Not Found"
)

// PlacesGeo implements GeoVerifier with Places text search on the address.
type PlacesGeo struct {
	client google.Client
}

// NewPlacesGeo wraps a Places client.
func NewPlacesGeo(c google.Client) *PlacesGeo {
	return &PlacesGeo{client: c}
}

// Check classifies what the closest place at address is.
func (g *PlacesGeo) Check(ctx context.Context, address string) (model.GeoCheck, error) {
	resp, err := g.client.TextSearch(ctx, address)
	if err != nil {
		return model.GeoCheck{}, eris.Wrap(err, "verify: places geo search")
	}
	if len(resp.Places) == 0 {
		return model.GeoCheck{FacilityType: FacilityNotFound}, nil
	}

	p := resp.Places[0]
	c := model.GeoCheck{
		IsMatchingFacilityType: p.HasType(medicalTypes...),
		FacilityType:           FacilityNonMedical,
		FormattedAddress:       p.FormattedAddress,
	}
	if c.IsMatchingFacilityType {
		c.FacilityType = FacilityMedical
	}
	if p.HasType("street_address", "premise", "subpremise") && !p.HasType("establishment") {
		c.FraudIndicators = append(c.FraudIndicators, IndicatorResidential)
	}
	if p.HasType("parking") {
		c.FraudIndicators = append(c.FraudIndicators, IndicatorParking)
	}
	return c, nil
}

// Web presence score parts.
const (
	listingCredit     = 0.5
	manyReviewsCredit = 0.3
	someReviewsCredit = 0.15
	manyReviews       = 5
)

// PlacesWebPresence implements WebPresenceVerifier by looking for a
// business listing under the provider's name.
type PlacesWebPresence struct {
	client google.Client
}

// NewPlacesWebPresence wraps a Places client.
func NewPlacesWebPresence(c google.Client) *PlacesWebPresence {
	return &PlacesWebPresence{client: c}
}

// Check scores the top listing: a listing is worth 0.5, five or more
// reviews another 0.3, one to four reviews 0.15.
func (w *PlacesWebPresence) Check(ctx context.Context, name, _ string) (model.WebPresenceCheck, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return model.WebPresenceCheck{}, ErrSkipped
	}
	resp, err := w.client.TextSearch(ctx, name)
	if err != nil {
		return model.WebPresenceCheck{}, eris.Wrap(err, "verify: places web search")
	}
	if len(resp.Places) == 0 {
		return model.WebPresenceCheck{}, nil
	}

	p := resp.Places[0]
	c := model.WebPresenceCheck{
		PresenceScore: listingCredit,
		Rating:        p.Rating,
		ReviewCount:   p.UserRatingCount,
		Listing:       p.DisplayName.Text,
	}
	switch {
	case p.UserRatingCount >= manyReviews:
		c.PresenceScore += manyReviewsCredit
	case p.UserRatingCount >= 1:
		c.PresenceScore += someReviewsCredit
	}
	c.PresenceScore = min(c.PresenceScore, 1)
	return c, nil
}
