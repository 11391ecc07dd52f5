package verify

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/sells-group/provider-validator/internal/model"
	"github.com/sells-group/provider-validator/pkg/geocode"
)

// FacilityUnclassified is reported when an address resolves but nothing is
// known about what occupies it.
const FacilityUnclassified = "Unclassified"

// CensusGeo implements GeoVerifier with the Census geocoder. It confirms an
// address exists and returns its canonical form; it cannot classify the
// facility, so it never sets IsMatchingFacilityType.
type CensusGeo struct {
	client geocode.Client
}

// NewCensusGeo wraps a geocoder client.
func NewCensusGeo(c geocode.Client) *CensusGeo {
	return &CensusGeo{client: c}
}

// Check geocodes address.
func (g *CensusGeo) Check(ctx context.Context, address string) (model.GeoCheck, error) {
	m, err := g.client.Geocode(ctx, address)
	if err != nil {
		return model.GeoCheck{}, eris.Wrap(err, "verify: census geocode")
	}
	if m == nil {
		return model.GeoCheck{FacilityType: FacilityNotFound}, nil
	}
	return model.GeoCheck{
		FacilityType:     FacilityUnclassified,
		FormattedAddress: m.MatchedAddress,
	}, nil
}
