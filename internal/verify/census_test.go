package verify

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/provider-validator/internal/address"
	"github.com/sells-group/provider-validator/internal/model"
	"github.com/sells-group/provider-validator/pkg/geocode"
)

func censusServer(t *testing.T, status int, body string) *CensusGeo {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(status)
		_, _ = io.WriteString(w, body)
	}))
	t.Cleanup(srv.Close)
	return NewCensusGeo(geocode.NewClient(geocode.WithBaseURL(srv.URL)))
}

func TestCensusGeo_Match(t *testing.T) {
	g := censusServer(t, http.StatusOK, `{"result": {"addressMatches": [{
		"coordinates": {"x": -89.65, "y": 39.80},
		"matchedAddress": "123 MAIN ST, SPRINGFIELD, IL, 62701"
	}]}}`)

	c, err := g.Check(context.Background(), "123 Main St, Springfield, IL 62701")
	require.NoError(t, err)
	assert.False(t, c.IsMatchingFacilityType)
	assert.Equal(t, FacilityUnclassified, c.FacilityType)
	assert.Equal(t, "123 MAIN ST, SPRINGFIELD, IL, 62701", c.FormattedAddress)

	// The matched form must be usable as an address authority.
	v := address.Reconcile("123 Main St, Springfield, IL 62701", c.FormattedAddress)
	assert.Equal(t, model.AddressVerified, v.Action)
}

func TestCensusGeo_NoMatch(t *testing.T) {
	g := censusServer(t, http.StatusOK, `{"result": {"addressMatches": []}}`)

	c, err := g.Check(context.Background(), "1 Nowhere Rd, Faketown, IL 60000")
	require.NoError(t, err)
	assert.Equal(t, FacilityNotFound, c.FacilityType)
	assert.Empty(t, c.FormattedAddress)
}

func TestCensusGeo_Error(t *testing.T) {
	g := censusServer(t, http.StatusBadGateway, "upstream")

	_, err := g.Check(context.Background(), "1 Main St, Springfield, IL 62701")
	assert.Error(t, err)
}

func TestCensusGeo_AsVerifier(t *testing.T) {
	g := censusServer(t, http.StatusOK, `{"result": {"addressMatches": [{"matchedAddress": "123 MAIN ST, SPRINGFIELD, IL, 62701"}]}}`)

	v := Geo("census-geocoder", g)
	assert.Equal(t, model.KindGeo, v.Kind())
	assert.Equal(t, "census-geocoder", v.Source())

	res, err := v.Verify(context.Background(), model.SubmittedRecord{
		FullName: "Jane Doe",
		Street:   "123 Main St",
		City:     "Springfield",
		State:    "IL",
		Zip:      "62701",
	})
	require.NoError(t, err)
	require.NotNil(t, res.Geo)
	assert.Equal(t, "123 MAIN ST, SPRINGFIELD, IL, 62701", res.Geo.FormattedAddress)
}
