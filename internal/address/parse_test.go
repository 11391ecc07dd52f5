package address

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want Components
	}{
		{
			name: "full line with commas",
			in:   "123 Main Street, Springfield, IL 62701",
			want: Components{Number: "123", Name: "MAIN", Type: "STREET", City: "SPRINGFIELD", State: "IL", Zip: "62701"},
		},
		{
			name: "street only",
			in:   "123 Main St",
			want: Components{Number: "123", Name: "MAIN", Type: "ST"},
		},
		{
			name: "no commas",
			in:   "123 Main St Springfield IL 62701",
			want: Components{Number: "123", Name: "MAIN", Type: "ST", City: "SPRINGFIELD", State: "IL", Zip: "62701"},
		},
		{
			name: "directional unit and zip+4",
			in:   "456 N. Oak Ave Suite 200, Austin TX 78701-1234",
			want: Components{Number: "456", Name: "N OAK", Type: "AVE", Unit: "SUITE 200", City: "AUSTIN", State: "TX", Zip: "78701"},
		},
		{
			name: "unit in its own part",
			in:   "9 Elm Rd, Ste 4, Boise, Idaho 83702",
			want: Components{Number: "9", Name: "ELM", Type: "RD", Unit: "STE 4", City: "BOISE", State: "ID", Zip: "83702"},
		},
		{
			name: "unit part with state code",
			in:   "9 Elm Rd, Ste 4, Boise, ID 83702",
			want: Components{Number: "9", Name: "ELM", Type: "RD", Unit: "STE 4", City: "BOISE", State: "ID", Zip: "83702"},
		},
		{
			name: "post directional",
			in:   "100 Main St NW, Washington, DC 20001",
			want: Components{Number: "100", Name: "MAIN NW", Type: "ST", City: "WASHINGTON", State: "DC", Zip: "20001"},
		},
		{
			name: "diacritics",
			in:   "12 Calle José, San Juan, PR 00901",
			want: Components{Number: "12", Name: "CALLE JOSE", City: "SAN JUAN", State: "PR", Zip: "00901"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Parse(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParse_Failures(t *testing.T) {
	for _, in := range []string{"", "   ", "PO Box 123, Springfield, IL 62701", "Main Street", "62701"} {
		_, err := Parse(in)
		assert.Error(t, err, "input %q", in)
	}
}

func TestCanonicalStreet(t *testing.T) {
	c, err := Parse("77 North Lake Boulevard")
	require.NoError(t, err)
	assert.Equal(t, "NORTH LAKE BOULEVARD", c.Street())
	assert.Equal(t, "N LAKE BLVD", c.CanonicalStreet())
}

func TestStateCode(t *testing.T) {
	assert.Equal(t, "IL", StateCode("il"))
	assert.Equal(t, "NY", StateCode("New York"))
	assert.Empty(t, StateCode("Springfield"))
}
