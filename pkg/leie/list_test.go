package leie

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sample = "\ufeffLASTNAME,FIRSTNAME,MIDNAME,BUSNAME,GENERAL,SPECIALTY,UPIN,NPI,DOB,ADDRESS,CITY,STATE,ZIP,EXCLTYPE,EXCLDATE,REINDATE,WAIVERDATE,WAIVERSTATE\n" +
	"DOE,JOHN,,,PHYSICIAN,FAMILY PRACTICE,,1234567893,19600101,1 ELM ST,SPRINGFIELD,IL,62701,1128a1,20200115,00000000,00000000,\n" +
	"SMITH,ANNA,,,NURSE,,,0000000000,,,PEORIA,IL,61602,1128b4,20190301,00000000,00000000,\n" +
	"ROE,RICHARD,,,PHYSICIAN,,,1111111116,,,CHICAGO,IL,60601,1128b7,20150101,20180101,00000000,\n" +
	",,,ACME HOME HEALTH,HOME HEALTH AGENCY,,,0000000000,,,DALLAS,TX,75201,1128b7,20210601,00000000,00000000,\n"

var now = time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)

func TestParse(t *testing.T) {
	l, err := Parse(strings.NewReader(sample))
	require.NoError(t, err)
	assert.Equal(t, 4, l.Len())
}

func TestParse_MissingColumn(t *testing.T) {
	_, err := Parse(strings.NewReader("LASTNAME,FIRSTNAME\nDOE,JOHN\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "NPI")
}

func TestMatch(t *testing.T) {
	l, err := Parse(strings.NewReader(sample))
	require.NoError(t, err)

	tests := []struct {
		name        string
		npi         string
		first, last string
		want        string
		found       bool
	}{
		{name: "npi", npi: "1234567893", want: "DOE", found: true},
		{name: "npi wins over name", npi: "9999999999", first: "JOHN", last: "DOE"},
		{name: "name fallback", first: "anna", last: "Smith", want: "SMITH", found: true},
		{name: "placeholder npi not indexed", npi: "0000000000", first: "ANNA", last: "SMITH", want: "SMITH", found: true},
		{name: "reinstated", npi: "1111111116"},
		{name: "last name only", last: "DOE"},
		{name: "unknown", first: "JANE", last: "DOE"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e, ok := l.Match(tt.npi, tt.first, tt.last, now)
			assert.Equal(t, tt.found, ok)
			if tt.found {
				assert.Equal(t, tt.want, e.LastName)
			}
		})
	}
}

func TestEntry(t *testing.T) {
	l, err := Parse(strings.NewReader(sample))
	require.NoError(t, err)

	e, ok := l.Match("1234567893", "", "", now)
	require.True(t, ok)
	assert.Equal(t, "JOHN DOE", e.Name())
	assert.Equal(t, "1128a1", e.ExclusionType)
	assert.Equal(t, "2020-01-15", FormatDate(e.ExclusionDate))
	assert.Equal(t, "", FormatDate(e.ReinDate))

	assert.Equal(t, "ACME HOME HEALTH", Entry{BusinessName: "ACME HOME HEALTH"}.Name())
	assert.False(t, Entry{ReinDate: "20300101"}.Reinstated(now))
	assert.True(t, Entry{ReinDate: "20180101"}.Reinstated(now))
}
