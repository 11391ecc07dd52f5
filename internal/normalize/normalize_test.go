package normalize

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFold(t *testing.T) {
	assert.Equal(t, "Jose Nunez", Fold("José Núñez"))
	assert.Equal(t, "plain", Fold("plain"))
}

func TestName(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Dr. Jane A. Doe, MD", "JANE A DOE"},
		{"  john   smith jr. ", "JOHN SMITH"},
		{"Smith & Jones Family Practice, PLLC", "SMITH AND JONES FAMILY PRACTICE"},
		{"María O'Neil-Lopez", "MARIA ONEIL LOPEZ"},
		{"", ""},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, Name(tt.in))
		})
	}
}

func TestSplitName(t *testing.T) {
	tests := []struct {
		in          string
		first, last string
	}{
		{"Doe, Jane", "JANE", "DOE"},
		{"Dr. Jane A. Doe MD", "JANE", "DOE"},
		{"Dr. Jane Doe, MD", "JANE", "DOE"},
		{"Anna Smith, RN, NP", "ANNA", "SMITH"},
		{"Doe, Jane, MD", "JANE", "DOE"},
		{"Cher", "", "CHER"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			first, last := SplitName(tt.in)
			assert.Equal(t, tt.first, first)
			assert.Equal(t, tt.last, last)
		})
	}
}

func TestPhone(t *testing.T) {
	assert.Equal(t, "5551234567", Phone("(555) 123-4567"))
	assert.Equal(t, "5551234567", Phone("+1 555.123.4567"))
	assert.Equal(t, "", Phone("n/a"))
}

func TestIdentifier(t *testing.T) {
	assert.Equal(t, "A12345", Identifier("a-123 45"))
}

func TestRatio(t *testing.T) {
	assert.Equal(t, 100, Ratio("main st", "main st"))
	assert.Equal(t, 100, Ratio("", ""))
	// indel distance 4 over 18 characters
	assert.Equal(t, 78, Ratio("main street", "main st"))
	assert.Equal(t, 0, Ratio("abc", "xyz"))
	assert.Equal(t, 99, Ratio("MARTIN LUTHER KING JUNIOR MEMORIAL AV", "MARTIN LUTHER KING JUNIOR MEMORIAL AVE"))
}

func TestNameSimilarity_IgnoresOrderAndTitles(t *testing.T) {
	assert.Equal(t, 100, NameSimilarity("Dr. Jane Doe", "DOE JANE MD"))
	assert.Less(t, NameSimilarity("Jane Doe", "Robert Smith"), 50)
}
