// Package normalize canonicalizes provider names, phones and identifiers for matching.
package normalize

import (
	"math"
	"regexp"
	"sort"
	"strings"
	"unicode"

	"github.com/agext/levenshtein"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// nameSuffixes are credential, generational and legal suffixes dropped from names.
var nameSuffixes = map[string]bool{
	"MD": true, "DO": true, "PHD": true, "NP": true, "PA": true, "RN": true, "DDS": true,
	"DMD": true, "DPM": true, "OD": true, "DC": true, "FACP": true, "FACC": true, "MPH": true,
	"JR": true, "SR": true, "II": true, "III": true, "IV": true,
	"LLC": true, "INC": true, "CORP": true, "LTD": true, "PC": true, "PLLC": true, "LLP": true,
}

var namePrefixes = map[string]bool{"DR": true, "MR": true, "MRS": true, "MS": true, "PROF": true}

var (
	multiSpaceRe = regexp.MustCompile(`\s{2,}`)
	nonDigitRe   = regexp.MustCompile(`\D`)
	nonAlnumRe   = regexp.MustCompile(`[^A-Z0-9]`)
)

// indel weights substitutions as a delete plus an insert, so Similarity
// returns 1 - indel/(len(a)+len(b)).
var indel = levenshtein.NewParams().SubCost(2)

// Fold strips diacritics: "José Núñez" becomes "Jose Nunez".
func Fold(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		return s
	}
	return out
}

// Name standardizes a person or organization name for matching:
// folded, uppercased, honorifics and suffixes removed, punctuation stripped,
// whitespace collapsed.
func Name(name string) string {
	name = strings.TrimSpace(Fold(name))
	if name == "" {
		return ""
	}
	name = strings.ToUpper(name)
	name = strings.NewReplacer(
		",", " ",
		".", "",
		"'", "",
		"\"", "",
		"&", " AND ",
		"-", " ",
	).Replace(name)

	tokens := strings.Fields(name)
	out := tokens[:0]
	for i, tok := range tokens {
		if i == 0 && namePrefixes[tok] {
			continue
		}
		if i > 0 && nameSuffixes[tok] {
			continue
		}
		out = append(out, tok)
	}
	return multiSpaceRe.ReplaceAllString(strings.Join(out, " "), " ")
}

// SplitName returns first and last name tokens. "Doe, Jane" and
// "Dr. Jane A. Doe MD" both give ("JANE", "DOE"). A comma followed only by
// credentials, as in "Jane Doe, MD", does not mark the LAST, FIRST form.
func SplitName(full string) (first, last string) {
	if i := strings.Index(full, ","); i > 0 {
		rest := dropSuffixes(strings.Fields(Name(full[i+1:])))
		if len(rest) > 0 {
			return rest[0], Name(full[:i])
		}
		full = full[:i]
	}
	tokens := strings.Fields(Name(full))
	switch len(tokens) {
	case 0:
		return "", ""
	case 1:
		return "", tokens[0]
	}
	return tokens[0], tokens[len(tokens)-1]
}

func dropSuffixes(tokens []string) []string {
	var out []string
	for _, tok := range tokens {
		if !nameSuffixes[tok] {
			out = append(out, tok)
		}
	}
	return out
}

// Digits keeps only ASCII digits.
func Digits(s string) string {
	return nonDigitRe.ReplaceAllString(s, "")
}

// Phone reduces a US phone number to its last ten digits.
func Phone(s string) string {
	d := Digits(s)
	if len(d) == 11 && d[0] == '1' {
		d = d[1:]
	}
	return d
}

// Identifier uppercases and strips everything but letters and digits,
// so "a-123 45" and "A12345" compare equal.
func Identifier(s string) string {
	return nonAlnumRe.ReplaceAllString(strings.ToUpper(s), "")
}

// Ratio returns the normalized indel similarity of a and b on a 0..100 scale.
// Only equal strings score 100.
func Ratio(a, b string) int {
	if a == b {
		return 100
	}
	return min(int(math.Round(levenshtein.Similarity(a, b, indel)*100)), 99)
}

// NameSimilarity compares two names after normalization, ignoring token order.
func NameSimilarity(a, b string) int {
	return Ratio(sortedTokens(Name(a)), sortedTokens(Name(b)))
}

func sortedTokens(s string) string {
	tokens := strings.Fields(s)
	sort.Strings(tokens)
	return strings.Join(tokens, " ")
}
