// Package address compares submitted provider addresses with authoritative
// ones and decides whether a difference is safe to correct.
package address

import (
	"regexp"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/provider-validator/internal/normalize"
)

// Components is a best-effort structured parse of a US street address.
type Components struct {
	Number string `json:"number"`
	Name   string `json:"name"`
	Type   string `json:"type,omitempty"`
	Unit   string `json:"unit,omitempty"`
	City   string `json:"city,omitempty"`
	State  string `json:"state,omitempty"`
	Zip    string `json:"zip,omitempty"`
}

var (
	zipRe    = regexp.MustCompile(`\s*(\d{5})(?:-?\d{4})?$`)
	numberRe = regexp.MustCompile(`^(\d+[A-Z]?(?:-\d+[A-Z]?)?)\s+(.+)$`)
	cleanRe  = regexp.MustCompile(`[^A-Z0-9#,\- ]`)
)

// Parse splits a single-line address into components. It fails when no
// house number or street name can be found; PO boxes and rural routes fail
// by design of the house-number rule.
func Parse(raw string) (Components, error) {
	var c Components

	s := strings.ToUpper(normalize.Fold(strings.TrimSpace(raw)))
	s = strings.ReplaceAll(s, ".", "")
	s = strings.ReplaceAll(s, "#", " # ")
	s = cleanRe.ReplaceAllString(s, " ")
	s = strings.Join(strings.Fields(s), " ")
	if s == "" {
		return c, eris.New("address: empty input")
	}

	if m := zipRe.FindStringSubmatch(s); m != nil && len(s) > len(m[0]) {
		c.Zip = m[1]
		s = strings.TrimRight(strings.TrimSpace(s[:len(s)-len(m[0])]), ",")
	}

	parts := splitParts(s)
	if len(parts) > 1 || c.Zip != "" {
		parts = c.takeState(parts)
	}

	street := parts[0]
	if len(parts) > 2 && unitDesignators[strings.Fields(parts[1])[0]] {
		c.Unit = strings.TrimSpace(strings.TrimPrefix(parts[1], "#"))
		parts = append([]string{street}, parts[2:]...)
	}
	if len(parts) > 1 {
		c.City = strings.Join(parts[1:], " ")
	}

	m := numberRe.FindStringSubmatch(street)
	if m == nil {
		return Components{}, eris.Errorf("address: no house number in %q", raw)
	}
	c.Number = m[1]

	tokens, unit := splitUnit(strings.Fields(m[2]))
	if unit != "" {
		c.Unit = unit
	}
	// Without commas the city trails the street type: "1 MAIN ST SPRINGFIELD".
	if len(parts) == 1 {
		if i := typeIndex(tokens); i > 0 && i < len(tokens)-1 {
			end := i + 1
			if _, ok := directionals[tokens[end]]; ok {
				end++
			}
			c.City = strings.Join(tokens[end:], " ")
			tokens = tokens[:end]
		}
	}
	if len(tokens) > 1 {
		last := tokens[len(tokens)-1]
		if _, ok := directionals[last]; ok {
			if _, isType := streetTypes[tokens[len(tokens)-2]]; isType && len(tokens) > 2 {
				c.Type = tokens[len(tokens)-2]
				c.Name = strings.Join(append(append([]string{}, tokens[:len(tokens)-2]...), last), " ")
				return c, nil
			}
		}
		if _, ok := streetTypes[last]; ok {
			c.Type = last
			tokens = tokens[:len(tokens)-1]
		}
	}
	c.Name = strings.Join(tokens, " ")
	if c.Name == "" {
		return Components{}, eris.Errorf("address: no street name in %q", raw)
	}
	return c, nil
}

func splitParts(s string) []string {
	var parts []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			parts = append(parts, p)
		}
	}
	if len(parts) == 0 {
		return []string{s}
	}
	return parts
}

// takeState removes a trailing state (abbreviation or full name) from the
// last comma part, keeping at least the street part intact.
func (c *Components) takeState(parts []string) []string {
	last := parts[len(parts)-1]
	if code := StateCode(last); code != "" && len(parts) > 1 {
		c.State = code
		return parts[:len(parts)-1]
	}
	tokens := strings.Fields(last)
	for n := 3; n >= 1; n-- {
		if len(tokens) <= n && len(parts) == 1 {
			continue
		}
		if len(tokens) < n {
			continue
		}
		if code := StateCode(strings.Join(tokens[len(tokens)-n:], " ")); code != "" {
			c.State = code
			rest := strings.Join(tokens[:len(tokens)-n], " ")
			out := append([]string{}, parts[:len(parts)-1]...)
			if rest != "" {
				out = append(out, rest)
			}
			if len(out) == 0 {
				return parts
			}
			return out
		}
	}
	return parts
}

func splitUnit(tokens []string) ([]string, string) {
	for i, tok := range tokens {
		if i > 0 && unitDesignators[tok] {
			unit := strings.Join(tokens[i:], " ")
			return tokens[:i], strings.TrimSpace(strings.TrimPrefix(unit, "#"))
		}
	}
	return tokens, ""
}

func typeIndex(tokens []string) int {
	for i, tok := range tokens {
		if i == 0 {
			continue
		}
		if _, ok := streetTypes[tok]; ok {
			return i
		}
	}
	return -1
}

// Street returns the street name and type as written.
func (c Components) Street() string {
	return strings.TrimSpace(c.Name + " " + c.Type)
}

// CanonicalStreet returns the street with USPS abbreviations for the type and
// any directionals.
func (c Components) CanonicalStreet() string {
	var out []string
	for _, tok := range strings.Fields(c.Name) {
		if d, ok := directionals[tok]; ok {
			tok = d
		}
		out = append(out, tok)
	}
	if c.Type != "" {
		out = append(out, streetTypes[c.Type])
	}
	return strings.Join(out, " ")
}
