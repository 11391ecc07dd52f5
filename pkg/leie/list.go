// Package leie reads the HHS-OIG List of Excluded Individuals/Entities.
package leie

import (
	"encoding/csv"
	"io"
	"strings"
	"time"

	"github.com/rotisserie/eris"
)

// DownloadURL is the monthly full-list download.
const DownloadURL = "https://oig.hhs.gov/exclusions/downloadables/UPDATED.csv"

// Entry is one exclusion record.
type Entry struct {
	LastName      string
	FirstName     string
	MiddleName    string
	BusinessName  string
	General       string
	Specialty     string
	NPI           string
	State         string
	ExclusionType string
	ExclusionDate string
	ReinDate      string
	WaiverDate    string
	WaiverState   string
}

// Name renders the excluded party's name.
func (e Entry) Name() string {
	if n := strings.TrimSpace(e.FirstName + " " + e.LastName); n != "" {
		return n
	}
	return e.BusinessName
}

// Reinstated reports whether the entry carries a reinstatement date on or
// before now.
func (e Entry) Reinstated(now time.Time) bool {
	d, ok := parseDate(e.ReinDate)
	return ok && !d.After(now)
}

// List is an in-memory index of the exclusion file.
type List struct {
	entries []Entry
	byNPI   map[string][]int
	byName  map[string][]int
}

var columns = map[string]func(*Entry, string){
	"LASTNAME":    func(e *Entry, v string) { e.LastName = v },
	"FIRSTNAME":   func(e *Entry, v string) { e.FirstName = v },
	"MIDNAME":     func(e *Entry, v string) { e.MiddleName = v },
	"BUSNAME":     func(e *Entry, v string) { e.BusinessName = v },
	"GENERAL":     func(e *Entry, v string) { e.General = v },
	"SPECIALTY":   func(e *Entry, v string) { e.Specialty = v },
	"NPI":         func(e *Entry, v string) { e.NPI = v },
	"STATE":       func(e *Entry, v string) { e.State = v },
	"EXCLTYPE":    func(e *Entry, v string) { e.ExclusionType = v },
	"EXCLDATE":    func(e *Entry, v string) { e.ExclusionDate = v },
	"REINDATE":    func(e *Entry, v string) { e.ReinDate = v },
	"WAIVERDATE":  func(e *Entry, v string) { e.WaiverDate = v },
	"WAIVERSTATE": func(e *Entry, v string) { e.WaiverState = v },
}

// Parse reads the CSV export. The header row must name at least NPI,
// FIRSTNAME, LASTNAME and EXCLTYPE.
func Parse(r io.Reader) (*List, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true
	cr.ReuseRecord = true

	header, err := cr.Read()
	if err != nil {
		return nil, eris.Wrap(err, "leie: read header")
	}
	setters := make([]func(*Entry, string), len(header))
	seen := map[string]bool{}
	for i, h := range header {
		h = strings.ToUpper(strings.TrimSpace(strings.TrimPrefix(h, "\ufeff")))
		setters[i] = columns[h]
		seen[h] = true
	}
	for _, req := range []string{"NPI", "FIRSTNAME", "LASTNAME", "EXCLTYPE"} {
		if !seen[req] {
			return nil, eris.Errorf("leie: missing column %s", req)
		}
	}

	l := &List{byNPI: map[string][]int{}, byName: map[string][]int{}}
	line := 1
	for {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		line++
		if err != nil {
			return nil, eris.Wrapf(err, "leie: line %d", line)
		}
		var e Entry
		for i, v := range rec {
			if i < len(setters) && setters[i] != nil {
				setters[i](&e, strings.TrimSpace(v))
			}
		}
		l.add(e)
	}
	return l, nil
}

func (l *List) add(e Entry) {
	idx := len(l.entries)
	l.entries = append(l.entries, e)
	if npi := cleanNPI(e.NPI); npi != "" {
		l.byNPI[npi] = append(l.byNPI[npi], idx)
	}
	if key := nameKey(e.FirstName, e.LastName); key != "" {
		l.byName[key] = append(l.byName[key], idx)
	}
}

// Len returns the number of entries.
func (l *List) Len() int { return len(l.entries) }

// Match finds the first entry not reinstated as of now. A usable NPI is
// matched on its own; otherwise first and last name must both match.
func (l *List) Match(npi, first, last string, now time.Time) (Entry, bool) {
	var idxs []int
	if n := cleanNPI(npi); n != "" {
		idxs = l.byNPI[n]
	} else {
		idxs = l.byName[nameKey(first, last)]
	}
	for _, i := range idxs {
		if !l.entries[i].Reinstated(now) {
			return l.entries[i], true
		}
	}
	return Entry{}, false
}

// cleanNPI drops the all-zero placeholder the export uses for unknown NPIs.
func cleanNPI(s string) string {
	s = strings.TrimSpace(s)
	if strings.Trim(s, "0") == "" {
		return ""
	}
	return s
}

func nameKey(first, last string) string {
	first = strings.ToUpper(strings.TrimSpace(first))
	last = strings.ToUpper(strings.TrimSpace(last))
	if first == "" || last == "" {
		return ""
	}
	return first + "|" + last
}

func parseDate(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" || strings.Trim(s, "0") == "" {
		return time.Time{}, false
	}
	t, err := time.Parse("20060102", s)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

// FormatDate renders an export date (YYYYMMDD) as YYYY-MM-DD. Placeholder
// and unreadable dates become "".
func FormatDate(s string) string {
	t, ok := parseDate(s)
	if !ok {
		return ""
	}
	return t.Format("2006-01-02")
}
