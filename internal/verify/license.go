package verify

import (
	"context"
	"encoding/csv"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/provider-validator/internal/address"
	"github.com/sells-group/provider-validator/internal/freshness"
	"github.com/sells-group/provider-validator/internal/model"
	"github.com/sells-group/provider-validator/internal/normalize"
)

// BoardChecker verifies licenses for one state.
type BoardChecker interface {
	Check(ctx context.Context, license, name string) (model.LicenseCheck, error)
}

// Boards routes license checks to per-state board checkers. States without
// a checker come back as MANUAL_VERIFICATION_REQUIRED.
type Boards struct {
	mu     sync.RWMutex
	boards map[string]BoardChecker
}

// NewBoards returns an empty board registry.
func NewBoards() *Boards {
	return &Boards{boards: make(map[string]BoardChecker)}
}

// Register adds the checker for state (name or two-letter code).
func (b *Boards) Register(state string, c BoardChecker) error {
	code := address.StateCode(state)
	if code == "" {
		return eris.Errorf("verify: unknown state %q", state)
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.boards[code] = c
	return nil
}

// Supported reports whether state has an automated checker.
func (b *Boards) Supported(state string) bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	_, ok := b.boards[address.StateCode(state)]
	return ok
}

// States lists the states with a checker.
func (b *Boards) States() []string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]string, 0, len(b.boards))
	for s := range b.boards {
		out = append(out, s)
	}
	return out
}

// Check implements LicenseVerifier.
func (b *Boards) Check(ctx context.Context, state, license, name string) (model.LicenseCheck, error) {
	code := address.StateCode(state)
	b.mu.RLock()
	c, ok := b.boards[code]
	b.mu.RUnlock()
	if !ok {
		return model.LicenseCheck{Status: model.LicenseManualRequired, LicenseNumber: license, State: code}, nil
	}
	lc, err := c.Check(ctx, license, name)
	if err != nil {
		return model.LicenseCheck{}, eris.Wrapf(err, "verify: %s license board", code)
	}
	if lc.State == "" {
		lc.State = code
	}
	return lc, nil
}

// rosterEntry is one licensee in a board export.
type rosterEntry struct {
	number     string
	name       string
	status     model.LicenseStatus
	expiration *time.Time
	actions    []string
}

// RosterBoard answers license checks from a board's published roster
// export, a CSV with a header row.
type RosterBoard struct {
	state   string
	entries map[string]rosterEntry
	now     func() time.Time
}

// roster columns, matched case-insensitively.
const (
	colLicense    = "license_number"
	colName       = "name"
	colStatus     = "status"
	colExpiration = "expiration_date"
	colActions    = "disciplinary_actions"
)

// minRosterNameSimilarity is the lowest name similarity accepted for a
// license number match.
const minRosterNameSimilarity = 60

// LoadRoster parses a roster export for state.
func LoadRoster(state string, r io.Reader) (*RosterBoard, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err != nil {
		return nil, eris.Wrap(err, "verify: read roster header")
	}
	idx := make(map[string]int, len(header))
	for i, h := range header {
		idx[strings.ToLower(strings.TrimSpace(h))] = i
	}
	for _, col := range []string{colLicense, colName, colStatus} {
		if _, ok := idx[col]; !ok {
			return nil, eris.Errorf("verify: roster missing column %q", col)
		}
	}
	get := func(row []string, col string) string {
		i, ok := idx[col]
		if !ok || i >= len(row) {
			return ""
		}
		return strings.TrimSpace(row[i])
	}

	rb := &RosterBoard{state: address.StateCode(state), entries: make(map[string]rosterEntry), now: time.Now}
	for line := 2; ; line++ {
		row, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, eris.Wrapf(err, "verify: roster line %d", line)
		}
		num := normalize.Identifier(get(row, colLicense))
		if num == "" {
			continue
		}
		e := rosterEntry{
			number:     get(row, colLicense),
			name:       get(row, colName),
			status:     parseStatus(get(row, colStatus)),
			expiration: freshness.ParseDate(get(row, colExpiration)),
		}
		if a := get(row, colActions); a != "" {
			for _, part := range strings.Split(a, ";") {
				if p := strings.TrimSpace(part); p != "" {
					e.actions = append(e.actions, p)
				}
			}
		}
		rb.entries[num] = e
	}
	return rb, nil
}

// LoadRosterFile opens and parses a roster export.
func LoadRosterFile(state, path string) (*RosterBoard, error) {
	f, err := os.Open(path) // #nosec G304 -- operator-supplied roster path
	if err != nil {
		return nil, eris.Wrapf(err, "verify: open roster %s", path)
	}
	defer f.Close() //nolint:errcheck
	return LoadRoster(state, f)
}

// Len returns the number of licensees loaded.
func (rb *RosterBoard) Len() int { return len(rb.entries) }

// Check implements BoardChecker.
func (rb *RosterBoard) Check(_ context.Context, license, name string) (model.LicenseCheck, error) {
	e, ok := rb.entries[normalize.Identifier(license)]
	if !ok {
		return model.LicenseCheck{Status: model.LicenseNotFound, LicenseNumber: license, State: rb.state}, nil
	}
	if name != "" && e.name != "" && normalize.NameSimilarity(name, e.name) < minRosterNameSimilarity {
		return model.LicenseCheck{Status: model.LicenseNotFound, LicenseNumber: license, State: rb.state}, nil
	}
	status := e.status
	if status == model.LicenseActive && e.expiration != nil && e.expiration.Before(rb.now()) {
		status = model.LicenseExpired
	}
	return model.LicenseCheck{
		Status:              status,
		ExpirationDate:      e.expiration,
		DisciplinaryActions: e.actions,
		LicenseNumber:       e.number,
		State:               rb.state,
	}, nil
}

func parseStatus(s string) model.LicenseStatus {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "ACTIVE", "CURRENT", "CLEAR", "RENEWED":
		return model.LicenseActive
	case "EXPIRED", "LAPSED", "DELINQUENT", "INACTIVE":
		return model.LicenseExpired
	case "SUSPENDED":
		return model.LicenseSuspended
	case "REVOKED", "SURRENDERED", "CANCELLED", "CANCELED":
		return model.LicenseRevoked
	case "PROBATION", "RESTRICTED":
		return model.LicenseProbation
	}
	return model.LicenseManualRequired
}
