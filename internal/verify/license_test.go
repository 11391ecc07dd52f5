package verify

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/provider-validator/internal/model"
)

const roster = `License_Number,Name,Status,Expiration_Date,Disciplinary_Actions
036-123456,"DOE, JANE",Active,2027-03-31,
036-999999,Richard Roe,SUSPENDED,2026-01-01,Public reprimand 2023; Probation 2024
036-555555,Mary Major,active,2024-01-31,
,Blank Number,Active,,
`

func loadTestRoster(t *testing.T) *RosterBoard {
	t.Helper()
	rb, err := LoadRoster("Illinois", strings.NewReader(roster))
	require.NoError(t, err)
	rb.now = func() time.Time { return time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC) }
	return rb
}

func TestRosterBoard_Check(t *testing.T) {
	rb := loadTestRoster(t)
	assert.Equal(t, 3, rb.Len())
	ctx := context.Background()

	c, err := rb.Check(ctx, "036123456", "Jane Doe")
	require.NoError(t, err)
	assert.Equal(t, model.LicenseActive, c.Status)
	assert.Equal(t, "036-123456", c.LicenseNumber)
	assert.Equal(t, "IL", c.State)
	require.NotNil(t, c.ExpirationDate)

	c, err = rb.Check(ctx, "036-999999", "Richard Roe")
	require.NoError(t, err)
	assert.Equal(t, model.LicenseSuspended, c.Status)
	assert.Equal(t, []string{"Public reprimand 2023", "Probation 2024"}, c.DisciplinaryActions)

	c, err = rb.Check(ctx, "036-555555", "Mary Major")
	require.NoError(t, err)
	assert.Equal(t, model.LicenseExpired, c.Status, "past expiration overrides active")

	c, err = rb.Check(ctx, "036-000000", "Jane Doe")
	require.NoError(t, err)
	assert.Equal(t, model.LicenseNotFound, c.Status)

	c, err = rb.Check(ctx, "036-123456", "Someone Else Entirely")
	require.NoError(t, err)
	assert.Equal(t, model.LicenseNotFound, c.Status, "number owned by a different name")
}

func TestLoadRoster_MissingColumn(t *testing.T) {
	_, err := LoadRoster("IL", strings.NewReader("license_number,name\n1,a\n"))
	assert.ErrorContains(t, err, "status")

	_, err = LoadRoster("IL", strings.NewReader(""))
	assert.Error(t, err)
}

func TestLoadRosterFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "il.csv")
	require.NoError(t, os.WriteFile(path, []byte(roster), 0o600))

	rb, err := LoadRosterFile("IL", path)
	require.NoError(t, err)
	assert.Equal(t, 3, rb.Len())

	_, err = LoadRosterFile("IL", filepath.Join(t.TempDir(), "nope.csv"))
	assert.Error(t, err)
}

func TestBoards_UnsupportedStateNeedsManualCheck(t *testing.T) {
	b := NewBoards()
	require.NoError(t, b.Register("Illinois", loadTestRoster(t)))
	assert.True(t, b.Supported("IL"))
	assert.False(t, b.Supported("WY"))
	assert.Equal(t, []string{"IL"}, b.States())

	c, err := b.Check(context.Background(), "WY", "123", "Jane Doe")
	require.NoError(t, err)
	assert.Equal(t, model.LicenseManualRequired, c.Status)
	assert.Equal(t, "WY", c.State)

	c, err = b.Check(context.Background(), "il", "036-123456", "Jane Doe")
	require.NoError(t, err)
	assert.Equal(t, model.LicenseActive, c.Status)

	assert.Error(t, b.Register("Atlantis", loadTestRoster(t)))
}

func TestParseStatus(t *testing.T) {
	assert.Equal(t, model.LicenseActive, parseStatus(" current "))
	assert.Equal(t, model.LicenseExpired, parseStatus("Lapsed"))
	assert.Equal(t, model.LicenseRevoked, parseStatus("surrendered"))
	assert.Equal(t, model.LicenseProbation, parseStatus("Probation"))
	assert.Equal(t, model.LicenseManualRequired, parseStatus("pending review"))
}

func TestRegistry(t *testing.T) {
	r := NewRegistry()
	assert.Zero(t, r.Len())
	r.Register(nil)
	assert.Zero(t, r.Len())

	r.Register(License("a", NewBoards()))
	r.Register(License("b", NewBoards()))
	assert.Equal(t, 1, r.Len())
	v, ok := r.Get(model.KindLicense)
	require.True(t, ok)
	assert.Equal(t, "b", v.Source())

	_, ok = r.Get(model.KindGeo)
	assert.False(t, ok)
}
