package pipeline

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/provider-validator/internal/model"
)

func TestReadRecordsCSV(t *testing.T) {
	in := `Full_Name,NPI,Street,City,State,Zip,Phone,Specialty,Last_Confirmed,Entity_Type,Languages
Dr. Jane Smith,1234567893,100 Main St,Springfield,IL,62701,217-555-0100,Cardiology,2025-05-01,individual,English; Spanish
,999,ignored,,,,,,,,
Acme Clinic,,1 Oak Ave,Peoria,IL,61602,,,,ORGANIZATION,
`
	recs, err := ReadRecordsCSV(strings.NewReader(in))
	require.NoError(t, err)
	require.Len(t, recs, 2)

	r := recs[0]
	assert.Equal(t, "Dr. Jane Smith", r.FullName)
	assert.Equal(t, "1234567893", r.NPI)
	assert.Equal(t, "100 Main St, Springfield, IL 62701", r.AddressLine())
	assert.Equal(t, "Cardiology", r.Specialty)
	assert.Equal(t, model.EntityIndividual, r.EntityType)
	assert.Equal(t, []string{"English", "Spanish"}, r.Languages)
	require.NotNil(t, r.LastConfirmed)
	assert.Equal(t, time.Date(2025, 5, 1, 0, 0, 0, 0, time.UTC), *r.LastConfirmed)
	assert.Equal(t, model.SourceCSVUpload, r.SourceType())

	assert.Equal(t, "Acme Clinic", recs[1].FullName)
	assert.Equal(t, model.EntityOrganization, recs[1].Entity())
	assert.Nil(t, recs[1].LastConfirmed)
	assert.Nil(t, recs[1].Languages)
}

func TestReadRecordsCSV_Errors(t *testing.T) {
	_, err := ReadRecordsCSV(strings.NewReader("full_name\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no data rows")

	_, err = ReadRecordsCSV(strings.NewReader("name,npi\nJane,1\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "full_name")
}

func TestParseRecordsCSV_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "providers.csv")
	require.NoError(t, os.WriteFile(path, []byte("full_name,state\nJane Smith,TX\n"), 0o644))

	recs, err := ParseRecordsCSV(path)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, "TX", recs[0].State)

	_, err = ParseRecordsCSV(filepath.Join(t.TempDir(), "missing.csv"))
	assert.Error(t, err)
}
