package pipeline

import (
	"encoding/csv"
	"io"
	"os"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/provider-validator/internal/freshness"
	"github.com/sells-group/provider-validator/internal/model"
)

// ParseRecordsCSV reads submitted provider records from a CSV file.
func ParseRecordsCSV(path string) ([]model.SubmittedRecord, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, eris.Wrap(err, "csv: open")
	}
	defer f.Close() //nolint:errcheck
	return ReadRecordsCSV(f)
}

// ReadRecordsCSV parses records from r. Headers are matched case-insensitively
// and full_name is the only required column. List columns (education,
// certifications, languages, insurance) are split on ';'.
func ReadRecordsCSV(r io.Reader) ([]model.SubmittedRecord, error) {
	reader := csv.NewReader(r)
	reader.LazyQuotes = true
	reader.FieldsPerRecord = -1

	rows, err := reader.ReadAll()
	if err != nil {
		return nil, eris.Wrap(err, "csv: read")
	}
	if len(rows) < 2 {
		return nil, eris.New("csv: no data rows")
	}

	colIdx := make(map[string]int, len(rows[0]))
	for i, col := range rows[0] {
		colIdx[strings.ToLower(strings.TrimSpace(col))] = i
	}
	if _, ok := colIdx["full_name"]; !ok {
		return nil, eris.New(`csv: missing required column "full_name"`)
	}

	recs := make([]model.SubmittedRecord, 0, len(rows)-1)
	for _, row := range rows[1:] {
		get := func(col string) string { return getCol(row, colIdx, col) }
		if get("full_name") == "" {
			continue
		}
		recs = append(recs, model.SubmittedRecord{
			FullName:       get("full_name"),
			NPI:            get("npi"),
			Street:         get("street"),
			City:           get("city"),
			State:          get("state"),
			Zip:            get("zip"),
			Phone:          get("phone"),
			Website:        get("website"),
			Specialty:      get("specialty"),
			LicenseNumber:  get("license_number"),
			LastConfirmed:  freshness.ParseDate(get("last_confirmed")),
			EntityType:     model.EntityType(strings.ToUpper(get("entity_type"))),
			Source:         model.SourceType(strings.ToUpper(get("source"))),
			Education:      splitList(get("education")),
			Certifications: splitList(get("certifications")),
			Languages:      splitList(get("languages")),
			Insurance:      splitList(get("insurance")),
		})
	}
	return recs, nil
}

func getCol(row []string, colIdx map[string]int, col string) string {
	i, ok := colIdx[col]
	if !ok || i >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[i])
}

func splitList(s string) []string {
	if s == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(s, ";") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
