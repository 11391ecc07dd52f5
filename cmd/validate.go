package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/provider-validator/internal/freshness"
	"github.com/sells-group/provider-validator/internal/model"
	"github.com/sells-group/provider-validator/internal/pipeline"
)

var (
	validateFile   string
	validateOutput string
	validateLimit  int
	validateRecord recordFlags
)

// recordFlags mirrors SubmittedRecord for single-record validation.
type recordFlags struct {
	name, npi, street, city, state, zip string
	phone, website, specialty, license  string
	lastConfirmed, entityType, source   string
}

func (f recordFlags) record() (model.SubmittedRecord, error) {
	rec := model.SubmittedRecord{
		FullName:      strings.TrimSpace(f.name),
		NPI:           strings.TrimSpace(f.npi),
		Street:        f.street,
		City:          f.city,
		State:         f.state,
		Zip:           f.zip,
		Phone:         f.phone,
		Website:       f.website,
		Specialty:     f.specialty,
		LicenseNumber: f.license,
		EntityType:    model.EntityType(strings.ToUpper(f.entityType)),
		Source:        model.SourceType(strings.ToUpper(f.source)),
	}
	if rec.FullName == "" && rec.NPI == "" {
		return rec, eris.New("validate: --name or --npi is required (or --file)")
	}
	if f.lastConfirmed != "" {
		rec.LastConfirmed = freshness.ParseDate(f.lastConfirmed)
		if rec.LastConfirmed == nil {
			return rec, eris.Errorf("validate: unreadable --last-confirmed %q", f.lastConfirmed)
		}
	}
	return rec, nil
}

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate one provider or a CSV of providers",
	Long: `Runs each record through verification, address reconciliation, conflict
arbitration and confidence scoring. Results are written as JSON.

Examples:
  provider-validator validate --name "Jane Smith" --npi 1234567893 --state IL
  provider-validator validate --file providers.csv --output results.json`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		var recs []model.SubmittedRecord
		if validateFile != "" {
			parsed, err := pipeline.ParseRecordsCSV(validateFile)
			if err != nil {
				return eris.Wrap(err, "validate: load records")
			}
			if validateLimit > 0 && len(parsed) > validateLimit {
				parsed = parsed[:validateLimit]
			}
			recs = parsed
		} else {
			rec, err := validateRecord.record()
			if err != nil {
				return err
			}
			recs = []model.SubmittedRecord{rec}
		}

		env, err := initValidator(ctx, "validate")
		if err != nil {
			return err
		}
		defer env.Close()

		out, closeOut, err := openOutput(validateOutput)
		if err != nil {
			return err
		}
		defer closeOut()

		if validateFile == "" {
			v, err := env.Pipeline.Validate(ctx, recs[0])
			if v == nil {
				return eris.Wrap(err, "validate")
			}
			if err != nil {
				zap.L().Warn("validation not persisted", zap.Error(err))
			}
			return writeJSON(out, v)
		}

		results := env.Pipeline.ValidateBatch(ctx, recs)
		if err := writeJSON(out, results); err != nil {
			return err
		}
		fmt.Fprintln(os.Stderr, summarizeBatch(results))
		return nil
	},
}

// summarizeBatch renders per-path counts for a batch.
func summarizeBatch(results []pipeline.BatchResult) string {
	var failed int
	byPath := make(map[model.Path]int)
	for _, r := range results {
		if r.Validation == nil {
			failed++
			continue
		}
		byPath[r.Validation.Breakdown.Path]++
	}
	return fmt.Sprintf("%d records: %d auto-approved, %d monitored, %d human review, %d failed",
		len(results),
		byPath[model.PathAutoApprove],
		byPath[model.PathMonitoredApprove],
		byPath[model.PathHumanReview],
		failed,
	)
}

// openOutput returns stdout for an empty path and a created file otherwise.
func openOutput(path string) (io.Writer, func(), error) {
	if path == "" {
		return os.Stdout, func() {}, nil
	}
	f, err := os.Create(path) // #nosec G304 -- operator-supplied output path
	if err != nil {
		return nil, nil, eris.Wrapf(err, "create output %s", path)
	}
	return f, func() { _ = f.Close() }, nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func init() {
	f := validateCmd.Flags()
	f.StringVar(&validateFile, "file", "", "CSV of providers to validate (header row required, full_name column)")
	f.StringVar(&validateOutput, "output", "", "write JSON results to this file instead of stdout")
	f.IntVar(&validateLimit, "limit", 0, "validate at most this many CSV rows (0 = all)")
	f.StringVar(&validateRecord.name, "name", "", "provider full name")
	f.StringVar(&validateRecord.npi, "npi", "", "10-digit NPI")
	f.StringVar(&validateRecord.street, "street", "", "street address")
	f.StringVar(&validateRecord.city, "city", "", "city")
	f.StringVar(&validateRecord.state, "state", "", "state (code or name)")
	f.StringVar(&validateRecord.zip, "zip", "", "ZIP code")
	f.StringVar(&validateRecord.phone, "phone", "", "phone number")
	f.StringVar(&validateRecord.website, "website", "", "website URL")
	f.StringVar(&validateRecord.specialty, "specialty", "", "specialty")
	f.StringVar(&validateRecord.license, "license", "", "state license number")
	f.StringVar(&validateRecord.lastConfirmed, "last-confirmed", "", "date the record was last confirmed (YYYY-MM-DD)")
	f.StringVar(&validateRecord.entityType, "entity-type", "", "INDIVIDUAL or ORGANIZATION")
	f.StringVar(&validateRecord.source, "source", "", "where the record came from (CSV_UPLOAD, WEB_SCRAPE, ...)")
	rootCmd.AddCommand(validateCmd)
}
