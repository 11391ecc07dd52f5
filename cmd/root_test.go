//go:build !integration

package main

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/provider-validator/internal/model"
	"github.com/sells-group/provider-validator/internal/monitoring"
	"github.com/sells-group/provider-validator/internal/pipeline"
	"github.com/sells-group/provider-validator/internal/store"
)

func TestRootCommand_HasSubcommands(t *testing.T) {
	names := make(map[string]bool)
	for _, c := range rootCmd.Commands() {
		names[c.Name()] = true
	}

	expected := []string{"validate", "review", "providers", "serve", "migrate", "leie", "stats"}
	for _, name := range expected {
		assert.True(t, names[name], "expected subcommand %q not found", name)
	}
}

func TestRootCommand_Metadata(t *testing.T) {
	assert.Equal(t, "provider-validator", rootCmd.Use)
	assert.NotEmpty(t, rootCmd.Short)
	assert.NotEmpty(t, rootCmd.Long)
	assert.NotNil(t, rootCmd.PersistentFlags().Lookup("config"))
}

func TestReviewCommand_HasSubcommands(t *testing.T) {
	names := make(map[string]bool)
	for _, c := range reviewCmd.Commands() {
		names[c.Name()] = true
	}
	for _, name := range []string{"list", "show", "approve", "reject"} {
		assert.True(t, names[name], "expected review subcommand %q", name)
	}

	for _, c := range []string{"reviewer", "notes"} {
		assert.NotNil(t, reviewApproveCmd.Flags().Lookup(c))
		assert.NotNil(t, reviewRejectCmd.Flags().Lookup(c))
	}
	flag := reviewListCmd.Flags().Lookup("status")
	require.NotNil(t, flag)
	assert.Equal(t, "PENDING", flag.DefValue)
}

func TestProvidersCommand_HasSubcommands(t *testing.T) {
	names := make(map[string]bool)
	for _, c := range providersCmd.Commands() {
		names[c.Name()] = true
	}
	for _, name := range []string{"search", "show", "history"} {
		assert.True(t, names[name], "expected providers subcommand %q", name)
	}
	assert.NotNil(t, providersSearchCmd.Flags().Lookup("min-confidence"))
}

func TestServeCommand_Flags(t *testing.T) {
	flag := serveCmd.Flags().Lookup("port")
	require.NotNil(t, flag, "serve command should have --port flag")
	assert.Equal(t, "0", flag.DefValue)

	flag = serveCmd.Flags().Lookup("leie-refresh")
	require.NotNil(t, flag)
	assert.Equal(t, "24h0m0s", flag.DefValue)
}

func TestValidateCommand_Flags(t *testing.T) {
	for _, name := range []string{"file", "output", "limit", "name", "npi", "street", "city", "state", "zip", "last-confirmed"} {
		assert.NotNil(t, validateCmd.Flags().Lookup(name), "expected --%s", name)
	}
}

func TestRecordFlags(t *testing.T) {
	_, err := recordFlags{}.record()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--name or --npi")

	rec, err := recordFlags{
		name:          " Jane Doe ",
		npi:           "1234567893",
		state:         "IL",
		lastConfirmed: "2025-05-01",
		entityType:    "organization",
		source:        "web_scrape",
	}.record()
	require.NoError(t, err)
	assert.Equal(t, "Jane Doe", rec.FullName)
	assert.Equal(t, model.EntityOrganization, rec.EntityType)
	assert.Equal(t, model.SourceWebScrape, rec.Source)
	require.NotNil(t, rec.LastConfirmed)
	assert.Equal(t, time.Date(2025, 5, 1, 0, 0, 0, 0, time.UTC), *rec.LastConfirmed)

	_, err = recordFlags{npi: "1234567893", lastConfirmed: "last tuesday"}.record()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "last-confirmed")
}

func TestSummarizeBatch(t *testing.T) {
	results := []pipeline.BatchResult{
		{Index: 0, Validation: &model.Validation{Breakdown: model.ConfidenceBreakdown{Path: model.PathAutoApprove}}},
		{Index: 1, Validation: &model.Validation{Breakdown: model.ConfidenceBreakdown{Path: model.PathHumanReview}}},
		{Index: 2, Validation: &model.Validation{Breakdown: model.ConfidenceBreakdown{Path: model.PathHumanReview}}},
		{Index: 3, Error: "context canceled"},
	}
	assert.Equal(t, "4 records: 1 auto-approved, 0 monitored, 2 human review, 1 failed", summarizeBatch(results))
}

func TestFormatReviewList(t *testing.T) {
	var buf bytes.Buffer
	formatReviewList(&buf, []model.ReviewItem{{
		ID:           "0b6e3f0c-2f7d-4a3e-9c55-1f0e8a7d2b11",
		Priority:     model.PriorityHigh,
		Status:       model.ReviewPending,
		NPI:          "1234567893",
		ProviderName: "Dr. Bartholomew Featherstonehaugh-Smythe III",
		Score:        0.41,
		Reason:       "provider is on the federal exclusion list",
		CreatedAt:    time.Date(2025, 6, 1, 9, 30, 0, 0, time.UTC),
	}})

	out := buf.String()
	assert.Contains(t, out, "PRIORITY")
	assert.Contains(t, out, "0b6e3f0c-2f7d-4a3e-9c55-1f0e8a7d2b11")
	assert.Contains(t, out, "Dr. Bartholomew Featherston...")
	assert.Contains(t, out, "0.41")
	assert.Contains(t, out, "2025-06-01 09:30")
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "short", truncate("short", 10))
	assert.Equal(t, "abcdefg...", truncate("abcdefghijklmnop", 10))
	assert.Equal(t, "Müller-Lüdenscheid", truncate("Müller-Lüdenscheid", 18))
}

func TestFormatSnapshot(t *testing.T) {
	var buf bytes.Buffer
	snap := &monitoring.MetricsSnapshot{
		Validations:     10,
		AutoApproved:    6,
		Monitored:       1,
		HumanReview:     3,
		HumanReviewRate: 0.3,
		AvgScore:        0.8123,
		PendingReviews:  4,
		Sources:         []store.SourceStat{{Source: "nppes", Calls: 10, Failures: 2, AvgLatencyMS: 340}},
		LookbackHours:   24,
	}
	alerts := []monitoring.Alert{{Type: monitoring.AlertSourceFailureRate, Severity: "high", Message: "nppes failing"}}
	formatSnapshot(&buf, snap, alerts)

	out := buf.String()
	assert.Contains(t, out, "24h")
	assert.Contains(t, out, "(30%)")
	assert.Contains(t, out, "0.812")
	assert.Contains(t, out, "20.0%")
	assert.Contains(t, out, "340ms")
	assert.Contains(t, out, "ALERT [high] source_failure_rate: nppes failing")
}
