package main

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/provider-validator/internal/monitoring"
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show validation activity and evaluate alert thresholds",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		hours, _ := cmd.Flags().GetInt("hours")
		asJSON, _ := cmd.Flags().GetBool("json")
		send, _ := cmd.Flags().GetBool("send-alerts")
		if hours <= 0 {
			hours = cfg.Monitoring.LookbackWindowHours
		}

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		snap, err := monitoring.NewCollector(st).Collect(ctx, hours)
		if err != nil {
			return eris.Wrap(err, "stats")
		}
		alerter := monitoring.NewAlerter(cfg.Monitoring)
		alerts := alerter.Evaluate(snap)

		if asJSON {
			if err := writeJSON(os.Stdout, map[string]any{"snapshot": snap, "alerts": alerts}); err != nil {
				return err
			}
		} else {
			formatSnapshot(os.Stdout, snap, alerts)
		}

		if send && len(alerts) > 0 {
			n := alerter.SendAlerts(ctx, alerts)
			fmt.Fprintf(os.Stderr, "Sent %d of %d alerts.\n", n, len(alerts))
		}
		return nil
	},
}

func init() {
	statsCmd.Flags().Int("hours", 0, "lookback window in hours (default monitoring.lookback_window_hours)")
	statsCmd.Flags().Bool("json", false, "print JSON instead of a table")
	statsCmd.Flags().Bool("send-alerts", false, "post triggered alerts to monitoring.webhook_url")
	rootCmd.AddCommand(statsCmd)
}

// formatSnapshot writes a snapshot and its alerts to w.
func formatSnapshot(out io.Writer, s *monitoring.MetricsSnapshot, alerts []monitoring.Alert) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintf(w, "Window:\t%dh\n", s.LookbackHours)
	_, _ = fmt.Fprintf(w, "Validations:\t%d\n", s.Validations)
	_, _ = fmt.Fprintf(w, "  Auto-approved:\t%d\n", s.AutoApproved)
	_, _ = fmt.Fprintf(w, "  Monitored:\t%d\n", s.Monitored)
	_, _ = fmt.Fprintf(w, "  Human review:\t%d (%.0f%%)\n", s.HumanReview, s.HumanReviewRate*100)
	if s.Validations > 0 {
		_, _ = fmt.Fprintf(w, "Avg score:\t%.3f\n", s.AvgScore)
	}
	_, _ = fmt.Fprintf(w, "Pending reviews:\t%d\n", s.PendingReviews)
	_ = w.Flush()

	if len(s.Sources) > 0 {
		_, _ = fmt.Fprintln(out)
		w = tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
		_, _ = fmt.Fprintln(w, "SOURCE\tCALLS\tFAILURES\tFAIL_RATE\tAVG_LATENCY")
		for _, src := range s.Sources {
			_, _ = fmt.Fprintf(w, "%s\t%d\t%d\t%.1f%%\t%.0fms\n",
				src.Source, src.Calls, src.Failures, src.FailureRate()*100, src.AvgLatencyMS)
		}
		_ = w.Flush()
	}

	if len(alerts) > 0 {
		_, _ = fmt.Fprintln(out)
		for _, a := range alerts {
			_, _ = fmt.Fprintf(out, "ALERT [%s] %s: %s\n", a.Severity, a.Type, a.Message)
		}
	}
}
