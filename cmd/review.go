package main

import (
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/provider-validator/internal/model"
	"github.com/sells-group/provider-validator/internal/store"
)

var reviewCmd = &cobra.Command{
	Use:   "review",
	Short: "Work the human review queue",
	Long:  "Commands for listing, inspecting and resolving low-confidence validations.",
}

// -- review list --

var reviewListCmd = &cobra.Command{
	Use:   "list",
	Short: "List review queue entries, highest priority first",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		if err := cfg.Validate("review"); err != nil {
			return err
		}

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		status, _ := cmd.Flags().GetString("status")
		priority, _ := cmd.Flags().GetString("priority")
		limit, _ := cmd.Flags().GetInt("limit")

		items, err := st.ListReviews(ctx, store.ReviewFilter{
			Status:   model.ReviewStatus(strings.ToUpper(status)),
			Priority: model.ReviewPriority(strings.ToUpper(priority)),
			Limit:    limit,
		})
		if err != nil {
			return eris.Wrap(err, "review list")
		}

		if len(items) == 0 {
			fmt.Fprintln(os.Stderr, "No reviews found.")
			return nil
		}

		formatReviewList(os.Stdout, items)
		return nil
	},
}

// -- review show --

var reviewShowCmd = &cobra.Command{
	Use:   "show <review-id>",
	Short: "Show a review queue entry",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		item, err := st.GetReview(ctx, args[0])
		if err != nil {
			return eris.Wrap(err, "review show")
		}
		return writeJSON(os.Stdout, item)
	},
}

// -- review approve / reject --

var reviewApproveCmd = &cobra.Command{
	Use:   "approve <review-id>",
	Short: "Approve a pending review",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return resolveReview(cmd, args[0], model.ReviewApproved)
	},
}

var reviewRejectCmd = &cobra.Command{
	Use:   "reject <review-id>",
	Short: "Reject a pending review",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return resolveReview(cmd, args[0], model.ReviewRejected)
	},
}

func resolveReview(cmd *cobra.Command, id string, status model.ReviewStatus) error {
	ctx := cmd.Context()

	reviewer, _ := cmd.Flags().GetString("reviewer")
	notes, _ := cmd.Flags().GetString("notes")
	if strings.TrimSpace(reviewer) == "" {
		return eris.New("review: --reviewer is required")
	}

	st, err := openStore(ctx)
	if err != nil {
		return err
	}
	defer st.Close() //nolint:errcheck

	if err := st.ResolveReview(ctx, id, status, reviewer, notes); err != nil {
		return eris.Wrapf(err, "review %s", strings.ToLower(string(status)))
	}
	fmt.Fprintf(os.Stdout, "Review %s marked %s by %s.\n", id, status, reviewer)
	return nil
}

func init() {
	reviewListCmd.Flags().String("status", string(model.ReviewPending), "filter by status (PENDING, APPROVED, REJECTED; empty = all)")
	reviewListCmd.Flags().String("priority", "", "filter by priority (HIGH, NORMAL, LOW)")
	reviewListCmd.Flags().Int("limit", 50, "max number of reviews to display")

	for _, c := range []*cobra.Command{reviewApproveCmd, reviewRejectCmd} {
		c.Flags().String("reviewer", "", "who resolved the review (required)")
		c.Flags().String("notes", "", "resolution notes")
	}

	reviewCmd.AddCommand(reviewListCmd)
	reviewCmd.AddCommand(reviewShowCmd)
	reviewCmd.AddCommand(reviewApproveCmd)
	reviewCmd.AddCommand(reviewRejectCmd)
	rootCmd.AddCommand(reviewCmd)
}

// formatReviewList writes a tabular list of review items to w.
func formatReviewList(out io.Writer, items []model.ReviewItem) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "ID\tPRIORITY\tSTATUS\tNPI\tPROVIDER\tSCORE\tREASON\tCREATED")
	_, _ = fmt.Fprintln(w, "--\t--------\t------\t---\t--------\t-----\t------\t-------")

	for _, r := range items {
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%.2f\t%s\t%s\n",
			r.ID,
			r.Priority,
			r.Status,
			r.NPI,
			truncate(r.ProviderName, 30),
			r.Score,
			truncate(r.Reason, 40),
			r.CreatedAt.Format("2006-01-02 15:04"),
		)
	}
	_ = w.Flush()
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-3]) + "..."
}
