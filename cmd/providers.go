package main

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/provider-validator/internal/model"
	"github.com/sells-group/provider-validator/internal/store"
)

var providersCmd = &cobra.Command{
	Use:   "providers",
	Short: "Query validated provider records",
}

// -- providers search --

var providersSearchCmd = &cobra.Command{
	Use:   "search",
	Short: "Search golden provider records",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		name, _ := cmd.Flags().GetString("name")
		state, _ := cmd.Flags().GetString("state")
		specialty, _ := cmd.Flags().GetString("specialty")
		minConf, _ := cmd.Flags().GetFloat64("min-confidence")
		limit, _ := cmd.Flags().GetInt("limit")

		recs, err := st.SearchProviders(ctx, store.ProviderFilter{
			Name:          name,
			State:         state,
			Specialty:     specialty,
			MinConfidence: minConf,
			Limit:         limit,
		})
		if err != nil {
			return eris.Wrap(err, "providers search")
		}

		if len(recs) == 0 {
			fmt.Fprintln(os.Stderr, "No providers found.")
			return nil
		}

		formatProviderList(os.Stdout, recs)
		return nil
	},
}

// -- providers show --

var providersShowCmd = &cobra.Command{
	Use:   "show <npi>",
	Short: "Show the golden record for a provider",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		rec, err := st.GetProvider(ctx, args[0])
		if err != nil {
			return eris.Wrap(err, "providers show")
		}
		return writeJSON(os.Stdout, rec)
	},
}

// -- providers history --

var providersHistoryCmd = &cobra.Command{
	Use:   "history <npi>",
	Short: "List past validations of a provider",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		entries, err := st.ListHistory(ctx, args[0])
		if err != nil {
			return eris.Wrap(err, "providers history")
		}
		if len(entries) == 0 {
			fmt.Fprintln(os.Stderr, "No history found.")
			return nil
		}

		formatHistory(os.Stdout, entries)
		return nil
	},
}

func init() {
	providersSearchCmd.Flags().String("name", "", "name substring")
	providersSearchCmd.Flags().String("state", "", "two-letter state code")
	providersSearchCmd.Flags().String("specialty", "", "specialty substring")
	providersSearchCmd.Flags().Float64("min-confidence", 0, "minimum confidence score (0..1)")
	providersSearchCmd.Flags().Int("limit", 50, "max number of providers to display")

	providersCmd.AddCommand(providersSearchCmd)
	providersCmd.AddCommand(providersShowCmd)
	providersCmd.AddCommand(providersHistoryCmd)
	rootCmd.AddCommand(providersCmd)
}

// formatProviderList writes a tabular list of provider records to w.
func formatProviderList(out io.Writer, recs []model.ProviderRecord) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "NPI\tNAME\tSTATE\tSPECIALTY\tSCORE\tTIER\tEXCLUDED\tUPDATED")
	_, _ = fmt.Fprintln(w, "---\t----\t-----\t---------\t-----\t----\t--------\t-------")

	for _, r := range recs {
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%.2f\t%s\t%t\t%s\n",
			r.NPI,
			truncate(r.Name, 30),
			r.State,
			truncate(r.Specialty, 25),
			r.Score,
			r.Tier,
			r.Excluded,
			r.UpdatedAt.Format("2006-01-02 15:04"),
		)
	}
	_ = w.Flush()
}

// formatHistory writes a provider's validation history to w.
func formatHistory(out io.Writer, entries []model.HistoryEntry) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "VALIDATION\tSCORE\tTIER\tPATH\tCREATED")
	_, _ = fmt.Fprintln(w, "----------\t-----\t----\t----\t-------")

	for _, e := range entries {
		_, _ = fmt.Fprintf(w, "%s\t%.2f\t%s\t%s\t%s\n",
			e.ValidationID,
			e.Score,
			e.Tier,
			e.Path,
			e.CreatedAt.Format("2006-01-02 15:04"),
		)
	}
	_ = w.Flush()
}
