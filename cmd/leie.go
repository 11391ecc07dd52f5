package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/provider-validator/internal/fetcher"
	"github.com/sells-group/provider-validator/internal/verify"
)

var leieCmd = &cobra.Command{
	Use:   "leie",
	Short: "Manage the OIG exclusion list",
}

// -- leie download --

var leieDownloadCmd = &cobra.Command{
	Use:   "download",
	Short: "Download the exclusion list to a local file",
	RunE: func(cmd *cobra.Command, _ []string) error {
		out, _ := cmd.Flags().GetString("out")
		if out == "" {
			out = cfg.LEIE.File
		}
		if out == "" {
			return eris.New("leie download: --out or leie.file is required")
		}

		f := fetcher.NewHTTPFetcher(fetcher.HTTPOptions{})
		n, err := downloadExclusions(cmd.Context(), f, cfg.LEIE.URL, out)
		if err != nil {
			return err
		}
		fmt.Fprintf(os.Stderr, "Saved %d exclusions to %s.\n", n, out)
		return nil
	},
}

// downloadExclusions writes the list at url to path. The download goes to
// a temp file that must parse before it replaces path.
func downloadExclusions(ctx context.Context, f fetcher.Fetcher, url, path string) (int, error) {
	ex := verify.NewExclusionList(f, url)
	res, err := f.Fetch(ctx, url, fetcher.Validators{})
	if err != nil {
		return 0, eris.Wrap(err, "leie download")
	}
	defer res.Body.Close() //nolint:errcheck

	tmp, err := os.CreateTemp(filepath.Dir(path), ".leie-*.csv")
	if err != nil {
		return 0, eris.Wrap(err, "leie download: create temp file")
	}
	defer os.Remove(tmp.Name()) //nolint:errcheck

	if _, err := io.Copy(tmp, res.Body); err != nil {
		_ = tmp.Close()
		return 0, eris.Wrap(err, "leie download: write")
	}
	if err := tmp.Close(); err != nil {
		return 0, eris.Wrap(err, "leie download: close")
	}
	if err := ex.LoadFile(tmp.Name()); err != nil {
		return 0, eris.Wrap(err, "leie download: downloaded list does not parse")
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return 0, eris.Wrap(err, "leie download: rename")
	}
	return ex.Len(), nil
}

// -- leie check --

var leieCheckCmd = &cobra.Command{
	Use:   "check",
	Short: "Check one provider against a local exclusion list",
	RunE: func(cmd *cobra.Command, _ []string) error {
		file, _ := cmd.Flags().GetString("file")
		npi, _ := cmd.Flags().GetString("npi")
		name, _ := cmd.Flags().GetString("name")
		if file == "" {
			file = cfg.LEIE.File
		}
		if file == "" {
			return eris.New("leie check: --file or leie.file is required")
		}
		if npi == "" && name == "" {
			return eris.New("leie check: --npi or --name is required")
		}

		ex := verify.NewExclusionList(nil, "")
		if err := ex.LoadFile(file); err != nil {
			return err
		}
		res, err := ex.Check(cmd.Context(), npi, name)
		if err != nil {
			return eris.Wrap(err, "leie check")
		}
		return writeJSON(os.Stdout, res)
	},
}

func init() {
	leieDownloadCmd.Flags().String("out", "", "destination file (default leie.file)")
	leieCheckCmd.Flags().String("file", "", "exclusion list CSV (default leie.file)")
	leieCheckCmd.Flags().String("npi", "", "NPI to check")
	leieCheckCmd.Flags().String("name", "", "provider full name to check")

	leieCmd.AddCommand(leieDownloadCmd)
	leieCmd.AddCommand(leieCheckCmd)
	rootCmd.AddCommand(leieCmd)
}
