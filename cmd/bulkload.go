package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// newBulkloadCmd creates the 'bulkload' subcommand, which downloads a
// nightly database extract and loads every record it contains.
func newBulkloadCmd() *cobra.Command {
	var (
		date string
		file string
	)
	cmd := &cobra.Command{
		Use:   "bulkload",
		Short: "Load a nightly database extract",
		Long: `Downloads the Grants.gov database extract for the given date (or
yesterday when omitted), streams every opportunity record out of the
archive, and upserts them all into the store. Loaded records also seed
the in-memory bulk index used as the last enrichment fallback.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runBulkload(cmd, date, file)
		},
	}
	cmd.Flags().StringVar(&date, "date", "", "extract date in YYYY-MM-DD form (default yesterday)")
	cmd.Flags().StringVar(&file, "file", "", "load an already-downloaded archive instead of fetching")
	return cmd
}

func runBulkload(cmd *cobra.Command, date, file string) error {
	appInstance, err := resolveApp(cmd.Context())
	if err != nil {
		return err
	}

	path := file
	if path == "" {
		day := time.Now().AddDate(0, 0, -1)
		if date != "" {
			day, err = time.Parse("2006-01-02", date)
			if err != nil {
				return fmt.Errorf("parse --date: %w", err)
			}
		}
		path, err = appInstance.Loader.Download(cmd.Context(), day, appInstance.Config.Bulkload.DestDir)
		if err != nil {
			return fmt.Errorf("download extract: %w", err)
		}
		appInstance.Logger.Info("extract downloaded", zap.String("path", path))
	}

	counters, err := appInstance.BulkRunner.Load(cmd.Context(), appInstance.Loader, path)
	if err != nil {
		return fmt.Errorf("load extract: %w", err)
	}

	appInstance.Logger.Info("bulk load finished",
		zap.Int("found", counters.Found),
		zap.Int("upserted", counters.Upserted),
		zap.Int("rejected", counters.Rejected),
		zap.Int("failed", counters.Failed),
	)
	return nil
}
