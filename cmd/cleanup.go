package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// newCleanupCmd creates the 'cleanup' subcommand, which removes stale
// records past the retention window.
func newCleanupCmd() *cobra.Command {
	var maxAgeDays int
	cmd := &cobra.Command{
		Use:   "cleanup",
		Short: "Delete records past the retention window",
		Long: `Removes opportunities whose last update is older than the retention
window, keeping the store bounded to recent, actionable records.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runCleanup(cmd, maxAgeDays)
		},
	}
	cmd.Flags().IntVar(&maxAgeDays, "max-age-days", 0, "override the configured retention window")
	return cmd
}

func runCleanup(cmd *cobra.Command, maxAgeDays int) error {
	appInstance, err := resolveApp(cmd.Context())
	if err != nil {
		return err
	}

	if maxAgeDays <= 0 {
		maxAgeDays = appInstance.Config.Retention.MaxAgeDays
	}

	removed, err := appInstance.Store.DeleteOlderThan(cmd.Context(), maxAgeDays)
	if err != nil {
		return fmt.Errorf("delete stale records: %w", err)
	}

	appInstance.Logger.Info("cleanup finished",
		zap.Int("max_age_days", maxAgeDays),
		zap.Int64("removed", removed),
	)
	return nil
}
