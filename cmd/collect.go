package cmd

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/Hali0321/Runwei-Government-Opportunity-ETL/internal/grants"
)

func overrideQueries(keyword, agency, oppID string) []grants.Query {
	if oppID != "" {
		return []grants.Query{{OpportunityID: oppID}}
	}
	return []grants.Query{{Keyword: keyword, AgencyCode: agency}}
}

// newCollectCmd creates the 'collect' subcommand, which runs one
// collection cycle over the configured queries and exits.
func newCollectCmd() *cobra.Command {
	var (
		keyword string
		agency  string
		oppID   string
	)
	cmd := &cobra.Command{
		Use:   "collect",
		Short: "Run one collection cycle",
		Long: `Pages through the Grants.gov search API for each configured query,
enriches every discovered opportunity through the source fallback
chain, and upserts the results into the store.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runCollect(cmd, keyword, agency, oppID)
		},
	}
	cmd.Flags().StringVar(&keyword, "keyword", "", "override configured queries with a single keyword search")
	cmd.Flags().StringVar(&agency, "agency", "", "restrict the keyword override to one agency code")
	cmd.Flags().StringVar(&oppID, "opportunity-id", "", "collect a single opportunity by id")
	return cmd
}

func runCollect(cmd *cobra.Command, keyword, agency, oppID string) error {
	appInstance, err := resolveApp(cmd.Context())
	if err != nil {
		return err
	}

	queries := appInstance.Config.Queries()
	if keyword != "" || oppID != "" {
		queries = overrideQueries(keyword, agency, oppID)
	}

	summary, err := appInstance.Collector.Run(cmd.Context(), queries)
	if err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("run collection: %w", err)
	}

	appInstance.Logger.Info("collection finished",
		zap.String("run_id", summary.RunID),
		zap.Int("found", summary.Counters.Found),
		zap.Int("enriched", summary.Counters.Enriched),
		zap.Int("upserted", summary.Counters.Upserted),
		zap.Int("rejected", summary.Counters.Rejected),
		zap.Int("failed", summary.Counters.Failed),
	)
	return nil
}
