// Package cmd defines and implements the CLI commands for the grantsetl
// executable.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/Hali0321/Runwei-Government-Opportunity-ETL/internal/app"
	"github.com/Hali0321/Runwei-Government-Opportunity-ETL/internal/config"
)

var cfgFile string

// appKeyType is the key for storing the App in the context.
type appKeyType string

const appKey appKeyType = "app"

// newApp is the application factory. It is a variable so tests can
// replace it with a fake.
var newApp = func(ctx context.Context, cfg config.Config) (*app.App, error) {
	return app.New(ctx, cfg)
}

// newRootCmd creates and configures the root command. The app container
// is built in PersistentPreRunE and torn down in PersistentPostRun so
// every subcommand gets fully wired services from its context.
func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "grantsetl",
		Short: "Federal grant opportunity ETL for Grants.gov.",
		Long: `grantsetl collects federal grant opportunities from Grants.gov,
enriches each one through a tiered fallback of the detail API, the
search API, the public HTML pages, and the nightly database extract,
and serves the merged records over HTTP.`,

		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(cfgFile)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			appInstance, err := newApp(cmd.Context(), cfg)
			if err != nil {
				return fmt.Errorf("initialize application services: %w", err)
			}
			cmd.SetContext(context.WithValue(cmd.Context(), appKey, appInstance))
			return nil
		},

		PersistentPostRun: func(cmd *cobra.Command, _ []string) {
			if appInstance, ok := cmd.Context().Value(appKey).(*app.App); ok && appInstance != nil {
				appInstance.Close()
			}
		},
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default searches working directory)")

	cmd.AddCommand(newCollectCmd())
	cmd.AddCommand(newServeCmd())
	cmd.AddCommand(newBulkloadCmd())
	cmd.AddCommand(newCleanupCmd())

	return cmd
}

func resolveApp(ctx context.Context) (*app.App, error) {
	appInstance, ok := ctx.Value(appKey).(*app.App)
	if !ok || appInstance == nil {
		return nil, errors.New("application services not initialized")
	}
	return appInstance, nil
}

// Execute is the main entry point.
func Execute() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
