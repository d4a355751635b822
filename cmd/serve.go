package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/Hali0321/Runwei-Government-Opportunity-ETL/internal/scheduler"
)

// newServeCmd creates the 'serve' subcommand, which hosts the HTTP API
// and, unless disabled, runs scheduled collection cycles in the
// background.
func newServeCmd() *cobra.Command {
	var noSchedule bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the HTTP API",
		Long: `Starts the HTTP server exposing the stored opportunities, health
checks, and Prometheus metrics. A background scheduler periodically
runs the configured collection queries unless --no-schedule is set.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd, noSchedule)
		},
	}
	cmd.Flags().BoolVar(&noSchedule, "no-schedule", false, "serve the API without background collection")
	return cmd
}

func runServe(cmd *cobra.Command, noSchedule bool) error {
	appInstance, err := resolveApp(cmd.Context())
	if err != nil {
		return err
	}
	logger := appInstance.Logger

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if !noSchedule {
		sched := scheduler.New(
			appInstance.Collector,
			appInstance.Config.Queries(),
			appInstance.Config.Collect.Schedule,
			logger,
		)
		if err := sched.Start(ctx); err != nil {
			return fmt.Errorf("start scheduler: %w", err)
		}
		defer sched.Stop()
	}

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", appInstance.Config.Server.Port),
		Handler:           appInstance.APIServer().Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("http server listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown http server: %w", err)
	}
	logger.Info("http server stopped")
	return nil
}
