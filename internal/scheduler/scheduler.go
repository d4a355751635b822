// Package scheduler drives periodic collection runs via robfig/cron.
package scheduler

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/Hali0321/Runwei-Government-Opportunity-ETL/internal/grants"
)

// Runner executes one collection cycle.
type Runner interface {
	Run(ctx context.Context, queries []grants.Query) (grants.RunSummary, error)
}

// Scheduler wraps robfig/cron and manages the collect loop.
type Scheduler struct {
	cron    *cron.Cron
	runner  Runner
	queries []grants.Query
	spec    string
	logger  *zap.Logger
	running atomic.Bool
}

// New creates a Scheduler that fires on the given cron spec, e.g.
// "@every 6h".
func New(runner Runner, queries []grants.Query, spec string, logger *zap.Logger) *Scheduler {
	return &Scheduler{
		cron:    cron.New(cron.WithLogger(cron.DiscardLogger)),
		runner:  runner,
		queries: queries,
		spec:    spec,
		logger:  logger,
	}
}

// Start registers the job and starts the scheduler. Also runs one cycle
// immediately so the store is populated without waiting for the first
// tick.
func (s *Scheduler) Start(ctx context.Context) error {
	_, err := s.cron.AddFunc(s.spec, func() {
		s.runCycle(ctx)
	})
	if err != nil {
		return fmt.Errorf("cron.AddFunc: %w", err)
	}

	s.cron.Start()
	s.logger.Info("scheduler started", zap.String("spec", s.spec))

	go s.runCycle(ctx)

	return nil
}

// Stop halts scheduling and waits for any in-flight cron invocation.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
	s.logger.Info("scheduler stopped")
}

// runCycle runs a single collection, skipping the tick when the
// previous run is still in flight.
func (s *Scheduler) runCycle(ctx context.Context) {
	if !s.running.CompareAndSwap(false, true) {
		s.logger.Warn("collection still in flight, skipping tick")
		return
	}
	defer s.running.Store(false)

	summary, err := s.runner.Run(ctx, s.queries)
	if err != nil {
		s.logger.Error("collection cycle failed", zap.Error(err))
		return
	}
	s.logger.Info("collection cycle finished",
		zap.String("run_id", summary.RunID),
		zap.Int("found", summary.Counters.Found),
		zap.Int("upserted", summary.Counters.Upserted),
		zap.Int("failed", summary.Counters.Failed),
	)
}
