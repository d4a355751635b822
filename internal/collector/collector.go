// Package collector orchestrates one collection cycle: expand queries,
// page through search results, fan unique ids out to the enrichment
// workers, and report a run summary.
package collector

import (
	"context"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"

	"github.com/Hali0321/Runwei-Government-Opportunity-ETL/internal/dedupe"
	"github.com/Hali0321/Runwei-Government-Opportunity-ETL/internal/grants"
	"github.com/Hali0321/Runwei-Government-Opportunity-ETL/internal/normalize"
	"github.com/Hali0321/Runwei-Government-Opportunity-ETL/internal/queue"
	"github.com/Hali0321/Runwei-Government-Opportunity-ETL/internal/telemetry"
	"github.com/Hali0321/Runwei-Government-Opportunity-ETL/internal/worker"
)

// Searcher pages through one query's search results.
type Searcher interface {
	Run(ctx context.Context, q grants.Query, fn func(grants.RawRecord) bool) (int, error)
}

// IDGenerator mints run ids.
type IDGenerator interface {
	NewID() (string, error)
}

// Session owns the task queue and worker pool for a single run. Closing
// the queue drains the pool; nothing in a Session outlives the run.
type Session struct {
	Queue queue.Queue
	Pool  *worker.Pool
}

// SessionFactory mints a fresh Session at the start of each run so that
// queue shutdown and worker tallies stay scoped to that run.
type SessionFactory func(ctx context.Context) (Session, error)

// Collector wires the search stage to the worker pool.
type Collector struct {
	searcher Searcher
	sessions SessionFactory
	seen     grants.SeenSet
	ids      IDGenerator
	clock    grants.Clock
	logger   *zap.Logger
}

// New constructs a Collector. A nil seen set gets a fresh in-memory one;
// inject a shared (Redis) set when several collectors run at once.
func New(
	searcher Searcher,
	sessions SessionFactory,
	seen grants.SeenSet,
	ids IDGenerator,
	clock grants.Clock,
	logger *zap.Logger,
) *Collector {
	if seen == nil {
		seen = dedupe.NewMemorySeen()
	}
	if clock == nil {
		clock = grants.SystemClock{}
	}
	return &Collector{
		searcher: searcher,
		sessions: sessions,
		seen:     seen,
		ids:      ids,
		clock:    clock,
		logger:   logger,
	}
}

// Run executes one cycle over the given queries. Individual query
// failures are counted and logged; the cycle keeps going.
func (c *Collector) Run(ctx context.Context, queries []grants.Query) (grants.RunSummary, error) {
	runID, err := c.ids.NewID()
	if err != nil {
		return grants.RunSummary{}, fmt.Errorf("mint run id: %w", err)
	}
	sess, err := c.sessions(ctx)
	if err != nil {
		return grants.RunSummary{}, fmt.Errorf("open run session: %w", err)
	}
	summary := grants.RunSummary{
		RunID:   runID,
		Started: c.clock.Now(),
		Queries: make(map[string]string, len(queries)),
	}
	log := c.logger.With(zap.String("run_id", runID))
	log.Info("collection run starting", zap.Int("queries", len(queries)))

	poolDone := make(chan struct{})
	var counters grants.RunCounters
	var bySource map[grants.Tier]int
	go func() {
		defer close(poolDone)
		counters, bySource = sess.Pool.Run(ctx)
	}()

	found := 0
	searchFailed := false
	for _, q := range queries {
		n, err := c.runQuery(ctx, sess.Queue, runID, q)
		found += n
		summary.Queries[q.Describe()] = fmt.Sprintf("%d found", n)
		if err != nil {
			searchFailed = true
			log.Warn("query failed", zap.String("query", q.Describe()), zap.Error(err))
		}
		if ctx.Err() != nil {
			break
		}
	}

	sess.Queue.Close()
	<-poolDone

	counters.Found = found
	summary.Counters = counters
	summary.BySource = bySource
	summary.Finished = c.clock.Now()

	status := "succeeded"
	if searchFailed || counters.Failed > 0 {
		status = "degraded"
	}
	telemetry.ObserveRun(status)
	log.Info("collection run finished",
		zap.String("status", status),
		zap.Int("found", counters.Found),
		zap.Int("enriched", counters.Enriched),
		zap.Int("upserted", counters.Upserted),
		zap.Int("rejected", counters.Rejected),
		zap.Int("failed", counters.Failed),
	)
	return summary, ctx.Err()
}

func (c *Collector) runQuery(ctx context.Context, q queue.Queue, runID string, query grants.Query) (int, error) {
	// a direct id query skips the search stage entirely
	if query.OpportunityID != "" {
		if err := c.enqueue(ctx, q, runID, query.OpportunityID); err != nil {
			return 0, err
		}
		return 1, nil
	}

	return c.searcher.Run(ctx, query, func(rec grants.RawRecord) bool {
		id := extractID(rec.Payload)
		if id == "" {
			return true
		}
		if err := c.enqueue(ctx, q, runID, id); err != nil {
			c.logger.Warn("enqueue failed", zap.String("opportunity_id", id), zap.Error(err))
			return false
		}
		return true
	})
}

func (c *Collector) enqueue(ctx context.Context, q queue.Queue, runID, id string) error {
	fresh, err := c.seen.MarkIfBetter(ctx, id, grants.TierSearch.Fidelity())
	if err != nil {
		return fmt.Errorf("mark seen: %w", err)
	}
	if !fresh {
		return nil
	}
	return q.Enqueue(ctx, queue.Task{RunID: runID, OpportunityID: id})
}

func extractID(payload json.RawMessage) string {
	var hit struct {
		ID     any    `json:"id"`
		Number string `json:"number"`
	}
	if err := json.Unmarshal(payload, &hit); err != nil {
		return ""
	}
	if id := normalize.Stringify(hit.ID); id != "" {
		return id
	}
	return hit.Number
}
