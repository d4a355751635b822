// Package worker implements the enrichment stage: a pool of workers
// consumes queued opportunity ids, runs each through the source chain,
// normalizes the payload, and merge-upserts the result.
package worker

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/zap"

	"github.com/Hali0321/Runwei-Government-Opportunity-ETL/internal/grants"
	"github.com/Hali0321/Runwei-Government-Opportunity-ETL/internal/normalize"
	"github.com/Hali0321/Runwei-Government-Opportunity-ETL/internal/queue"
	"github.com/Hali0321/Runwei-Government-Opportunity-ETL/internal/rawstore"
	"github.com/Hali0321/Runwei-Government-Opportunity-ETL/internal/source"
	"github.com/Hali0321/Runwei-Government-Opportunity-ETL/internal/telemetry"
)

// DefaultPoolSize is the number of concurrent enrichment workers.
const DefaultPoolSize = 5

// Enricher resolves one opportunity id to its best available payload.
type Enricher interface {
	Enrich(ctx context.Context, id string) (grants.RawRecord, error)
}

// Normalizer converts a raw payload into a canonical record.
type Normalizer interface {
	Normalize(raw grants.RawRecord) (grants.Opportunity, error)
}

// Worker consumes tasks and executes the enrich-normalize-upsert
// pipeline. A single record failing never aborts the run.
type Worker struct {
	queue      queue.Queue
	enricher   Enricher
	normalizer Normalizer
	store      grants.Store
	archiver   rawstore.Archiver
	logger     *zap.Logger

	mu       sync.Mutex
	counters grants.RunCounters
	bySource map[grants.Tier]int
}

// New constructs a Worker.
func New(
	q queue.Queue,
	enricher Enricher,
	normalizer Normalizer,
	store grants.Store,
	archiver rawstore.Archiver,
	logger *zap.Logger,
) *Worker {
	if archiver == nil {
		archiver = rawstore.Noop{}
	}
	return &Worker{
		queue:      q,
		enricher:   enricher,
		normalizer: normalizer,
		store:      store,
		archiver:   archiver,
		logger:     logger,
		bySource:   make(map[grants.Tier]int),
	}
}

// Run blocks, consuming tasks until the queue closes or the context
// finishes.
func (w *Worker) Run(ctx context.Context) {
	for {
		task, err := w.queue.Dequeue(ctx)
		if err != nil {
			if errors.Is(err, queue.ErrClosed) || ctx.Err() != nil {
				return
			}
			w.logger.Error("queue dequeue failed", zap.Error(err))
			return
		}
		w.processTask(ctx, task)
	}
}

// Counters returns a snapshot of the per-run tallies.
func (w *Worker) Counters() (grants.RunCounters, map[grants.Tier]int) {
	w.mu.Lock()
	defer w.mu.Unlock()
	bySource := make(map[grants.Tier]int, len(w.bySource))
	for tier, n := range w.bySource {
		bySource[tier] = n
	}
	return w.counters, bySource
}

func (w *Worker) processTask(ctx context.Context, task queue.Task) {
	telemetry.IncActiveWorkers()
	defer telemetry.DecActiveWorkers()

	log := w.logger.With(
		zap.String("run_id", task.RunID),
		zap.String("opportunity_id", task.OpportunityID),
	)

	raw, err := w.enricher.Enrich(ctx, task.OpportunityID)
	if err != nil {
		if errors.Is(err, source.ErrExhausted) {
			log.Info("no source had data for opportunity")
		} else {
			log.Warn("enrichment failed", zap.Error(err))
		}
		w.count(func(c *grants.RunCounters) { c.Failed++ })
		return
	}
	w.count(func(c *grants.RunCounters) { c.Enriched++ })

	opp, err := w.normalizer.Normalize(raw)
	if err != nil {
		var reject *normalize.RejectError
		if errors.As(err, &reject) {
			telemetry.ObserveRejected(reject.Reason)
			log.Warn("payload rejected", zap.String("reason", reject.Reason))
			w.count(func(c *grants.RunCounters) { c.Rejected++ })
		} else {
			log.Error("normalize failed", zap.Error(err))
			w.count(func(c *grants.RunCounters) { c.Failed++ })
		}
		return
	}

	if uri, err := w.archiver.Archive(ctx, task.RunID, opp.ID, raw.Payload); err != nil {
		log.Warn("raw payload archive failed", zap.Error(err))
	} else if uri != "" {
		log.Debug("raw payload archived", zap.String("uri", uri))
	}

	if err := w.upsertWithRetry(ctx, opp); err != nil {
		log.Error("upsert failed", zap.Error(err))
		w.count(func(c *grants.RunCounters) { c.Failed++ })
		return
	}
	telemetry.ObserveIngested(opp.SourceTier)
	w.count(func(c *grants.RunCounters) { c.Upserted++ })
	w.mu.Lock()
	w.bySource[opp.SourceTier]++
	w.mu.Unlock()
	log.Debug("opportunity upserted", zap.String("tier", string(opp.SourceTier)))
}

// upsertWithRetry gives a failed write one more chance before the
// record is counted as failed. Upserts are idempotent so the retry is
// safe even if the first attempt half-landed.
func (w *Worker) upsertWithRetry(ctx context.Context, opp grants.Opportunity) error {
	err := w.store.Upsert(ctx, opp)
	if err == nil || ctx.Err() != nil {
		return err
	}
	w.logger.Warn("upsert failed, retrying once",
		zap.String("opportunity_id", opp.ID), zap.Error(err))
	return w.store.Upsert(ctx, opp)
}

func (w *Worker) count(fn func(*grants.RunCounters)) {
	w.mu.Lock()
	fn(&w.counters)
	w.mu.Unlock()
}

// Pool fans queue work out to a fixed set of workers sharing one tally.
type Pool struct {
	worker *Worker
	size   int
}

// NewPool wraps a worker with a concurrency level.
func NewPool(worker *Worker, size int) *Pool {
	if size <= 0 {
		size = DefaultPoolSize
	}
	return &Pool{worker: worker, size: size}
}

// Run starts the workers and blocks until the queue drains or the
// context finishes, then returns the run tallies.
func (p *Pool) Run(ctx context.Context) (grants.RunCounters, map[grants.Tier]int) {
	var wg sync.WaitGroup
	for i := 0; i < p.size; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			p.worker.Run(ctx)
		}()
	}
	wg.Wait()
	return p.worker.Counters()
}
