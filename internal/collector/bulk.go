package collector

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/Hali0321/Runwei-Government-Opportunity-ETL/internal/bulkload"
	"github.com/Hali0321/Runwei-Government-Opportunity-ETL/internal/grants"
	"github.com/Hali0321/Runwei-Government-Opportunity-ETL/internal/normalize"
	"github.com/Hali0321/Runwei-Government-Opportunity-ETL/internal/source"
	"github.com/Hali0321/Runwei-Government-Opportunity-ETL/internal/telemetry"
)

// BulkRunner streams a database extract straight into the store. It
// bypasses the queue: extract records are already full payloads.
type BulkRunner struct {
	normalizer *normalize.Normalizer
	store      grants.Store
	index      *source.BulkIndexSource
	logger     *zap.Logger
}

// NewBulkRunner constructs a BulkRunner. The index is optional; when
// present each record is also made available to the fallback chain.
func NewBulkRunner(normalizer *normalize.Normalizer, store grants.Store, index *source.BulkIndexSource, logger *zap.Logger) *BulkRunner {
	return &BulkRunner{
		normalizer: normalizer,
		store:      store,
		index:      index,
		logger:     logger,
	}
}

// Load decodes every record in the archive at path. Individual bad
// records are counted, not fatal.
func (b *BulkRunner) Load(ctx context.Context, loader *bulkload.Loader, path string) (grants.RunCounters, error) {
	var counters grants.RunCounters
	total, err := loader.ReadArchive(ctx, path, func(rec grants.RawRecord) bool {
		counters.Found++
		if b.index != nil {
			b.index.Put(rec)
		}
		opp, err := b.normalizer.Normalize(rec)
		if err != nil {
			var reject *normalize.RejectError
			if errors.As(err, &reject) {
				telemetry.ObserveRejected(reject.Reason)
				counters.Rejected++
			} else {
				counters.Failed++
			}
			return ctx.Err() == nil
		}
		if err := b.store.Upsert(ctx, opp); err != nil {
			b.logger.Warn("bulk upsert failed", zap.String("opportunity_id", opp.ID), zap.Error(err))
			counters.Failed++
			return ctx.Err() == nil
		}
		telemetry.ObserveIngested(grants.TierBulk)
		counters.Upserted++
		return ctx.Err() == nil
	})
	if err != nil {
		return counters, fmt.Errorf("bulk load: %w", err)
	}
	b.logger.Info("bulk extract loaded",
		zap.Int("records", total),
		zap.Int("upserted", counters.Upserted),
		zap.Int("rejected", counters.Rejected),
		zap.Int("failed", counters.Failed),
	)
	return counters, nil
}
