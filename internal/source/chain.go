package source

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/Hali0321/Runwei-Government-Opportunity-ETL/internal/grants"
)

// Source is one tier of the fallback chain. FetchDetail returns the raw
// payload for the opportunity, ErrNoData when the tier has nothing for
// it, or a failure the chain classifies.
type Source interface {
	Tier() grants.Tier
	FetchDetail(ctx context.Context, id string) (grants.RawRecord, error)
}

// Observer receives the terminal outcome of each attempt, keyed by tier.
type Observer func(tier grants.Tier, outcome Outcome)

// Chain tries sources in fidelity order until one returns data.
type Chain struct {
	sources []Source
	policy  RetryPolicy
	logger  *zap.Logger
	observe Observer

	// sleep is swapped out in tests to avoid real backoff waits.
	sleep func(ctx context.Context, d time.Duration) error
}

// Option configures a Chain.
type Option func(*Chain)

// WithRetryPolicy overrides the default retry policy.
func WithRetryPolicy(p RetryPolicy) Option {
	return func(c *Chain) { c.policy = p }
}

// WithObserver registers an attempt-outcome callback.
func WithObserver(o Observer) Option {
	return func(c *Chain) { c.observe = o }
}

// NewChain builds a chain over sources, which must already be ordered
// from highest fidelity to lowest.
func NewChain(logger *zap.Logger, sources []Source, opts ...Option) *Chain {
	c := &Chain{
		sources: sources,
		policy:  NewExponentialRetryPolicy(),
		logger:  logger,
		observe: func(grants.Tier, Outcome) {},
		sleep:   sleepCtx,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Enrich walks the chain for one opportunity. A tier that fails
// transiently is retried with backoff up to the policy cap before the
// chain falls through; permanent failures and empty answers fall through
// immediately. When every tier is spent, Enrich returns ErrExhausted.
func (c *Chain) Enrich(ctx context.Context, id string) (grants.RawRecord, error) {
	for _, src := range c.sources {
		rec, err := c.tryTier(ctx, src, id)
		if err == nil {
			return rec, nil
		}
		if ctx.Err() != nil {
			return grants.RawRecord{}, fmt.Errorf("enrich %s: %w", id, ctx.Err())
		}
		c.logger.Debug("falling through to next source",
			zap.String("opportunity_id", id),
			zap.String("tier", string(src.Tier())),
			zap.Error(err),
		)
	}
	return grants.RawRecord{}, fmt.Errorf("enrich %s: %w", id, ErrExhausted)
}

func (c *Chain) tryTier(ctx context.Context, src Source, id string) (grants.RawRecord, error) {
	var lastErr error
	for attempt := 0; ; attempt++ {
		rec, err := src.FetchDetail(ctx, id)
		outcome := classify(err)
		c.observe(src.Tier(), outcome)
		if err == nil {
			return rec, nil
		}
		lastErr = err

		if outcome != OutcomeTransient || !c.policy.ShouldRetry(err, attempt+1) {
			return grants.RawRecord{}, lastErr
		}
		delay := c.policy.Backoff(attempt)
		c.logger.Debug("retrying source",
			zap.String("opportunity_id", id),
			zap.String("tier", string(src.Tier())),
			zap.Int("attempt", attempt+1),
			zap.Duration("backoff", delay),
		)
		if err := c.sleep(ctx, delay); err != nil {
			return grants.RawRecord{}, err
		}
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
