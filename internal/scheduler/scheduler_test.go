package scheduler

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Hali0321/Runwei-Government-Opportunity-ETL/internal/grants"
)

type countingRunner struct {
	mu    sync.Mutex
	runs  int
	block chan struct{}
}

func (r *countingRunner) Run(_ context.Context, _ []grants.Query) (grants.RunSummary, error) {
	r.mu.Lock()
	r.runs++
	r.mu.Unlock()
	if r.block != nil {
		<-r.block
	}
	return grants.RunSummary{RunID: "run-1"}, nil
}

func (r *countingRunner) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.runs
}

func TestSchedulerRunsOnceAtStart(t *testing.T) {
	t.Parallel()

	runner := &countingRunner{}
	s := New(runner, nil, "@every 1h", zap.NewNop())
	require.NoError(t, s.Start(context.Background()))
	defer s.Stop()

	require.Eventually(t, func() bool {
		return runner.count() == 1
	}, 2*time.Second, 10*time.Millisecond)
}

func TestSchedulerSkipsOverlappingCycle(t *testing.T) {
	t.Parallel()

	runner := &countingRunner{block: make(chan struct{})}
	s := New(runner, nil, "@every 1h", zap.NewNop())
	require.NoError(t, s.Start(context.Background()))

	require.Eventually(t, func() bool {
		return runner.count() == 1
	}, 2*time.Second, 10*time.Millisecond)

	// the startup run holds the slot, a manual tick must bail out
	s.runCycle(context.Background())
	require.Equal(t, 1, runner.count())

	close(runner.block)
	s.Stop()
}

func TestSchedulerRejectsBadSpec(t *testing.T) {
	t.Parallel()

	s := New(&countingRunner{}, nil, "not-a-spec", zap.NewNop())
	require.Error(t, s.Start(context.Background()))
}
