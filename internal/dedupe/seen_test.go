package dedupe

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/Hali0321/Runwei-Government-Opportunity-ETL/internal/grants"
)

func TestMarkIfBetter(t *testing.T) {
	t.Parallel()

	s := NewMemorySeen()
	ctx := context.Background()

	ok, err := s.MarkIfBetter(ctx, "1", grants.TierSearch.Fidelity())
	require.NoError(t, err)
	require.True(t, ok, "first sighting should process")

	ok, err = s.MarkIfBetter(ctx, "1", grants.TierSearch.Fidelity())
	require.NoError(t, err)
	require.False(t, ok, "same fidelity should not reprocess")

	ok, err = s.MarkIfBetter(ctx, "1", grants.TierBulk.Fidelity())
	require.NoError(t, err)
	require.False(t, ok, "worse fidelity should not reprocess")

	ok, err = s.MarkIfBetter(ctx, "1", grants.TierDetail.Fidelity())
	require.NoError(t, err)
	require.True(t, ok, "better fidelity should win")
}

func TestMarkIfBetterConcurrent(t *testing.T) {
	t.Parallel()

	s := NewMemorySeen()
	ctx := context.Background()

	var wg sync.WaitGroup
	var mu sync.Mutex
	wins := 0
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := s.MarkIfBetter(ctx, "same-id", 3)
			require.NoError(t, err)
			if ok {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	require.Equal(t, 1, wins)
}

func TestReset(t *testing.T) {
	t.Parallel()

	s := NewMemorySeen()
	ctx := context.Background()

	_, err := s.MarkIfBetter(ctx, "1", 3)
	require.NoError(t, err)
	s.Reset()

	ok, err := s.MarkIfBetter(ctx, "1", 3)
	require.NoError(t, err)
	require.True(t, ok)
}
