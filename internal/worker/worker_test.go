package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Hali0321/Runwei-Government-Opportunity-ETL/internal/grants"
	"github.com/Hali0321/Runwei-Government-Opportunity-ETL/internal/normalize"
	"github.com/Hali0321/Runwei-Government-Opportunity-ETL/internal/queue"
	qmemory "github.com/Hali0321/Runwei-Government-Opportunity-ETL/internal/queue/memory"
	"github.com/Hali0321/Runwei-Government-Opportunity-ETL/internal/rawstore"
	"github.com/Hali0321/Runwei-Government-Opportunity-ETL/internal/source"
	smemory "github.com/Hali0321/Runwei-Government-Opportunity-ETL/internal/store/memory"
)

// fakeEnricher maps opportunity ids to payloads or errors.
type fakeEnricher struct {
	records map[string]grants.RawRecord
	errs    map[string]error
}

func (f *fakeEnricher) Enrich(_ context.Context, id string) (grants.RawRecord, error) {
	if err, ok := f.errs[id]; ok {
		return grants.RawRecord{}, err
	}
	rec, ok := f.records[id]
	if !ok {
		return grants.RawRecord{}, source.ErrExhausted
	}
	return rec, nil
}

func primedQueue(t *testing.T, ids ...string) queue.Queue {
	t.Helper()
	q := qmemory.NewQueue(len(ids))
	for _, id := range ids {
		require.NoError(t, q.Enqueue(context.Background(), queue.Task{RunID: "run-1", OpportunityID: id}))
	}
	q.Close()
	return q
}

func searchPayload(id int, title string) grants.RawRecord {
	return grants.RawRecord{
		Tier:    grants.TierSearch,
		Payload: []byte(fmt.Sprintf(`{"id":%d,"title":%q,"agencyCode":"ED"}`, id, title)),
	}
}

func TestPoolProcessesQueuedTasks(t *testing.T) {
	t.Parallel()

	enricher := &fakeEnricher{records: map[string]grants.RawRecord{
		"1": searchPayload(1, "Grant One"),
		"2": searchPayload(2, "Grant Two"),
		"3": searchPayload(3, "Grant Three"),
	}}
	store := smemory.New(nil)
	archive := rawstore.NewMemory()
	w := New(primedQueue(t, "1", "2", "3"), enricher, normalize.New(), store, archive, zap.NewNop())

	counters, bySource := NewPool(w, 2).Run(context.Background())
	require.Equal(t, 3, counters.Enriched)
	require.Equal(t, 3, counters.Upserted)
	require.Zero(t, counters.Failed)
	require.Equal(t, 3, bySource[grants.TierSearch])

	got, err := store.Get(context.Background(), "2")
	require.NoError(t, err)
	require.Equal(t, "Grant Two", got.Title)

	_, ok := archive.Get("run-1", "1")
	require.True(t, ok, "raw payload should be archived")
}

func TestWorkerCountsRejections(t *testing.T) {
	t.Parallel()

	enricher := &fakeEnricher{records: map[string]grants.RawRecord{
		"1": {Tier: grants.TierSearch, Payload: []byte(`{"id":1}`)},
	}}
	store := smemory.New(nil)
	w := New(primedQueue(t, "1"), enricher, normalize.New(), store, nil, zap.NewNop())

	counters, _ := NewPool(w, 1).Run(context.Background())
	require.Equal(t, 1, counters.Enriched)
	require.Equal(t, 1, counters.Rejected)
	require.Zero(t, counters.Upserted)
}

func TestWorkerCountsExhaustedAsFailed(t *testing.T) {
	t.Parallel()

	enricher := &fakeEnricher{}
	store := smemory.New(nil)
	w := New(primedQueue(t, "missing"), enricher, normalize.New(), store, nil, zap.NewNop())

	counters, _ := NewPool(w, 1).Run(context.Background())
	require.Equal(t, 1, counters.Failed)
	require.Zero(t, counters.Upserted)
}

func TestWorkerKeepsGoingAfterOneBadRecord(t *testing.T) {
	t.Parallel()

	enricher := &fakeEnricher{
		records: map[string]grants.RawRecord{
			"1": searchPayload(1, "Good Grant"),
		},
		errs: map[string]error{
			"2": source.ErrExhausted,
		},
	}
	store := smemory.New(nil)
	w := New(primedQueue(t, "2", "1"), enricher, normalize.New(), store, nil, zap.NewNop())

	counters, _ := NewPool(w, 1).Run(context.Background())
	require.Equal(t, 1, counters.Upserted)
	require.Equal(t, 1, counters.Failed)
}

// flakyStore fails the first n upserts, then delegates.
type flakyStore struct {
	grants.Store
	mu        sync.Mutex
	remaining int
}

func (s *flakyStore) Upsert(ctx context.Context, opp grants.Opportunity) error {
	s.mu.Lock()
	if s.remaining > 0 {
		s.remaining--
		s.mu.Unlock()
		return errors.New("connection reset")
	}
	s.mu.Unlock()
	return s.Store.Upsert(ctx, opp)
}

func TestWorkerRetriesUpsertOnce(t *testing.T) {
	t.Parallel()

	enricher := &fakeEnricher{
		records: map[string]grants.RawRecord{
			"1": searchPayload(1, "Flaky Write Grant"),
		},
	}
	store := &flakyStore{Store: smemory.New(nil), remaining: 1}
	w := New(primedQueue(t, "1"), enricher, normalize.New(), store, nil, zap.NewNop())

	counters, _ := NewPool(w, 1).Run(context.Background())
	require.Equal(t, 1, counters.Upserted)
	require.Equal(t, 0, counters.Failed)

	got, err := store.Get(context.Background(), "1")
	require.NoError(t, err)
	require.Equal(t, "Flaky Write Grant", got.Title)
}

func TestWorkerCountsPersistentUpsertFailure(t *testing.T) {
	t.Parallel()

	enricher := &fakeEnricher{
		records: map[string]grants.RawRecord{
			"1": searchPayload(1, "Unwritable Grant"),
		},
	}
	store := &flakyStore{Store: smemory.New(nil), remaining: 2}
	w := New(primedQueue(t, "1"), enricher, normalize.New(), store, nil, zap.NewNop())

	counters, _ := NewPool(w, 1).Run(context.Background())
	require.Equal(t, 0, counters.Upserted)
	require.Equal(t, 1, counters.Failed)
}
