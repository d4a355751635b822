package source

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/Hali0321/Runwei-Government-Opportunity-ETL/internal/grants"
	"github.com/Hali0321/Runwei-Government-Opportunity-ETL/internal/grantsgov"
)

const defaultPageSize = 100

// Searcher drains search2 for a query, page by page, feeding each hit to
// the caller as a search-tier raw record.
type Searcher struct {
	client   *grantsgov.Client
	policy   RetryPolicy
	logger   *zap.Logger
	pageSize int

	sleep func(ctx context.Context, d time.Duration) error
}

func NewSearcher(client *grantsgov.Client, logger *zap.Logger, opts ...SearcherOption) *Searcher {
	s := &Searcher{
		client:   client,
		policy:   NewExponentialRetryPolicy(),
		logger:   logger,
		pageSize: defaultPageSize,
		sleep:    sleepCtx,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

type SearcherOption func(*Searcher)

func WithSearchRetryPolicy(p RetryPolicy) SearcherOption {
	return func(s *Searcher) { s.policy = p }
}

func WithPageSize(n int) SearcherOption {
	return func(s *Searcher) {
		if n > 0 {
			s.pageSize = n
		}
	}
}

// Run pages through the query's result set until a short page, the
// query's MaxResults cap, or a false return from fn. It returns how many
// hits were delivered.
func (s *Searcher) Run(ctx context.Context, q grants.Query, fn func(grants.RawRecord) bool) (int, error) {
	req := searchRequest(q)
	req.Rows = s.pageSize
	delivered := 0
	for {
		if q.MaxResults > 0 && delivered >= q.MaxResults {
			return delivered, nil
		}
		req.StartRecordNum = delivered

		data, err := s.fetchPage(ctx, req)
		if err != nil {
			return delivered, fmt.Errorf("search page at %d: %w", delivered, err)
		}
		for _, hit := range data.OppHits {
			if q.MaxResults > 0 && delivered >= q.MaxResults {
				return delivered, nil
			}
			delivered++
			if !fn(grants.RawRecord{Tier: grants.TierSearch, Payload: hit}) {
				return delivered, nil
			}
		}
		// a short page means the result set is drained
		if len(data.OppHits) < s.pageSize {
			return delivered, nil
		}
	}
}

func (s *Searcher) fetchPage(ctx context.Context, req grantsgov.SearchRequest) (grantsgov.SearchData, error) {
	var lastErr error
	for attempt := 0; ; attempt++ {
		data, err := s.client.Search(ctx, req)
		if err == nil {
			return data, nil
		}
		lastErr = err
		if !s.policy.ShouldRetry(err, attempt+1) {
			return grantsgov.SearchData{}, lastErr
		}
		delay := s.policy.Backoff(attempt)
		s.logger.Debug("retrying search page",
			zap.Int("start_record", req.StartRecordNum),
			zap.Int("attempt", attempt+1),
			zap.Duration("backoff", delay),
		)
		if err := s.sleep(ctx, delay); err != nil {
			return grantsgov.SearchData{}, err
		}
	}
}

func searchRequest(q grants.Query) grantsgov.SearchRequest {
	req := grantsgov.SearchRequest{
		Keyword:     q.Keyword,
		AgencyCode:  q.AgencyCode,
		OppStatuses: "forecasted|posted",
	}
	switch q.Strategy {
	case grants.StrategyRecent:
		req.SortBy = "openDate|desc"
	case grants.StrategyClosingSoon:
		req.SortBy = "closeDate|asc"
	}
	if q.OpenDateFrom != "" || q.OpenDateTo != "" {
		req.DateRange = q.OpenDateFrom + "|" + q.OpenDateTo
	}
	if q.OpportunityID != "" {
		req.Keyword = q.OpportunityID
	}
	return req
}
