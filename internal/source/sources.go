package source

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/Hali0321/Runwei-Government-Opportunity-ETL/internal/grants"
	"github.com/Hali0321/Runwei-Government-Opportunity-ETL/internal/grantsgov"
	"github.com/Hali0321/Runwei-Government-Opportunity-ETL/internal/normalize"
	"github.com/Hali0321/Runwei-Government-Opportunity-ETL/internal/scrape"
)

// APIDetailSource is the highest-fidelity tier: fetchOpportunity by id.
type APIDetailSource struct {
	client *grantsgov.Client
}

func NewAPIDetailSource(client *grantsgov.Client) *APIDetailSource {
	return &APIDetailSource{client: client}
}

func (s *APIDetailSource) Tier() grants.Tier { return grants.TierDetail }

func (s *APIDetailSource) FetchDetail(ctx context.Context, id string) (grants.RawRecord, error) {
	data, err := s.client.FetchOpportunity(ctx, id)
	if err != nil {
		return grants.RawRecord{}, err
	}
	if len(data) == 0 {
		return grants.RawRecord{}, ErrNoData
	}
	return grants.RawRecord{Tier: grants.TierDetail, Payload: data}, nil
}

// APISearchSource re-queries search2 for the single opportunity and uses
// the flat search hit as a lower-fidelity detail payload.
type APISearchSource struct {
	client *grantsgov.Client
}

func NewAPISearchSource(client *grantsgov.Client) *APISearchSource {
	return &APISearchSource{client: client}
}

func (s *APISearchSource) Tier() grants.Tier { return grants.TierSearch }

func (s *APISearchSource) FetchDetail(ctx context.Context, id string) (grants.RawRecord, error) {
	data, err := s.client.Search(ctx, grantsgov.SearchRequest{
		Keyword: id,
		Rows:    10,
	})
	if err != nil {
		return grants.RawRecord{}, err
	}
	for _, hit := range data.OppHits {
		var probe struct {
			ID     json.RawMessage `json:"id"`
			Number string          `json:"number"`
		}
		if err := json.Unmarshal(hit, &probe); err != nil {
			continue
		}
		hitID := normalize.Stringify(rawValue(probe.ID))
		if hitID == id || probe.Number == id {
			return grants.RawRecord{Tier: grants.TierSearch, Payload: hit}, nil
		}
	}
	return grants.RawRecord{}, ErrNoData
}

func rawValue(raw json.RawMessage) any {
	if len(raw) == 0 {
		return nil
	}
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil
	}
	return v
}

// ScrapeSource fetches the public detail page and extracts labelled
// fields from whichever layout the page uses.
type ScrapeSource struct {
	fetcher *scrape.Fetcher
	parser  scrape.DetailParser
}

func NewScrapeSource(fetcher *scrape.Fetcher, parser scrape.DetailParser) *ScrapeSource {
	return &ScrapeSource{fetcher: fetcher, parser: parser}
}

func (s *ScrapeSource) Tier() grants.Tier { return grants.TierScrape }

func (s *ScrapeSource) FetchDetail(ctx context.Context, id string) (grants.RawRecord, error) {
	body, err := s.fetcher.FetchDetailPage(ctx, id)
	if err != nil {
		return grants.RawRecord{}, err
	}
	fields, err := s.parser.ParseDetail(body)
	if err != nil {
		return grants.RawRecord{}, fmt.Errorf("%w: %v", ErrNoData, err)
	}
	fields["id"] = id
	payload, err := json.Marshal(fields)
	if err != nil {
		return grants.RawRecord{}, fmt.Errorf("encode scraped fields: %w", err)
	}
	return grants.RawRecord{Tier: grants.TierScrape, Payload: payload}, nil
}

// BulkIndexSource is the last-resort tier: an in-memory index over the
// most recent database extract, keyed by opportunity id.
type BulkIndexSource struct {
	mu      sync.RWMutex
	records map[string]json.RawMessage
}

func NewBulkIndexSource() *BulkIndexSource {
	return &BulkIndexSource{records: make(map[string]json.RawMessage)}
}

func (s *BulkIndexSource) Tier() grants.Tier { return grants.TierBulk }

// Put stores one extract record under its OpportunityID.
func (s *BulkIndexSource) Put(rec grants.RawRecord) {
	var probe struct {
		OpportunityID string `json:"OpportunityID"`
	}
	if err := json.Unmarshal(rec.Payload, &probe); err != nil || probe.OpportunityID == "" {
		return
	}
	s.mu.Lock()
	s.records[probe.OpportunityID] = rec.Payload
	s.mu.Unlock()
}

// Len reports how many extract records are indexed.
func (s *BulkIndexSource) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}

func (s *BulkIndexSource) FetchDetail(_ context.Context, id string) (grants.RawRecord, error) {
	s.mu.RLock()
	payload, ok := s.records[id]
	s.mu.RUnlock()
	if !ok {
		return grants.RawRecord{}, ErrNoData
	}
	return grants.RawRecord{Tier: grants.TierBulk, Payload: payload}, nil
}
