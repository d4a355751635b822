// Package memory keeps opportunity records in process memory. It backs
// local runs and tests with the same merge semantics as the Postgres
// store.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/Hali0321/Runwei-Government-Opportunity-ETL/internal/grants"
)

// Store is a mutex-guarded in-memory grants.Store.
type Store struct {
	mu    sync.RWMutex
	byID  map[string]grants.Opportunity
	clock grants.Clock
}

func New(clock grants.Clock) *Store {
	if clock == nil {
		clock = grants.SystemClock{}
	}
	return &Store{
		byID:  make(map[string]grants.Opportunity),
		clock: clock,
	}
}

// Upsert merges the record into the store. Empty strings and zero money
// values in the incoming record never clear previously stored data, and
// a record from a poorer source tier only fills fields the stored row
// is missing.
func (s *Store) Upsert(_ context.Context, opp grants.Opportunity) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	merged := opp
	if prev, ok := s.byID[opp.ID]; ok {
		merged = mergeInto(prev, opp)
	} else if merged.Status == "" {
		merged.Status = grants.StatusUnknown
	}
	merged.RepairAwardRange()
	merged.LastUpdated = s.clock.Now()
	s.byID[opp.ID] = merged
	return nil
}

func mergeInto(prev, next grants.Opportunity) grants.Opportunity {
	out := prev
	outranked := next.SourceTier.Fidelity() >= prev.SourceTier.Fidelity()
	if outranked {
		out.SourceTier = next.SourceTier
		if len(next.RawSource) > 0 {
			out.RawSource = next.RawSource
		}
	}

	setStr := func(dst *string, v string) {
		if v == "" {
			return
		}
		if outranked || *dst == "" {
			*dst = v
		}
	}
	setStr(&out.Number, next.Number)
	setStr(&out.Title, next.Title)
	setStr(&out.AgencyName, next.AgencyName)
	setStr(&out.AgencyCode, next.AgencyCode)
	setStr(&out.Description, next.Description)
	setStr(&out.Status, next.Status)
	setStr(&out.DocType, next.DocType)
	setStr(&out.OpenDate, next.OpenDate)
	setStr(&out.CloseDate, next.CloseDate)
	setStr(&out.ArchiveDate, next.ArchiveDate)
	setStr(&out.Category, next.Category)
	setStr(&out.FundingType, next.FundingType)
	setStr(&out.CFDANumbers, next.CFDANumbers)
	setStr(&out.CostSharing, next.CostSharing)
	setStr(&out.OpportunityURL, next.OpportunityURL)

	setMoney := func(dst *float64, v float64) {
		if v == 0 {
			return
		}
		if outranked || *dst == 0 {
			*dst = v
		}
	}
	setMoney(&out.AwardFloor, next.AwardFloor)
	setMoney(&out.AwardCeiling, next.AwardCeiling)
	setMoney(&out.EstimatedFunding, next.EstimatedFunding)
	if next.ExpectedAwards != 0 && (outranked || out.ExpectedAwards == 0) {
		out.ExpectedAwards = next.ExpectedAwards
	}
	return out
}

func (s *Store) Get(_ context.Context, id string) (grants.Opportunity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	opp, ok := s.byID[id]
	if !ok {
		return grants.Opportunity{}, grants.ErrNotFound
	}
	return opp, nil
}

// List filters, orders by close date descending, and slices one page.
func (s *Store) List(_ context.Context, filter grants.Filter, page grants.PageRequest) (grants.PageResult, error) {
	s.mu.RLock()
	matched := make([]grants.Opportunity, 0, len(s.byID))
	for _, opp := range s.byID {
		if matches(opp, filter) {
			matched = append(matched, opp)
		}
	}
	s.mu.RUnlock()

	sort.Slice(matched, func(i, j int) bool {
		if matched[i].CloseDate != matched[j].CloseDate {
			return matched[i].CloseDate > matched[j].CloseDate
		}
		return matched[i].ID < matched[j].ID
	})

	total := len(matched)
	pages := (total + page.Limit - 1) / page.Limit
	start := page.Offset()
	if start > total {
		start = total
	}
	end := start + page.Limit
	if end > total {
		end = total
	}
	return grants.PageResult{
		Total:         total,
		Pages:         pages,
		Opportunities: matched[start:end],
	}, nil
}

func matches(opp grants.Opportunity, f grants.Filter) bool {
	contains := func(haystack, needle string) bool {
		return needle == "" || strings.Contains(strings.ToLower(haystack), strings.ToLower(needle))
	}
	if f.Search != "" {
		blob := strings.ToLower(opp.Title + " " + opp.Description + " " + opp.AgencyName)
		if !strings.Contains(blob, strings.ToLower(f.Search)) {
			return false
		}
	}
	return contains(opp.AgencyName+" "+opp.AgencyCode, f.Agency) &&
		contains(opp.Category, f.Category) &&
		contains(opp.Status, f.Status)
}

// DeleteOlderThan removes records whose LastUpdated is older than the
// retention window.
func (s *Store) DeleteOlderThan(_ context.Context, maxAgeDays int) (int64, error) {
	cutoff := s.clock.Now().AddDate(0, 0, -maxAgeDays)
	s.mu.Lock()
	defer s.mu.Unlock()
	var removed int64
	for id, opp := range s.byID {
		if opp.LastUpdated.Before(cutoff) {
			delete(s.byID, id)
			removed++
		}
	}
	return removed, nil
}

func (s *Store) Ping(context.Context) error { return nil }

func (s *Store) Close() {}
