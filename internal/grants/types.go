// Package grants defines the canonical opportunity record and the core
// types shared across the ingest pipeline and the read API.
package grants

import (
	"encoding/json"
	"fmt"
	"time"
)

// Tier identifies which data source produced a raw payload. Higher-fidelity
// tiers are allowed to overwrite values written by lower-fidelity ones.
type Tier string

const (
	TierDetail Tier = "detail"
	TierSearch Tier = "search"
	TierScrape Tier = "scrape"
	TierBulk   Tier = "bulk-extract"
)

// Fidelity ranks tiers for per-run dedupe decisions. Larger is better.
func (t Tier) Fidelity() int {
	switch t {
	case TierDetail:
		return 4
	case TierSearch:
		return 3
	case TierScrape:
		return 2
	case TierBulk:
		return 1
	default:
		return 0
	}
}

// Status values stored in the status column.
const (
	StatusPosted     = "posted"
	StatusForecasted = "forecasted"
	StatusClosed     = "closed"
	StatusArchived   = "archived"
	StatusUnknown    = "unknown"
)

// DetailURLTemplate derives the public opportunity page from its id.
const DetailURLTemplate = "https://www.grants.gov/search-results-detail/%s"

// Opportunity is the canonical persisted record. String fields are
// sanitized (null-byte free, length-capped) before they reach a store.
// Zero money values and empty strings are treated as "absent" by the
// merge-upsert, so a poorer source never clears previously known data.
type Opportunity struct {
	ID               string          `json:"id"`
	Number           string          `json:"number,omitempty"`
	Title            string          `json:"title"`
	AgencyName       string          `json:"agency_name"`
	AgencyCode       string          `json:"agency_code"`
	Description      string          `json:"description"`
	Status           string          `json:"status"`
	DocType          string          `json:"doc_type,omitempty"`
	OpenDate         string          `json:"open_date"`
	CloseDate        string          `json:"close_date"`
	ArchiveDate      string          `json:"archive_date,omitempty"`
	AwardFloor       float64         `json:"award_floor"`
	AwardCeiling     float64         `json:"award_ceiling"`
	EstimatedFunding float64         `json:"estimated_total_program_funding"`
	ExpectedAwards   int             `json:"expected_number_of_awards"`
	Category         string          `json:"category"`
	FundingType      string          `json:"funding_type"`
	CFDANumbers      string          `json:"cfda_numbers"`
	CostSharing      string          `json:"cost_sharing,omitempty"`
	OpportunityURL   string          `json:"opportunity_url"`
	LastUpdated      time.Time       `json:"last_updated"`
	SourceTier       Tier            `json:"-"`
	RawSource        json.RawMessage `json:"-"`
}

// RepairAwardRange enforces floor <= ceiling by swapping the two values
// when both are known and nonzero. Returns true when a swap happened.
func (o *Opportunity) RepairAwardRange() bool {
	if o.AwardFloor > o.AwardCeiling && o.AwardCeiling > 0 {
		o.AwardFloor, o.AwardCeiling = o.AwardCeiling, o.AwardFloor
		return true
	}
	return false
}

// Query describes one fetch strategy against the upstream sources.
// Exactly one primary selector is expected; zero selectors means
// "latest posted opportunities".
type Query struct {
	Keyword       string
	AgencyCode    string
	OpportunityID string
	OpenDateFrom  string
	OpenDateTo    string
	Strategy      Strategy
	MaxResults    int
}

// Strategy names a canned query the collector knows how to expand.
type Strategy string

const (
	StrategyNone        Strategy = ""
	StrategyRecent      Strategy = "recent"
	StrategyClosingSoon Strategy = "closing-soon"
)

// Describe renders a query for logs and run summaries.
func (q Query) Describe() string {
	switch {
	case q.OpportunityID != "":
		return fmt.Sprintf("id:%s", q.OpportunityID)
	case q.Keyword != "":
		return fmt.Sprintf("keyword:%s", q.Keyword)
	case q.AgencyCode != "":
		return fmt.Sprintf("agency:%s", q.AgencyCode)
	case q.Strategy != StrategyNone:
		return string(q.Strategy)
	default:
		return "latest"
	}
}

// RawRecord couples a fetched payload with the tier that produced it.
type RawRecord struct {
	Tier    Tier
	Payload json.RawMessage
}

// RunCounters accumulates per-run batch statistics. Batch jobs never abort
// on a single record; they count and keep going.
type RunCounters struct {
	Found    int `json:"found"`
	Enriched int `json:"enriched"`
	Upserted int `json:"upserted"`
	Rejected int `json:"rejected"`
	Failed   int `json:"failed"`
}

// Add merges another set of counters into this one.
func (c *RunCounters) Add(other RunCounters) {
	c.Found += other.Found
	c.Enriched += other.Enriched
	c.Upserted += other.Upserted
	c.Rejected += other.Rejected
	c.Failed += other.Failed
}

// RunSummary is logged (and returned from collect runs) when a cycle ends.
type RunSummary struct {
	RunID    string            `json:"run_id"`
	Started  time.Time         `json:"started_at"`
	Finished time.Time         `json:"finished_at"`
	Counters RunCounters       `json:"counters"`
	BySource map[Tier]int      `json:"by_source"`
	Queries  map[string]string `json:"queries,omitempty"`
}

// Clock returns the current time; injected so stores and the collector
// are deterministic under test.
type Clock interface {
	Now() time.Time
}

// SystemClock is the production Clock.
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now().UTC() }
