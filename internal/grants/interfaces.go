package grants

import (
	"context"
	"errors"
)

// ErrNotFound is returned by Store.Get when no record has the id.
var ErrNotFound = errors.New("opportunity not found")

// Store persists canonical opportunity records. Upsert follows a merge
// discipline: fields that are empty (or zero, for money columns) in the
// incoming record leave the stored value untouched.
type Store interface {
	Upsert(ctx context.Context, opp Opportunity) error
	Get(ctx context.Context, id string) (Opportunity, error)
	List(ctx context.Context, filter Filter, page PageRequest) (PageResult, error)
	DeleteOlderThan(ctx context.Context, maxAgeDays int) (int64, error)
	Ping(ctx context.Context) error
	Close()
}

// Filter narrows a listing. All matching is case-insensitive substring
// matching, per the original viewer behavior.
type Filter struct {
	Search   string
	Agency   string
	Category string
	Status   string
}

// PageRequest is already-coerced pagination input (page >= 1, limit > 0).
type PageRequest struct {
	Page  int
	Limit int
}

// Offset converts page/limit into a row offset.
func (p PageRequest) Offset() int { return (p.Page - 1) * p.Limit }

// PageResult is one stable page of projections plus pagination totals.
// Ordering is most-recent-close-date-first.
type PageResult struct {
	Total         int
	Pages         int
	Opportunities []Opportunity
}

// SeenSet tracks ids already handled in the current run, together with the
// fidelity of the tier that supplied them. MarkIfBetter returns true when
// the id is new or the offered fidelity beats the recorded one.
type SeenSet interface {
	MarkIfBetter(ctx context.Context, id string, fidelity int) (bool, error)
}
