// Package queue decouples the search stage from detail enrichment. Local
// runs use the in-memory channel queue; distributed deployments publish
// tasks to Pub/Sub instead.
package queue

import (
	"context"
	"errors"
)

// ErrClosed is returned by Dequeue once the queue is closed and drained.
var ErrClosed = errors.New("queue closed")

// Task asks a worker to enrich one opportunity discovered by a search.
type Task struct {
	RunID         string `json:"run_id"`
	OpportunityID string `json:"opportunity_id"`
}

// Queue is a bounded task pipe between the collector stages.
type Queue interface {
	Enqueue(ctx context.Context, task Task) error
	Dequeue(ctx context.Context) (Task, error)
	Close()
}
