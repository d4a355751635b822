// Package dedupe tracks which opportunity ids have already been handled
// within a collection run, keyed by the fidelity of the tier that
// supplied them. A record is reprocessed only when a better tier offers
// it again.
package dedupe

import (
	"context"
	"sync"
)

// MemorySeen is the in-process SeenSet used by single-instance runs.
type MemorySeen struct {
	mu   sync.Mutex
	best map[string]int
}

func NewMemorySeen() *MemorySeen {
	return &MemorySeen{best: make(map[string]int)}
}

// MarkIfBetter records the id at the offered fidelity and reports whether
// the caller should process it.
func (s *MemorySeen) MarkIfBetter(_ context.Context, id string, fidelity int) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if cur, ok := s.best[id]; ok && fidelity <= cur {
		return false, nil
	}
	s.best[id] = fidelity
	return true, nil
}

// Reset clears the set between runs.
func (s *MemorySeen) Reset() {
	s.mu.Lock()
	s.best = make(map[string]int)
	s.mu.Unlock()
}
