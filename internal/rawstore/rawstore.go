// Package rawstore archives the raw upstream payload behind each upsert
// so a record can be re-normalized or audited later. Objects are keyed
// {runID}/{opportunityID}.json.
package rawstore

import (
	"context"
	"fmt"
	"sync"
)

// Archiver persists one raw payload and returns its storage URI.
type Archiver interface {
	Archive(ctx context.Context, runID, opportunityID string, payload []byte) (string, error)
}

func objectPath(runID, opportunityID string) string {
	return fmt.Sprintf("%s/%s.json", runID, opportunityID)
}

// Noop discards payloads; used when archiving is disabled.
type Noop struct{}

func (Noop) Archive(context.Context, string, string, []byte) (string, error) {
	return "", nil
}

// Memory keeps payloads in process memory for tests and dry runs.
type Memory struct {
	mu      sync.RWMutex
	objects map[string][]byte
}

func NewMemory() *Memory {
	return &Memory{objects: make(map[string][]byte)}
}

func (m *Memory) Archive(_ context.Context, runID, opportunityID string, payload []byte) (string, error) {
	path := objectPath(runID, opportunityID)
	m.mu.Lock()
	m.objects[path] = append([]byte(nil), payload...)
	m.mu.Unlock()
	return "mem://" + path, nil
}

// Get returns an archived payload, for assertions in tests.
func (m *Memory) Get(runID, opportunityID string) ([]byte, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	data, ok := m.objects[objectPath(runID, opportunityID)]
	return data, ok
}
