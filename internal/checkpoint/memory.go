package checkpoint

import (
	"context"
	"sync"

	"github.com/ironsheep/image-integrity-mcp/internal/engine"
)

// MemoryStore provides thread-safe in-memory storage of reports.
//
// Entries are keyed by the full file identity, so a report is served
// again only while the file's size and modification time are unchanged.
// Entries live until Clear is called or the process exits.
type MemoryStore struct {
	mu      sync.RWMutex
	reports map[string]*engine.Report
}

// NewMemoryStore creates an empty store.
//
// The returned store is ready for immediate use and is safe for concurrent access.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		reports: make(map[string]*engine.Report),
	}
}

// Get returns the report stored for id.
//
// Parameters:
//   - ctx: Unused; present to satisfy engine.Store.
//   - id: The file identity to look up.
//
// Returns:
//   - *engine.Report: The stored report, shared with other callers. It
//     must not be modified.
//   - bool: False if nothing is stored for id.
//   - error: Always nil.
func (s *MemoryStore) Get(_ context.Context, id engine.Identity) (*engine.Report, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rep, ok := s.reports[id.Key()]
	return rep, ok, nil
}

// Put stores rep for id, replacing any earlier report.
func (s *MemoryStore) Put(_ context.Context, id engine.Identity, rep *engine.Report) error {
	s.mu.Lock()
	s.reports[id.Key()] = rep
	s.mu.Unlock()
	return nil
}

// Len returns the number of stored reports.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.reports)
}

// Clear removes all stored reports.
func (s *MemoryStore) Clear() {
	s.mu.Lock()
	s.reports = make(map[string]*engine.Report)
	s.mu.Unlock()
}
