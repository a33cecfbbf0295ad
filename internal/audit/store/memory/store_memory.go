package memory

import (
	"context"
	"sync"

	"popai/internal/audit"
)

// InMemoryStore keeps the trail in a slice. Sequence numbers start at 1.
type InMemoryStore struct {
	mu      sync.RWMutex
	entries []audit.Entry
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{}
}

func (s *InMemoryStore) Append(_ context.Context, entry audit.Entry) (audit.Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry.Sequence = uint64(len(s.entries)) + 1
	s.entries = append(s.entries, entry)
	return entry, nil
}

// List returns up to limit entries starting at offset, oldest first.
func (s *InMemoryStore) List(_ context.Context, offset, limit int) ([]audit.Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if offset >= len(s.entries) {
		return []audit.Entry{}, nil
	}
	end := min(offset+limit, len(s.entries))
	return append([]audit.Entry{}, s.entries[offset:end]...), nil
}

func (s *InMemoryStore) Len(_ context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries), nil
}

func (s *InMemoryStore) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = nil
}
