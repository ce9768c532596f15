package store

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/bsvalues/terrafield/internal/common"
)

// MemoryStore is a non-durable Store used in tests and as a fallback when
// the on-disk database cannot be opened (operation continues with in-memory
// state only, at the cost of losing it on restart).
type MemoryStore struct {
	mu   sync.RWMutex
	data map[string]json.RawMessage
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{data: make(map[string]json.RawMessage)}
}

func (s *MemoryStore) Get(_ context.Context, key string) (json.RawMessage, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	v, ok := s.data[key]
	if !ok {
		return nil, fmt.Errorf("key %q: %w", key, common.ErrNotFound)
	}
	out := make(json.RawMessage, len(v))
	copy(out, v)
	return out, nil
}

func (s *MemoryStore) Set(_ context.Context, key string, value json.RawMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	v := make(json.RawMessage, len(value))
	copy(v, value)
	s.data[key] = v
	return nil
}

func (s *MemoryStore) Remove(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.data, key)
	return nil
}
