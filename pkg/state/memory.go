package state

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
)

// MemoryStore is an in-process Store implementation. Entries live until
// consumed; there is no expiry, which is fine for its intended test/CLI use.
type MemoryStore struct {
	mu      sync.Mutex
	entries map[string]memoryEntry
}

type memoryEntry struct {
	stage string
	state map[string]any
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		entries: make(map[string]memoryEntry),
	}
}

var _ Store = (*MemoryStore)(nil)

// Save persists st under a fresh opaque id.
func (m *MemoryStore) Save(_ context.Context, stage string, st map[string]any) (string, error) {
	id := uuid.NewString()

	// Copy so later caller mutations don't alias the stored state.
	stored := make(map[string]any, len(st))
	for k, v := range st {
		stored[k] = v
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[id] = memoryEntry{stage: stage, state: stored}
	return id, nil
}

// Load retrieves and consumes the state saved under id.
func (m *MemoryStore) Load(_ context.Context, id, stage string) (map[string]any, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, ok := m.entries[id]
	if !ok {
		return nil, fmt.Errorf("%w: id %q", ErrNoState, id)
	}
	if entry.stage != stage {
		return nil, fmt.Errorf("%w: id %q saved under stage %q, expected %q", ErrNoState, id, entry.stage, stage)
	}
	delete(m.entries, id)
	return entry.state, nil
}

// MemoryPKCEStore is an in-process PKCEStore implementation.
type MemoryPKCEStore struct {
	mu     sync.Mutex
	values map[string]string
}

// NewMemoryPKCEStore creates an empty MemoryPKCEStore.
func NewMemoryPKCEStore() *MemoryPKCEStore {
	return &MemoryPKCEStore{values: make(map[string]string)}
}

var _ PKCEStore = (*MemoryPKCEStore)(nil)

// Save stores value under key.
func (m *MemoryPKCEStore) Save(_ context.Context, key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.values[key] = value
	return nil
}

// Load returns the value stored under key.
func (m *MemoryPKCEStore) Load(_ context.Context, key string) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.values[key]
	return v, ok, nil
}
