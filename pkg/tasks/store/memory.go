package store

import (
	"context"
	"sync"
)

// MemoryBackend keeps entries in a map.
type MemoryBackend struct {
	mu      sync.RWMutex
	entries map[string]*Entry
}

// NewMemoryBackend creates an empty in-memory backend.
func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{entries: make(map[string]*Entry)}
}

func (m *MemoryBackend) CreateIfAbsent(_ context.Context, entry *Entry) (bool, *Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if existing, ok := m.entries[entry.Key]; ok {
		return false, clone(existing), nil
	}
	m.entries[entry.Key] = clone(entry)
	return true, nil, nil
}

func (m *MemoryBackend) Put(_ context.Context, entry *Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.entries[entry.Key] = clone(entry)
	return nil
}

func (m *MemoryBackend) Get(_ context.Context, key string) (*Entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	e, ok := m.entries[key]
	if !ok {
		return nil, ErrNotFound
	}
	return clone(e), nil
}

func (m *MemoryBackend) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.entries, key)
	return nil
}

func (m *MemoryBackend) Prune(_ context.Context, keep string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	deleted := 0
	for key, e := range m.entries {
		if e.Version != keep {
			delete(m.entries, key)
			deleted++
		}
	}
	return deleted, nil
}

func (m *MemoryBackend) Close() error {
	return nil
}

// Len returns the number of stored entries.
func (m *MemoryBackend) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries)
}
