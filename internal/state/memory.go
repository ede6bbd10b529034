package state

import (
	"bytes"
	"context"
	"sync"
)

// MemoryStore is a process-local Store used by tests and dry runs.
type MemoryStore struct {
	mu    sync.RWMutex
	items map[string][]byte
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{items: make(map[string][]byte)}
}

func (m *MemoryStore) Get(_ context.Context, key string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.items[key]
	if !ok {
		return nil, ErrNotFound
	}
	return bytes.Clone(v), nil
}

func (m *MemoryStore) Set(_ context.Context, key string, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.items[key] = bytes.Clone(value)
	return nil
}

func (m *MemoryStore) CompareAndSwap(_ context.Context, key string, prev, next []byte) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.items[key]
	if !ok && prev != nil {
		return false, nil
	}
	if ok && (prev == nil || !bytes.Equal(cur, prev)) {
		return false, nil
	}
	m.items[key] = bytes.Clone(next)
	return true, nil
}
