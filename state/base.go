package state

import (
	"context"
	"sync"
)

// MemoryStore keeps all values in process memory. It backs tests and
// single-shot runs that should leave nothing behind.
type MemoryStore struct {
	mutex  sync.RWMutex
	values map[string][]byte
	closed bool
}

// NewMemoryStore creates an empty MemoryStore
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		values: make(map[string][]byte),
	}
}

// Get returns a copy of the value stored under key
func (m *MemoryStore) Get(_ context.Context, key string) ([]byte, bool, error) {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	if m.closed {
		return nil, false, ErrStoreClosed
	}

	value, exists := m.values[key]
	if !exists {
		return nil, false, nil
	}

	out := make([]byte, len(value))
	copy(out, value)
	return out, true, nil
}

// Set stores a copy of value under key
func (m *MemoryStore) Set(_ context.Context, key string, value []byte) error {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	if m.closed {
		return ErrStoreClosed
	}

	stored := make([]byte, len(value))
	copy(stored, value)
	m.values[key] = stored
	return nil
}

// Delete removes key
func (m *MemoryStore) Delete(_ context.Context, key string) error {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	if m.closed {
		return ErrStoreClosed
	}

	delete(m.values, key)
	return nil
}

// Close marks the store closed
func (m *MemoryStore) Close() error {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	m.closed = true
	return nil
}

// Len returns the number of stored keys
func (m *MemoryStore) Len() int {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	return len(m.values)
}
