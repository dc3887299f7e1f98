package storage

import (
	"context"
	"sync"
)

// MemoryStore keeps values in process memory. It never returns an error
// unless closed.
type MemoryStore struct {
	mtx    sync.RWMutex
	values map[string][]byte
	closed bool
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{values: make(map[string][]byte)}
}

func (m *MemoryStore) Get(_ context.Context, key string) ([]byte, bool, error) {
	m.mtx.RLock()
	defer m.mtx.RUnlock()
	if m.closed {
		return nil, false, ErrClosed
	}
	v, ok := m.values[key]
	if !ok {
		return nil, false, nil
	}
	return append([]byte(nil), v...), true, nil
}

func (m *MemoryStore) Set(_ context.Context, key string, value []byte) error {
	m.mtx.Lock()
	defer m.mtx.Unlock()
	if m.closed {
		return ErrClosed
	}
	m.values[key] = append([]byte(nil), value...)
	return nil
}

func (m *MemoryStore) Remove(_ context.Context, key string) error {
	m.mtx.Lock()
	defer m.mtx.Unlock()
	if m.closed {
		return ErrClosed
	}
	delete(m.values, key)
	return nil
}

func (m *MemoryStore) Close() error {
	m.mtx.Lock()
	defer m.mtx.Unlock()
	m.closed = true
	return nil
}
