package storage

import (
	"context"
	"sort"
	"sync"
)

type memStore struct {
	mu     sync.RWMutex
	data   map[Scope]map[string][]byte
	closed bool
}

// NewMemory returns an empty in-process store.
func NewMemory() Store {
	return &memStore{data: map[Scope]map[string][]byte{}}
}

func (m *memStore) Get(_ context.Context, scope Scope, key string) ([]byte, error) {
	if err := checkKey(scope, key); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return nil, ErrClosed
	}
	v, ok := m.data[scope][key]
	if !ok {
		return nil, ErrNotFound
	}
	return append([]byte(nil), v...), nil
}

func (m *memStore) Put(_ context.Context, scope Scope, key string, value []byte) error {
	if err := checkKey(scope, key); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	if m.data[scope] == nil {
		m.data[scope] = map[string][]byte{}
	}
	m.data[scope][key] = append([]byte(nil), value...)
	return nil
}

func (m *memStore) Delete(_ context.Context, scope Scope, key string) error {
	if err := checkKey(scope, key); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	delete(m.data[scope], key)
	return nil
}

func (m *memStore) Keys(_ context.Context, scope Scope) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return nil, ErrClosed
	}
	keys := make([]string, 0, len(m.data[scope]))
	for k := range m.data[scope] {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys, nil
}

func (m *memStore) Close() error {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()
	return nil
}
