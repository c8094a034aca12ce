package history

import (
	"context"
	"sync"
)

type memoryStore struct {
	mu      sync.Mutex
	policy  Policy
	entries []Entry
}

func NewMemoryStore(policy Policy) Store {
	if policy == nil {
		policy = DefaultPolicy()
	}
	return &memoryStore{policy: policy}
}

func (m *memoryStore) Add(ctx context.Context, entry Entry) ([]Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	entries := append([]Entry{entry}, m.entries...)
	kept, evicted := m.policy.Retain(entries)
	m.entries = append([]Entry(nil), kept...)
	return append([]Entry(nil), evicted...), nil
}

func (m *memoryStore) List(ctx context.Context) ([]Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	return append([]Entry(nil), m.entries...), nil
}

func (m *memoryStore) Close() error {
	return nil
}
