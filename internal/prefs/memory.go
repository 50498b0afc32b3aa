package prefs

import (
	"context"
	"sync"
)

// MemoryRepository is a Repository kept in process memory. It backs
// one-shot commands and tests.
type MemoryRepository struct {
	mu        sync.Mutex
	values    map[string]string
	listeners map[chan Change]struct{}
}

// NewMemoryRepository returns a repository seeded with initial.
func NewMemoryRepository(initial map[string]string) *MemoryRepository {
	values := make(map[string]string, len(initial))
	for k, v := range initial {
		values[k] = v
	}
	return &MemoryRepository{
		values:    values,
		listeners: make(map[chan Change]struct{}),
	}
}

// Get implements Repository.
func (m *MemoryRepository) Get(_ context.Context, key string) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.values[key]
	return v, ok, nil
}

// Set implements Repository.
func (m *MemoryRepository) Set(_ context.Context, key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.values[key] = value
	m.broadcast(Change{Key: key, Value: value})
	return nil
}

// Delete implements Repository.
func (m *MemoryRepository) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.values[key]; !ok {
		return nil
	}
	delete(m.values, key)
	m.broadcast(Change{Key: key, Deleted: true})
	return nil
}

// Subscribe implements Repository.
func (m *MemoryRepository) Subscribe() (<-chan Change, func()) {
	ch := make(chan Change, 16)
	m.mu.Lock()
	m.listeners[ch] = struct{}{}
	m.mu.Unlock()

	return ch, func() {
		m.mu.Lock()
		if _, ok := m.listeners[ch]; ok {
			delete(m.listeners, ch)
			close(ch)
		}
		m.mu.Unlock()
	}
}

// Snapshot returns a copy of every stored value.
func (m *MemoryRepository) Snapshot() map[string]string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]string, len(m.values))
	for k, v := range m.values {
		out[k] = v
	}
	return out
}

func (m *MemoryRepository) broadcast(c Change) {
	for ch := range m.listeners {
		select {
		case ch <- c:
		default:
		}
	}
}
