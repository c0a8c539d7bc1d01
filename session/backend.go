package session

import (
	"context"
	"errors"
	"sync"
)

// ErrRecordNotFound is returned by a Backend when a key holds no value.
var ErrRecordNotFound = errors.New("session record not found")

// Backend is the key/value persistence the Store writes through.
//
// SetAll must be atomic: after it returns, either every entry is visible or none is.
// Delete must be idempotent.
type Backend interface {
	Get(ctx context.Context, key string) ([]byte, error)
	SetAll(ctx context.Context, entries map[string][]byte) error
	Delete(ctx context.Context, keys ...string) error
}

// MemoryBackend keeps records in process memory.
type MemoryBackend struct {
	mu      sync.Mutex
	entries map[string][]byte
}

func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{entries: make(map[string][]byte)}
}

func (m *MemoryBackend) Get(_ context.Context, key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	v, ok := m.entries[key]
	if !ok {
		return nil, ErrRecordNotFound
	}
	out := make([]byte, len(v))
	copy(out, v)
	return out, nil
}

func (m *MemoryBackend) SetAll(_ context.Context, entries map[string][]byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for k, v := range entries {
		buf := make([]byte, len(v))
		copy(buf, v)
		m.entries[k] = buf
	}
	return nil
}

func (m *MemoryBackend) Delete(_ context.Context, keys ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, k := range keys {
		delete(m.entries, k)
	}
	return nil
}
