package cache

import (
	"context"
	"sync"
	"time"
)

type memEntry struct {
	value     []byte
	expiresAt time.Time
}

// Memory is a process-local Store for tests and single-instance deployments
// that run without an external store.
type Memory struct {
	MaxItems int

	mu    sync.RWMutex
	items map[string]memEntry
}

func NewMemory() *Memory {
	return &Memory{items: make(map[string]memEntry)}
}

func (m *Memory) Get(_ context.Context, key string) ([]byte, bool, error) {
	m.mu.RLock()
	e, ok := m.items[key]
	m.mu.RUnlock()
	if !ok || time.Now().After(e.expiresAt) {
		return nil, false, nil
	}
	return e.value, true, nil
}

func (m *Memory) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.items[key] = memEntry{value: value, expiresAt: time.Now().Add(ttl)}

	// Best-effort cap: expired entries first, then arbitrary ones.
	if m.MaxItems > 0 && len(m.items) > m.MaxItems {
		now := time.Now()
		for k, e := range m.items {
			if now.After(e.expiresAt) {
				delete(m.items, k)
			}
			if len(m.items) <= m.MaxItems {
				return nil
			}
		}
		for k := range m.items {
			if len(m.items) <= m.MaxItems {
				break
			}
			delete(m.items, k)
		}
	}
	return nil
}
