package cache

import (
	"context"
	"sync"
	"time"
)

type memoryItem struct {
	value     []byte
	expiresAt time.Time
}

// Memory is an in-process TTL map for local runs. When full, Set evicts
// expired entries first and then an arbitrary one.
type Memory struct {
	mu       sync.Mutex
	items    map[string]memoryItem
	capacity int
	now      func() time.Time
}

func NewMemory(capacity int) *Memory {
	if capacity <= 0 {
		capacity = 1
	}
	return &Memory{
		items:    make(map[string]memoryItem),
		capacity: capacity,
		now:      time.Now,
	}
}

func (m *Memory) Get(_ context.Context, namespace, key string) ([]byte, bool, error) {
	k := redisKey(namespace, key)

	m.mu.Lock()
	defer m.mu.Unlock()

	item, ok := m.items[k]
	if !ok {
		return nil, false, nil
	}
	if !item.expiresAt.IsZero() && m.now().After(item.expiresAt) {
		delete(m.items, k)
		return nil, false, nil
	}
	return append([]byte(nil), item.value...), true, nil
}

func (m *Memory) Set(_ context.Context, namespace, key string, value []byte, ttl time.Duration) error {
	k := redisKey(namespace, key)
	item := memoryItem{value: append([]byte(nil), value...)}
	if ttl > 0 {
		item.expiresAt = m.now().Add(ttl)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.items[k]; !exists && len(m.items) >= m.capacity {
		m.evictLocked()
	}
	m.items[k] = item
	return nil
}

func (m *Memory) Delete(_ context.Context, namespace, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.items, redisKey(namespace, key))
	return nil
}

// Len reports the number of stored entries, expired ones included.
func (m *Memory) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.items)
}

func (m *Memory) evictLocked() {
	now := m.now()
	for k, item := range m.items {
		if !item.expiresAt.IsZero() && now.After(item.expiresAt) {
			delete(m.items, k)
		}
	}
	if len(m.items) < m.capacity {
		return
	}
	for k := range m.items {
		delete(m.items, k)
		return
	}
}
