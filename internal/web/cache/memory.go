package cache

import (
	"context"
	"strings"
	"sync"
	"time"
)

// MemoryCache implements an in-process cache with TTL support. Expired items are
// dropped lazily on access.
type MemoryCache struct {
	mu     sync.RWMutex
	data   map[string]cacheItem
	config Config
	now    func() time.Time
}

// cacheItem represents an item stored in the cache
type cacheItem struct {
	value      []byte
	expiration time.Time
}

// NewMemoryCache creates a new in-memory cache
func NewMemoryCache(config Config) *MemoryCache {
	return &MemoryCache{
		data:   make(map[string]cacheItem),
		config: config,
		now:    time.Now,
	}
}

// Get retrieves a value from the cache
func (m *MemoryCache) Get(ctx context.Context, key string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	fullKey := m.config.Prefix + key

	m.mu.RLock()
	item, ok := m.data[fullKey]
	m.mu.RUnlock()
	if !ok {
		return nil, ErrCacheMiss
	}

	if !item.expiration.IsZero() && m.now().After(item.expiration) {
		m.mu.Lock()
		delete(m.data, fullKey)
		m.mu.Unlock()
		return nil, ErrCacheMiss
	}

	return item.value, nil
}

// Set stores a value in the cache with a TTL
func (m *MemoryCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	if ttl == 0 {
		ttl = m.config.DefaultTTL
	}

	item := cacheItem{value: append([]byte(nil), value...)}
	if ttl > 0 {
		item.expiration = m.now().Add(ttl)
	}

	m.mu.Lock()
	m.data[m.config.Prefix+key] = item
	m.mu.Unlock()
	return nil
}

// Delete removes a value from the cache
func (m *MemoryCache) Delete(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	m.mu.Lock()
	delete(m.data, m.config.Prefix+key)
	m.mu.Unlock()
	return nil
}

// Clear removes all values from the cache
func (m *MemoryCache) Clear(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	for key := range m.data {
		if strings.HasPrefix(key, m.config.Prefix) {
			delete(m.data, key)
		}
	}
	return nil
}

// Len returns the number of stored items, expired ones included
func (m *MemoryCache) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.data)
}
