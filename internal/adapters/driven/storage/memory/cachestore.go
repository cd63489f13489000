package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/custodia-labs/larder/internal/core/domain"
	"github.com/custodia-labs/larder/internal/core/ports/driven"
)

// Ensure the cache types implement the interfaces.
var (
	_ driven.CacheStorage = (*CacheStorage)(nil)
	_ driven.Cache        = (*Cache)(nil)
)

// CacheStorage is an in-memory implementation of driven.CacheStorage.
type CacheStorage struct {
	mu     sync.Mutex
	caches map[string]*Cache
}

// NewCacheStorage creates a new in-memory cache storage.
func NewCacheStorage() *CacheStorage {
	return &CacheStorage{caches: make(map[string]*Cache)}
}

// Open returns the named generation, creating it if needed.
func (s *CacheStorage) Open(_ context.Context, name string) (driven.Cache, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.caches[name]
	if !ok {
		c = &Cache{name: name, entries: make(map[string]domain.CacheEntry)}
		s.caches[name] = c
	}
	return c, nil
}

// Keys lists generation names in sorted order.
func (s *CacheStorage) Keys(_ context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	names := make([]string, 0, len(s.caches))
	for name := range s.caches {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

// Delete removes a generation.
func (s *CacheStorage) Delete(_ context.Context, name string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.caches[name]; !ok {
		return false, nil
	}
	delete(s.caches, name)
	return true, nil
}

// Cache is an in-memory cache generation.
type Cache struct {
	mu      sync.RWMutex
	name    string
	entries map[string]domain.CacheEntry
}

// Name returns the generation name.
func (c *Cache) Name() string {
	return c.name
}

// Match returns a copy of the entry stored under key.
func (c *Cache) Match(_ context.Context, key string) (*domain.CacheEntry, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	entry, ok := c.entries[key]
	if !ok {
		return nil, domain.ErrNotFound
	}
	entry.Header = entry.Header.Clone()
	entry.Body = append([]byte(nil), entry.Body...)
	return &entry, nil
}

// Put stores or overwrites the entry.
func (c *Cache) Put(_ context.Context, entry *domain.CacheEntry) error {
	stored := *entry
	stored.Header = entry.Header.Clone()
	stored.Body = append([]byte(nil), entry.Body...)

	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[entry.Key] = stored
	return nil
}

// Count returns the number of entries.
func (c *Cache) Count(_ context.Context) (int, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries), nil
}
