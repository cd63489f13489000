package driven

import (
	"context"

	"github.com/custodia-labs/larder/internal/core/domain"
)

// CacheStorage holds named cache generations.
type CacheStorage interface {
	// Open returns the named generation, creating it if needed.
	Open(ctx context.Context, name string) (Cache, error)

	// Keys lists every existing generation name.
	Keys(ctx context.Context) ([]string, error)

	// Delete removes a generation and all of its entries.
	// Returns false if the generation did not exist.
	Delete(ctx context.Context, name string) (bool, error)
}

// Cache is one generation of full-resource responses.
type Cache interface {
	// Name returns the generation name.
	Name() string

	// Match returns the entry stored under key.
	// Returns domain.ErrNotFound on a miss.
	Match(ctx context.Context, key string) (*domain.CacheEntry, error)

	// Put stores or overwrites the entry under entry.Key.
	Put(ctx context.Context, entry *domain.CacheEntry) error

	// Count returns the number of stored entries.
	Count(ctx context.Context) (int, error)
}
