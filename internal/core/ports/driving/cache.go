package driving

import (
	"context"
	"net/http"

	"github.com/custodia-labs/larder/internal/core/domain"
	"github.com/custodia-labs/larder/internal/core/ports/driven"
)

// CacheController answers intercepted requests stale-while-revalidate.
type CacheController interface {
	// Fetch answers req from the current cache generation when possible and
	// refreshes the entry in the background. On a miss it fetches from the
	// network. A request carrying Range is answered with 206.
	Fetch(ctx context.Context, req *http.Request) (*http.Response, error)

	// Wait blocks until all in-flight background refreshes have finished.
	Wait()

	// SetCache swaps the generation used for lookups and stores.
	SetCache(cache driven.Cache)
}

// CacheVersionManager owns cache generations.
type CacheVersionManager interface {
	// Name returns the current generation name.
	Name() string

	// Install opens the current generation and prefetches the manifest.
	Install(ctx context.Context) (*domain.InstallReport, error)

	// Activate deletes every generation other than the current one and
	// returns the deleted names.
	Activate(ctx context.Context) ([]string, error)

	// Current opens the current generation.
	Current(ctx context.Context) (driven.Cache, error)

	// Generations lists every stored generation with its entry count.
	Generations(ctx context.Context) ([]domain.GenerationInfo, error)
}

// CacheLifecycle moves the cache controller onto the configured generation.
type CacheLifecycle interface {
	// Apply installs the configured generation, points the controller at it
	// and then purges every other generation. It returns a nil report when
	// the configured generation is already active.
	Apply(ctx context.Context) (*domain.InstallReport, []string, error)

	// Versions returns a manager for the configured generation.
	Versions() (CacheVersionManager, error)

	// Active returns the generation the controller serves from, or "".
	Active() string
}
