package services

import (
	"context"
	"fmt"
	"sync"

	"github.com/custodia-labs/larder/internal/core/domain"
	"github.com/custodia-labs/larder/internal/core/ports/driven"
	"github.com/custodia-labs/larder/internal/core/ports/driving"
	"github.com/custodia-labs/larder/internal/logger"
)

// Ensure CacheLifecycle implements the interface.
var _ driving.CacheLifecycle = (*CacheLifecycle)(nil)

// CacheLifecycle re-reads the cache settings on every Apply so a version
// bump takes effect without a restart.
type CacheLifecycle struct {
	settings   driving.SettingsService
	storage    driven.CacheStorage
	client     driven.HTTPDoer
	controller driving.CacheController

	mu     sync.Mutex
	active string
}

// NewCacheLifecycle creates a cache lifecycle. client may be nil.
func NewCacheLifecycle(
	settings driving.SettingsService,
	storage driven.CacheStorage,
	client driven.HTTPDoer,
	controller driving.CacheController,
) *CacheLifecycle {
	return &CacheLifecycle{
		settings:   settings,
		storage:    storage,
		client:     client,
		controller: controller,
	}
}

// Versions returns a manager for the configured generation.
func (l *CacheLifecycle) Versions() (driving.CacheVersionManager, error) {
	s, err := l.settings.Get()
	if err != nil {
		return nil, fmt.Errorf("load cache settings: %w", err)
	}
	return NewCacheVersionManager(l.storage, l.client, CacheVersionConfigFromSettings(s.Cache)), nil
}

// Active returns the generation the controller serves from.
func (l *CacheLifecycle) Active() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.active
}

// Apply installs, switches and activates the configured generation.
// Old generations are only purged after the controller has switched, so
// no lookup ever lands on a deleted generation.
func (l *CacheLifecycle) Apply(ctx context.Context) (*domain.InstallReport, []string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	versions, err := l.Versions()
	if err != nil {
		return nil, nil, err
	}
	if versions.Name() == l.active {
		return nil, nil, nil
	}

	logger.Section("Cache " + versions.Name())
	report, err := versions.Install(ctx)
	if err != nil {
		return nil, nil, err
	}

	cache, err := versions.Current(ctx)
	if err != nil {
		return report, nil, err
	}
	if l.controller != nil {
		l.controller.SetCache(cache)
	}
	previous := l.active
	l.active = versions.Name()

	deleted, err := versions.Activate(ctx)
	if err != nil {
		return report, deleted, err
	}

	if previous != "" {
		logger.Info("Cache switched from %s to %s", previous, l.active)
	}
	return report, deleted, nil
}
