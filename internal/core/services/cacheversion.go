package services

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/custodia-labs/larder/internal/core/domain"
	"github.com/custodia-labs/larder/internal/core/ports/driven"
	"github.com/custodia-labs/larder/internal/core/ports/driving"
	"github.com/custodia-labs/larder/internal/logger"
)

// Ensure CacheVersionManager implements the interface.
var _ driving.CacheVersionManager = (*CacheVersionManager)(nil)

// manifestConcurrency bounds simultaneous manifest fetches.
const manifestConcurrency = 4

// CacheVersionConfig is the explicit configuration of a CacheVersionManager.
type CacheVersionConfig struct {
	// Prefix is the stable part of the generation name.
	Prefix string

	// Version is the operator-bumped generation number.
	Version int

	// Manifest lists URLs prefetched on install.
	Manifest []string

	// Origin resolves relative manifest entries.
	Origin string
}

// CacheVersionConfigFromSettings builds the manager configuration from settings.
func CacheVersionConfigFromSettings(s domain.CacheSettings) CacheVersionConfig {
	return CacheVersionConfig{
		Prefix:   s.Prefix,
		Version:  s.Version,
		Manifest: s.Manifest,
		Origin:   s.Origin,
	}
}

// CacheVersionManager names the current cache generation, prefetches its
// manifest and purges every other generation.
type CacheVersionManager struct {
	storage driven.CacheStorage
	client  driven.HTTPDoer
	cfg     CacheVersionConfig
	now     func() time.Time
}

// NewCacheVersionManager creates a cache version manager.
func NewCacheVersionManager(storage driven.CacheStorage, client driven.HTTPDoer, cfg CacheVersionConfig) *CacheVersionManager {
	if client == nil {
		client = http.DefaultClient
	}
	return &CacheVersionManager{
		storage: storage,
		client:  client,
		cfg:     cfg,
		now:     time.Now,
	}
}

// Name returns the current generation name.
func (m *CacheVersionManager) Name() string {
	return domain.GenerationName(m.cfg.Prefix, m.cfg.Version)
}

// Current opens the current generation.
func (m *CacheVersionManager) Current(ctx context.Context) (driven.Cache, error) {
	cache, err := m.storage.Open(ctx, m.Name())
	if err != nil {
		return nil, fmt.Errorf("open cache %s: %w", m.Name(), err)
	}
	return cache, nil
}

// Install opens the current generation and prefetches the manifest.
// A failed entry is logged and reported; it never fails the others.
func (m *CacheVersionManager) Install(ctx context.Context) (*domain.InstallReport, error) {
	cache, err := m.Current(ctx)
	if err != nil {
		return nil, err
	}

	report := &domain.InstallReport{
		Generation: cache.Name(),
		Failed:     make(map[string]error),
	}
	stored := make([]bool, len(m.cfg.Manifest))
	var mu sync.Mutex

	g := new(errgroup.Group)
	g.SetLimit(manifestConcurrency)
	for i, entry := range m.cfg.Manifest {
		g.Go(func() error {
			err := m.prefetch(ctx, cache, entry)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				logger.Warn("Manifest entry %s not cached: %v", entry, err)
				report.Failed[entry] = err
				return nil
			}
			stored[i] = true
			return nil
		})
	}
	_ = g.Wait()

	for i, ok := range stored {
		if ok {
			report.Stored = append(report.Stored, m.cfg.Manifest[i])
		}
	}

	logger.Info("Installed %s: %d cached, %d failed", report.Generation, len(report.Stored), len(report.Failed))
	return report, nil
}

func (m *CacheVersionManager) prefetch(ctx context.Context, cache driven.Cache, entry string) error {
	target, err := m.resolve(entry)
	if err != nil {
		return err
	}

	fetched, err := fetchEntry(ctx, m.client, target, nil, m.now)
	if err != nil {
		return err
	}
	if !cacheable(fetched) {
		return fmt.Errorf("%w: %s returned status %d", domain.ErrTransport, target, fetched.Status)
	}
	return cache.Put(ctx, fetched)
}

// resolve turns a manifest entry into an absolute URL against the origin.
func (m *CacheVersionManager) resolve(entry string) (string, error) {
	ref, err := url.Parse(entry)
	if err != nil {
		return "", fmt.Errorf("%w: manifest entry %q: %v", domain.ErrInvalidInput, entry, err)
	}
	if ref.IsAbs() {
		return ref.String(), nil
	}
	if m.cfg.Origin == "" {
		return "", fmt.Errorf("%w: relative manifest entry %q without origin", domain.ErrInvalidInput, entry)
	}
	base, err := url.Parse(m.cfg.Origin)
	if err != nil {
		return "", fmt.Errorf("%w: origin %q: %v", domain.ErrInvalidInput, m.cfg.Origin, err)
	}
	return base.ResolveReference(ref).String(), nil
}

// Activate deletes every generation other than the current one.
func (m *CacheVersionManager) Activate(ctx context.Context) ([]string, error) {
	names, err := m.storage.Keys(ctx)
	if err != nil {
		return nil, fmt.Errorf("list caches: %w", err)
	}

	current := m.Name()
	var deleted []string
	var errs []error
	for _, name := range names {
		if name == current {
			continue
		}
		ok, err := m.storage.Delete(ctx, name)
		if err != nil {
			errs = append(errs, fmt.Errorf("delete %s: %w", name, err))
			continue
		}
		if ok {
			logger.Info("Deleted stale cache %s", name)
			deleted = append(deleted, name)
		}
	}

	if len(errs) > 0 {
		return deleted, errors.Join(errs...)
	}
	return deleted, nil
}

// Generations lists every stored generation with its entry count.
func (m *CacheVersionManager) Generations(ctx context.Context) ([]domain.GenerationInfo, error) {
	names, err := m.storage.Keys(ctx)
	if err != nil {
		return nil, fmt.Errorf("list caches: %w", err)
	}
	sort.Strings(names)

	current := m.Name()
	infos := make([]domain.GenerationInfo, 0, len(names))
	for _, name := range names {
		cache, err := m.storage.Open(ctx, name)
		if err != nil {
			return nil, fmt.Errorf("open cache %s: %w", name, err)
		}
		count, err := cache.Count(ctx)
		if err != nil {
			return nil, fmt.Errorf("count cache %s: %w", name, err)
		}
		infos = append(infos, domain.GenerationInfo{Name: name, Entries: count, Current: name == current})
	}
	return infos, nil
}
