package driven

import "github.com/custodia-labs/larder/internal/core/domain"

// Metrics receives operational counters from the core services.
// A nil-safe no-op implementation is NopMetrics.
type Metrics interface {
	// CacheLookup records a cache hit or miss.
	CacheLookup(hit bool)

	// CacheRefresh records the outcome of a background refresh.
	CacheRefresh(err error)

	// SyncPass records the outcome of a sync pass.
	SyncPass(result *domain.SyncResult, err error)

	// AssetDownload records the outcome of an asset download.
	AssetDownload(err error)
}

// NopMetrics discards all metrics.
type NopMetrics struct{}

// CacheLookup implements Metrics.
func (NopMetrics) CacheLookup(bool) {}

// CacheRefresh implements Metrics.
func (NopMetrics) CacheRefresh(error) {}

// SyncPass implements Metrics.
func (NopMetrics) SyncPass(*domain.SyncResult, error) {}

// AssetDownload implements Metrics.
func (NopMetrics) AssetDownload(error) {}
