// Package metrics exports sync, download and cache counters to Prometheus.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/custodia-labs/larder/internal/core/domain"
	"github.com/custodia-labs/larder/internal/core/ports/driven"
)

const namespace = "larder"

// Ensure Prometheus implements the interface.
var _ driven.Metrics = (*Prometheus)(nil)

// Prometheus records larder metrics on a private registry.
type Prometheus struct {
	registry *prometheus.Registry

	cacheLookups   *prometheus.CounterVec
	cacheRefreshes *prometheus.CounterVec
	syncPasses     *prometheus.CounterVec
	syncRecords    *prometheus.CounterVec
	syncDuration   prometheus.Histogram
	lastSuccess    prometheus.Gauge
	assetDownloads *prometheus.CounterVec
}

// NewPrometheus creates the metric set and registers it.
func NewPrometheus() *Prometheus {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Prometheus{
		registry: reg,
		cacheLookups: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_lookups_total",
			Help:      "Intercepted GET requests by cache result",
		}, []string{"result"}),
		cacheRefreshes: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_refreshes_total",
			Help:      "Background revalidations by outcome",
		}, []string{"outcome"}),
		syncPasses: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sync_passes_total",
			Help:      "Sync passes by outcome",
		}, []string{"outcome"}),
		syncRecords: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sync_records_total",
			Help:      "Records considered by sync passes, by store decision",
		}, []string{"decision"}),
		syncDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "sync_duration_seconds",
			Help:      "Time from feed request to last record write",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		}),
		lastSuccess: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "sync_last_success_timestamp_seconds",
			Help:      "Start time of the last pass without failures",
		}),
		assetDownloads: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "asset_downloads_total",
			Help:      "Asset downloads by outcome",
		}, []string{"outcome"}),
	}
}

// Handler serves the registry in the Prometheus exposition format.
func (p *Prometheus) Handler() http.Handler {
	return promhttp.HandlerFor(p.registry, promhttp.HandlerOpts{})
}

// Registry returns the underlying registry.
func (p *Prometheus) Registry() *prometheus.Registry {
	return p.registry
}

// CacheLookup counts a cache hit or miss.
func (p *Prometheus) CacheLookup(hit bool) {
	if hit {
		p.cacheLookups.WithLabelValues("hit").Inc()
		return
	}
	p.cacheLookups.WithLabelValues("miss").Inc()
}

// CacheRefresh counts a background revalidation.
func (p *Prometheus) CacheRefresh(err error) {
	p.cacheRefreshes.WithLabelValues(outcome(err)).Inc()
}

// SyncPass records the outcome of one sync pass.
func (p *Prometheus) SyncPass(result *domain.SyncResult, err error) {
	if err != nil || result == nil {
		p.syncPasses.WithLabelValues("error").Inc()
		return
	}

	if result.Failed > 0 {
		p.syncPasses.WithLabelValues("partial").Inc()
	} else {
		p.syncPasses.WithLabelValues("success").Inc()
		p.lastSuccess.Set(float64(result.StartedAt.UnixNano()) / 1e9)
	}

	p.syncRecords.WithLabelValues("inserted").Add(float64(result.Inserted))
	p.syncRecords.WithLabelValues("updated").Add(float64(result.Updated))
	p.syncRecords.WithLabelValues("unchanged").Add(float64(result.Unchanged))
	p.syncRecords.WithLabelValues("failed").Add(float64(result.Failed))

	if !result.EndedAt.IsZero() {
		p.syncDuration.Observe(result.EndedAt.Sub(result.StartedAt).Seconds())
	}
}

// AssetDownload counts an asset download, labelled by storage error code
// when the store refused the write.
func (p *Prometheus) AssetDownload(err error) {
	if err != nil && domain.IsStorageFailure(err) {
		p.assetDownloads.WithLabelValues(domain.StorageErrorCode(err)).Inc()
		return
	}
	p.assetDownloads.WithLabelValues(outcome(err)).Inc()
}

func outcome(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}
