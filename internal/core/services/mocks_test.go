package services

import (
	"context"
	"encoding/json"
	stdsync "sync"
	"sync/atomic"
	"time"

	"github.com/custodia-labs/larder/internal/core/domain"
	"github.com/custodia-labs/larder/internal/core/ports/driven"
)

// countingMetrics implements driven.Metrics for testing.
type countingMetrics struct {
	hits            atomic.Int64
	misses          atomic.Int64
	refreshes       atomic.Int64
	refreshFailures atomic.Int64
	passes          atomic.Int64
	passFailures    atomic.Int64
	assets          atomic.Int64
	assetFailures   atomic.Int64
}

func (m *countingMetrics) CacheLookup(hit bool) {
	if hit {
		m.hits.Add(1)
		return
	}
	m.misses.Add(1)
}

func (m *countingMetrics) CacheRefresh(err error) {
	m.refreshes.Add(1)
	if err != nil {
		m.refreshFailures.Add(1)
	}
}

func (m *countingMetrics) SyncPass(_ *domain.SyncResult, err error) {
	m.passes.Add(1)
	if err != nil {
		m.passFailures.Add(1)
	}
}

func (m *countingMetrics) AssetDownload(err error) {
	m.assets.Add(1)
	if err != nil {
		m.assetFailures.Add(1)
	}
}

// mockFeed implements driven.FeedClient for testing.
type mockFeed struct {
	mu    stdsync.Mutex
	items []string
	err   error
	since []time.Time
}

func (m *mockFeed) Fetch(_ context.Context, since time.Time) ([]json.RawMessage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.since = append(m.since, since)
	if m.err != nil {
		return nil, m.err
	}
	out := make([]json.RawMessage, len(m.items))
	for i, item := range m.items {
		out[i] = json.RawMessage(item)
	}
	return out, nil
}

func (m *mockFeed) set(items ...string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.items = items
}

// download is one recorded AssetDownloader call.
type download struct {
	Reference string
	Key       string
}

// mockDownloader implements driving.AssetDownloader for testing.
type mockDownloader struct {
	mu    stdsync.Mutex
	calls []download
	err   error
	hook  func(reference, key string)
}

func (m *mockDownloader) Download(_ context.Context, reference, key string) error {
	if m.hook != nil {
		m.hook(reference, key)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, download{Reference: reference, Key: key})
	return m.err
}

func (m *mockDownloader) recorded() []download {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]download(nil), m.calls...)
}

// conflictStore wraps a RecordStore and rejects every update.
type conflictStore struct {
	inner driven.RecordStore
	puts  atomic.Int64
}

func (s *conflictStore) Get(ctx context.Context, id string) (*domain.StoredRecord, error) {
	return s.inner.Get(ctx, id)
}

func (s *conflictStore) Put(ctx context.Context, id string, rec domain.Record, rev string) (string, error) {
	s.puts.Add(1)
	if rev != "" {
		return "", domain.ErrConflict
	}
	return s.inner.Put(ctx, id, rec, rev)
}

func (s *conflictStore) List(ctx context.Context) ([]domain.StoredRecord, error) {
	return s.inner.List(ctx)
}

func (s *conflictStore) Info(ctx context.Context) (*domain.CollectionInfo, error) {
	return s.inner.Info(ctx)
}
