package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/custodia-labs/larder/internal/core/domain"
	"github.com/custodia-labs/larder/internal/core/ports/driven"
	"github.com/custodia-labs/larder/internal/core/ports/driving"
	"github.com/custodia-labs/larder/internal/logger"
)

// Ensure SyncEngine implements the interface.
var _ driving.SyncEngine = (*SyncEngine)(nil)

// SyncEngineConfig is the explicit configuration of a SyncEngine.
type SyncEngineConfig struct {
	// Collection names the local collection.
	Collection string

	// Feed selects identity, asset fields and asset policy.
	Feed domain.FeedSettings

	// AssetQuotaBytes is requested from the asset store on Start.
	AssetQuotaBytes int64

	// AssetBaseURI is prefixed to asset keys in rewritten fields.
	AssetBaseURI string

	// Concurrency bounds records processed and downloads run at once.
	Concurrency int

	// RefreshOnStart runs an incremental pass from Start.
	RefreshOnStart bool
}

// SyncEngineConfigFromSettings builds the engine configuration from settings.
func SyncEngineConfigFromSettings(s domain.AppSettings) SyncEngineConfig {
	return SyncEngineConfig{
		Collection:      s.Collection.Name,
		Feed:            s.Feed,
		AssetQuotaBytes: s.Assets.QuotaBytes,
		AssetBaseURI:    s.Assets.BaseURI,
		Concurrency:     s.Assets.Concurrency,
		RefreshOnStart:  s.Refresh.OnStart,
	}
}

// recordOutcome is the store decision taken for one record.
type recordOutcome int

const (
	outcomeFailed recordOutcome = iota
	outcomeInserted
	outcomeUpdated
	outcomeUnchanged
)

// assetRef pairs an original asset reference with its derived key.
type assetRef struct {
	Reference string
	Key       string
}

// SyncEngine pulls the remote delta feed into the local record store and
// dispatches asset downloads for the records it processed.
type SyncEngine struct {
	feed       driven.FeedClient
	records    driven.RecordStore
	syncStore  driven.SyncStateStore
	assets     driven.AssetStore
	downloader driving.AssetDownloader
	events     *EventBus
	metrics    driven.Metrics
	cfg        SyncEngineConfig
	now        func() time.Time

	// Status tracking
	mu     sync.RWMutex
	status driving.SyncStatus

	downloads sync.WaitGroup
	pending   atomic.Int64
	slots     chan struct{}
}

// NewSyncEngine creates a sync engine.
// events and metrics may be nil.
func NewSyncEngine(
	feed driven.FeedClient,
	records driven.RecordStore,
	syncStore driven.SyncStateStore,
	assets driven.AssetStore,
	downloader driving.AssetDownloader,
	events *EventBus,
	metrics driven.Metrics,
	cfg SyncEngineConfig,
) *SyncEngine {
	if metrics == nil {
		metrics = driven.NopMetrics{}
	}
	if cfg.Concurrency < 1 {
		cfg.Concurrency = 1
	}
	if cfg.Feed.Identity == "" {
		cfg.Feed.Identity = domain.IdentityChecksum
	}
	if cfg.Feed.AssetPolicy == "" {
		cfg.Feed.AssetPolicy = domain.AssetPolicyAlways
	}

	return &SyncEngine{
		feed:       feed,
		records:    records,
		syncStore:  syncStore,
		assets:     assets,
		downloader: downloader,
		events:     events,
		metrics:    metrics,
		cfg:        cfg,
		now:        time.Now,
		status:     driving.SyncStatus{Collection: cfg.Collection},
		slots:      make(chan struct{}, cfg.Concurrency),
	}
}

// Start opens the collection, requests the asset quota and emits
// collection-ready. A failed quota request is logged and leaves the asset
// store unusable; records still sync.
func (e *SyncEngine) Start(ctx context.Context) (*domain.CollectionInfo, error) {
	info, err := e.records.Info(ctx)
	if err != nil {
		return nil, fmt.Errorf("open collection: %w", err)
	}

	if e.assets != nil {
		granted, err := e.assets.RequestQuota(ctx, e.cfg.AssetQuotaBytes)
		if err != nil {
			logger.Warn("Asset quota request failed (%s): %v", domain.StorageErrorCode(err), err)
		}
		info.AssetQuotaBytes = granted
	}

	if last, err := e.LastSync(ctx); err == nil {
		e.mu.Lock()
		e.status.LastSync = last
		e.mu.Unlock()
	}

	logger.Info("Collection %s ready: %d records", info.Name, info.Records)
	e.events.Emit(domain.Event{Kind: domain.EventCollectionReady, Collection: info})

	if e.cfg.RefreshOnStart {
		if _, err := e.RefreshIncremental(ctx); err != nil {
			logger.Warn("Initial refresh failed: %v", err)
		}
	}

	return info, nil
}

// LastSync returns the start of the last successful pass, or the zero time
// if none has completed.
func (e *SyncEngine) LastSync(ctx context.Context) (time.Time, error) {
	if e.syncStore == nil {
		return time.Time{}, nil
	}
	state, err := e.syncStore.Get(ctx, e.cfg.Collection)
	if errors.Is(err, domain.ErrNotFound) {
		return time.Time{}, nil
	}
	if err != nil {
		return time.Time{}, fmt.Errorf("get sync state: %w", err)
	}
	return state.LastSync, nil
}

// RefreshIncremental runs a pass from the last successful pass start.
// Without a recorded pass it fetches everything.
func (e *SyncEngine) RefreshIncremental(ctx context.Context) (*domain.SyncResult, error) {
	since, err := e.LastSync(ctx)
	if err != nil {
		return nil, err
	}
	return e.Refresh(ctx, since)
}

// Refresh runs one sync pass over every remote item changed at or after
// since. Per-record failures are counted and logged; only a feed failure
// aborts the pass.
//
//nolint:gocyclo // Orchestration function with necessary sequential steps
func (e *SyncEngine) Refresh(ctx context.Context, since time.Time) (*domain.SyncResult, error) {
	result := &domain.SyncResult{StartedAt: e.now()}

	e.mu.Lock()
	e.status.Running = true
	e.status.RecordsProcessed = 0
	e.status.ErrorCount = 0
	e.mu.Unlock()
	defer func() {
		e.mu.Lock()
		e.status.Running = false
		e.mu.Unlock()
	}()

	logger.Info("Starting sync for collection %s", e.cfg.Collection)
	e.events.Emit(domain.Event{Kind: domain.EventSyncStarted})

	// 1. Fetch the remote delta
	items, err := e.feed.Fetch(ctx, since)
	if err != nil {
		err = fmt.Errorf("fetch feed: %w", err)
		logger.Warn("Sync aborted: %v", err)
		e.mu.Lock()
		e.status.LastError = err.Error()
		e.mu.Unlock()
		e.metrics.SyncPass(nil, err)
		e.events.Emit(domain.Event{Kind: domain.EventSyncFailed, Err: err})
		return nil, err
	}
	logger.Debug("Feed returned %d records", len(items))

	// 2. Process records independently
	outcomes := make([]recordOutcome, len(items))
	processed := make([]domain.Record, len(items))

	g := new(errgroup.Group)
	g.SetLimit(e.cfg.Concurrency)
	for i, raw := range items {
		g.Go(func() error {
			outcome, rec, err := e.processRecord(ctx, raw)
			if err != nil {
				logger.Warn("Record %d skipped: %v", i, err)
			}
			outcomes[i] = outcome
			processed[i] = rec
			e.recordProgress(outcome == outcomeFailed)
			return nil
		})
	}
	_ = g.Wait()

	for i, outcome := range outcomes {
		switch outcome {
		case outcomeInserted:
			result.Inserted++
		case outcomeUpdated:
			result.Updated++
		case outcomeUnchanged:
			result.Unchanged++
		default:
			result.Failed++
		}
		if processed[i] != nil {
			result.Records = append(result.Records, processed[i])
		}
	}
	result.EndedAt = e.now()

	// 3. Advance the incremental window only when every record landed, so
	// skipped records are fetched again next pass.
	if result.Failed == 0 && e.syncStore != nil {
		state := domain.SyncState{Collection: e.cfg.Collection, LastSync: result.StartedAt}
		if err := e.syncStore.Save(ctx, state); err != nil {
			logger.Warn("Save sync state: %v", err)
		} else {
			e.mu.Lock()
			e.status.LastSync = result.StartedAt
			e.mu.Unlock()
		}
	}

	e.mu.Lock()
	e.status.LastResult = result
	e.status.LastError = ""
	if result.Failed > 0 {
		e.status.LastError = fmt.Sprintf("%d records failed", result.Failed)
	}
	e.mu.Unlock()

	logger.Info("Sync complete: %d inserted, %d updated, %d unchanged, %d failed",
		result.Inserted, result.Updated, result.Unchanged, result.Failed)
	e.metrics.SyncPass(result, nil)
	e.events.Emit(domain.Event{Kind: domain.EventSyncCompleted, Result: result})

	return result, nil
}

// processRecord fingerprints, rewrites and stores one record, then
// dispatches its asset downloads. Downloads are dispatched once the record
// write has been attempted, even when it failed.
func (e *SyncEngine) processRecord(ctx context.Context, raw json.RawMessage) (recordOutcome, domain.Record, error) {
	rec, err := domain.DecodeRecord(raw)
	if err != nil {
		return outcomeFailed, nil, err
	}

	// a. Fingerprint the pre-rewrite form
	serialized, err := domain.CanonicalJSON(rec)
	if err != nil {
		return outcomeFailed, nil, err
	}
	checksum := domain.Checksum(serialized)

	id, err := e.identify(rec, serialized, checksum)
	if err != nil {
		return outcomeFailed, nil, err
	}
	rec[domain.FieldID] = id
	rec[domain.FieldChecksum] = checksum

	// b. Rewrite asset fields to local URIs
	refs := e.rewriteAssets(rec, id)

	// c. Diff against the store
	outcome, err := e.store(ctx, id, rec, checksum)

	// d. Downloads run whatever the write outcome
	e.dispatchDownloads(ctx, outcome, refs)

	if err != nil {
		return outcomeFailed, rec, fmt.Errorf("record %s: %w", id, err)
	}
	return outcome, rec, nil
}

// identify returns the record identity for the configured strategy.
func (e *SyncEngine) identify(rec domain.Record, serialized []byte, checksum uint32) (string, error) {
	switch e.cfg.Feed.Identity {
	case domain.IdentityPassthrough:
		id := domain.FieldString(rec[e.cfg.Feed.IDField])
		if id == "" {
			return "", fmt.Errorf("%w: missing identity field %q", domain.ErrMalformedInput, e.cfg.Feed.IDField)
		}
		return id, nil
	default:
		if id := rec.ID(); id != "" {
			return id, nil
		}
		return domain.DeriveID(serialized, checksum), nil
	}
}

// rewriteAssets replaces every configured asset reference with its local
// URI and returns the original references with their keys, in field order.
func (e *SyncEngine) rewriteAssets(rec domain.Record, id string) []assetRef {
	var refs []assetRef

	rewrite := func(v any) any {
		switch val := v.(type) {
		case string:
			if val == "" {
				return val
			}
			key := domain.AssetKey(id, val)
			refs = append(refs, assetRef{Reference: val, Key: key})
			return e.cfg.AssetBaseURI + key
		case map[string]any:
			ref, ok := val["url"].(string)
			if !ok || ref == "" {
				return val
			}
			key := domain.AssetKey(id, ref)
			refs = append(refs, assetRef{Reference: ref, Key: key})
			out := make(map[string]any, len(val))
			for k, fv := range val {
				out[k] = fv
			}
			out["url"] = e.cfg.AssetBaseURI + key
			return out
		default:
			return v
		}
	}

	for _, field := range e.cfg.Feed.AssetFields {
		v, ok := rec[field]
		if !ok || v == nil {
			continue
		}
		if list, ok := v.([]any); ok {
			if len(list) == 0 {
				rec[field] = nil
				continue
			}
			out := make([]any, len(list))
			for i, item := range list {
				out[i] = rewrite(item)
			}
			rec[field] = out
			continue
		}
		rec[field] = rewrite(v)
	}

	return refs
}

// store applies the insert/update/skip decision.
func (e *SyncEngine) store(ctx context.Context, id string, rec domain.Record, checksum uint32) (recordOutcome, error) {
	existing, err := e.records.Get(ctx, id)
	if errors.Is(err, domain.ErrNotFound) {
		if _, err := e.records.Put(ctx, id, rec, ""); err != nil {
			return outcomeFailed, fmt.Errorf("insert: %w", err)
		}
		return outcomeInserted, nil
	}
	if err != nil {
		return outcomeFailed, fmt.Errorf("get: %w", err)
	}

	if stored, ok := existing.Record.Checksum(); ok && stored == checksum {
		return outcomeUnchanged, nil
	}

	if _, err := e.records.Put(ctx, id, rec, existing.Rev); err != nil {
		return outcomeFailed, fmt.Errorf("update: %w", err)
	}
	return outcomeUpdated, nil
}

// dispatchDownloads starts background downloads according to the asset
// policy. Wait drains them.
func (e *SyncEngine) dispatchDownloads(ctx context.Context, outcome recordOutcome, refs []assetRef) {
	if e.downloader == nil || len(refs) == 0 {
		return
	}

	for _, ref := range refs {
		if !e.shouldDownload(ctx, outcome, ref.Key) {
			continue
		}

		e.downloads.Add(1)
		e.pending.Add(1)
		go func(ref assetRef) {
			defer e.downloads.Done()
			defer e.pending.Add(-1)

			e.slots <- struct{}{}
			defer func() { <-e.slots }()

			if err := e.downloader.Download(context.WithoutCancel(ctx), ref.Reference, ref.Key); err != nil {
				logger.Debug("Download %s failed: %v", ref.Key, err)
			}
		}(ref)
	}
}

func (e *SyncEngine) shouldDownload(ctx context.Context, outcome recordOutcome, key string) bool {
	if outcome != outcomeUnchanged {
		return true
	}

	switch e.cfg.Feed.AssetPolicy {
	case domain.AssetPolicyChanged:
		return false
	case domain.AssetPolicyMissing:
		if e.assets == nil {
			return true
		}
		exists, err := e.assets.Exists(ctx, key)
		return err != nil || !exists
	default:
		return true
	}
}

func (e *SyncEngine) recordProgress(failed bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.status.RecordsProcessed++
	if failed {
		e.status.ErrorCount++
	}
}

// Wait blocks until every dispatched asset download has finished or ctx
// is done.
func (e *SyncEngine) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		e.downloads.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Status returns the current engine state.
func (e *SyncEngine) Status() driving.SyncStatus {
	e.mu.RLock()
	defer e.mu.RUnlock()

	status := e.status
	status.PendingDownloads = int(e.pending.Load())
	return status
}
