package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"

	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"

	"github.com/custodia-labs/larder/internal/core/domain"
	"github.com/custodia-labs/larder/internal/core/ports/driven"
	"github.com/custodia-labs/larder/internal/core/ports/driving"
	"github.com/custodia-labs/larder/internal/logger"
)

// Ensure AssetService implements the interfaces.
var (
	_ driving.AssetDownloader = (*AssetService)(nil)
	_ driving.AssetReader     = (*AssetService)(nil)
)

// AssetService downloads remote assets into the asset store and serves
// them back by key.
type AssetService struct {
	client  driven.HTTPDoer
	store   driven.AssetStore
	events  *EventBus
	metrics driven.Metrics
	limiter *rate.Limiter
	group   singleflight.Group
}

// NewAssetService creates an asset service.
// ratePerSecond throttles download starts; zero or less disables throttling.
// events and metrics may be nil.
func NewAssetService(
	client driven.HTTPDoer,
	store driven.AssetStore,
	events *EventBus,
	metrics driven.Metrics,
	ratePerSecond float64,
) *AssetService {
	if client == nil {
		client = http.DefaultClient
	}
	if metrics == nil {
		metrics = driven.NopMetrics{}
	}

	var limiter *rate.Limiter
	if ratePerSecond > 0 {
		burst := int(ratePerSecond)
		if burst < 1 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(ratePerSecond), burst)
	}

	return &AssetService{
		client:  client,
		store:   store,
		events:  events,
		metrics: metrics,
		limiter: limiter,
	}
}

// Download fetches reference and writes it to the asset store under key.
// Concurrent calls for the same key share one fetch.
func (s *AssetService) Download(ctx context.Context, reference, key string) error {
	if key == "" || reference == "" {
		return fmt.Errorf("download asset: %w: empty reference or key", domain.ErrInvalidInput)
	}

	_, err, _ := s.group.Do(key, func() (any, error) {
		return nil, s.download(ctx, reference, key)
	})
	return err
}

func (s *AssetService) download(ctx context.Context, reference, key string) error {
	s.events.Emit(domain.Event{Kind: domain.EventAssetDownloadStarted, Key: key})
	logger.Debug("Downloading asset %s from %s", key, reference)

	data, err := s.fetch(ctx, reference)
	if err != nil {
		return s.fail(key, err)
	}
	s.events.Emit(domain.Event{Kind: domain.EventAssetDownloadFetched, Key: key})

	if err := s.store.Write(ctx, key, data); err != nil {
		logger.Warn("Asset %s not stored (%s): %v", key, domain.StorageErrorCode(err), err)
		return s.fail(key, fmt.Errorf("store asset %s: %w", key, err))
	}

	s.metrics.AssetDownload(nil)
	s.events.Emit(domain.Event{Kind: domain.EventAssetDownloadStored, Key: key})
	logger.Debug("Stored asset %s (%d bytes)", key, len(data))
	return nil
}

// fetch retrieves the full body. Only a 200 response counts as success.
func (s *AssetService) fetch(ctx context.Context, reference string) ([]byte, error) {
	if s.limiter != nil {
		if err := s.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("%w: %v", domain.ErrTransport, err)
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reference, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("%w: build request for %s: %v", domain.ErrTransport, reference, err)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: fetch %s: %v", domain.ErrTransport, reference, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: fetch %s: unexpected status %d", domain.ErrTransport, reference, resp.StatusCode)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: read %s: %v", domain.ErrTransport, reference, err)
	}
	return data, nil
}

func (s *AssetService) fail(key string, err error) error {
	if errors.Is(err, domain.ErrTransport) {
		logger.Warn("Asset %s not fetched: %v", key, err)
	}
	s.metrics.AssetDownload(err)
	s.events.Emit(domain.Event{Kind: domain.EventAssetDownloadFailed, Key: key, Err: err})
	return err
}

// Open returns a reader over a stored asset.
func (s *AssetService) Open(ctx context.Context, key string) (io.ReadCloser, int64, error) {
	return s.store.Open(ctx, key)
}
