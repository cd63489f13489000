package services

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/custodia-labs/larder/internal/core/domain"
	"github.com/custodia-labs/larder/internal/core/ports/driven"
	"github.com/custodia-labs/larder/internal/core/ports/driving"
	"github.com/custodia-labs/larder/internal/logger"
)

// Ensure CacheController implements the interface.
var _ driving.CacheController = (*CacheController)(nil)

// DefaultServerName is sent on synthesized partial-content responses.
const DefaultServerName = "larder"

// CacheControllerConfig is the explicit configuration of a CacheController.
type CacheControllerConfig struct {
	// RefreshTimeout bounds each background refresh (0 = 30s).
	RefreshTimeout time.Duration

	// Server is the Server header on synthesized 206 responses.
	Server string
}

// cacheRef lets the current generation be swapped atomically.
type cacheRef struct {
	cache driven.Cache
}

// CacheController serves GET requests stale-while-revalidate from the
// current cache generation. Range requests are always answered from the
// full body.
type CacheController struct {
	client  driven.HTTPDoer
	metrics driven.Metrics
	cfg     CacheControllerConfig
	now     func() time.Time

	current   atomic.Pointer[cacheRef]
	group     singleflight.Group
	refreshes sync.WaitGroup
}

// NewCacheController creates a cache controller over the given generation.
// metrics may be nil.
func NewCacheController(
	client driven.HTTPDoer,
	cache driven.Cache,
	metrics driven.Metrics,
	cfg CacheControllerConfig,
) *CacheController {
	if client == nil {
		client = http.DefaultClient
	}
	if metrics == nil {
		metrics = driven.NopMetrics{}
	}
	if cfg.RefreshTimeout <= 0 {
		cfg.RefreshTimeout = 30 * time.Second
	}
	if cfg.Server == "" {
		cfg.Server = DefaultServerName
	}

	c := &CacheController{
		client:  client,
		metrics: metrics,
		cfg:     cfg,
		now:     time.Now,
	}
	c.SetCache(cache)
	return c
}

// SetCache swaps the generation used for lookups and stores.
// Background refreshes already running finish against the old generation.
func (c *CacheController) SetCache(cache driven.Cache) {
	c.current.Store(&cacheRef{cache: cache})
}

// Cache returns the generation currently in use, or nil.
func (c *CacheController) Cache() driven.Cache {
	return c.current.Load().cache
}

// Fetch answers an intercepted request.
func (c *CacheController) Fetch(ctx context.Context, req *http.Request) (*http.Response, error) {
	method := req.Method
	if method == "" {
		method = http.MethodGet
	}
	if method != http.MethodGet {
		resp, err := c.client.Do(req.WithContext(ctx))
		if err != nil {
			return nil, fmt.Errorf("%w: %s %s: %v", domain.ErrTransport, method, req.URL, err)
		}
		return resp, nil
	}

	rawURL := req.URL.String()
	key := domain.CacheKey(method, rawURL)
	rangeRequested := req.Header.Get("Range") != ""
	cache := c.Cache()

	// Without a generation every request is a miss that is not stored.
	var entry *domain.CacheEntry
	err := domain.ErrNotFound
	if cache != nil {
		entry, err = cache.Match(ctx, key)
	}
	switch {
	case err == nil:
		c.metrics.CacheLookup(true)
		logger.Debug("Cache hit %s", key)
		c.refreshInBackground(ctx, cache, key, rawURL, req.Header.Clone())
		return c.respond(req, entry, rangeRequested), nil
	case !errors.Is(err, domain.ErrNotFound):
		logger.Warn("Cache lookup %s failed: %v", key, err)
	}

	c.metrics.CacheLookup(false)
	logger.Debug("Cache miss %s", key)

	entry, err = fetchEntry(ctx, c.client, rawURL, req.Header, c.now)
	if err != nil {
		logger.Warn("Fetch %s failed: %v", rawURL, err)
		return nil, err
	}
	if cache != nil && cacheable(entry) {
		if err := cache.Put(ctx, entry); err != nil {
			logger.Warn("Cache store %s failed: %v", key, err)
		}
	}
	return c.respond(req, entry, rangeRequested), nil
}

// refreshInBackground refetches key and overwrites its entry on success.
// Concurrent refreshes of the same key share one fetch.
func (c *CacheController) refreshInBackground(ctx context.Context, cache driven.Cache, key, rawURL string, header http.Header) {
	parent := context.WithoutCancel(ctx)

	c.refreshes.Add(1)
	go func() {
		defer c.refreshes.Done()

		_, _, _ = c.group.Do(cache.Name()+"\x00"+key, func() (any, error) {
			ctx, cancel := context.WithTimeout(parent, c.cfg.RefreshTimeout)
			defer cancel()

			entry, err := fetchEntry(ctx, c.client, rawURL, header, c.now)
			if err == nil && !cacheable(entry) {
				err = fmt.Errorf("%w: %s returned status %d", domain.ErrTransport, rawURL, entry.Status)
			}
			if err == nil {
				err = cache.Put(ctx, entry)
			}

			c.metrics.CacheRefresh(err)
			if err != nil {
				logger.Warn("Background refresh of %s failed: %v", key, err)
				return nil, err
			}
			logger.Debug("Refreshed %s", key)
			return nil, nil
		})
	}()
}

// Wait blocks until all in-flight background refreshes have finished.
func (c *CacheController) Wait() {
	c.refreshes.Wait()
}

// respond builds the response for an entry. When a range was requested
// the full body is labelled as the range 0..size-1.
func (c *CacheController) respond(req *http.Request, entry *domain.CacheEntry, rangeRequested bool) *http.Response {
	status := entry.Status
	header := entry.Header.Clone()
	if header == nil {
		header = make(http.Header)
	}

	size := len(entry.Body)
	if rangeRequested && cacheable(entry) {
		status = http.StatusPartialContent
		header = make(http.Header)
		header.Set("Accept-Ranges", "bytes")
		header.Set("Content-Range", contentRange(size))
		if ct := entry.ContentType(); ct != "" {
			header.Set("Content-Type", ct)
		}
		header.Set("Content-Length", strconv.Itoa(size))
		header.Set("Server", c.cfg.Server)
	}

	return &http.Response{
		Status:        fmt.Sprintf("%d %s", status, http.StatusText(status)),
		StatusCode:    status,
		Proto:         "HTTP/1.1",
		ProtoMajor:    1,
		ProtoMinor:    1,
		Header:        header,
		Body:          io.NopCloser(bytes.NewReader(entry.Body)),
		ContentLength: int64(size),
		Request:       req,
	}
}

// contentRange renders the Content-Range value for a full body.
func contentRange(size int) string {
	if size == 0 {
		return "bytes */0"
	}
	return fmt.Sprintf("bytes 0-%d/%d", size-1, size)
}

// cacheable reports whether an entry holds a complete successful response.
func cacheable(entry *domain.CacheEntry) bool {
	return entry.Status >= 200 && entry.Status < 300 && entry.Status != http.StatusPartialContent
}

// fullFetchStrip lists request headers removed before a cache fetch. The
// origin must return the complete, identity-encoded resource with a 2xx.
var fullFetchStrip = []string{
	"Range",
	"If-Range",
	"Accept-Encoding",
	"If-None-Match",
	"If-Modified-Since",
	"If-Match",
	"If-Unmodified-Since",
}

// fetchEntry performs a full-resource GET. Range, encoding and conditional
// headers are stripped so the origin always returns the complete body.
func fetchEntry(
	ctx context.Context,
	client driven.HTTPDoer,
	rawURL string,
	header http.Header,
	now func() time.Time,
) (*domain.CacheEntry, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("%w: build request for %s: %v", domain.ErrTransport, rawURL, err)
	}
	if header != nil {
		req.Header = header.Clone()
	}
	for _, h := range fullFetchStrip {
		req.Header.Del(h)
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: fetch %s: %v", domain.ErrTransport, rawURL, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: read %s: %v", domain.ErrTransport, rawURL, err)
	}

	return &domain.CacheEntry{
		Key:      domain.CacheKey(http.MethodGet, rawURL),
		Method:   http.MethodGet,
		URL:      rawURL,
		Status:   resp.StatusCode,
		Header:   resp.Header.Clone(),
		Body:     body,
		StoredAt: now(),
	}, nil
}
