package services

import (
	"compress/gzip"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/larder/internal/adapters/driven/storage/memory"
	"github.com/custodia-labs/larder/internal/core/domain"
	"github.com/custodia-labs/larder/internal/core/ports/driven"
)

// origin is a test origin whose body can be swapped between requests.
type origin struct {
	srv      *httptest.Server
	body     atomic.Value
	status   atomic.Int64
	requests atomic.Int64
	ranges   atomic.Int64
}

func newOrigin(t *testing.T, body string) *origin {
	t.Helper()
	o := &origin{}
	o.body.Store(body)
	o.status.Store(http.StatusOK)
	o.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		o.requests.Add(1)
		if r.Header.Get("Range") != "" {
			o.ranges.Add(1)
		}
		w.Header().Set("Content-Type", "video/mp4")
		w.WriteHeader(int(o.status.Load()))
		_, _ = io.WriteString(w, o.body.Load().(string))
	}))
	t.Cleanup(o.srv.Close)
	return o
}

func newTestController(t *testing.T, o *origin) (*CacheController, driven.Cache, *countingMetrics) {
	t.Helper()
	storage := memory.NewCacheStorage()
	cache, err := storage.Open(context.Background(), "larder-cache-v1")
	require.NoError(t, err)
	metrics := &countingMetrics{}
	c := NewCacheController(o.srv.Client(), cache, metrics, CacheControllerConfig{Server: "larder/test"})
	return c, cache, metrics
}

func get(t *testing.T, c *CacheController, url string, rangeHeader string) (*http.Response, string) {
	t.Helper()
	req, err := http.NewRequest(http.MethodGet, url, nil)
	require.NoError(t, err)
	if rangeHeader != "" {
		req.Header.Set("Range", rangeHeader)
	}
	resp, err := c.Fetch(context.Background(), req)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, string(body)
}

func TestCacheController_MissFetchesAndStores(t *testing.T) {
	o := newOrigin(t, "hello")
	c, cache, metrics := newTestController(t, o)

	resp, body := get(t, c, o.srv.URL+"/page", "")

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "hello", body)
	entry, err := cache.Match(context.Background(), domain.CacheKey(http.MethodGet, o.srv.URL+"/page"))
	require.NoError(t, err)
	assert.Equal(t, "hello", string(entry.Body))
	assert.Equal(t, int64(1), metrics.misses.Load())
}

func TestCacheController_RangeMissSynthesizesPartialContent(t *testing.T) {
	o := newOrigin(t, "0123456789")
	c, cache, _ := newTestController(t, o)

	resp, body := get(t, c, o.srv.URL+"/video.mp4", "bytes=2-5")

	assert.Equal(t, http.StatusPartialContent, resp.StatusCode)
	assert.Equal(t, "0123456789", body)
	assert.Equal(t, "bytes 0-9/10", resp.Header.Get("Content-Range"))
	assert.Equal(t, "bytes", resp.Header.Get("Accept-Ranges"))
	assert.Equal(t, "video/mp4", resp.Header.Get("Content-Type"))
	assert.Equal(t, "larder/test", resp.Header.Get("Server"))
	assert.Equal(t, int64(10), resp.ContentLength)

	// The origin never saw the range and the full body was stored
	assert.Equal(t, int64(0), o.ranges.Load())
	entry, err := cache.Match(context.Background(), domain.CacheKey(http.MethodGet, o.srv.URL+"/video.mp4"))
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, entry.Status)
	assert.Equal(t, "0123456789", string(entry.Body))
}

func TestCacheController_RangeOnEmptyBody(t *testing.T) {
	o := newOrigin(t, "")
	c, _, _ := newTestController(t, o)

	resp, _ := get(t, c, o.srv.URL+"/empty", "bytes=0-")

	assert.Equal(t, http.StatusPartialContent, resp.StatusCode)
	assert.Equal(t, "bytes */0", resp.Header.Get("Content-Range"))
}

func TestCacheController_HitServesStaleThenRefreshes(t *testing.T) {
	o := newOrigin(t, "v1")
	c, cache, metrics := newTestController(t, o)
	url := o.srv.URL + "/data.json"

	_, body := get(t, c, url, "")
	require.Equal(t, "v1", body)

	o.body.Store("v2")
	_, body = get(t, c, url, "")
	assert.Equal(t, "v1", body, "hit returns the cached body")

	c.Wait()

	entry, err := cache.Match(context.Background(), domain.CacheKey(http.MethodGet, url))
	require.NoError(t, err)
	assert.Equal(t, "v2", string(entry.Body))
	assert.Equal(t, int64(1), metrics.hits.Load())
	assert.Equal(t, int64(1), metrics.refreshes.Load())

	_, body = get(t, c, url, "")
	assert.Equal(t, "v2", body)
	c.Wait()
}

func TestCacheController_RangeHitServesFromCache(t *testing.T) {
	o := newOrigin(t, "abcdef")
	c, _, _ := newTestController(t, o)
	url := o.srv.URL + "/clip"

	get(t, c, url, "")
	resp, body := get(t, c, url, "bytes=3-")
	c.Wait()

	assert.Equal(t, http.StatusPartialContent, resp.StatusCode)
	assert.Equal(t, "abcdef", body)
	assert.Equal(t, "bytes 0-5/6", resp.Header.Get("Content-Range"))
}

func TestCacheController_FailedRefreshKeepsEntry(t *testing.T) {
	o := newOrigin(t, "good")
	c, cache, metrics := newTestController(t, o)
	url := o.srv.URL + "/x"

	get(t, c, url, "")
	o.status.Store(http.StatusInternalServerError)
	o.body.Store("broken")

	_, body := get(t, c, url, "")
	c.Wait()

	assert.Equal(t, "good", body)
	entry, err := cache.Match(context.Background(), domain.CacheKey(http.MethodGet, url))
	require.NoError(t, err)
	assert.Equal(t, "good", string(entry.Body))
	assert.Equal(t, int64(1), metrics.refreshFailures.Load())
}

func TestCacheController_NetworkFailureWithoutCacheFails(t *testing.T) {
	o := newOrigin(t, "x")
	c, _, _ := newTestController(t, o)
	url := o.srv.URL + "/gone"
	o.srv.Close()

	req, _ := http.NewRequest(http.MethodGet, url, nil)
	_, err := c.Fetch(context.Background(), req)

	assert.ErrorIs(t, err, domain.ErrTransport)
}

func TestCacheController_NetworkFailureWithCacheServesStale(t *testing.T) {
	o := newOrigin(t, "offline copy")
	c, _, _ := newTestController(t, o)
	url := o.srv.URL + "/page"

	get(t, c, url, "")
	o.srv.Close()

	resp, body := get(t, c, url, "")
	c.Wait()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "offline copy", body)
}

func TestCacheController_ErrorStatusNotCached(t *testing.T) {
	o := newOrigin(t, "nope")
	o.status.Store(http.StatusNotFound)
	c, cache, _ := newTestController(t, o)

	resp, _ := get(t, c, o.srv.URL+"/missing", "bytes=0-")

	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	n, _ := cache.Count(context.Background())
	assert.Equal(t, 0, n)
}

func TestCacheController_NonGetPassesThrough(t *testing.T) {
	o := newOrigin(t, "posted")
	c, cache, _ := newTestController(t, o)

	req, _ := http.NewRequest(http.MethodPost, o.srv.URL+"/form", nil)
	resp, err := c.Fetch(context.Background(), req)
	require.NoError(t, err)
	resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	n, _ := cache.Count(context.Background())
	assert.Equal(t, 0, n)
}

func TestCacheController_SetCacheSwapsGeneration(t *testing.T) {
	o := newOrigin(t, "body")
	c, _, _ := newTestController(t, o)
	url := o.srv.URL + "/a"
	get(t, c, url, "")

	next, _ := memory.NewCacheStorage().Open(context.Background(), "larder-cache-v2")
	c.SetCache(next)
	assert.Equal(t, "larder-cache-v2", c.Cache().Name())

	get(t, c, url, "")
	n, _ := next.Count(context.Background())
	assert.Equal(t, 1, n)
	assert.Equal(t, int64(2), o.requests.Load())
}

func TestCacheController_BackgroundRefreshesAreDeduplicated(t *testing.T) {
	release := make(chan struct{})
	var requests atomic.Int64
	var first atomic.Bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		requests.Add(1)
		if !first.CompareAndSwap(false, true) {
			<-release
		}
		_, _ = io.WriteString(w, "body")
	}))
	defer srv.Close()

	cache, _ := memory.NewCacheStorage().Open(context.Background(), "v1")
	c := NewCacheController(srv.Client(), cache, nil, CacheControllerConfig{RefreshTimeout: 5 * time.Second})
	url := srv.URL + "/a"

	req, _ := http.NewRequest(http.MethodGet, url, nil)
	resp, err := c.Fetch(context.Background(), req)
	require.NoError(t, err)
	resp.Body.Close()

	for i := 0; i < 5; i++ {
		req, _ := http.NewRequest(http.MethodGet, url, nil)
		resp, err := c.Fetch(context.Background(), req)
		require.NoError(t, err)
		resp.Body.Close()
	}

	// Give the refresh goroutines time to join the in-flight fetch
	time.Sleep(50 * time.Millisecond)
	close(release)
	c.Wait()

	assert.LessOrEqual(t, requests.Load(), int64(3))
}

func TestContentRange(t *testing.T) {
	assert.Equal(t, "bytes */0", contentRange(0))
	assert.Equal(t, "bytes 0-0/1", contentRange(1))
	assert.Equal(t, "bytes 0-1023/1024", contentRange(1024))
}

func TestCacheController_WithoutGenerationFetchesThrough(t *testing.T) {
	o := newOrigin(t, "abc")
	c := NewCacheController(o.srv.Client(), nil, nil, CacheControllerConfig{})

	resp, body := get(t, c, o.srv.URL+"/v.mp4", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "abc", body)

	get(t, c, o.srv.URL+"/v.mp4", "")
	c.Wait()
	assert.Equal(t, int64(2), o.requests.Load())
	assert.Nil(t, c.Cache())
}

func TestCacheController_StoresIdentityEncodedBody(t *testing.T) {
	plain := strings.Repeat("offline larder ", 8)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		if !strings.Contains(r.Header.Get("Accept-Encoding"), "gzip") {
			_, _ = io.WriteString(w, plain)
			return
		}
		w.Header().Set("Content-Encoding", "gzip")
		gz := gzip.NewWriter(w)
		_, _ = io.WriteString(gz, plain)
		_ = gz.Close()
	}))
	defer srv.Close()

	cache, err := memory.NewCacheStorage().Open(context.Background(), "larder-cache-v1")
	require.NoError(t, err)
	c := NewCacheController(srv.Client(), cache, &countingMetrics{}, CacheControllerConfig{Server: "larder/test"})

	req, err := http.NewRequest(http.MethodGet, srv.URL+"/notes.txt", nil)
	require.NoError(t, err)
	req.Header.Set("Accept-Encoding", "gzip")
	req.Header.Set("Range", "bytes=0-")
	resp, err := c.Fetch(context.Background(), req)
	require.NoError(t, err)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	resp.Body.Close()

	assert.Equal(t, http.StatusPartialContent, resp.StatusCode)
	assert.Empty(t, resp.Header.Get("Content-Encoding"))
	assert.Equal(t, contentRange(len(plain)), resp.Header.Get("Content-Range"))
	assert.Equal(t, plain, string(body))

	entry, err := cache.Match(context.Background(), domain.CacheKey(http.MethodGet, srv.URL+"/notes.txt"))
	require.NoError(t, err)
	assert.Equal(t, plain, string(entry.Body))
	assert.Empty(t, entry.Header.Get("Content-Encoding"))

	resp, body2 := get(t, c, srv.URL+"/notes.txt", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Empty(t, resp.Header.Get("Content-Encoding"))
	assert.Equal(t, plain, body2)
	c.Wait()
}

func TestCacheController_ConditionalRequestStillCaches(t *testing.T) {
	var conditional atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("If-None-Match") == `"v1"` || r.Header.Get("If-Modified-Since") != "" {
			conditional.Add(1)
			w.WriteHeader(http.StatusNotModified)
			return
		}
		w.Header().Set("ETag", `"v1"`)
		_, _ = io.WriteString(w, "fresh")
	}))
	defer srv.Close()

	cache, err := memory.NewCacheStorage().Open(context.Background(), "larder-cache-v1")
	require.NoError(t, err)
	metrics := &countingMetrics{}
	c := NewCacheController(srv.Client(), cache, metrics, CacheControllerConfig{Server: "larder/test"})

	for i := 0; i < 3; i++ {
		req, err := http.NewRequest(http.MethodGet, srv.URL+"/app.js", nil)
		require.NoError(t, err)
		req.Header.Set("If-None-Match", `"v1"`)
		req.Header.Set("If-Modified-Since", "Mon, 02 Jan 2006 15:04:05 GMT")
		resp, err := c.Fetch(context.Background(), req)
		require.NoError(t, err)
		body, err := io.ReadAll(resp.Body)
		require.NoError(t, err)
		resp.Body.Close()

		assert.Equal(t, http.StatusOK, resp.StatusCode, "request %d", i)
		assert.Equal(t, "fresh", string(body), "request %d", i)
		c.Wait()
	}

	_, err = cache.Match(context.Background(), domain.CacheKey(http.MethodGet, srv.URL+"/app.js"))
	require.NoError(t, err)
	assert.Zero(t, conditional.Load())
	assert.Zero(t, metrics.refreshFailures.Load())
}
