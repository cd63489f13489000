package httpproxy

import (
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/larder/internal/adapters/driven/assets"
	"github.com/custodia-labs/larder/internal/adapters/driven/storage/memory"
	"github.com/custodia-labs/larder/internal/core/domain"
	"github.com/custodia-labs/larder/internal/core/ports/driving"
	"github.com/custodia-labs/larder/internal/core/services"
)

type fixture struct {
	origin     *httptest.Server
	hits       atomic.Int64
	controller *services.CacheController
	assets     *assets.MemoryStore
	server     *Server
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{}
	f.origin = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		f.hits.Add(1)
		if r.URL.Path == "/missing" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "text/html")
		w.Header().Set("Connection", "close")
		_, _ = io.WriteString(w, "page:"+r.URL.RequestURI())
	}))
	t.Cleanup(f.origin.Close)

	cache, err := memory.NewCacheStorage().Open(context.Background(), "larder-cache-v1")
	require.NoError(t, err)
	f.controller = services.NewCacheController(f.origin.Client(), cache, nil, services.CacheControllerConfig{})
	t.Cleanup(f.controller.Wait)

	f.assets = assets.NewMemoryStore()
	_, err = f.assets.RequestQuota(context.Background(), 1<<20)
	require.NoError(t, err)

	f.server, err = NewServer(Ports{
		Cache:  f.controller,
		Assets: f.assets,
		Metrics: http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			_, _ = io.WriteString(w, "larder_up 1\n")
		}),
	}, f.origin.URL+"/site/")
	require.NoError(t, err)
	return f
}

func (f *fixture) do(t *testing.T, method, target string, header http.Header) (*http.Response, string) {
	t.Helper()
	req := httptest.NewRequest(method, target, nil)
	for k, vs := range header {
		req.Header[k] = vs
	}
	rec := httptest.NewRecorder()
	f.server.ServeHTTP(rec, req)
	resp := rec.Result()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, string(body)
}

func TestNewServer_Validation(t *testing.T) {
	_, err := NewServer(Ports{}, "")
	assert.Error(t, err)

	f := newFixture(t)
	_, err = NewServer(Ports{Cache: f.controller}, "not a url")
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestServer_RelativeRequestResolvedAgainstOrigin(t *testing.T) {
	f := newFixture(t)

	resp, body := f.do(t, http.MethodGet, "/index.html?x=1", nil)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "page:/index.html?x=1", body)
	assert.Equal(t, "text/html", resp.Header.Get("Content-Type"))
	assert.Empty(t, resp.Header.Get("Connection"))
}

func TestServer_SecondRequestServedFromCache(t *testing.T) {
	f := newFixture(t)

	f.do(t, http.MethodGet, "/a", nil)
	f.controller.Wait()
	f.origin.Close()

	resp, body := f.do(t, http.MethodGet, "/a", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "page:/a", body)
}

func TestServer_AbsoluteFormIsProxied(t *testing.T) {
	f := newFixture(t)

	// Even under /assets/ an absolute-form request belongs to the origin.
	resp, body := f.do(t, http.MethodGet, f.origin.URL+"/assets/logo.png", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "page:/assets/logo.png", body)
}

func TestServer_RangeRequest(t *testing.T) {
	f := newFixture(t)

	resp, body := f.do(t, http.MethodGet, "/clip", http.Header{"Range": {"bytes=0-1"}})
	assert.Equal(t, http.StatusPartialContent, resp.StatusCode)
	assert.Equal(t, "page:/clip", body)
	assert.Equal(t, "bytes", resp.Header.Get("Accept-Ranges"))
}

func TestServer_UpstreamFailure(t *testing.T) {
	f := newFixture(t)
	f.origin.Close()

	resp, _ := f.do(t, http.MethodGet, "/never-cached", nil)
	assert.Equal(t, http.StatusBadGateway, resp.StatusCode)
}

func TestServer_UpstreamErrorStatusPassedThrough(t *testing.T) {
	f := newFixture(t)

	resp, _ := f.do(t, http.MethodGet, "/missing", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestServer_RelativeWithoutOrigin(t *testing.T) {
	f := newFixture(t)
	server, err := NewServer(Ports{Cache: f.controller}, "")
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	server.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/a", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestServer_ServesAssets(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.assets.Write(context.Background(), "n1-0.jpg", []byte("jpegdata")))

	resp, body := f.do(t, http.MethodGet, "/assets/n1-0.jpg", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "jpegdata", body)
	assert.Equal(t, "image/jpeg", resp.Header.Get("Content-Type"))
	assert.Equal(t, "8", resp.Header.Get("Content-Length"))
	assert.Zero(t, f.hits.Load(), "assets never reach the origin")

	resp, _ = f.do(t, http.MethodGet, "/assets/absent.jpg", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, _ = f.do(t, http.MethodGet, "/assets/.hidden", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, _ = f.do(t, http.MethodPost, "/assets/n1-0.jpg", nil)
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
}

func TestServer_ServesFileAssetRanges(t *testing.T) {
	f := newFixture(t)
	store := assets.NewFileStore(t.TempDir())
	_, err := store.RequestQuota(context.Background(), 1<<20)
	require.NoError(t, err)
	require.NoError(t, store.Write(context.Background(), "n1-0.mp4", []byte("0123456789")))

	server, err := NewServer(Ports{Cache: f.controller, Assets: store}, "")
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/assets/n1-0.mp4", nil)
	req.Header.Set("Range", "bytes=2-4")
	rec := httptest.NewRecorder()
	server.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusPartialContent, rec.Code)
	assert.Equal(t, "234", rec.Body.String())
	assert.Equal(t, "bytes 2-4/10", rec.Header().Get("Content-Range"))
}

type stubSync struct {
	driving.SyncEngine
	status driving.SyncStatus
}

func (s stubSync) Status() driving.SyncStatus { return s.status }

func TestServer_StatusAndMetrics(t *testing.T) {
	f := newFixture(t)
	last := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	f.server.ports.Sync = stubSync{status: driving.SyncStatus{Collection: "node", LastSync: last, PendingDownloads: 2}}

	resp, body := f.do(t, http.MethodGet, "/_larder/status", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var status statusResponse
	require.NoError(t, json.Unmarshal([]byte(body), &status))
	assert.Equal(t, "node", status.Collection)
	assert.Equal(t, 2, status.PendingDownloads)
	assert.True(t, last.Equal(status.LastSync))

	_, body = f.do(t, http.MethodGet, "/_larder/metrics", nil)
	assert.Equal(t, "larder_up 1\n", body)
}

func TestServer_RunShutsDownOnCancel(t *testing.T) {
	f := newFixture(t)
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- f.server.Serve(ctx, ln) }()

	resp, err := http.Get("http://" + ln.Addr().String() + "/_larder/status")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop")
	}
}
