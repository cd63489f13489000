package services

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	stdsync "sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/larder/internal/adapters/driven/assets"
	"github.com/custodia-labs/larder/internal/core/domain"
)

// newAssetServer serves /a.png and /b.png and counts requests per path.
func newAssetServer(t *testing.T) (*httptest.Server, *stdsync.Map) {
	t.Helper()
	hits := &stdsync.Map{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n, _ := hits.LoadOrStore(r.URL.Path, new(atomic.Int64))
		n.(*atomic.Int64).Add(1)
		switch r.URL.Path {
		case "/a.png":
			w.Header().Set("Content-Type", "image/png")
			_, _ = w.Write([]byte("A-PNG"))
		case "/b.png":
			_, _ = w.Write([]byte("B-PNG"))
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(srv.Close)
	return srv, hits
}

func readyAssetStore(t *testing.T) *assets.MemoryStore {
	t.Helper()
	store := assets.NewMemoryStore()
	_, err := store.RequestQuota(context.Background(), 0)
	require.NoError(t, err)
	return store
}

func TestAssetService_Download_Success(t *testing.T) {
	srv, _ := newAssetServer(t)
	store := readyAssetStore(t)
	bus := NewEventBus()
	rec := &eventRecorder{}
	bus.Subscribe(rec)

	svc := NewAssetService(srv.Client(), store, bus, nil, 0)

	err := svc.Download(context.Background(), srv.URL+"/a.png", "rec-1-key")
	require.NoError(t, err)

	assert.Equal(t, "A-PNG", string(store.Blob("rec-1-key")))
	assert.Equal(t, []domain.EventKind{
		domain.EventAssetDownloadStarted,
		domain.EventAssetDownloadFetched,
		domain.EventAssetDownloadStored,
	}, rec.kinds())
	for _, e := range rec.events {
		assert.Equal(t, "rec-1-key", e.Key)
	}
}

func TestAssetService_Download_NotFound(t *testing.T) {
	srv, _ := newAssetServer(t)
	store := readyAssetStore(t)
	bus := NewEventBus()
	rec := &eventRecorder{}
	bus.Subscribe(rec)
	metrics := &countingMetrics{}

	svc := NewAssetService(srv.Client(), store, bus, metrics, 0)

	err := svc.Download(context.Background(), srv.URL+"/missing.png", "k")
	assert.ErrorIs(t, err, domain.ErrTransport)
	assert.Nil(t, store.Blob("k"))

	failed := rec.ofKind(domain.EventAssetDownloadFailed)
	require.Len(t, failed, 1)
	assert.ErrorIs(t, failed[0].Err, domain.ErrTransport)
	assert.Empty(t, rec.ofKind(domain.EventAssetDownloadStored))
	assert.Equal(t, int64(1), metrics.assetFailures.Load())
}

func TestAssetService_Download_Unreachable(t *testing.T) {
	srv, _ := newAssetServer(t)
	url := srv.URL + "/a.png"
	srv.Close()

	svc := NewAssetService(http.DefaultClient, readyAssetStore(t), nil, nil, 0)

	err := svc.Download(context.Background(), url, "k")
	assert.ErrorIs(t, err, domain.ErrTransport)
}

func TestAssetService_Download_StorageFailure(t *testing.T) {
	srv, _ := newAssetServer(t)
	store := assets.NewMemoryStore() // quota never requested
	bus := NewEventBus()
	rec := &eventRecorder{}
	bus.Subscribe(rec)

	svc := NewAssetService(srv.Client(), store, bus, nil, 0)

	err := svc.Download(context.Background(), srv.URL+"/a.png", "k")
	assert.ErrorIs(t, err, domain.ErrInvalidState)
	assert.True(t, domain.IsStorageFailure(err))
	assert.Equal(t, []domain.EventKind{
		domain.EventAssetDownloadStarted,
		domain.EventAssetDownloadFetched,
		domain.EventAssetDownloadFailed,
	}, rec.kinds())
}

func TestAssetService_Download_InvalidInput(t *testing.T) {
	svc := NewAssetService(nil, readyAssetStore(t), nil, nil, 0)

	assert.ErrorIs(t, svc.Download(context.Background(), "", "k"), domain.ErrInvalidInput)
	assert.ErrorIs(t, svc.Download(context.Background(), "http://x/a", ""), domain.ErrInvalidInput)
}

func TestAssetService_Download_ConcurrentSameKey(t *testing.T) {
	srv, _ := newAssetServer(t)
	store := readyAssetStore(t)
	svc := NewAssetService(srv.Client(), store, nil, nil, 0)

	var wg stdsync.WaitGroup
	errs := make([]error, 10)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = svc.Download(context.Background(), srv.URL+"/a.png", "same")
		}(i)
	}
	wg.Wait()

	for _, err := range errs {
		assert.NoError(t, err)
	}
	assert.Equal(t, "A-PNG", string(store.Blob("same")))
}

func TestAssetService_Download_RateLimited(t *testing.T) {
	srv, hits := newAssetServer(t)
	store := readyAssetStore(t)
	svc := NewAssetService(srv.Client(), store, nil, nil, 1000)

	require.NoError(t, svc.Download(context.Background(), srv.URL+"/a.png", "a"))
	require.NoError(t, svc.Download(context.Background(), srv.URL+"/b.png", "b"))

	n, ok := hits.Load("/b.png")
	require.True(t, ok)
	assert.Equal(t, int64(1), n.(*atomic.Int64).Load())
}

func TestAssetService_Download_CancelledWhileThrottled(t *testing.T) {
	srv, _ := newAssetServer(t)
	svc := NewAssetService(srv.Client(), readyAssetStore(t), nil, nil, 0.001)

	// The first call consumes the only token.
	require.NoError(t, svc.Download(context.Background(), srv.URL+"/a.png", "a"))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := svc.Download(ctx, srv.URL+"/b.png", "b")
	assert.ErrorIs(t, err, domain.ErrTransport)
}

func TestAssetService_Open(t *testing.T) {
	store := readyAssetStore(t)
	require.NoError(t, store.Write(context.Background(), "k", []byte("data")))
	svc := NewAssetService(nil, store, nil, nil, 0)

	rc, size, err := svc.Open(context.Background(), "k")
	require.NoError(t, err)
	defer rc.Close()
	data, _ := io.ReadAll(rc)
	assert.Equal(t, "data", string(data))
	assert.Equal(t, int64(4), size)
}
