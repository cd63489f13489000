package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/larder/internal/adapters/driven/storage/memory"
)

func TestCacheLifecycle_ApplyAndVersionBump(t *testing.T) {
	ctx := context.Background()
	srv := newManifestOrigin(t)
	settings, config := newTestSettings(nil)
	require.NoError(t, config.Set("cache.origin", srv.URL+"/"))

	storage := memory.NewCacheStorage()
	stale, err := storage.Open(ctx, "larder-cache-v0")
	require.NoError(t, err)

	controller := NewCacheController(srv.Client(), stale, nil, CacheControllerConfig{})
	lifecycle := NewCacheLifecycle(settings, storage, srv.Client(), controller)

	report, deleted, err := lifecycle.Apply(ctx)
	require.NoError(t, err)
	require.NotNil(t, report)
	assert.Equal(t, "larder-cache-v1", report.Generation)
	assert.Len(t, report.Stored, 2)
	assert.Equal(t, []string{"larder-cache-v0"}, deleted)
	assert.Equal(t, "larder-cache-v1", lifecycle.Active())
	assert.Equal(t, "larder-cache-v1", controller.Cache().Name())

	// Same configuration: nothing to do
	report, deleted, err = lifecycle.Apply(ctx)
	require.NoError(t, err)
	assert.Nil(t, report)
	assert.Empty(t, deleted)

	require.NoError(t, config.Set("cache.version", int64(2)))
	report, deleted, err = lifecycle.Apply(ctx)
	require.NoError(t, err)
	require.NotNil(t, report)
	assert.Equal(t, []string{"larder-cache-v1"}, deleted)
	assert.Equal(t, "larder-cache-v2", controller.Cache().Name())

	keys, err := storage.Keys(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"larder-cache-v2"}, keys)
}

func TestCacheLifecycle_Versions(t *testing.T) {
	settings, config := newTestSettings(nil)
	require.NoError(t, config.Set("cache.version", int64(5)))

	lifecycle := NewCacheLifecycle(settings, memory.NewCacheStorage(), nil, nil)
	versions, err := lifecycle.Versions()
	require.NoError(t, err)
	assert.Equal(t, "larder-cache-v5", versions.Name())
	assert.Empty(t, lifecycle.Active())
}
