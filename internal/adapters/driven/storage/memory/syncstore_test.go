package memory

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/larder/internal/core/domain"
)

func TestNewSyncStateStore(t *testing.T) {
	store := NewSyncStateStore()
	require.NotNil(t, store)
	assert.NotNil(t, store.states)
}

func TestSyncStateStore_Save_Success(t *testing.T) {
	store := NewSyncStateStore()
	ctx := context.Background()

	now := time.Now()
	err := store.Save(ctx, domain.SyncState{Collection: "node", LastSync: now})
	require.NoError(t, err)

	saved, err := store.Get(ctx, "node")
	require.NoError(t, err)
	assert.Equal(t, "node", saved.Collection)
	assert.True(t, now.Equal(saved.LastSync))
}

func TestSyncStateStore_Save_Update(t *testing.T) {
	store := NewSyncStateStore()
	ctx := context.Background()

	time1 := time.Now()
	time2 := time1.Add(time.Hour)

	require.NoError(t, store.Save(ctx, domain.SyncState{Collection: "node", LastSync: time1}))
	require.NoError(t, store.Save(ctx, domain.SyncState{Collection: "node", LastSync: time2}))

	saved, err := store.Get(ctx, "node")
	require.NoError(t, err)
	assert.True(t, time2.Equal(saved.LastSync))
}

func TestSyncStateStore_Get_NotFound(t *testing.T) {
	store := NewSyncStateStore()

	_, err := store.Get(context.Background(), "missing")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestSyncStateStore_ConcurrentAccess(t *testing.T) {
	store := NewSyncStateStore()
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = store.Save(ctx, domain.SyncState{Collection: "node", LastSync: time.Now()})
			_, _ = store.Get(ctx, "node")
		}()
	}
	wg.Wait()

	_, err := store.Get(ctx, "node")
	assert.NoError(t, err)
}
