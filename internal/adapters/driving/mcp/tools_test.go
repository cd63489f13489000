package mcp

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/larder/internal/core/domain"
)

func TestServer_handleRefresh(t *testing.T) {
	ctx := context.Background()

	t.Run("incremental by default", func(t *testing.T) {
		engine := &mockSyncEngine{
			result:   &domain.SyncResult{Inserted: 2, Updated: 1, Unchanged: 4},
			lastSync: time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC),
		}
		server, err := NewServer(&Ports{Records: &mockRecordService{}, Sync: engine})
		require.NoError(t, err)

		_, output, err := server.handleRefresh(ctx, nil, RefreshInput{})

		require.NoError(t, err)
		assert.Equal(t, 1, engine.incremental)
		assert.Zero(t, engine.fullCalls)
		assert.Equal(t, 2, output.Inserted)
		assert.Equal(t, 1, output.Updated)
		assert.Equal(t, 4, output.Unchanged)
		assert.Equal(t, "2024-05-01T10:00:00Z", output.LastSync)
	})

	t.Run("full refresh", func(t *testing.T) {
		engine := &mockSyncEngine{result: &domain.SyncResult{}}
		server, err := NewServer(&Ports{Records: &mockRecordService{}, Sync: engine})
		require.NoError(t, err)

		_, output, err := server.handleRefresh(ctx, nil, RefreshInput{Full: true})

		require.NoError(t, err)
		assert.Equal(t, 1, engine.fullCalls)
		assert.Empty(t, output.LastSync)
	})

	t.Run("returns error on feed failure", func(t *testing.T) {
		engine := &mockSyncEngine{err: domain.ErrTransport}
		server, err := NewServer(&Ports{Records: &mockRecordService{}, Sync: engine})
		require.NoError(t, err)

		_, _, err = server.handleRefresh(ctx, nil, RefreshInput{})
		assert.ErrorIs(t, err, domain.ErrTransport)
	})

	t.Run("unavailable without sync engine", func(t *testing.T) {
		server, err := NewServer(&Ports{Records: &mockRecordService{}})
		require.NoError(t, err)

		_, _, err = server.handleRefresh(ctx, nil, RefreshInput{})
		assert.ErrorIs(t, err, ErrUnavailable)
	})
}

func TestServer_handleGetRecord(t *testing.T) {
	ctx := context.Background()
	records := &mockRecordService{records: []domain.StoredRecord{
		storedRecord("n1", map[string]any{"title": "First"}),
	}}
	server, err := NewServer(&Ports{Records: records})
	require.NoError(t, err)

	t.Run("returns stored record", func(t *testing.T) {
		_, output, err := server.handleGetRecord(ctx, nil, GetRecordInput{ID: "n1"})

		require.NoError(t, err)
		assert.Equal(t, "n1", output.ID)
		assert.Equal(t, "1-abc", output.Rev)
		assert.Equal(t, "First", output.Body["title"])
		assert.Equal(t, "2024-05-01T10:00:00Z", output.UpdatedAt)
	})

	t.Run("missing id is invalid", func(t *testing.T) {
		_, _, err := server.handleGetRecord(ctx, nil, GetRecordInput{})
		assert.ErrorIs(t, err, domain.ErrInvalidInput)
	})

	t.Run("unknown id is not found", func(t *testing.T) {
		_, _, err := server.handleGetRecord(ctx, nil, GetRecordInput{ID: "zz"})
		assert.ErrorIs(t, err, domain.ErrNotFound)
	})
}

func TestServer_handleListRecords(t *testing.T) {
	ctx := context.Background()

	t.Run("applies limit and reports total", func(t *testing.T) {
		records := &mockRecordService{records: []domain.StoredRecord{
			storedRecord("a", nil),
			storedRecord("b", nil),
			storedRecord("c", nil),
		}}
		server, err := NewServer(&Ports{Records: records})
		require.NoError(t, err)

		_, output, err := server.handleListRecords(ctx, nil, ListRecordsInput{Limit: 2})

		require.NoError(t, err)
		assert.Equal(t, 2, output.Count)
		assert.Equal(t, 3, output.Total)
		assert.Equal(t, "a", output.Records[0].ID)
		assert.Equal(t, "b", output.Records[1].ID)
	})

	t.Run("default limit returns everything small", func(t *testing.T) {
		records := &mockRecordService{records: []domain.StoredRecord{storedRecord("a", nil)}}
		server, err := NewServer(&Ports{Records: records})
		require.NoError(t, err)

		_, output, err := server.handleListRecords(ctx, nil, ListRecordsInput{})

		require.NoError(t, err)
		assert.Equal(t, 1, output.Count)
	})

	t.Run("returns error on list failure", func(t *testing.T) {
		server, err := NewServer(&Ports{Records: &mockRecordService{err: errors.New("disk gone")}})
		require.NoError(t, err)

		_, _, err = server.handleListRecords(ctx, nil, ListRecordsInput{})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "disk gone")
	})
}

func TestServer_handleCacheStatus(t *testing.T) {
	ctx := context.Background()

	t.Run("lists generations sorted by name", func(t *testing.T) {
		lifecycle := &mockLifecycle{
			active: "larder-cache-v2",
			versions: &mockVersions{gens: []domain.GenerationInfo{
				{Name: "larder-cache-v2", Entries: 3, Current: true},
				{Name: "larder-cache-v1", Entries: 7},
			}},
		}
		server, err := NewServer(&Ports{Records: &mockRecordService{}, Cache: lifecycle})
		require.NoError(t, err)

		_, output, err := server.handleCacheStatus(ctx, nil, CacheStatusInput{})

		require.NoError(t, err)
		assert.Equal(t, "larder-cache-v2", output.Active)
		require.Len(t, output.Generations, 2)
		assert.Equal(t, "larder-cache-v1", output.Generations[0].Name)
		assert.True(t, output.Generations[1].Current)
		assert.Equal(t, 3, output.Generations[1].Entries)
	})

	t.Run("returns versions error", func(t *testing.T) {
		lifecycle := &mockLifecycle{err: domain.ErrInvalidInput}
		server, err := NewServer(&Ports{Records: &mockRecordService{}, Cache: lifecycle})
		require.NoError(t, err)

		_, _, err = server.handleCacheStatus(ctx, nil, CacheStatusInput{})
		assert.ErrorIs(t, err, domain.ErrInvalidInput)
	})

	t.Run("unavailable without lifecycle", func(t *testing.T) {
		server, err := NewServer(&Ports{Records: &mockRecordService{}})
		require.NoError(t, err)

		_, _, err = server.handleCacheStatus(ctx, nil, CacheStatusInput{})
		assert.ErrorIs(t, err, ErrUnavailable)
	})
}
