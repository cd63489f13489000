package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/larder/internal/core/domain"
)

func TestSchedulerStore_SaveGetList(t *testing.T) {
	store := NewSchedulerStore()
	ctx := context.Background()

	got, err := store.GetTask(ctx, domain.TaskIDFeedRefresh)
	require.NoError(t, err)
	assert.Nil(t, got)

	task := &domain.ScheduledTask{ID: domain.TaskIDFeedRefresh, Name: "Feed Refresh", Interval: time.Minute, Enabled: true}
	require.NoError(t, store.SaveTask(ctx, task))

	got, err = store.GetTask(ctx, domain.TaskIDFeedRefresh)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "Feed Refresh", got.Name)

	task.Enabled = false
	require.NoError(t, store.SaveTask(ctx, task))

	tasks, err := store.ListTasks(ctx)
	require.NoError(t, err)
	require.Len(t, tasks, 1)
	assert.False(t, tasks[0].Enabled)

	assert.ErrorIs(t, store.SaveTask(ctx, nil), domain.ErrInvalidInput)
	assert.ErrorIs(t, store.RecordResult(ctx, nil), domain.ErrInvalidInput)
}

func TestSchedulerStore_HistoryAndPrune(t *testing.T) {
	store := NewSchedulerStore()
	ctx := context.Background()
	base := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)

	for i := 1; i <= 5; i++ {
		require.NoError(t, store.RecordResult(ctx, &domain.TaskResult{
			TaskID:         domain.TaskIDFeedRefresh,
			StartedAt:      base.Add(time.Duration(i) * time.Minute),
			ItemsProcessed: i,
		}))
	}

	history, err := store.History(ctx, domain.TaskIDFeedRefresh, 2)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, 5, history[0].ItemsProcessed)
	assert.Equal(t, 4, history[1].ItemsProcessed)

	require.NoError(t, store.PruneHistory(ctx, 3))
	history, err = store.History(ctx, domain.TaskIDFeedRefresh, 10)
	require.NoError(t, err)
	require.Len(t, history, 3)
	assert.Equal(t, 3, history[2].ItemsProcessed)
}
