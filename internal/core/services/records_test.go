package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/larder/internal/adapters/driven/storage/memory"
	"github.com/custodia-labs/larder/internal/core/domain"
)

func TestRecordService(t *testing.T) {
	store := memory.NewRecordStore("node", 0)
	ctx := context.Background()
	_, err := store.Put(ctx, "n1", domain.Record{"id": "n1", "title": "A"}, "")
	require.NoError(t, err)

	svc := NewRecordService(store)

	got, err := svc.Get(ctx, " n1 ")
	require.NoError(t, err)
	assert.Equal(t, "A", got.Record["title"])

	_, err = svc.Get(ctx, "")
	assert.ErrorIs(t, err, domain.ErrInvalidInput)

	_, err = svc.Get(ctx, "missing")
	assert.ErrorIs(t, err, domain.ErrNotFound)

	list, err := svc.List(ctx)
	require.NoError(t, err)
	assert.Len(t, list, 1)

	info, err := svc.Info(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, info.Records)
}
