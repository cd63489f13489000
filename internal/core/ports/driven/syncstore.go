package driven

import (
	"context"

	"github.com/custodia-labs/larder/internal/core/domain"
)

// SyncStateStore persists sync progress.
type SyncStateStore interface {
	// Save stores or updates sync state.
	Save(ctx context.Context, state domain.SyncState) error

	// Get retrieves sync state for a collection.
	// Returns domain.ErrNotFound if no pass has completed yet.
	Get(ctx context.Context, collection string) (*domain.SyncState, error)
}
