package driving

import (
	"context"
	"time"

	"github.com/custodia-labs/larder/internal/core/domain"
)

// SyncEngine keeps the local collection in step with the remote feed.
type SyncEngine interface {
	// Start opens the collection, requests asset quota and emits
	// collection-ready. When refresh-on-start is enabled it runs a first
	// pass before returning.
	Start(ctx context.Context) (*domain.CollectionInfo, error)

	// Refresh runs one pass over every remote item changed since the
	// given time. A zero time fetches everything.
	Refresh(ctx context.Context, since time.Time) (*domain.SyncResult, error)

	// LastSync returns the start of the last successful pass, or the zero
	// time if none has completed.
	LastSync(ctx context.Context) (time.Time, error)

	// RefreshIncremental runs a pass from the last successful pass start.
	RefreshIncremental(ctx context.Context) (*domain.SyncResult, error)

	// Wait blocks until every dispatched asset download has finished.
	Wait(ctx context.Context) error

	// Status returns the current engine state.
	Status() SyncStatus
}

// SyncStatus represents the current state of the sync engine.
type SyncStatus struct {
	// Collection identifies the collection.
	Collection string

	// Running indicates if a pass is currently in progress.
	Running bool

	// RecordsProcessed is the count of records processed in the current
	// or last pass.
	RecordsProcessed int

	// ErrorCount is the number of failed records in the current or last pass.
	ErrorCount int

	// PendingDownloads is the number of asset downloads not yet finished.
	PendingDownloads int

	// LastSync is the start time of the last successful pass.
	LastSync time.Time

	// LastResult is the outcome of the last completed pass, if any.
	LastResult *domain.SyncResult

	// LastError describes the last aborted pass. Cleared when a pass completes.
	LastError string
}
