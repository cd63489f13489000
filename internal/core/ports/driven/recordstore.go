package driven

import (
	"context"

	"github.com/custodia-labs/larder/internal/core/domain"
)

// RecordStore is the local document store for one collection.
// Writes are guarded by revision tokens; a stale token is rejected
// with domain.ErrConflict and is never merged.
type RecordStore interface {
	// Get retrieves a record by id.
	// Returns domain.ErrNotFound if the record does not exist.
	Get(ctx context.Context, id string) (*domain.StoredRecord, error)

	// Put writes a record under id. rev must be empty for a new record and
	// must equal the stored revision for an update.
	// Returns the new revision token.
	Put(ctx context.Context, id string, rec domain.Record, rev string) (string, error)

	// List returns every stored record.
	List(ctx context.Context) ([]domain.StoredRecord, error)

	// Info describes the collection.
	Info(ctx context.Context) (*domain.CollectionInfo, error)
}
