package driving

import (
	"context"

	"github.com/custodia-labs/larder/internal/core/domain"
)

// RecordService provides read access to the local collection.
type RecordService interface {
	// Get retrieves a record by id.
	Get(ctx context.Context, id string) (*domain.StoredRecord, error)

	// List returns every stored record.
	List(ctx context.Context) ([]domain.StoredRecord, error)

	// Info describes the collection.
	Info(ctx context.Context) (*domain.CollectionInfo, error)
}
