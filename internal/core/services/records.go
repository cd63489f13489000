package services

import (
	"context"
	"fmt"
	"strings"

	"github.com/custodia-labs/larder/internal/core/domain"
	"github.com/custodia-labs/larder/internal/core/ports/driven"
	"github.com/custodia-labs/larder/internal/core/ports/driving"
)

// Ensure RecordService implements the interface.
var _ driving.RecordService = (*RecordService)(nil)

// RecordService provides read access to the local collection.
type RecordService struct {
	store driven.RecordStore
}

// NewRecordService creates a new record service.
func NewRecordService(store driven.RecordStore) *RecordService {
	return &RecordService{store: store}
}

// Get retrieves a record by id.
func (s *RecordService) Get(ctx context.Context, id string) (*domain.StoredRecord, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, fmt.Errorf("%w: record id is required", domain.ErrInvalidInput)
	}
	return s.store.Get(ctx, id)
}

// List returns every stored record.
func (s *RecordService) List(ctx context.Context) ([]domain.StoredRecord, error) {
	return s.store.List(ctx)
}

// Info describes the collection.
func (s *RecordService) Info(ctx context.Context) (*domain.CollectionInfo, error) {
	return s.store.Info(ctx)
}
