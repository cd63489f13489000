package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/custodia-labs/larder/internal/core/domain"
	"github.com/custodia-labs/larder/internal/core/ports/driven"
)

// Ensure RecordStore implements the interface.
var _ driven.RecordStore = (*RecordStore)(nil)

// RecordStore is an in-memory implementation of driven.RecordStore.
type RecordStore struct {
	mu         sync.RWMutex
	name       string
	quotaBytes int64
	size       int64
	records    map[string]memoryRecord
}

type memoryRecord struct {
	stored domain.StoredRecord
	gen    int
	size   int64
}

// NewRecordStore creates a new in-memory record store for a collection.
// quotaBytes caps the total serialized size; zero means unlimited.
func NewRecordStore(name string, quotaBytes int64) *RecordStore {
	return &RecordStore{
		name:       name,
		quotaBytes: quotaBytes,
		records:    make(map[string]memoryRecord),
	}
}

// Get retrieves a record by id.
func (s *RecordStore) Get(_ context.Context, id string) (*domain.StoredRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.records[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	out := r.stored
	out.Record = r.stored.Record.Clone()
	return &out, nil
}

// Put writes a record guarded by its revision token.
func (s *RecordStore) Put(_ context.Context, id string, rec domain.Record, rev string) (string, error) {
	body, err := domain.CanonicalJSON(rec)
	if err != nil {
		return "", err
	}
	size := int64(len(body))

	s.mu.Lock()
	defer s.mu.Unlock()

	existing, exists := s.records[id]
	if exists && existing.stored.Rev != rev {
		return "", fmt.Errorf("%w: record %s", domain.ErrConflict, id)
	}
	if !exists && rev != "" {
		return "", fmt.Errorf("%w: record %s does not exist", domain.ErrConflict, id)
	}

	newSize := s.size - existing.size + size
	if s.quotaBytes > 0 && newSize > s.quotaBytes {
		return "", fmt.Errorf("%w: collection %s", domain.ErrQuotaExceeded, s.name)
	}

	gen := existing.gen + 1
	newRev := fmt.Sprintf("%d-%s", gen, uuid.NewString())
	s.records[id] = memoryRecord{
		stored: domain.StoredRecord{
			Record:    rec.Clone(),
			Rev:       newRev,
			UpdatedAt: time.Now(),
		},
		gen:  gen,
		size: size,
	}
	s.size = newSize
	return newRev, nil
}

// List returns every stored record ordered by id.
func (s *RecordStore) List(_ context.Context) ([]domain.StoredRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := make([]string, 0, len(s.records))
	for id := range s.records {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	result := make([]domain.StoredRecord, 0, len(ids))
	for _, id := range ids {
		r := s.records[id].stored
		r.Record = r.Record.Clone()
		result = append(result, r)
	}
	return result, nil
}

// Info describes the collection.
func (s *RecordStore) Info(_ context.Context) (*domain.CollectionInfo, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return &domain.CollectionInfo{
		Name:       s.name,
		Records:    len(s.records),
		QuotaBytes: s.quotaBytes,
	}, nil
}
