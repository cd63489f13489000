package assets

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/custodia-labs/larder/internal/core/domain"
	"github.com/custodia-labs/larder/internal/core/ports/driven"
)

// Ensure MemoryStore implements the interface.
var _ driven.AssetStore = (*MemoryStore)(nil)

// MemoryStore keeps assets in memory.
type MemoryStore struct {
	mu      sync.RWMutex
	ready   bool
	granted int64
	used    int64
	blobs   map[string][]byte
	writes  map[string]int
}

// NewMemoryStore creates an empty in-memory asset store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		blobs:  make(map[string][]byte),
		writes: make(map[string]int),
	}
}

// RequestQuota grants the requested quota.
func (s *MemoryStore) RequestQuota(_ context.Context, bytes int64) (int64, error) {
	if bytes < 0 {
		return 0, fmt.Errorf("%w: negative quota %d", domain.ErrInvalidModification, bytes)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.granted = bytes
	s.ready = true
	return bytes, nil
}

// Write stores a copy of data under key.
func (s *MemoryStore) Write(_ context.Context, key string, data []byte) error {
	if err := validateKey(key); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.ready {
		return fmt.Errorf("%w: write %s before quota was granted", domain.ErrInvalidState, key)
	}
	size := int64(len(data))
	used := s.used - int64(len(s.blobs[key])) + size
	if s.granted > 0 && used > s.granted {
		return fmt.Errorf("%w: write %s (%d bytes)", domain.ErrQuotaExceeded, key, size)
	}

	s.blobs[key] = append([]byte(nil), data...)
	s.writes[key]++
	s.used = used
	return nil
}

// Exists reports whether a blob is stored under key.
func (s *MemoryStore) Exists(_ context.Context, key string) (bool, error) {
	if err := validateKey(key); err != nil {
		return false, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.blobs[key]
	return ok, nil
}

// Open returns a reader over the blob and its size.
func (s *MemoryStore) Open(_ context.Context, key string) (io.ReadCloser, int64, error) {
	if err := validateKey(key); err != nil {
		return nil, 0, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	data, ok := s.blobs[key]
	if !ok {
		return nil, 0, fmt.Errorf("%w: asset %s", domain.ErrNotFound, key)
	}
	return io.NopCloser(bytes.NewReader(data)), int64(len(data)), nil
}

// Blob returns the stored bytes for key, or nil.
func (s *MemoryStore) Blob(key string) []byte {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.blobs[key]
}

// Writes returns how many times key was written.
func (s *MemoryStore) Writes(key string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.writes[key]
}
