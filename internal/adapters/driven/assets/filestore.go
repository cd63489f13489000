package assets

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/custodia-labs/larder/internal/core/domain"
	"github.com/custodia-labs/larder/internal/core/ports/driven"
)

// Ensure FileStore implements the interface.
var _ driven.AssetStore = (*FileStore)(nil)

// FileStore stores assets as files in a single directory.
type FileStore struct {
	dir string

	mu       sync.Mutex
	ready    bool
	granted  int64
	used     int64
	reserved int64 // bytes held by writes in flight
	sizes    map[string]int64
}

// NewFileStore creates a file-backed asset store rooted at dir.
// The directory is created by RequestQuota.
func NewFileStore(dir string) *FileStore {
	return &FileStore{
		dir:   dir,
		sizes: make(map[string]int64),
	}
}

// Dir returns the store directory.
func (s *FileStore) Dir() string {
	return s.dir
}

// RequestQuota prepares the directory and grants the requested quota.
// Existing blobs count against it.
func (s *FileStore) RequestQuota(_ context.Context, bytes int64) (int64, error) {
	if bytes < 0 {
		return 0, fmt.Errorf("%w: negative quota %d", domain.ErrInvalidModification, bytes)
	}

	if err := os.MkdirAll(s.dir, 0o700); err != nil {
		return 0, classify("create", s.dir, err)
	}

	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return 0, classify("read", s.dir, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.used = 0
	s.sizes = make(map[string]int64, len(entries))
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || strings.HasPrefix(name, ".") {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		s.sizes[name] = info.Size()
		s.used += info.Size()
	}

	s.granted = bytes
	s.ready = true
	return bytes, nil
}

// Write stores data under key. The bytes are reserved against the quota
// before the file is written, so concurrent writers cannot overshoot it.
func (s *FileStore) Write(_ context.Context, key string, data []byte) error {
	if err := validateKey(key); err != nil {
		return err
	}

	s.mu.Lock()
	if !s.ready {
		s.mu.Unlock()
		return fmt.Errorf("%w: write %s before quota was granted", domain.ErrInvalidState, key)
	}
	size := int64(len(data))
	if s.granted > 0 && s.used-s.sizes[key]+s.reserved+size > s.granted {
		s.mu.Unlock()
		return fmt.Errorf("%w: write %s (%d bytes)", domain.ErrQuotaExceeded, key, size)
	}
	s.reserved += size
	s.mu.Unlock()

	if err := s.writeFile(key, data); err != nil {
		s.mu.Lock()
		s.reserved -= size
		s.mu.Unlock()
		return err
	}

	s.mu.Lock()
	s.reserved -= size
	s.used += size - s.sizes[key]
	s.sizes[key] = size
	s.mu.Unlock()
	return nil
}

// writeFile replaces the blob at key through a temporary file and rename.
func (s *FileStore) writeFile(key string, data []byte) error {
	tmp, err := os.CreateTemp(s.dir, ".tmp-*")
	if err != nil {
		return classify("create", key, err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return classify("write", key, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return classify("write", key, err)
	}
	if err := os.Rename(tmpName, filepath.Join(s.dir, key)); err != nil {
		os.Remove(tmpName)
		return classify("rename", key, err)
	}
	return nil
}

// Exists reports whether a blob is stored under key.
func (s *FileStore) Exists(_ context.Context, key string) (bool, error) {
	if err := validateKey(key); err != nil {
		return false, err
	}
	_, err := os.Stat(filepath.Join(s.dir, key))
	if err == nil {
		return true, nil
	}
	if os.IsNotExist(err) {
		return false, nil
	}
	return false, classify("stat", key, err)
}

// Open returns a reader over the blob and its size.
func (s *FileStore) Open(_ context.Context, key string) (io.ReadCloser, int64, error) {
	if err := validateKey(key); err != nil {
		return nil, 0, err
	}
	f, err := os.Open(filepath.Join(s.dir, key))
	if err != nil {
		return nil, 0, classify("open", key, err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, 0, classify("stat", key, err)
	}
	return f, info.Size(), nil
}

// Used returns the number of bytes currently stored.
func (s *FileStore) Used() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.used
}
