package assets

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"syscall"

	"github.com/custodia-labs/larder/internal/core/domain"
)

// validateKey rejects keys that could escape the store directory or
// collide with temporary files.
func validateKey(key string) error {
	if key == "" || strings.HasPrefix(key, ".") || strings.ContainsAny(key, `/\`+"\x00") {
		return fmt.Errorf("%w: invalid asset key %q", domain.ErrSecurity, key)
	}
	return nil
}

// classify maps a filesystem error onto the storage error taxonomy.
func classify(op, key string, err error) error {
	var kind error
	switch {
	case errors.Is(err, syscall.ENOSPC):
		kind = domain.ErrQuotaExceeded
	case errors.Is(err, fs.ErrNotExist):
		kind = domain.ErrNotFound
	case errors.Is(err, fs.ErrPermission):
		kind = domain.ErrSecurity
	default:
		kind = domain.ErrStorageUnknown
	}
	return fmt.Errorf("%w: %s %s: %v", kind, op, key, err)
}
