package driven

import (
	"context"
	"io"
)

// AssetStore is write-once-by-name persistent blob storage with a quota.
//
// Failures use the storage taxonomy in domain: ErrQuotaExceeded,
// ErrSecurity, ErrInvalidState, ErrInvalidModification, ErrNotFound and
// ErrStorageUnknown. A failed Write leaves no partial blob behind.
type AssetStore interface {
	// RequestQuota asks for byte storage and returns the granted amount.
	// Writes before a successful RequestQuota fail with ErrInvalidState.
	RequestQuota(ctx context.Context, bytes int64) (int64, error)

	// Write stores data under key, replacing any previous blob.
	Write(ctx context.Context, key string, data []byte) error

	// Exists reports whether a blob is stored under key.
	Exists(ctx context.Context, key string) (bool, error)

	// Open returns a reader over the blob and its size.
	// Returns domain.ErrNotFound if the key is absent.
	Open(ctx context.Context, key string) (io.ReadCloser, int64, error)
}
