package domain

import "errors"

// Domain errors represent business logic failures.
// These are distinct from infrastructure errors.
var (
	// ErrNotFound indicates a requested entity does not exist.
	ErrNotFound = errors.New("not found")

	// ErrInvalidInput indicates malformed or invalid input.
	ErrInvalidInput = errors.New("invalid input")

	// ErrNotImplemented indicates functionality is not yet available.
	ErrNotImplemented = errors.New("not implemented")

	// Sync Errors.

	// ErrTransport indicates the feed or an asset could not be fetched.
	// The item keeps its previous state and is retried on the next pass.
	ErrTransport = errors.New("transport failure")

	// ErrConflict indicates a write carried a stale revision token.
	ErrConflict = errors.New("revision conflict")

	// ErrMalformedInput indicates a remote record could not be interpreted.
	// Only that record is skipped; the rest of the batch continues.
	ErrMalformedInput = errors.New("malformed input")

	// Storage Errors.

	// ErrQuotaExceeded indicates the write would exceed the granted quota.
	ErrQuotaExceeded = errors.New("quota exceeded")

	// ErrSecurity indicates the storage refused access to the target.
	ErrSecurity = errors.New("security error")

	// ErrInvalidState indicates the storage was used before it was ready.
	ErrInvalidState = errors.New("invalid state")

	// ErrInvalidModification indicates the storage refused the modification.
	ErrInvalidModification = errors.New("invalid modification")

	// ErrStorageUnknown wraps storage failures that fit no other category.
	ErrStorageUnknown = errors.New("unknown storage error")
)

// IsStorageFailure reports whether err belongs to the asset storage taxonomy.
func IsStorageFailure(err error) bool {
	return errors.Is(err, ErrQuotaExceeded) ||
		errors.Is(err, ErrSecurity) ||
		errors.Is(err, ErrInvalidState) ||
		errors.Is(err, ErrInvalidModification) ||
		errors.Is(err, ErrStorageUnknown)
}

// StorageErrorCode maps a storage error onto its log code.
func StorageErrorCode(err error) string {
	switch {
	case errors.Is(err, ErrQuotaExceeded):
		return "QUOTA_EXCEEDED_ERR"
	case errors.Is(err, ErrNotFound):
		return "NOT_FOUND_ERR"
	case errors.Is(err, ErrSecurity):
		return "SECURITY_ERR"
	case errors.Is(err, ErrInvalidModification):
		return "INVALID_MODIFICATION_ERR"
	case errors.Is(err, ErrInvalidState):
		return "INVALID_STATE_ERR"
	default:
		return "UNKNOWN_ERR"
	}
}
