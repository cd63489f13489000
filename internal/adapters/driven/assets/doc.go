// Package assets provides AssetStore implementations for downloaded
// binary assets.
//
// FileStore writes one file per key under a directory, through a temporary
// file and rename so a failed write leaves no partial blob. MemoryStore
// keeps blobs in memory for tests and ephemeral runs. Both enforce the
// quota granted by RequestQuota and report failures with the storage
// error taxonomy in domain.
package assets
