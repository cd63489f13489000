// Package domain defines the core business entities for larder.
//
// This package is part of the hexagonal architecture's innermost layer.
// It has NO external dependencies and defines the fundamental types:
//
//   - Record: A semi-structured item pulled from the remote feed
//   - StoredRecord: A record plus its store revision token
//   - CacheEntry: A full-resource HTTP response in a cache generation
//   - Event: A lifecycle notification for observers
//
// It also holds the pure functions both subsystems rely on: Checksum,
// DeriveID and AssetKey.
//
// # Architectural Position
//
// Domain is at the centre of the hexagon. It may only import
// the Go standard library. All other packages depend on domain,
// never the reverse.
//
// # Import Rules
//
//   - Can Import: Standard library only
//   - Cannot Import: Any internal/ package, any external dependency
package domain
