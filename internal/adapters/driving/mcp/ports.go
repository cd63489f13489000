package mcp

import (
	"github.com/custodia-labs/larder/internal/core/ports/driving"
)

// Ports aggregates all driving port interfaces required by the MCP server.
// This provides a single injection point for dependency injection.
type Ports struct {
	// Records provides read access to the local collection.
	Records driving.RecordService

	// Sync runs refresh passes against the feed.
	Sync driving.SyncEngine

	// Cache reports on cache generations.
	Cache driving.CacheLifecycle
}

// Validate ensures all required ports are set.
// Returns an error if any required port is nil.
func (p *Ports) Validate() error {
	if p.Records == nil {
		return ErrMissingRecordService
	}
	// Sync and Cache are optional; their tools report unavailability.
	return nil
}
