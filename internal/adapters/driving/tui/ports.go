// Package tui provides an interactive terminal dashboard for larder.
// It implements a driving adapter following hexagonal architecture principles.
package tui

import (
	"github.com/custodia-labs/larder/internal/core/ports/driving"
)

// Ports aggregates all driving port interfaces required by the TUI.
// This provides a single injection point for dependency injection.
type Ports struct {
	// Sync runs and reports sync passes.
	Sync driving.SyncEngine

	// Records describes the local collection.
	Records driving.RecordService

	// Cache manages cache generations. Optional.
	Cache driving.CacheLifecycle
}

// Validate ensures all required ports are set.
func (p *Ports) Validate() error {
	if p.Sync == nil {
		return ErrMissingSyncEngine
	}
	if p.Records == nil {
		return ErrMissingRecordService
	}
	return nil
}
