package driving

import (
	"context"

	"github.com/custodia-labs/larder/internal/core/domain"
)

// Scheduler manages background tasks like automatic feed refresh.
type Scheduler interface {
	// Start begins running scheduled tasks.
	// Blocks until context is cancelled or an error occurs.
	Start(ctx context.Context) error

	// Stop gracefully stops all running tasks.
	Stop() error

	// History returns up to limit recent feed refresh runs, most recent
	// first.
	History(ctx context.Context, limit int) ([]domain.TaskResult, error)
}
