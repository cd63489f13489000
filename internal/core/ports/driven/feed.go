package driven

import (
	"context"
	"encoding/json"
	"time"
)

// FeedClient fetches the remote delta feed.
type FeedClient interface {
	// Fetch returns every remote item changed at or after since, as raw
	// JSON values. Transport failures wrap domain.ErrTransport; a body that
	// is not a JSON array wraps domain.ErrMalformedInput.
	Fetch(ctx context.Context, since time.Time) ([]json.RawMessage, error)
}
