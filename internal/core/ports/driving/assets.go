package driving

import (
	"context"
	"io"
)

// AssetDownloader fetches one remote asset into the asset store.
type AssetDownloader interface {
	// Download fetches reference and stores it under key. Only a 200
	// response is stored. Failures are returned and also emitted as
	// asset-download-failed; nothing is retried within the pass.
	Download(ctx context.Context, reference, key string) error
}

// AssetReader serves stored assets to local consumers.
type AssetReader interface {
	// Open returns a reader over the stored asset and its size.
	Open(ctx context.Context, key string) (io.ReadCloser, int64, error)
}
