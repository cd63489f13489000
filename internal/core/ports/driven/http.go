package driven

import "net/http"

// HTTPDoer is the transport used for asset downloads and cache fetches.
// *http.Client satisfies it.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}
