package domain

import (
	"fmt"
	"net/http"
	"strings"
	"time"
)

// CacheEntry is a full-resource response held by a cache generation.
// Partial-content responses are synthesized from it at serve time and
// are never stored.
type CacheEntry struct {
	// Key is the normalized request key (see CacheKey).
	Key string

	// Method is the request method.
	Method string

	// URL is the absolute request URL.
	URL string

	// Status is the origin response status.
	Status int

	// Header holds the origin response headers.
	Header http.Header

	// Body is the complete response body.
	Body []byte

	// StoredAt is when the entry was last written.
	StoredAt time.Time
}

// ContentType returns the stored Content-Type header.
func (e *CacheEntry) ContentType() string {
	if e.Header == nil {
		return ""
	}
	return e.Header.Get("Content-Type")
}

// CacheKey normalizes a request into its cache key: method plus URL.
// Headers, including Range, never take part in the key.
func CacheKey(method, rawURL string) string {
	if method == "" {
		method = http.MethodGet
	}
	return strings.ToUpper(method) + " " + rawURL
}

// GenerationName returns the cache generation name for a prefix and
// version, e.g. "larder-cache-v" + 3.
func GenerationName(prefix string, version int) string {
	return fmt.Sprintf("%s%d", prefix, version)
}

// InstallReport summarises a manifest prefetch into a cache generation.
type InstallReport struct {
	// Generation is the cache generation that was populated.
	Generation string

	// Stored lists manifest URLs that were fetched and cached.
	Stored []string

	// Failed maps manifest URLs to the error that prevented caching.
	Failed map[string]error
}

// GenerationInfo describes one cache generation for status output.
type GenerationInfo struct {
	Name    string
	Entries int
	Current bool
}
