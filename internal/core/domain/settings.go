package domain

import "time"

const unknownDescription = "Unknown"

// IdentityMode selects how a record's stable id is obtained.
type IdentityMode string

// Available identity modes.
const (
	// IdentityChecksum keeps a source-supplied id and otherwise derives one
	// from the record checksum and serialized length.
	IdentityChecksum IdentityMode = "checksum"

	// IdentityPassthrough copies a named source field into the id.
	IdentityPassthrough IdentityMode = "passthrough"
)

// IsValid returns true if the identity mode is recognised.
func (m IdentityMode) IsValid() bool {
	switch m {
	case IdentityChecksum, IdentityPassthrough:
		return true
	default:
		return false
	}
}

// String returns the string representation.
func (m IdentityMode) String() string {
	return string(m)
}

// Description returns a human-readable description of the mode.
func (m IdentityMode) Description() string {
	switch m {
	case IdentityChecksum:
		return "Checksum (source id, else derived from content)"
	case IdentityPassthrough:
		return "Passthrough (copy a source field)"
	default:
		return unknownDescription
	}
}

// FeedURLStyle selects how the delta timestamp is encoded in the feed URL.
type FeedURLStyle string

// Available feed URL styles.
const (
	// FeedURLQuery appends ?updated=<ISO-8601>.
	FeedURLQuery FeedURLStyle = "query"

	// FeedURLPath appends /<ISO-8601> to the base path.
	FeedURLPath FeedURLStyle = "path"
)

// IsValid returns true if the feed URL style is recognised.
func (s FeedURLStyle) IsValid() bool {
	switch s {
	case FeedURLQuery, FeedURLPath:
		return true
	default:
		return false
	}
}

// String returns the string representation.
func (s FeedURLStyle) String() string {
	return string(s)
}

// AssetPolicy decides whether assets of unchanged records are fetched again.
type AssetPolicy string

// Available asset policies.
const (
	// AssetPolicyAlways downloads assets for every record in the pass.
	AssetPolicyAlways AssetPolicy = "always"

	// AssetPolicyChanged downloads assets only for inserted or updated records.
	AssetPolicyChanged AssetPolicy = "changed"

	// AssetPolicyMissing downloads assets for inserted or updated records and,
	// for unchanged ones, only when the asset store lacks the key.
	AssetPolicyMissing AssetPolicy = "missing"
)

// IsValid returns true if the asset policy is recognised.
func (p AssetPolicy) IsValid() bool {
	switch p {
	case AssetPolicyAlways, AssetPolicyChanged, AssetPolicyMissing:
		return true
	default:
		return false
	}
}

// String returns the string representation.
func (p AssetPolicy) String() string {
	return string(p)
}

// Description returns a human-readable description of the policy.
func (p AssetPolicy) Description() string {
	switch p {
	case AssetPolicyAlways:
		return "Always (re-fetch assets of unchanged records)"
	case AssetPolicyChanged:
		return "Changed (only inserted or updated records)"
	case AssetPolicyMissing:
		return "Missing (unchanged records only when not stored)"
	default:
		return unknownDescription
	}
}

// FeedSettings configures the remote content feed.
type FeedSettings struct {
	// BaseURL is the feed endpoint.
	BaseURL string

	// URLStyle selects how the since timestamp is encoded.
	URLStyle FeedURLStyle

	// Identity selects the identity strategy.
	Identity IdentityMode

	// IDField is the source field copied by IdentityPassthrough.
	IDField string

	// AssetFields lists the asset-bearing fields, in order.
	AssetFields []string

	// AssetPolicy decides re-downloads for unchanged records.
	AssetPolicy AssetPolicy

	// Timeout bounds a single feed request.
	Timeout time.Duration
}

// CollectionSettings configures the local document store.
type CollectionSettings struct {
	// Name is the collection name.
	Name string

	// QuotaMB caps the collection size in megabytes (0 = unlimited).
	QuotaMB int

	// DataDir holds the SQLite database. Empty means ~/.larder/data.
	DataDir string
}

// QuotaBytes returns the collection quota in bytes.
func (c CollectionSettings) QuotaBytes() int64 {
	return int64(c.QuotaMB) * 1024 * 1024
}

// AssetSettings configures downloaded asset storage.
type AssetSettings struct {
	// Dir is where asset blobs are written. Empty means ~/.larder/assets.
	Dir string

	// QuotaBytes is the storage quota requested up front.
	QuotaBytes int64

	// BaseURI is prefixed to asset keys when rewriting record fields.
	BaseURI string

	// Concurrency bounds simultaneous downloads.
	Concurrency int

	// RatePerSecond throttles download starts (0 = unlimited).
	RatePerSecond float64
}

// RefreshSettings configures when sync passes run.
type RefreshSettings struct {
	// OnStart runs a pass as soon as the collection is ready.
	OnStart bool

	// Auto enables the periodic refresh task.
	Auto bool

	// Interval is the time between automatic passes.
	Interval time.Duration
}

// CacheSettings configures the intercepting HTTP cache.
type CacheSettings struct {
	// Prefix is the stable part of the generation name.
	Prefix string

	// Version is bumped by the operator to invalidate everything.
	Version int

	// Manifest lists URLs prefetched on install.
	Manifest []string

	// Origin resolves relative manifest entries and proxied paths.
	Origin string

	// Listen is the proxy listen address.
	Listen string

	// RefreshTimeout bounds each background refresh.
	RefreshTimeout time.Duration
}

// GenerationName returns the current cache generation name.
func (c CacheSettings) GenerationName() string {
	return GenerationName(c.Prefix, c.Version)
}

// AppSettings holds all application settings.
type AppSettings struct {
	// Feed holds remote feed settings.
	Feed FeedSettings

	// Collection holds local store settings.
	Collection CollectionSettings

	// Assets holds asset storage settings.
	Assets AssetSettings

	// Refresh holds sync scheduling settings.
	Refresh RefreshSettings

	// Cache holds HTTP cache settings.
	Cache CacheSettings
}

// DefaultAppSettings returns settings with sensible defaults.
// The feed URL is left empty; it must be configured before syncing.
func DefaultAppSettings() AppSettings {
	return AppSettings{
		Feed: FeedSettings{
			URLStyle:    FeedURLQuery,
			Identity:    IdentityChecksum,
			IDField:     "nid",
			AssetPolicy: AssetPolicyAlways,
			Timeout:     30 * time.Second,
		},
		Collection: CollectionSettings{
			Name:    "node",
			QuotaMB: 50,
		},
		Assets: AssetSettings{
			QuotaBytes:  3000 * 1024 * 1024, // 3 GB
			BaseURI:     "http://localhost:8787/assets/",
			Concurrency: 4,
		},
		Refresh: RefreshSettings{
			OnStart:  true,
			Auto:     false,
			Interval: 30 * time.Second,
		},
		Cache: CacheSettings{
			Prefix:         "larder-cache-v",
			Version:        1,
			Manifest:       []string{"./", "./index.html"},
			Listen:         "localhost:8787",
			RefreshTimeout: 30 * time.Second,
		},
	}
}

// AllIdentityModes returns all available identity modes.
func AllIdentityModes() []IdentityMode {
	return []IdentityMode{IdentityChecksum, IdentityPassthrough}
}

// AllAssetPolicies returns all available asset policies.
func AllAssetPolicies() []AssetPolicy {
	return []AssetPolicy{AssetPolicyAlways, AssetPolicyChanged, AssetPolicyMissing}
}
