package services

import (
	"errors"
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"

	"github.com/custodia-labs/larder/internal/core/domain"
	"github.com/custodia-labs/larder/internal/core/ports/driven"
	"github.com/custodia-labs/larder/internal/core/ports/driving"
)

// Ensure SettingsService implements the interface.
var _ driving.SettingsService = (*SettingsService)(nil)

// Config keys for settings storage.
const (
	keyFeedBaseURL       = "feed.base_url"
	keyFeedURLStyle      = "feed.url_style"
	keyFeedIdentity      = "feed.identity"
	keyFeedIDField       = "feed.id_field"
	keyFeedAssetFields   = "feed.asset_fields"
	keyFeedAssetPolicy   = "feed.asset_policy"
	keyFeedTimeoutMS     = "feed.timeout_ms"
	keyCollectionName    = "collection.name"
	keyCollectionQuotaMB = "collection.quota_mb"
	keyCollectionDataDir = "collection.data_dir"
	keyAssetsQuotaBytes  = "assets.quota_bytes"
	keyAssetsBaseURI     = "assets.base_uri"
	keyAssetsDir         = "assets.dir"
	keyAssetsConcurrency = "assets.concurrency"
	keyAssetsRate        = "assets.rate_per_second"
	keyRefreshOnStart    = "refresh.on_start"
	keyRefreshAuto       = "refresh.auto"
	keyRefreshIntervalMS = "refresh.interval_ms"
	keyCachePrefix       = "cache.prefix"
	keyCacheVersion      = "cache.version"
	keyCacheManifest     = "cache.manifest"
	keyCacheOrigin       = "cache.origin"
	keyCacheListen       = "cache.listen"
	keyCacheRefreshMS    = "cache.refresh_timeout_ms"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "LARDER_"

// settingKind is the value type stored under a config key.
type settingKind int

const (
	kindString settingKind = iota
	kindInt
	kindBool
	kindFloat
	kindList
)

// settingKinds lists every recognised key and its value type.
var settingKinds = map[string]settingKind{
	keyFeedBaseURL:       kindString,
	keyFeedURLStyle:      kindString,
	keyFeedIdentity:      kindString,
	keyFeedIDField:       kindString,
	keyFeedAssetFields:   kindList,
	keyFeedAssetPolicy:   kindString,
	keyFeedTimeoutMS:     kindInt,
	keyCollectionName:    kindString,
	keyCollectionQuotaMB: kindInt,
	keyCollectionDataDir: kindString,
	keyAssetsQuotaBytes:  kindInt,
	keyAssetsBaseURI:     kindString,
	keyAssetsDir:         kindString,
	keyAssetsConcurrency: kindInt,
	keyAssetsRate:        kindFloat,
	keyRefreshOnStart:    kindBool,
	keyRefreshAuto:       kindBool,
	keyRefreshIntervalMS: kindInt,
	keyCachePrefix:       kindString,
	keyCacheVersion:      kindInt,
	keyCacheManifest:     kindList,
	keyCacheOrigin:       kindString,
	keyCacheListen:       kindString,
	keyCacheRefreshMS:    kindInt,
}

// SettingKeys returns every recognised config key in sorted order.
func SettingKeys() []string {
	keys := make([]string, 0, len(settingKinds))
	for k := range settingKinds {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// envOverrides holds the environment variables that override the file.
// Unset variables leave the pointer nil.
type envOverrides struct {
	FeedBaseURL           *string  `env:"FEED_BASE_URL"`
	Collection            *string  `env:"COLLECTION"`
	CollectionQuotaMB     *int     `env:"COLLECTION_QUOTA_MB"`
	AssetQuotaBytes       *int64   `env:"ASSET_QUOTA_BYTES"`
	AssetBaseURI          *string  `env:"ASSET_BASE_URI"`
	AssetFields           []string `env:"ASSET_FIELDS" envSeparator:","`
	RefreshOnStart        *bool    `env:"REFRESH_ON_START"`
	AutoRefresh           *bool    `env:"AUTO_REFRESH"`
	AutoRefreshIntervalMS *int64   `env:"AUTO_REFRESH_INTERVAL_MS"`
	CacheVersion          *int     `env:"CACHE_VERSION"`
	CacheOrigin           *string  `env:"CACHE_ORIGIN"`
}

// SettingsService manages application settings.
type SettingsService struct {
	configStore driven.ConfigStore
	environ     map[string]string
}

// NewSettingsService creates a new settings service.
// Environment overrides are read from the process environment.
func NewSettingsService(configStore driven.ConfigStore) *SettingsService {
	return &SettingsService{configStore: configStore}
}

// NewSettingsServiceWithEnv creates a settings service that reads overrides
// from environ instead of the process environment.
func NewSettingsServiceWithEnv(configStore driven.ConfigStore, environ map[string]string) *SettingsService {
	if environ == nil {
		environ = map[string]string{}
	}
	return &SettingsService{configStore: configStore, environ: environ}
}

// Get retrieves current application settings.
func (s *SettingsService) Get() (*domain.AppSettings, error) {
	settings := s.fromStore()
	if err := s.applyEnv(settings); err != nil {
		return nil, err
	}
	return settings, nil
}

// fromStore reads the config file over the defaults.
func (s *SettingsService) fromStore() *domain.AppSettings {
	defaults := domain.DefaultAppSettings()

	return &domain.AppSettings{
		Feed: domain.FeedSettings{
			BaseURL:     s.configStore.GetString(keyFeedBaseURL),
			URLStyle:    s.getURLStyle(defaults.Feed.URLStyle),
			Identity:    s.getIdentity(defaults.Feed.Identity),
			IDField:     s.getString(keyFeedIDField, defaults.Feed.IDField),
			AssetFields: s.getStringSlice(keyFeedAssetFields, defaults.Feed.AssetFields),
			AssetPolicy: s.getAssetPolicy(defaults.Feed.AssetPolicy),
			Timeout:     s.getMillis(keyFeedTimeoutMS, defaults.Feed.Timeout),
		},
		Collection: domain.CollectionSettings{
			Name:    s.getString(keyCollectionName, defaults.Collection.Name),
			QuotaMB: s.getInt(keyCollectionQuotaMB, defaults.Collection.QuotaMB),
			DataDir: s.configStore.GetString(keyCollectionDataDir),
		},
		Assets: domain.AssetSettings{
			Dir:           s.configStore.GetString(keyAssetsDir),
			QuotaBytes:    s.getInt64(keyAssetsQuotaBytes, defaults.Assets.QuotaBytes),
			BaseURI:       s.getString(keyAssetsBaseURI, defaults.Assets.BaseURI),
			Concurrency:   s.getInt(keyAssetsConcurrency, defaults.Assets.Concurrency),
			RatePerSecond: s.getFloat(keyAssetsRate, defaults.Assets.RatePerSecond),
		},
		Refresh: domain.RefreshSettings{
			OnStart:  s.getBool(keyRefreshOnStart, defaults.Refresh.OnStart),
			Auto:     s.getBool(keyRefreshAuto, defaults.Refresh.Auto),
			Interval: s.getMillis(keyRefreshIntervalMS, defaults.Refresh.Interval),
		},
		Cache: domain.CacheSettings{
			Prefix:         s.getString(keyCachePrefix, defaults.Cache.Prefix),
			Version:        s.getInt(keyCacheVersion, defaults.Cache.Version),
			Manifest:       s.getStringSlice(keyCacheManifest, defaults.Cache.Manifest),
			Origin:         s.configStore.GetString(keyCacheOrigin),
			Listen:         s.getString(keyCacheListen, defaults.Cache.Listen),
			RefreshTimeout: s.getMillis(keyCacheRefreshMS, defaults.Cache.RefreshTimeout),
		},
	}
}

// applyEnv overlays LARDER_* environment variables.
func (s *SettingsService) applyEnv(settings *domain.AppSettings) error {
	var o envOverrides
	opts := env.Options{Prefix: EnvPrefix, Environment: s.environ}
	if err := env.ParseWithOptions(&o, opts); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}

	if o.FeedBaseURL != nil {
		settings.Feed.BaseURL = *o.FeedBaseURL
	}
	if o.Collection != nil {
		settings.Collection.Name = *o.Collection
	}
	if o.CollectionQuotaMB != nil {
		settings.Collection.QuotaMB = *o.CollectionQuotaMB
	}
	if o.AssetQuotaBytes != nil {
		settings.Assets.QuotaBytes = *o.AssetQuotaBytes
	}
	if o.AssetBaseURI != nil {
		settings.Assets.BaseURI = *o.AssetBaseURI
	}
	if len(o.AssetFields) > 0 {
		settings.Feed.AssetFields = trimAll(o.AssetFields)
	}
	if o.RefreshOnStart != nil {
		settings.Refresh.OnStart = *o.RefreshOnStart
	}
	if o.AutoRefresh != nil {
		settings.Refresh.Auto = *o.AutoRefresh
	}
	if o.AutoRefreshIntervalMS != nil {
		settings.Refresh.Interval = time.Duration(*o.AutoRefreshIntervalMS) * time.Millisecond
	}
	if o.CacheVersion != nil {
		settings.Cache.Version = *o.CacheVersion
	}
	if o.CacheOrigin != nil {
		settings.Cache.Origin = *o.CacheOrigin
	}
	return nil
}

// settingValue is one key to persist.
type settingValue struct {
	key   string
	value any
}

// Save persists application settings.
func (s *SettingsService) Save(settings *domain.AppSettings) error {
	values := []settingValue{
		{keyFeedBaseURL, settings.Feed.BaseURL},
		{keyFeedURLStyle, settings.Feed.URLStyle.String()},
		{keyFeedIdentity, settings.Feed.Identity.String()},
		{keyFeedIDField, settings.Feed.IDField},
		{keyFeedAssetFields, settings.Feed.AssetFields},
		{keyFeedAssetPolicy, settings.Feed.AssetPolicy.String()},
		{keyFeedTimeoutMS, settings.Feed.Timeout.Milliseconds()},
		{keyCollectionName, settings.Collection.Name},
		{keyCollectionQuotaMB, int64(settings.Collection.QuotaMB)},
		{keyAssetsQuotaBytes, settings.Assets.QuotaBytes},
		{keyAssetsBaseURI, settings.Assets.BaseURI},
		{keyAssetsConcurrency, int64(settings.Assets.Concurrency)},
		{keyAssetsRate, settings.Assets.RatePerSecond},
		{keyRefreshOnStart, settings.Refresh.OnStart},
		{keyRefreshAuto, settings.Refresh.Auto},
		{keyRefreshIntervalMS, settings.Refresh.Interval.Milliseconds()},
		{keyCachePrefix, settings.Cache.Prefix},
		{keyCacheVersion, int64(settings.Cache.Version)},
		{keyCacheManifest, settings.Cache.Manifest},
		{keyCacheOrigin, settings.Cache.Origin},
		{keyCacheListen, settings.Cache.Listen},
		{keyCacheRefreshMS, settings.Cache.RefreshTimeout.Milliseconds()},
	}
	if settings.Collection.DataDir != "" {
		values = append(values, settingValue{keyCollectionDataDir, settings.Collection.DataDir})
	}
	if settings.Assets.Dir != "" {
		values = append(values, settingValue{keyAssetsDir, settings.Assets.Dir})
	}

	for _, v := range values {
		if err := s.configStore.Set(v.key, v.value); err != nil {
			return fmt.Errorf("save %s: %w", v.key, err)
		}
	}
	return nil
}

// Set parses value for the type of key, validates it and persists it.
func (s *SettingsService) Set(key, value string) error {
	kind, ok := settingKinds[key]
	if !ok {
		return fmt.Errorf("%w: unknown setting %q", domain.ErrInvalidInput, key)
	}

	parsed, err := parseSetting(kind, value)
	if err != nil {
		return fmt.Errorf("%w: %s: %v", domain.ErrInvalidInput, key, err)
	}
	if err := validateEnum(key, value); err != nil {
		return err
	}

	if err := s.configStore.Set(key, parsed); err != nil {
		return fmt.Errorf("save %s: %w", key, err)
	}
	return nil
}

// Unset removes a setting from the config file so its default applies.
func (s *SettingsService) Unset(key string) error {
	if _, ok := settingKinds[key]; !ok {
		return fmt.Errorf("%w: unknown setting %q", domain.ErrInvalidInput, key)
	}
	if err := s.configStore.Unset(key); err != nil {
		return fmt.Errorf("unset %s: %w", key, err)
	}
	return nil
}

func parseSetting(kind settingKind, value string) (any, error) {
	switch kind {
	case kindInt:
		return strconv.ParseInt(strings.TrimSpace(value), 10, 64)
	case kindBool:
		return strconv.ParseBool(strings.TrimSpace(value))
	case kindFloat:
		return strconv.ParseFloat(strings.TrimSpace(value), 64)
	case kindList:
		if strings.TrimSpace(value) == "" {
			return []string{}, nil
		}
		return trimAll(strings.Split(value, ",")), nil
	default:
		return value, nil
	}
}

func validateEnum(key, value string) error {
	switch key {
	case keyFeedURLStyle:
		if !domain.FeedURLStyle(value).IsValid() {
			return fmt.Errorf("%w: url style %q", domain.ErrInvalidInput, value)
		}
	case keyFeedIdentity:
		if !domain.IdentityMode(value).IsValid() {
			return fmt.Errorf("%w: identity mode %q", domain.ErrInvalidInput, value)
		}
	case keyFeedAssetPolicy:
		if !domain.AssetPolicy(value).IsValid() {
			return fmt.Errorf("%w: asset policy %q", domain.ErrInvalidInput, value)
		}
	}
	return nil
}

// Validate checks that the current settings are usable for syncing.
func (s *SettingsService) Validate() error {
	settings, err := s.Get()
	if err != nil {
		return err
	}

	var errs []error
	if settings.Feed.BaseURL == "" {
		errs = append(errs, errors.New("feed.base_url is not set"))
	} else if u, err := url.Parse(settings.Feed.BaseURL); err != nil || !u.IsAbs() {
		errs = append(errs, fmt.Errorf("feed.base_url %q is not an absolute URL", settings.Feed.BaseURL))
	}
	if settings.Feed.Identity == domain.IdentityPassthrough && settings.Feed.IDField == "" {
		errs = append(errs, errors.New("feed.id_field is required for passthrough identity"))
	}
	if settings.Collection.Name == "" {
		errs = append(errs, errors.New("collection.name is not set"))
	}
	if settings.Refresh.Auto && settings.Refresh.Interval <= 0 {
		errs = append(errs, errors.New("refresh.interval_ms must be positive"))
	}
	if settings.Cache.Version < 0 {
		errs = append(errs, errors.New("cache.version must not be negative"))
	}

	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", domain.ErrInvalidInput, errors.Join(errs...))
	}
	return nil
}

// GetDefaults returns default settings.
func (s *SettingsService) GetDefaults() domain.AppSettings {
	return domain.DefaultAppSettings()
}

// Helper methods for reading config with defaults

func (s *SettingsService) getString(key, defaultVal string) string {
	if val := s.configStore.GetString(key); val != "" {
		return val
	}
	return defaultVal
}

func (s *SettingsService) getBool(key string, defaultVal bool) bool {
	if _, exists := s.configStore.Get(key); exists {
		return s.configStore.GetBool(key)
	}
	return defaultVal
}

func (s *SettingsService) getInt(key string, defaultVal int) int {
	if _, exists := s.configStore.Get(key); exists {
		return s.configStore.GetInt(key)
	}
	return defaultVal
}

func (s *SettingsService) getInt64(key string, defaultVal int64) int64 {
	val, exists := s.configStore.Get(key)
	if !exists {
		return defaultVal
	}
	switch v := val.(type) {
	case int64:
		return v
	case int:
		return int64(v)
	case float64:
		return int64(v)
	default:
		return defaultVal
	}
}

func (s *SettingsService) getFloat(key string, defaultVal float64) float64 {
	val, exists := s.configStore.Get(key)
	if !exists {
		return defaultVal
	}
	switch v := val.(type) {
	case float64:
		return v
	case int64:
		return float64(v)
	case int:
		return float64(v)
	default:
		return defaultVal
	}
}

func (s *SettingsService) getMillis(key string, defaultVal time.Duration) time.Duration {
	if _, exists := s.configStore.Get(key); exists {
		return time.Duration(s.getInt64(key, 0)) * time.Millisecond
	}
	return defaultVal
}

func (s *SettingsService) getStringSlice(key string, defaultVal []string) []string {
	if _, exists := s.configStore.Get(key); exists {
		return s.configStore.GetStringSlice(key)
	}
	return defaultVal
}

func (s *SettingsService) getURLStyle(defaultVal domain.FeedURLStyle) domain.FeedURLStyle {
	style := domain.FeedURLStyle(s.configStore.GetString(keyFeedURLStyle))
	if !style.IsValid() {
		return defaultVal
	}
	return style
}

func (s *SettingsService) getIdentity(defaultVal domain.IdentityMode) domain.IdentityMode {
	mode := domain.IdentityMode(s.configStore.GetString(keyFeedIdentity))
	if !mode.IsValid() {
		return defaultVal
	}
	return mode
}

func (s *SettingsService) getAssetPolicy(defaultVal domain.AssetPolicy) domain.AssetPolicy {
	policy := domain.AssetPolicy(s.configStore.GetString(keyFeedAssetPolicy))
	if !policy.IsValid() {
		return defaultVal
	}
	return policy
}

// GetSchedulerConfig returns the scheduler configuration derived from the
// refresh settings.
func (s *SettingsService) GetSchedulerConfig() (domain.SchedulerConfig, error) {
	settings, err := s.Get()
	if err != nil {
		return domain.SchedulerConfig{}, err
	}
	return domain.SchedulerConfigFromSettings(settings.Refresh), nil
}

func trimAll(values []string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}
