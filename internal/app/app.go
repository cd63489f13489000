// Package app wires larder's adapters into its core services.
//
// It is the composition root: the only package that knows about every
// concrete adapter. Driving adapters (CLI, proxy, MCP) receive the
// assembled services through their ports.
package app

import (
	"fmt"
	"net/http"
	"os"
	"path/filepath"

	"github.com/caarlos0/env/v11"

	"github.com/custodia-labs/larder/internal/adapters/driven/assets"
	"github.com/custodia-labs/larder/internal/adapters/driven/config/file"
	"github.com/custodia-labs/larder/internal/adapters/driven/feed"
	"github.com/custodia-labs/larder/internal/adapters/driven/metrics"
	"github.com/custodia-labs/larder/internal/adapters/driven/storage/sqlite"
	"github.com/custodia-labs/larder/internal/core/domain"
	"github.com/custodia-labs/larder/internal/core/services"
	"github.com/custodia-labs/larder/internal/logger"
)

// Options are process-level settings read from the environment before any
// config file is opened.
type Options struct {
	// Home holds config.toml, the database and assets.
	Home string `env:"LARDER_HOME"`

	// Verbose enables debug logging.
	Verbose bool `env:"LARDER_VERBOSE"`
}

// OptionsFromEnv parses Options from the process environment.
func OptionsFromEnv() (Options, error) {
	var opts Options
	if err := env.Parse(&opts); err != nil {
		return Options{}, fmt.Errorf("parse environment: %w", err)
	}
	return opts, nil
}

// App holds the assembled service graph.
type App struct {
	Home string

	ConfigStore *file.ConfigStore
	Watcher     *file.Watcher
	Store       *sqlite.Store
	Metrics     *metrics.Prometheus
	Events      *services.EventBus

	Settings   *services.SettingsService
	Assets     *assets.FileStore
	Downloader *services.AssetService
	Engine     *services.SyncEngine
	Records    *services.RecordService
	Cache      *services.CacheController
	Lifecycle  *services.CacheLifecycle
	Scheduler  *services.Scheduler
}

// New builds the service graph rooted at opts.Home.
// Settings are read once; only the cache generation follows later edits.
func New(opts Options) (*App, error) {
	logger.SetVerbose(opts.Verbose)

	home := opts.Home
	if home == "" {
		dir, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("get home directory: %w", err)
		}
		home = filepath.Join(dir, ".larder")
	}

	configStore, err := file.NewConfigStore(home)
	if err != nil {
		return nil, fmt.Errorf("open config: %w", err)
	}
	settingsService := services.NewSettingsService(configStore)
	settings, err := settingsService.Get()
	if err != nil {
		return nil, fmt.Errorf("load settings: %w", err)
	}

	dataDir := settings.Collection.DataDir
	if dataDir == "" {
		dataDir = filepath.Join(home, "data")
	}
	store, err := sqlite.NewStore(dataDir)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}

	assetDir := settings.Assets.Dir
	if assetDir == "" {
		assetDir = filepath.Join(home, "assets")
	}

	a := &App{
		Home:        home,
		ConfigStore: configStore,
		Watcher:     file.NewWatcher(configStore),
		Store:       store,
		Metrics:     metrics.NewPrometheus(),
		Events:      services.NewEventBus(),
		Settings:    settingsService,
		Assets:      assets.NewFileStore(assetDir),
	}
	a.Events.Subscribe(domain.ListenerFunc(logEvent))

	client := &http.Client{}
	a.Downloader = services.NewAssetService(client, a.Assets, a.Events, a.Metrics, settings.Assets.RatePerSecond)
	a.Engine = services.NewSyncEngine(
		feed.NewClient(settings.Feed, client),
		store.RecordStore(settings.Collection.Name, settings.Collection.QuotaBytes()),
		store.SyncStateStore(),
		a.Assets,
		a.Downloader,
		a.Events,
		a.Metrics,
		services.SyncEngineConfigFromSettings(*settings),
	)
	a.Records = services.NewRecordService(store.RecordStore(settings.Collection.Name, settings.Collection.QuotaBytes()))

	a.Cache = services.NewCacheController(client, nil, a.Metrics, services.CacheControllerConfig{
		RefreshTimeout: settings.Cache.RefreshTimeout,
	})
	a.Lifecycle = services.NewCacheLifecycle(settingsService, store.CacheStorage(), client, a.Cache)
	a.Scheduler = services.NewScheduler(
		domain.SchedulerConfigFromSettings(settings.Refresh),
		store.SchedulerStore(),
		a.Engine,
	)

	return a, nil
}

// Close releases the database.
func (a *App) Close() error {
	return a.Store.Close()
}

// logEvent reports lifecycle events at debug level, failures as warnings.
func logEvent(e domain.Event) {
	switch e.Kind {
	case domain.EventAssetDownloadFailed:
		logger.Warn("Asset %s failed: %v", e.Key, e.Err)
	case domain.EventSyncFailed:
		logger.Warn("Sync failed: %v", e.Err)
	default:
		logger.Debug("Event %s %s", e.Kind, e.Key)
	}
}
