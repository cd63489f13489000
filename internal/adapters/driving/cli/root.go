// Package cli implements the larder command line.
//
// Commands reach the core through package-level driving ports set by
// SetServices before Execute. Tests swap those variables for mocks.
package cli

import (
	"context"
	"net/http"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/larder/internal/core/ports/driving"
	"github.com/custodia-labs/larder/internal/logger"
)

// version is overridden at build time with -ldflags.
var version = "dev"

// ConfigWatcher reports config file changes.
type ConfigWatcher interface {
	Watch(ctx context.Context) (<-chan struct{}, error)
}

// Services bundles the driving ports the commands use.
type Services struct {
	Sync      driving.SyncEngine
	Records   driving.RecordService
	Settings  driving.SettingsService
	Cache     driving.CacheController
	Lifecycle driving.CacheLifecycle
	Assets    driving.AssetReader
	Scheduler driving.Scheduler
	Metrics   http.Handler
	Watcher   ConfigWatcher
}

var (
	syncEngine       driving.SyncEngine
	recordService    driving.RecordService
	settingsService  driving.SettingsService
	cacheController  driving.CacheController
	cacheLifecycle   driving.CacheLifecycle
	assetReader      driving.AssetReader
	schedulerService driving.Scheduler
	metricsHandler   http.Handler
	configWatcher    ConfigWatcher

	verbose bool
)

var rootCmd = &cobra.Command{
	Use:   "larder",
	Short: "Offline copy of a remote content feed",
	Long: `larder keeps a local copy of a remote JSON feed, downloads the assets
its records reference and serves an offline-capable HTTP cache in front of
the origin site.`,
	SilenceUsage: true,
	PersistentPreRun: func(_ *cobra.Command, _ []string) {
		if verbose {
			logger.SetVerbose(true)
		}
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
}

// SetServices installs the driving ports used by every command.
func SetServices(s Services) {
	syncEngine = s.Sync
	recordService = s.Records
	settingsService = s.Settings
	cacheController = s.Cache
	cacheLifecycle = s.Lifecycle
	assetReader = s.Assets
	schedulerService = s.Scheduler
	metricsHandler = s.Metrics
	configWatcher = s.Watcher
}

// SetVersion sets the version reported by "larder version".
func SetVersion(v string) {
	if v != "" {
		version = v
	}
}

// Execute runs the root command.
func Execute(ctx context.Context) error {
	return rootCmd.ExecuteContext(ctx)
}
