package cli

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/custodia-labs/larder/internal/adapters/driving/httpproxy"
	"github.com/custodia-labs/larder/internal/logger"
)

// drainTimeout bounds how long shutdown waits for asset downloads.
const drainTimeout = 10 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the offline cache proxy",
	Long: `Installs the configured cache generation, opens the collection and
serves the origin site through the stale-while-revalidate cache.

Stored assets are served under /assets/, engine status under
/_larder/status and Prometheus metrics under /_larder/metrics.

Editing config.toml while serving takes effect for the cache: bumping
cache.version installs the new generation and purges the old ones.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().String("listen", "", "listen address (default from cache.listen)")
	serveCmd.Flags().Bool("no-sync", false, "serve the cache only; do not open the collection")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, _ []string) error {
	if settingsService == nil || cacheController == nil || cacheLifecycle == nil {
		return errors.New("cache services not configured")
	}

	listen, err := cmd.Flags().GetString("listen")
	if err != nil {
		return fmt.Errorf("getting listen flag: %w", err)
	}
	noSync, err := cmd.Flags().GetBool("no-sync")
	if err != nil {
		return fmt.Errorf("getting no-sync flag: %w", err)
	}

	settings, err := settingsService.Get()
	if err != nil {
		return fmt.Errorf("failed to get settings: %w", err)
	}
	if listen == "" {
		listen = settings.Cache.Listen
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	if err := applyCache(ctx, cmd); err != nil {
		return err
	}

	ports := httpproxy.Ports{
		Cache:     cacheController,
		Assets:    assetReader,
		Lifecycle: cacheLifecycle,
		Metrics:   metricsHandler,
	}
	if !noSync && syncEngine != nil {
		ports.Sync = syncEngine
	}

	server, err := httpproxy.NewServer(ports, settings.Cache.Origin)
	if err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return server.Run(gctx, listen)
	})

	if ports.Sync != nil {
		// Offline first: a feed that cannot be reached must not stop the proxy.
		g.Go(func() error {
			if _, err := ports.Sync.Start(gctx); err != nil {
				logger.Warn("Collection start failed: %v", err)
				return nil
			}
			if schedulerService == nil {
				return nil
			}
			if err := schedulerService.Start(gctx); err != nil && !errors.Is(err, context.Canceled) {
				return fmt.Errorf("scheduler: %w", err)
			}
			return nil
		})
	}

	if configWatcher != nil {
		changes, err := configWatcher.Watch(gctx)
		if err != nil {
			logger.Warn("Config watch unavailable: %v", err)
		} else {
			g.Go(func() error {
				for range changes {
					if err := applyCache(gctx, cmd); err != nil {
						logger.Warn("Cache update failed: %v", err)
					}
				}
				return nil
			})
		}
	}

	cmd.Printf("Serving %s on http://%s\n", orNotSet(settings.Cache.Origin), listen)
	err = g.Wait()

	shutdown(ports)
	return err
}

// applyCache moves the proxy onto the configured generation and reports
// what changed.
func applyCache(ctx context.Context, cmd *cobra.Command) error {
	report, deleted, err := cacheLifecycle.Apply(ctx)
	if err != nil {
		return fmt.Errorf("cache install failed: %w", err)
	}
	if report == nil {
		return nil
	}

	cmd.Printf("Cache %s: %d prefetched, %d failed\n", report.Generation, len(report.Stored), len(report.Failed))
	for u, ferr := range report.Failed {
		logger.Warn("Prefetch %s: %v", u, ferr)
	}
	for _, name := range deleted {
		cmd.Printf("Deleted cache %s\n", name)
	}
	return nil
}

// shutdown stops background work once the server has exited.
func shutdown(ports httpproxy.Ports) {
	if schedulerService != nil {
		if err := schedulerService.Stop(); err != nil {
			logger.Warn("Scheduler stop: %v", err)
		}
	}

	drainCtx, cancel := context.WithTimeout(context.Background(), drainTimeout)
	defer cancel()
	if ports.Sync != nil {
		if err := ports.Sync.Wait(drainCtx); err != nil {
			logger.Warn("Asset downloads still running at exit: %v", err)
		}
	}
	cacheController.Wait()
}
