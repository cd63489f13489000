// Command larder keeps an offline copy of a remote content feed and serves
// an offline-capable cache in front of its site.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/custodia-labs/larder/internal/adapters/driving/cli"
	"github.com/custodia-labs/larder/internal/app"
	"github.com/custodia-labs/larder/internal/logger"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := run(ctx)
	stop()
	if err != nil {
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	opts, err := app.OptionsFromEnv()
	if err != nil {
		logger.Error("%v", err)
		return err
	}

	a, err := app.New(opts)
	if err != nil {
		logger.Error("%v", err)
		return err
	}
	defer func() {
		if err := a.Close(); err != nil {
			logger.Warn("Close store: %v", err)
		}
	}()

	cli.SetVersion(version)
	cli.SetServices(cli.Services{
		Sync:      a.Engine,
		Records:   a.Records,
		Settings:  a.Settings,
		Cache:     a.Cache,
		Lifecycle: a.Lifecycle,
		Assets:    a.Assets,
		Scheduler: a.Scheduler,
		Metrics:   a.Metrics.Handler(),
		Watcher:   a.Watcher,
	})

	// cobra reports command errors itself.
	return cli.Execute(ctx)
}
