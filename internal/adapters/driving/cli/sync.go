package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/custodia-labs/larder/internal/core/domain"
	"github.com/custodia-labs/larder/internal/core/ports/driving"
)

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Synchronise records from the feed",
	Long: `Opens the local collection and pulls every feed item changed since the
last successful sync. Asset downloads dispatched by the pass are awaited
before the command returns.

Use --full to ignore the last sync time and fetch the whole feed.`,
	Args: cobra.NoArgs,
	RunE: runSync,
}

func init() {
	syncCmd.Flags().Bool("full", false, "fetch every item, not only changes since the last sync")
	syncCmd.Flags().Bool("no-wait", false, "return without waiting for asset downloads")
	rootCmd.AddCommand(syncCmd)
}

func runSync(cmd *cobra.Command, _ []string) error {
	if syncEngine == nil {
		return errors.New("sync service not configured")
	}

	full, err := cmd.Flags().GetBool("full")
	if err != nil {
		return fmt.Errorf("getting full flag: %w", err)
	}
	noWait, err := cmd.Flags().GetBool("no-wait")
	if err != nil {
		return fmt.Errorf("getting no-wait flag: %w", err)
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	cmd.Println("Synchronising collection...")

	var result *domain.SyncResult
	err = syncWithProgress(ctx, cmd, syncEngine, func() error {
		info, err := syncEngine.Start(ctx)
		if err != nil {
			return err
		}
		logCollection(cmd, info)

		// Start already ran a pass when refresh-on-start is enabled.
		started := syncEngine.Status().LastResult
		switch {
		case full:
			result, err = syncEngine.Refresh(ctx, time.Time{})
		case started == nil:
			result, err = syncEngine.RefreshIncremental(ctx)
		default:
			result = started
		}
		return err
	})
	if err != nil {
		return fmt.Errorf("sync failed: %w", err)
	}

	cmd.Printf("Inserted %d, updated %d, unchanged %d, failed %d\n",
		result.Inserted, result.Updated, result.Unchanged, result.Failed)

	if pending := syncEngine.Status().PendingDownloads; pending > 0 {
		if noWait {
			cmd.Printf("%d asset downloads still running.\n", pending)
			return nil
		}
		cmd.Printf("Waiting for %d asset downloads...\n", pending)
		if err := syncEngine.Wait(ctx); err != nil {
			return fmt.Errorf("waiting for downloads: %w", err)
		}
	}

	if result.Failed > 0 {
		cmd.Println("Some records failed; the last sync time was not advanced.")
		return nil
	}
	cmd.Println("Collection synchronised successfully.")
	return nil
}

func logCollection(cmd *cobra.Command, info *domain.CollectionInfo) {
	if info == nil {
		return
	}
	cmd.Printf("Collection %s: %d records\n", info.Name, info.Records)
}

// syncWithProgress runs fn while displaying progress updates on a terminal.
func syncWithProgress(
	ctx context.Context,
	cmd *cobra.Command,
	engine driving.SyncEngine,
	fn func() error,
) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- fn()
	}()

	interactive := isTerminal(cmd)

	// Poll status every 500ms
	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()

	lastCount := 0
	for {
		select {
		case err := <-errCh:
			if interactive && lastCount > 0 {
				cmd.Println()
			}
			return err
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			status := engine.Status()
			if interactive && status.Running && status.RecordsProcessed > lastCount {
				cmd.Printf("\rProcessing... %d records (%d errors)", status.RecordsProcessed, status.ErrorCount)
				lastCount = status.RecordsProcessed
			}
		}
	}
}

// isTerminal reports whether the command writes to a terminal.
func isTerminal(cmd *cobra.Command) bool {
	f, ok := cmd.OutOrStdout().(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}
