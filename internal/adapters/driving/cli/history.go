package cli

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

var syncHistoryCmd = &cobra.Command{
	Use:   "history",
	Short: "Show recent scheduled refresh runs",
	Long: `Lists the most recent feed refresh runs made by the background scheduler,
newest first, with how many records each run stored or failed to store.`,
	Args: cobra.NoArgs,
	RunE: runSyncHistory,
}

func init() {
	syncHistoryCmd.Flags().IntP("limit", "n", 10, "number of runs to show")
	syncCmd.AddCommand(syncHistoryCmd)
}

func runSyncHistory(cmd *cobra.Command, _ []string) error {
	if schedulerService == nil {
		return errors.New("scheduler not configured")
	}

	limit, err := cmd.Flags().GetInt("limit")
	if err != nil {
		return fmt.Errorf("getting limit flag: %w", err)
	}
	if limit <= 0 {
		return errors.New("limit must be positive")
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	runs, err := schedulerService.History(ctx, limit)
	if err != nil {
		return fmt.Errorf("reading refresh history: %w", err)
	}
	if len(runs) == 0 {
		cmd.Println("No refresh runs recorded.")
		return nil
	}

	for _, run := range runs {
		took := run.EndedAt.Sub(run.StartedAt).Round(time.Millisecond)
		if !run.Success {
			cmd.Printf("%s  %-8s  error: %s\n", run.StartedAt.Local().Format(time.DateTime), took, run.Error)
			continue
		}
		cmd.Printf("%s  %-8s  ok: %d stored, %d failed\n",
			run.StartedAt.Local().Format(time.DateTime), took, run.ItemsProcessed, run.ItemsFailed)
	}
	return nil
}
