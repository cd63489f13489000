package cli

import (
	"errors"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/larder/internal/adapters/driving/tui"
)

var dashboardCmd = &cobra.Command{
	Use:     "dashboard",
	Aliases: []string{"tui"},
	Short:   "Interactive sync and cache dashboard",
	Long: `Opens the collection and shows sync progress, pending downloads and
cache generations. Press r to refresh, f for a full refresh, c to apply the
configured cache generation and q to quit.`,
	Args: cobra.NoArgs,
	RunE: runDashboard,
}

func init() {
	rootCmd.AddCommand(dashboardCmd)
}

func runDashboard(cmd *cobra.Command, _ []string) error {
	if syncEngine == nil || recordService == nil {
		return errors.New("sync service not configured")
	}
	if !isTerminal(cmd) {
		return errors.New("dashboard requires an interactive terminal")
	}

	return tui.Run(cmd.Context(), &tui.Ports{
		Sync:    syncEngine,
		Records: recordService,
		Cache:   cacheLifecycle,
	})
}
