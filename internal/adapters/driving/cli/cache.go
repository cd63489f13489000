package cli

import (
	"errors"
	"fmt"
	"sort"

	"github.com/spf13/cobra"
)

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Manage response cache generations",
	Long: `Inspect and update the HTTP response cache.

The cache is kept in named generations. Bumping cache.version and running
'larder cache apply' installs the new generation, prefetches the manifest and
deletes every older generation.`,
	RunE: runCacheStatus,
}

var cacheStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "List cache generations",
	RunE:  runCacheStatus,
}

var cacheApplyCmd = &cobra.Command{
	Use:   "apply",
	Short: "Install the configured generation and purge old ones",
	RunE:  runCacheApply,
}

func init() {
	cacheCmd.AddCommand(cacheStatusCmd)
	cacheCmd.AddCommand(cacheApplyCmd)
	rootCmd.AddCommand(cacheCmd)
}

func runCacheStatus(cmd *cobra.Command, _ []string) error {
	if cacheLifecycle == nil {
		return errors.New("cache service not configured")
	}

	versions, err := cacheLifecycle.Versions()
	if err != nil {
		return fmt.Errorf("failed to load cache settings: %w", err)
	}
	gens, err := versions.Generations(cmd.Context())
	if err != nil {
		return fmt.Errorf("failed to list generations: %w", err)
	}

	cmd.Printf("Configured generation: %s\n", versions.Name())
	if len(gens) == 0 {
		cmd.Println("No cache generations stored.")
		return nil
	}

	sort.Slice(gens, func(i, j int) bool { return gens[i].Name < gens[j].Name })
	cmd.Println()
	for _, g := range gens {
		marker := " "
		if g.Current {
			marker = "*"
		}
		cmd.Printf("%s %-24s %d entries\n", marker, g.Name, g.Entries)
	}
	return nil
}

func runCacheApply(cmd *cobra.Command, _ []string) error {
	if cacheLifecycle == nil {
		return errors.New("cache service not configured")
	}

	report, deleted, err := cacheLifecycle.Apply(cmd.Context())
	if err != nil {
		return fmt.Errorf("cache install failed: %w", err)
	}
	if report == nil {
		cmd.Println("Cache is up to date.")
		return nil
	}

	cmd.Printf("Installed %s: %d prefetched, %d failed\n", report.Generation, len(report.Stored), len(report.Failed))
	failed := make([]string, 0, len(report.Failed))
	for u := range report.Failed {
		failed = append(failed, u)
	}
	sort.Strings(failed)
	for _, u := range failed {
		cmd.Printf("  failed %s: %v\n", u, report.Failed[u])
	}
	for _, name := range deleted {
		cmd.Printf("Deleted %s\n", name)
	}
	return nil
}
