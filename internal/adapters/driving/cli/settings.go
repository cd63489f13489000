package cli

import (
	"bufio"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/larder/internal/core/domain"
)

var settingsCmd = &cobra.Command{
	Use:   "settings",
	Short: "Manage application settings",
	Long: `View and configure the feed, collection, assets, refresh and cache settings.

Settings live in config.toml under the larder home directory. LARDER_*
environment variables override the file.`,
	RunE: runSettingsShow,
}

var settingsShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current settings",
	RunE:  runSettingsShow,
}

var settingsSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a single setting",
	Long: `Set one setting by its config key, for example:

  larder settings set feed.base_url https://example.com/api/nodes
  larder settings set feed.asset_fields image,video
  larder settings set cache.version 2
  larder settings set refresh.interval_ms 60000`,
	Args: cobra.ExactArgs(2),
	RunE: runSettingsSet,
}

var settingsUnsetCmd = &cobra.Command{
	Use:   "unset <key>",
	Short: "Reset a setting to its default",
	Args:  cobra.ExactArgs(1),
	RunE:  runSettingsUnset,
}

var settingsWizardCmd = &cobra.Command{
	Use:   "wizard",
	Short: "Interactive setup wizard",
	Long:  `Run an interactive wizard to configure the feed and cache step by step.`,
	RunE:  runSettingsWizard,
}

func init() {
	settingsCmd.AddCommand(settingsShowCmd)
	settingsCmd.AddCommand(settingsSetCmd)
	settingsCmd.AddCommand(settingsUnsetCmd)
	settingsCmd.AddCommand(settingsWizardCmd)
	rootCmd.AddCommand(settingsCmd)
}

func runSettingsShow(cmd *cobra.Command, _ []string) error {
	if settingsService == nil {
		return errors.New("settings service not configured")
	}

	settings, err := settingsService.Get()
	if err != nil {
		return fmt.Errorf("failed to get settings: %w", err)
	}

	cmd.Println("Current Settings")
	cmd.Println("================")
	cmd.Println()

	cmd.Println("[Feed]")
	cmd.Printf("  Base URL: %s\n", orNotSet(maskURL(settings.Feed.BaseURL)))
	cmd.Printf("  URL style: %s\n", settings.Feed.URLStyle)
	cmd.Printf("  Identity: %s\n", settings.Feed.Identity.Description())
	if settings.Feed.Identity == domain.IdentityPassthrough {
		cmd.Printf("  ID field: %s\n", settings.Feed.IDField)
	}
	cmd.Printf("  Asset fields: %s\n", orNotSet(strings.Join(settings.Feed.AssetFields, ", ")))
	cmd.Printf("  Asset policy: %s\n", settings.Feed.AssetPolicy.Description())
	cmd.Printf("  Timeout: %s\n", settings.Feed.Timeout)
	cmd.Println()

	cmd.Println("[Collection]")
	cmd.Printf("  Name: %s\n", settings.Collection.Name)
	if settings.Collection.QuotaMB > 0 {
		cmd.Printf("  Quota: %d MB\n", settings.Collection.QuotaMB)
	} else {
		cmd.Println("  Quota: unlimited")
	}
	cmd.Println()

	cmd.Println("[Assets]")
	cmd.Printf("  Quota: %d MB\n", settings.Assets.QuotaBytes/(1024*1024))
	cmd.Printf("  Base URI: %s\n", settings.Assets.BaseURI)
	cmd.Printf("  Concurrency: %d\n", settings.Assets.Concurrency)
	cmd.Println()

	cmd.Println("[Refresh]")
	cmd.Printf("  On start: %s\n", yesNo(settings.Refresh.OnStart))
	cmd.Printf("  Automatic: %s\n", yesNo(settings.Refresh.Auto))
	cmd.Printf("  Interval: %s\n", settings.Refresh.Interval)
	cmd.Println()

	cmd.Println("[Cache]")
	cmd.Printf("  Generation: %s\n", settings.Cache.GenerationName())
	cmd.Printf("  Origin: %s\n", orNotSet(settings.Cache.Origin))
	cmd.Printf("  Manifest: %s\n", strings.Join(settings.Cache.Manifest, ", "))
	cmd.Printf("  Listen: %s\n", settings.Cache.Listen)
	cmd.Println()

	if err := settingsService.Validate(); err != nil {
		cmd.Printf("Warning: %v\n", err)
		cmd.Println("Run 'larder settings wizard' to fix configuration issues.")
	} else {
		cmd.Println("Configuration is valid.")
	}

	return nil
}

func runSettingsSet(cmd *cobra.Command, args []string) error {
	if settingsService == nil {
		return errors.New("settings service not configured")
	}

	key, value := args[0], args[1]
	if err := settingsService.Set(key, value); err != nil {
		return fmt.Errorf("failed to set %s: %w", key, err)
	}

	cmd.Printf("Set %s = %s\n", key, value)
	return nil
}

func runSettingsUnset(cmd *cobra.Command, args []string) error {
	if settingsService == nil {
		return errors.New("settings service not configured")
	}

	if err := settingsService.Unset(args[0]); err != nil {
		return fmt.Errorf("failed to unset %s: %w", args[0], err)
	}

	cmd.Printf("Unset %s\n", args[0])
	return nil
}

func runSettingsWizard(cmd *cobra.Command, _ []string) error {
	if settingsService == nil {
		return errors.New("settings service not configured")
	}

	settings, err := settingsService.Get()
	if err != nil {
		return fmt.Errorf("failed to get settings: %w", err)
	}

	cmd.Println("larder Settings Wizard")
	cmd.Println("======================")
	cmd.Println()

	reader := bufio.NewReader(cmd.InOrStdin())

	// Step 1: Feed
	cmd.Println("Step 1: Feed")
	cmd.Println("------------")
	settings.Feed.BaseURL = prompt(cmd, reader, "Feed URL", settings.Feed.BaseURL)
	cmd.Println()

	cmd.Println("Identity mode:")
	modes := domain.AllIdentityModes()
	for i, mode := range modes {
		cmd.Printf("  %d. %s\n", i+1, mode.Description())
	}
	cmd.Print("\nEnter choice [1]: ")
	settings.Feed.Identity = modes[parseChoice(readLine(reader), len(modes), 1)-1]
	if settings.Feed.Identity == domain.IdentityPassthrough {
		settings.Feed.IDField = prompt(cmd, reader, "ID field", settings.Feed.IDField)
	}
	cmd.Println()

	fields := prompt(cmd, reader, "Asset fields (comma separated)", strings.Join(settings.Feed.AssetFields, ","))
	settings.Feed.AssetFields = splitList(fields)

	cmd.Println("Asset policy:")
	policies := domain.AllAssetPolicies()
	for i, p := range policies {
		cmd.Printf("  %d. %s\n", i+1, p.Description())
	}
	cmd.Print("\nEnter choice [1]: ")
	settings.Feed.AssetPolicy = policies[parseChoice(readLine(reader), len(policies), 1)-1]
	cmd.Println()

	// Step 2: Cache
	cmd.Println("Step 2: Cache")
	cmd.Println("-------------")
	settings.Cache.Origin = prompt(cmd, reader, "Origin site", settings.Cache.Origin)
	cmd.Println()

	if err := settingsService.Save(settings); err != nil {
		return fmt.Errorf("failed to save settings: %w", err)
	}

	if err := settingsService.Validate(); err != nil {
		cmd.Printf("Saved, but configuration is incomplete: %v\n", err)
		return nil
	}
	cmd.Println("Settings saved.")
	return nil
}

// Helper functions.

// prompt asks for a value, keeping current when the answer is empty.
func prompt(cmd *cobra.Command, reader *bufio.Reader, label, current string) string {
	if current != "" {
		cmd.Printf("%s [%s]: ", label, current)
	} else {
		cmd.Printf("%s: ", label)
	}
	if v := readLine(reader); v != "" {
		return v
	}
	return current
}

//nolint:errcheck // CLI helper, error ignored for UX
func readLine(reader *bufio.Reader) string {
	input, _ := reader.ReadString('\n')
	return strings.TrimSpace(input)
}

func parseChoice(input string, maxVal, defaultVal int) int {
	if input == "" {
		return defaultVal
	}
	val, err := strconv.Atoi(input)
	if err != nil || val < 1 || val > maxVal {
		return defaultVal
	}
	return val
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// maskURL hides a password embedded in a URL.
func maskURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.User == nil {
		return raw
	}
	pw, ok := u.User.Password()
	if !ok {
		return raw
	}
	user := u.User.Username()
	u.User = nil
	return strings.Replace(u.String(), "://", "://"+user+":"+maskSecret(pw)+"@", 1)
}

func maskSecret(secret string) string {
	if len(secret) <= 8 {
		return "****"
	}
	return secret[:4] + "..." + secret[len(secret)-4:]
}

func orNotSet(s string) string {
	if s == "" {
		return "(not set)"
	}
	return s
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}
