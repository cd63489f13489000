package driving

import "github.com/custodia-labs/larder/internal/core/domain"

// SettingsService manages application settings.
type SettingsService interface {
	// Get retrieves current application settings, with environment
	// overrides applied.
	Get() (*domain.AppSettings, error)

	// Save persists application settings.
	Save(settings *domain.AppSettings) error

	// Set updates a single setting by its config key.
	Set(key, value string) error

	// Unset removes a setting so its default applies again.
	Unset(key string) error

	// Validate checks that the current settings are usable for syncing.
	Validate() error

	// GetDefaults returns default settings.
	GetDefaults() domain.AppSettings
}
