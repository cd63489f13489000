// Package services implements the driving port interfaces.
// Services contain the sync and cache logic and orchestrate
// calls to driven ports (adapters).
package services
