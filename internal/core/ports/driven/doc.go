// Package driven defines the interfaces that core calls OUT to infrastructure.
//
// These are the "driven" or "secondary" ports in hexagonal architecture.
// Core services depend on these interfaces, and infrastructure adapters
// implement them.
//
// # Required Interfaces
//
// These must be provided for the application to function:
//
//   - FeedClient: Fetches the remote delta feed
//   - RecordStore: Revisioned record persistence
//   - SyncStateStore: Sync progress persistence
//   - AssetStore: Quota-bound blob storage for downloaded assets
//   - CacheStorage: Named HTTP cache generations
//   - HTTPDoer: Outbound HTTP for assets and cache fetches
//   - ConfigStore: Application configuration
//
// # Optional Interfaces
//
// These can be nil - the application degrades gracefully:
//
//   - SchedulerStore: Scheduler state. Without it, tasks start fresh each run.
//   - Metrics: Operational counters. Without it, NopMetrics is used.
//
// # Import Rules
//
//   - Can Import: domain package only
//   - Cannot Import: Any adapter package
package driven
