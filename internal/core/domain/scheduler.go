package domain

import "time"

// ScheduledTask represents a recurring background task.
type ScheduledTask struct {
	// ID is the unique identifier for the task.
	ID string

	// Name is a human-readable name for the task.
	Name string

	// Interval defines how often the task should run.
	Interval time.Duration

	// LastRun is when the task last ran.
	LastRun time.Time

	// NextRun is when the task should run next.
	NextRun time.Time

	// LastError contains the last error message, if any.
	LastError string

	// LastSuccess is when the task last completed successfully.
	LastSuccess time.Time

	// Enabled indicates whether the task is active.
	Enabled bool
}

// TaskResult represents the outcome of a task execution.
type TaskResult struct {
	// TaskID identifies which task was run.
	TaskID string

	// StartedAt is when the task started.
	StartedAt time.Time

	// EndedAt is when the task completed.
	EndedAt time.Time

	// Success indicates whether the task completed without error.
	Success bool

	// Error contains the error message if Success is false.
	Error string

	// ItemsProcessed is the number of records inserted or updated.
	ItemsProcessed int

	// ItemsFailed is the number of records the pass could not store.
	ItemsFailed int
}

// SchedulerConfig holds scheduler configuration.
type SchedulerConfig struct {
	// Enabled is the master switch for the scheduler.
	Enabled bool

	// TickInterval is how often due tasks are checked.
	TickInterval time.Duration

	// TaskConfigs holds per-task configuration.
	TaskConfigs map[string]TaskConfig
}

// TaskConfig holds configuration for a single task.
type TaskConfig struct {
	// Enabled indicates whether this task should run.
	Enabled bool

	// Interval defines how often the task should run.
	Interval time.Duration
}

// GetTaskConfig returns the configuration for a specific task.
// Returns a zero TaskConfig if the task is not configured.
func (c *SchedulerConfig) GetTaskConfig(taskID string) TaskConfig {
	if c.TaskConfigs == nil {
		return TaskConfig{}
	}
	return c.TaskConfigs[taskID]
}

// DefaultSchedulerConfig returns sensible defaults for the scheduler.
// Feed refresh is disabled until auto refresh is configured.
func DefaultSchedulerConfig() SchedulerConfig {
	return SchedulerConfig{
		Enabled:      true,
		TickInterval: 1 * time.Minute,
		TaskConfigs: map[string]TaskConfig{
			TaskIDFeedRefresh: {
				Enabled:  false,
				Interval: 30 * time.Second,
			},
		},
	}
}

// SchedulerConfigFromSettings builds the scheduler configuration for the
// refresh settings. The tick never exceeds the refresh interval.
func SchedulerConfigFromSettings(r RefreshSettings) SchedulerConfig {
	cfg := DefaultSchedulerConfig()
	cfg.TaskConfigs[TaskIDFeedRefresh] = TaskConfig{
		Enabled:  r.Auto,
		Interval: r.Interval,
	}
	if r.Interval > 0 && r.Interval < cfg.TickInterval {
		cfg.TickInterval = r.Interval
	}
	return cfg
}

// Task IDs for built-in tasks.
const (
	TaskIDFeedRefresh = "feed-refresh"
)
