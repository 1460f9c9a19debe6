package scheduler

import (
	"context"
	"time"
)

// Notifier is the narrow delivery interface the engine depends on.
// Implemented by notifier.Service; faked in tests.
type Notifier interface {
	Notify(ctx context.Context, destination, text string) error
}

// RetryConfig controls what happens to failed executions.
type RetryConfig struct {
	// Interval between retry attempts.
	Interval time.Duration
	// MaxAttempts before the engine gives up, notifies, and drops the
	// record. 0 retries forever.
	MaxAttempts int
}

// Config controls the engine's timing policy.
type Config struct {
	// DeleteAfter is how far in the future a new request is scheduled.
	DeleteAfter time.Duration
	// ReminderLead is how long before execution the reminder goes out.
	ReminderLead time.Duration
	// AdapterTimeout bounds every store/notifier/executor call so one slow
	// collaborator cannot stall a whole tick.
	AdapterTimeout time.Duration

	Retry RetryConfig
}

func (c Config) withDefaults() Config {
	if c.DeleteAfter <= 0 {
		c.DeleteAfter = 48 * time.Hour
	}
	if c.ReminderLead <= 0 {
		c.ReminderLead = 24 * time.Hour
	}
	// reminder_at must stay strictly before execute_at.
	if c.ReminderLead >= c.DeleteAfter {
		c.ReminderLead = c.DeleteAfter / 2
	}
	if c.AdapterTimeout <= 0 {
		c.AdapterTimeout = 30 * time.Second
	}
	if c.Retry.Interval <= 0 {
		c.Retry.Interval = 5 * time.Minute
	}
	if c.Retry.MaxAttempts < 0 {
		c.Retry.MaxAttempts = 0
	}
	return c
}

// ScheduleRequest is a validated "schedule a deletion" command.
type ScheduleRequest struct {
	TargetID      string
	TargetName    string
	RequestedBy   string
	OriginChannel string
}
