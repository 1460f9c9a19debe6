package eventstore

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

var ErrNotFound = errors.New("record not found")

// State is the lifecycle state of a scheduled deletion.
type State string

const (
	StateScheduled            State = "scheduled"
	StateReminderSent         State = "reminder_sent"
	StateAwaitingConfirmation State = "awaiting_confirmation"
	StateExecuting            State = "executing"
	StateCompleted            State = "completed"
	StateCancelled            State = "cancelled"
	StateFailed               State = "failed"
)

// Live reports whether a record in this state still occupies its target.
// Completed and Cancelled records are removed from the store and never live.
func (s State) Live() bool {
	return s != StateCompleted && s != StateCancelled
}

func (s State) Valid() bool {
	switch s {
	case StateScheduled, StateReminderSent, StateAwaitingConfirmation,
		StateExecuting, StateCompleted, StateCancelled, StateFailed:
		return true
	}
	return false
}

// Record is a durable scheduled deletion. The scheduling engine is its only
// writer; the store treats it as an opaque row keyed by ID.
type Record struct {
	ID            string `json:"id"`
	TargetID      string `json:"target_id"`
	TargetName    string `json:"target_name,omitempty"`
	RequestedBy   string `json:"requested_by"`
	OriginChannel string `json:"origin_channel"`

	CreatedAt  time.Time `json:"created_at"`
	ExecuteAt  time.Time `json:"execute_at"`
	ReminderAt time.Time `json:"reminder_at"`

	State     State  `json:"state"`
	LastError string `json:"last_error,omitempty"`
	Attempts  int    `json:"attempts"`

	// LastAttemptAt drives the retry interval for failed executions.
	LastAttemptAt time.Time `json:"last_attempt_at,omitempty"`
	// ConfirmRequestedAt anchors the confirmation grace window across restarts.
	ConfirmRequestedAt time.Time `json:"confirm_requested_at,omitempty"`
}

// Validate rejects malformed records so a corrupt row quarantines instead of
// crashing a tick.
func (r Record) Validate() error {
	if strings.TrimSpace(r.ID) == "" {
		return errors.New("empty id")
	}
	if strings.TrimSpace(r.TargetID) == "" {
		return errors.New("empty target_id")
	}
	if !r.State.Valid() {
		return fmt.Errorf("unknown state %q", r.State)
	}
	if r.ExecuteAt.IsZero() || r.ReminderAt.IsZero() {
		return errors.New("missing timestamps")
	}
	if !r.ReminderAt.Before(r.ExecuteAt) {
		return fmt.Errorf("reminder_at %s not before execute_at %s", r.ReminderAt.Format(time.RFC3339), r.ExecuteAt.Format(time.RFC3339))
	}
	return nil
}

// Config configures the event store.
//
// If Driver is empty, "memory" is used.
type Config struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration // sqlite only; 0 means default
}
