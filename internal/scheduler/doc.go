// Package scheduler owns the deletion lifecycle.
//
// # Overview
//
// A deletion request becomes a durable record that moves through
//
//	scheduled -> reminder_sent -> awaiting_confirmation -> executing
//
// and ends in completion (record removed), cancellation (record removed) or
// failure (retried per policy). The engine is the single writer of records;
// it re-hydrates from the event store on every tick, so a restart picks up
// exactly where the store says things stand.
//
// # Ticks
//
// A poll loop calls Tick on a fixed interval (or a cron spec). One timestamp
// is captured per tick and used for every decision in that pass, records are
// processed in ascending execute_at order, and one record's failure never
// blocks the rest of the batch.
//
// # Durability ordering
//
// State transitions that gate the destructive action (entering executing) are
// persisted before the action runs; the executor is required to be idempotent
// so a crash between persist and completion is recovered by re-running.
// Reminders and confirmation requests are sent before their transition is
// persisted: a crash there can double-send a message, which is accepted, but
// the persisted transition blocks any further re-sends.
package scheduler
