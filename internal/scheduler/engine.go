package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"reaperd/internal/confirm"
	"reaperd/internal/eventbus"
	"reaperd/internal/eventstore"
	"reaperd/internal/executor"
	logx "reaperd/pkg/logx"
)

// Engine is the single authority over scheduled-deletion transitions.
//
// All mutation (commands and ticks) serializes on one mutex, so no two
// mutations of the same record interleave and a tick runs to completion
// before the next command or tick touches the store.
type Engine struct {
	mu sync.Mutex

	cfg    Config
	store  eventstore.Store
	gate   *confirm.Gate
	exec   executor.Executor
	notify Notifier
	bus    eventbus.Bus
	log    logx.Logger

	now   func() time.Time
	newID func() string
}

func NewEngine(cfg Config, store eventstore.Store, gate *confirm.Gate, exec executor.Executor, notify Notifier, bus eventbus.Bus, log logx.Logger) *Engine {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Engine{
		cfg:    cfg.withDefaults(),
		store:  store,
		gate:   gate,
		exec:   exec,
		notify: notify,
		bus:    bus,
		log:    log,
		now:    time.Now,
		newID:  uuid.NewString,
	}
}

// Apply swaps timing policy at runtime (config hot reload).
func (e *Engine) Apply(cfg Config) {
	e.mu.Lock()
	e.cfg = cfg.withDefaults()
	e.mu.Unlock()
}

func (e *Engine) adapterCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, e.cfg.AdapterTimeout)
}

// Schedule creates a new deletion record. It fails with ErrDuplicatePending
// if a live record already exists for the target. No notification goes out
// on schedule; the first outward message is the reminder.
func (e *Engine) Schedule(ctx context.Context, req ScheduleRequest) (eventstore.Record, error) {
	if strings.TrimSpace(req.TargetID) == "" {
		return eventstore.Record{}, errors.New("target id is empty")
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	recs, err := e.listLocked(ctx)
	if err != nil {
		return eventstore.Record{}, err
	}
	for _, r := range recs {
		if r.TargetID == req.TargetID && r.State.Live() {
			return eventstore.Record{}, fmt.Errorf("target %s: %w", req.TargetID, ErrDuplicatePending)
		}
	}

	now := e.now()
	executeAt := now.Add(e.cfg.DeleteAfter)
	rec := eventstore.Record{
		ID:            e.newID(),
		TargetID:      req.TargetID,
		TargetName:    req.TargetName,
		RequestedBy:   req.RequestedBy,
		OriginChannel: req.OriginChannel,
		CreatedAt:     now,
		ExecuteAt:     executeAt,
		ReminderAt:    executeAt.Add(-e.cfg.ReminderLead),
		State:         eventstore.StateScheduled,
	}
	if err := e.saveLocked(ctx, rec); err != nil {
		return eventstore.Record{}, err
	}

	e.publish(eventbus.TypeScheduled, rec)
	e.log.Info("deletion scheduled",
		logx.String("id", rec.ID),
		logx.String("target", rec.TargetID),
		logx.String("by", rec.RequestedBy),
		logx.Time("execute_at", rec.ExecuteAt))
	return rec, nil
}

// Cancel removes a pending record and emits a cancellation notice. It is
// valid from scheduled, reminder_sent and awaiting_confirmation; a record
// that is executing (or failed) cannot be cancelled.
func (e *Engine) Cancel(ctx context.Context, id string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	rec, err := e.getLocked(ctx, id)
	if err != nil {
		return err
	}
	switch rec.State {
	case eventstore.StateScheduled, eventstore.StateReminderSent, eventstore.StateAwaitingConfirmation:
		// cancellable
	default:
		return fmt.Errorf("cancel %s in state %s: %w", id, rec.State, ErrInvalidState)
	}

	if err := e.deleteLocked(ctx, id); err != nil {
		return err
	}
	e.gate.Forget(id)

	e.sendBoth(ctx, rec, cancelledText(rec))
	e.publish(eventbus.TypeCancelled, rec)
	e.log.Info("deletion cancelled", logx.String("id", id), logx.String("target", rec.TargetID))
	return nil
}

// Confirm records an explicit approval for a record awaiting one.
func (e *Engine) Confirm(ctx context.Context, id, byUser string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	rec, err := e.getLocked(ctx, id)
	if err != nil {
		return err
	}
	if rec.State != eventstore.StateAwaitingConfirmation {
		return fmt.Errorf("confirm %s in state %s: %w", id, rec.State, ErrNotPending)
	}

	// The persisted record is the outstanding confirmation. After a restart
	// the in-memory gate is empty until the next tick re-registers it, so
	// re-hydrate here too before recording the approval.
	anchor := rec.ConfirmRequestedAt
	if anchor.IsZero() {
		anchor = e.now()
	}
	e.gate.RequestConfirmation(rec.ID, rec.RequestedBy, anchor)

	if err := e.gate.Confirm(id, byUser); err != nil {
		return fmt.Errorf("confirm %s: %w", id, ErrNotPending)
	}

	e.publish(eventbus.TypeConfirmed, rec)
	e.log.Info("deletion confirmed", logx.String("id", id), logx.String("by", byUser))
	return nil
}

// List returns all live records in ascending execute_at order.
func (e *Engine) List(ctx context.Context) ([]eventstore.Record, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	recs, err := e.listLocked(ctx)
	if err != nil {
		return nil, err
	}
	sort.Slice(recs, func(i, j int) bool { return recs[i].ExecuteAt.Before(recs[j].ExecuteAt) })
	return recs, nil
}

// Tick runs one evaluation pass over all live records at the captured
// timestamp. Per-record errors are isolated: they are logged, recorded on
// the record where appropriate, and never abort the rest of the batch.
func (e *Engine) Tick(ctx context.Context, now time.Time) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	recs, err := e.listLocked(ctx)
	if err != nil {
		return fmt.Errorf("tick: list records: %w", err)
	}

	// Earlier-due deletions are handled first under load.
	sort.Slice(recs, func(i, j int) bool { return recs[i].ExecuteAt.Before(recs[j].ExecuteAt) })

	for _, rec := range recs {
		if err := rec.Validate(); err != nil {
			// Quarantine: skip without touching it, keep the tick alive.
			e.log.Warn("quarantined malformed record", logx.String("id", rec.ID), logx.Err(err))
			continue
		}
		if err := e.processLocked(ctx, now, rec); err != nil {
			e.log.Error("record processing failed",
				logx.String("id", rec.ID),
				logx.String("target", rec.TargetID),
				logx.Err(err))
		}
	}
	return nil
}

func (e *Engine) processLocked(ctx context.Context, now time.Time, rec eventstore.Record) error {
	switch rec.State {
	case eventstore.StateScheduled:
		if now.Before(rec.ReminderAt) {
			return nil
		}
		if now.Before(rec.ExecuteAt) {
			return e.remindLocked(ctx, rec)
		}
		// Already past due (e.g. long downtime): skip the stale reminder and
		// go straight to the confirmation path.
		return e.enterAwaitingLocked(ctx, now, rec)

	case eventstore.StateReminderSent:
		if now.Before(rec.ExecuteAt) {
			return nil
		}
		return e.enterAwaitingLocked(ctx, now, rec)

	case eventstore.StateAwaitingConfirmation:
		// Re-register after a restart; the persisted anchor keeps the grace
		// window from extending.
		anchor := rec.ConfirmRequestedAt
		if anchor.IsZero() {
			anchor = now
		}
		e.gate.RequestConfirmation(rec.ID, rec.RequestedBy, anchor)
		if e.gate.IsApproved(rec.ID, now) {
			return e.executeLocked(ctx, now, rec)
		}
		return nil

	case eventstore.StateExecuting:
		// Persisted as executing but no call is in flight: the process died
		// mid-execution. The executor is idempotent, so run it again.
		e.log.Warn("recovering interrupted execution", logx.String("id", rec.ID), logx.String("target", rec.TargetID))
		return e.executeLocked(ctx, now, rec)

	case eventstore.StateFailed:
		return e.retryLocked(ctx, now, rec)
	}
	return nil
}

// remindLocked sends the reminder, then persists reminder_sent. A crash in
// between double-sends at most once: the persisted transition blocks
// re-entry.
func (e *Engine) remindLocked(ctx context.Context, rec eventstore.Record) error {
	e.sendBoth(ctx, rec, reminderText(rec))

	rec.State = eventstore.StateReminderSent
	rec.LastError = ""
	if err := e.saveLocked(ctx, rec); err != nil {
		return fmt.Errorf("persist reminder_sent: %w", err)
	}
	e.publish(eventbus.TypeReminded, rec)
	e.log.Info("reminder sent", logx.String("id", rec.ID), logx.String("target", rec.TargetID))
	return nil
}

// enterAwaitingLocked transitions into awaiting_confirmation, registers with
// the gate, and either executes immediately (grace elapsed / zero grace) or
// sends the confirmation request. The request is sent before the transition
// is persisted, like the reminder: a crash in between re-enters this path on
// the next tick and re-sends, so a duplicate request is possible but a
// silently lost one is not. Once persisted, the state blocks re-sending.
func (e *Engine) enterAwaitingLocked(ctx context.Context, now time.Time, rec eventstore.Record) error {
	rec.State = eventstore.StateAwaitingConfirmation
	rec.ConfirmRequestedAt = now
	rec.LastError = ""
	e.gate.RequestConfirmation(rec.ID, rec.RequestedBy, now)

	if e.gate.IsApproved(rec.ID, now) {
		if err := e.saveLocked(ctx, rec); err != nil {
			return fmt.Errorf("persist awaiting_confirmation: %w", err)
		}
		e.publish(eventbus.TypeAwaitConfirm, rec)
		return e.executeLocked(ctx, now, rec)
	}

	e.sendBoth(ctx, rec, confirmRequestText(rec))
	if err := e.saveLocked(ctx, rec); err != nil {
		return fmt.Errorf("persist awaiting_confirmation: %w", err)
	}
	e.publish(eventbus.TypeAwaitConfirm, rec)
	e.log.Info("confirmation requested", logx.String("id", rec.ID), logx.String("target", rec.TargetID))
	return nil
}

// executeLocked persists the executing transition, runs the destructive
// action, and persists the outcome. The executing row is written before the
// call so a crash is recoverable, and the executor's idempotency makes the
// re-run safe.
func (e *Engine) executeLocked(ctx context.Context, now time.Time, rec eventstore.Record) error {
	rec.State = eventstore.StateExecuting
	rec.Attempts++
	rec.LastAttemptAt = now
	if err := e.saveLocked(ctx, rec); err != nil {
		return fmt.Errorf("persist executing: %w", err)
	}

	execCtx, cancel := e.adapterCtx(ctx)
	execErr := e.exec.Execute(execCtx, rec.TargetID)
	cancel()

	if execErr != nil {
		rec.State = eventstore.StateFailed
		rec.LastError = execErr.Error()
		if err := e.saveLocked(ctx, rec); err != nil {
			return fmt.Errorf("persist failed state: %w", err)
		}
		e.publish(eventbus.TypeFailed, rec)
		e.log.Warn("execution failed",
			logx.String("id", rec.ID),
			logx.String("target", rec.TargetID),
			logx.Int("attempts", rec.Attempts),
			logx.Err(execErr))
		return nil
	}

	// Completed records are removed, not kept: the store only holds live work.
	if err := e.deleteLocked(ctx, rec.ID); err != nil {
		return fmt.Errorf("remove completed record: %w", err)
	}
	e.gate.Forget(rec.ID)

	rec.State = eventstore.StateCompleted
	rec.LastError = ""
	e.sendBoth(ctx, rec, completedText(rec))
	e.publish(eventbus.TypeExecuted, rec)
	e.log.Info("deletion executed", logx.String("id", rec.ID), logx.String("target", rec.TargetID), logx.Int("attempts", rec.Attempts))
	return nil
}

func (e *Engine) retryLocked(ctx context.Context, now time.Time, rec eventstore.Record) error {
	if e.cfg.Retry.MaxAttempts > 0 && rec.Attempts >= e.cfg.Retry.MaxAttempts {
		// Give up: tell both parties once and drop the record so it does not
		// haunt every future tick.
		if err := e.deleteLocked(ctx, rec.ID); err != nil {
			return fmt.Errorf("remove abandoned record: %w", err)
		}
		e.gate.Forget(rec.ID)
		e.sendBoth(ctx, rec, gaveUpText(rec))
		e.publish(eventbus.TypeGaveUp, rec)
		e.log.Error("giving up on deletion",
			logx.String("id", rec.ID),
			logx.String("target", rec.TargetID),
			logx.Int("attempts", rec.Attempts),
			logx.String("last_error", rec.LastError))
		return nil
	}
	if now.Before(rec.LastAttemptAt.Add(e.cfg.Retry.Interval)) {
		return nil
	}
	return e.executeLocked(ctx, now, rec)
}

// ---- store helpers (single place for adapter timeouts) ----

func (e *Engine) listLocked(ctx context.Context) ([]eventstore.Record, error) {
	cctx, cancel := e.adapterCtx(ctx)
	defer cancel()
	return e.store.List(cctx)
}

func (e *Engine) getLocked(ctx context.Context, id string) (eventstore.Record, error) {
	recs, err := e.listLocked(ctx)
	if err != nil {
		return eventstore.Record{}, err
	}
	for _, r := range recs {
		if r.ID == id {
			return r, nil
		}
	}
	return eventstore.Record{}, fmt.Errorf("record %s: %w", id, ErrNotFound)
}

func (e *Engine) saveLocked(ctx context.Context, rec eventstore.Record) error {
	cctx, cancel := e.adapterCtx(ctx)
	defer cancel()
	return e.store.Save(cctx, rec)
}

func (e *Engine) deleteLocked(ctx context.Context, id string) error {
	cctx, cancel := e.adapterCtx(ctx)
	defer cancel()
	return e.store.Delete(cctx, id)
}

// sendBoth notifies the requester and the origin channel. Delivery failures
// are logged and left to the notifier's own retry; they never fail the
// transition that triggered them.
func (e *Engine) sendBoth(ctx context.Context, rec eventstore.Record, text string) {
	dests := []string{rec.RequestedBy}
	if rec.OriginChannel != "" && rec.OriginChannel != rec.RequestedBy {
		dests = append(dests, rec.OriginChannel)
	}
	for _, d := range dests {
		if d == "" {
			continue
		}
		cctx, cancel := e.adapterCtx(ctx)
		err := e.notify.Notify(cctx, d, text)
		cancel()
		if err != nil {
			e.log.Warn("notification enqueue failed", logx.String("dest", d), logx.Err(err))
		}
	}
}

func (e *Engine) publish(typ string, rec eventstore.Record) {
	if e.bus == nil {
		return
	}
	e.bus.Publish(eventbus.Event{
		Type:     typ,
		RecordID: rec.ID,
		TargetID: rec.TargetID,
		Data:     string(rec.State),
	})
}
