package scheduler

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"reaperd/internal/confirm"
	"reaperd/internal/eventbus"
	"reaperd/internal/eventstore"
	"reaperd/internal/executor"
	logx "reaperd/pkg/logx"
)

var t0 = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

type sentMsg struct {
	dest string
	text string
}

type fakeNotifier struct {
	mu   sync.Mutex
	msgs []sentMsg
}

func (f *fakeNotifier) Notify(ctx context.Context, dest, text string) error {
	f.mu.Lock()
	f.msgs = append(f.msgs, sentMsg{dest: dest, text: text})
	f.mu.Unlock()
	return nil
}

func (f *fakeNotifier) all() []sentMsg {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]sentMsg(nil), f.msgs...)
}

func (f *fakeNotifier) count() int { return len(f.all()) }

func (f *fakeNotifier) reset() {
	f.mu.Lock()
	f.msgs = nil
	f.mu.Unlock()
}

type testRig struct {
	engine *Engine
	store  eventstore.Store
	gate   *confirm.Gate
	sent   *fakeNotifier
	now    time.Time
}

func newRig(t *testing.T, cfg Config, grace time.Duration, exec executor.Executor) *testRig {
	t.Helper()
	if exec == nil {
		exec = executor.Func(func(ctx context.Context, id string) error { return nil })
	}
	rig := &testRig{
		store: eventstore.NewMemory(),
		gate:  confirm.NewGate(confirm.Config{GraceWindow: grace}),
		sent:  &fakeNotifier{},
		now:   t0,
	}
	rig.engine = NewEngine(cfg, rig.store, rig.gate, exec, rig.sent, nil, logx.Nop())
	rig.engine.now = func() time.Time { return rig.now }
	seq := 0
	rig.engine.newID = func() string { seq++; return fmt.Sprintf("rec-%d", seq) }
	return rig
}

func (r *testRig) schedule(t *testing.T, target string) eventstore.Record {
	t.Helper()
	rec, err := r.engine.Schedule(context.Background(), ScheduleRequest{
		TargetID:      target,
		RequestedBy:   "alice",
		OriginChannel: "#ops",
	})
	if err != nil {
		t.Fatalf("Schedule(%s): %v", target, err)
	}
	return rec
}

func (r *testRig) tick(t *testing.T, at time.Time) {
	t.Helper()
	if err := r.engine.Tick(context.Background(), at); err != nil {
		t.Fatalf("Tick: %v", err)
	}
}

func (r *testRig) records(t *testing.T) []eventstore.Record {
	t.Helper()
	recs, err := r.store.List(context.Background())
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	return recs
}

func (r *testRig) record(t *testing.T, id string) eventstore.Record {
	t.Helper()
	for _, rec := range r.records(t) {
		if rec.ID == id {
			return rec
		}
	}
	t.Fatalf("record %s not in store", id)
	return eventstore.Record{}
}

func TestScheduleComputesTimes(t *testing.T) {
	rig := newRig(t, Config{}, 0, nil)
	rec := rig.schedule(t, "103")

	if got, want := rec.ExecuteAt, t0.Add(48*time.Hour); !got.Equal(want) {
		t.Fatalf("ExecuteAt = %v, want %v", got, want)
	}
	if got, want := rec.ReminderAt, rec.ExecuteAt.Add(-24*time.Hour); !got.Equal(want) {
		t.Fatalf("ReminderAt = %v, want %v", got, want)
	}
	if !rec.ReminderAt.Before(rec.ExecuteAt) {
		t.Fatal("ReminderAt must be before ExecuteAt")
	}
	if rec.State != eventstore.StateScheduled {
		t.Fatalf("State = %s, want scheduled", rec.State)
	}
	// Scheduling itself is silent: the first outward message is the reminder.
	if n := rig.sent.count(); n != 0 {
		t.Fatalf("expected no notifications on schedule, got %d", n)
	}
}

func TestScheduleDuplicatePending(t *testing.T) {
	rig := newRig(t, Config{}, 0, nil)
	rig.schedule(t, "103")

	_, err := rig.engine.Schedule(context.Background(), ScheduleRequest{TargetID: "103", RequestedBy: "bob"})
	if !errors.Is(err, ErrDuplicatePending) {
		t.Fatalf("expected ErrDuplicatePending, got %v", err)
	}
	if len(rig.records(t)) != 1 {
		t.Fatal("duplicate schedule must not create a second record")
	}
}

func TestTickBeforeReminderIsSilent(t *testing.T) {
	rig := newRig(t, Config{}, 0, nil)
	rec := rig.schedule(t, "103")

	rig.tick(t, t0.Add(time.Hour))

	if got := rig.record(t, rec.ID); got.State != eventstore.StateScheduled {
		t.Fatalf("state changed to %s before reminder window", got.State)
	}
	if n := rig.sent.count(); n != 0 {
		t.Fatalf("expected no notifications, got %d", n)
	}
}

func TestReminderSentOnce(t *testing.T) {
	rig := newRig(t, Config{}, 0, nil)
	rec := rig.schedule(t, "103")

	rig.tick(t, rec.ReminderAt)

	got := rig.record(t, rec.ID)
	if got.State != eventstore.StateReminderSent {
		t.Fatalf("state = %s, want reminder_sent", got.State)
	}
	msgs := rig.sent.all()
	if len(msgs) != 2 {
		t.Fatalf("expected reminder to requester and channel, got %d messages", len(msgs))
	}
	if msgs[0].dest != "alice" || msgs[1].dest != "#ops" {
		t.Fatalf("unexpected destinations: %+v", msgs)
	}
	if !strings.Contains(msgs[0].text, "Reminder") {
		t.Fatalf("unexpected reminder text: %q", msgs[0].text)
	}

	// The persisted transition is the dedup guard: another tick in the same
	// window sends nothing.
	rig.tick(t, rec.ReminderAt.Add(time.Hour))
	if n := rig.sent.count(); n != 2 {
		t.Fatalf("reminder re-sent: %d messages", n)
	}
}

func TestZeroGraceExecutesAtDue(t *testing.T) {
	var executed []string
	exec := executor.Func(func(ctx context.Context, id string) error {
		executed = append(executed, id)
		return nil
	})
	rig := newRig(t, Config{}, 0, exec)
	rec := rig.schedule(t, "103")

	rig.tick(t, rec.ReminderAt)
	rig.sent.reset()
	rig.tick(t, rec.ExecuteAt)

	if len(executed) != 1 || executed[0] != "103" {
		t.Fatalf("executor calls = %v, want [103]", executed)
	}
	if len(rig.records(t)) != 0 {
		t.Fatal("completed record must be removed from the store")
	}
	msgs := rig.sent.all()
	if len(msgs) != 2 {
		t.Fatalf("expected completion notices to both parties, got %d", len(msgs))
	}
	if !strings.Contains(msgs[0].text, "has been deleted") {
		t.Fatalf("unexpected completion text: %q", msgs[0].text)
	}
}

func TestExecutorFailureThenRetry(t *testing.T) {
	fails := 1
	exec := executor.Func(func(ctx context.Context, id string) error {
		if fails > 0 {
			fails--
			return errors.New("lxc is locked")
		}
		return nil
	})
	cfg := Config{Retry: RetryConfig{Interval: 5 * time.Minute}}
	rig := newRig(t, cfg, 0, exec)
	rec := rig.schedule(t, "103")

	rig.tick(t, rec.ExecuteAt)

	got := rig.record(t, rec.ID)
	if got.State != eventstore.StateFailed {
		t.Fatalf("state = %s, want failed", got.State)
	}
	if got.Attempts != 1 {
		t.Fatalf("attempts = %d, want 1", got.Attempts)
	}
	if !strings.Contains(got.LastError, "lxc is locked") {
		t.Fatalf("last error = %q", got.LastError)
	}

	// Too early: inside the retry interval nothing happens.
	rig.tick(t, rec.ExecuteAt.Add(time.Minute))
	if got := rig.record(t, rec.ID); got.Attempts != 1 {
		t.Fatalf("retried too early, attempts = %d", got.Attempts)
	}

	// After the interval the retry runs and succeeds.
	rig.tick(t, rec.ExecuteAt.Add(6*time.Minute))
	if len(rig.records(t)) != 0 {
		t.Fatal("record should be removed after successful retry")
	}
}

func TestRetryGivesUpAfterMaxAttempts(t *testing.T) {
	exec := executor.Func(func(ctx context.Context, id string) error {
		return errors.New("permanent storage error")
	})
	cfg := Config{Retry: RetryConfig{Interval: time.Minute, MaxAttempts: 2}}
	rig := newRig(t, cfg, 0, exec)
	rec := rig.schedule(t, "103")

	rig.tick(t, rec.ExecuteAt)                    // attempt 1 -> failed
	rig.tick(t, rec.ExecuteAt.Add(2*time.Minute)) // attempt 2 -> failed
	rig.sent.reset()
	rig.tick(t, rec.ExecuteAt.Add(4*time.Minute)) // gives up

	if len(rig.records(t)) != 0 {
		t.Fatal("abandoned record must be removed")
	}
	msgs := rig.sent.all()
	if len(msgs) != 2 {
		t.Fatalf("expected one give-up notice per destination, got %d", len(msgs))
	}
	if !strings.Contains(msgs[0].text, "will not be retried") {
		t.Fatalf("unexpected give-up text: %q", msgs[0].text)
	}
}

func TestCancelScheduled(t *testing.T) {
	rig := newRig(t, Config{}, 0, nil)
	rec := rig.schedule(t, "103")

	if err := rig.engine.Cancel(context.Background(), rec.ID); err != nil {
		t.Fatalf("Cancel: %v", err)
	}
	if len(rig.records(t)) != 0 {
		t.Fatal("cancelled record must be removed")
	}
	msgs := rig.sent.all()
	if len(msgs) != 2 {
		t.Fatalf("expected one cancellation notice per destination, got %d", len(msgs))
	}
	if !strings.Contains(msgs[0].text, "cancelled") {
		t.Fatalf("unexpected cancellation text: %q", msgs[0].text)
	}
}

func TestCancelWhileExecutingRejected(t *testing.T) {
	rig := newRig(t, Config{}, 0, nil)
	rec := rig.schedule(t, "103")

	// Simulate a record persisted mid-execution.
	rec.State = eventstore.StateExecuting
	if err := rig.store.Save(context.Background(), rec); err != nil {
		t.Fatalf("Save: %v", err)
	}

	err := rig.engine.Cancel(context.Background(), rec.ID)
	if !errors.Is(err, ErrInvalidState) {
		t.Fatalf("expected ErrInvalidState, got %v", err)
	}
	if len(rig.records(t)) != 1 {
		t.Fatal("record must survive a rejected cancel")
	}
}

func TestCancelUnknownID(t *testing.T) {
	rig := newRig(t, Config{}, 0, nil)
	if err := rig.engine.Cancel(context.Background(), "nope"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestConfirmationFlowWithGrace(t *testing.T) {
	var executed int
	exec := executor.Func(func(ctx context.Context, id string) error {
		executed++
		return nil
	})
	rig := newRig(t, Config{}, time.Hour, exec)
	rec := rig.schedule(t, "103")

	rig.tick(t, rec.ReminderAt)
	rig.sent.reset()

	// Due, but grace window holds execution back; one confirmation request
	// goes out on entry into awaiting_confirmation.
	rig.tick(t, rec.ExecuteAt)
	got := rig.record(t, rec.ID)
	if got.State != eventstore.StateAwaitingConfirmation {
		t.Fatalf("state = %s, want awaiting_confirmation", got.State)
	}
	if executed != 0 {
		t.Fatal("executed before approval")
	}
	if n := rig.sent.count(); n != 2 {
		t.Fatalf("expected one confirmation request per destination, got %d", n)
	}

	// Re-ticking while still unapproved sends nothing further.
	rig.tick(t, rec.ExecuteAt.Add(10*time.Minute))
	if n := rig.sent.count(); n != 2 {
		t.Fatalf("confirmation request re-sent: %d messages", n)
	}

	if err := rig.engine.Confirm(context.Background(), rec.ID, "bob"); err != nil {
		t.Fatalf("Confirm: %v", err)
	}
	rig.tick(t, rec.ExecuteAt.Add(20*time.Minute))
	if executed != 1 {
		t.Fatalf("executed = %d after approval, want 1", executed)
	}
	if len(rig.records(t)) != 0 {
		t.Fatal("record should be gone after execution")
	}
}

func TestGraceWindowAutoApproves(t *testing.T) {
	var executed int
	exec := executor.Func(func(ctx context.Context, id string) error {
		executed++
		return nil
	})
	rig := newRig(t, Config{}, time.Hour, exec)
	rec := rig.schedule(t, "103")

	rig.tick(t, rec.ExecuteAt)
	if executed != 0 {
		t.Fatal("executed before grace elapsed")
	}
	rig.tick(t, rec.ExecuteAt.Add(time.Hour))
	if executed != 1 {
		t.Fatalf("executed = %d after grace elapsed, want 1", executed)
	}
}

func TestConfirmAfterRestart(t *testing.T) {
	rig := newRig(t, Config{}, time.Hour, nil)
	rec := rig.schedule(t, "103")
	rig.tick(t, rec.ExecuteAt) // persists awaiting_confirmation

	// A new process: fresh engine with an empty gate over the same store.
	// The persisted record is the outstanding confirmation, so an explicit
	// approval must work before any tick re-hydrates the gate.
	var executed int
	exec := executor.Func(func(ctx context.Context, id string) error {
		executed++
		return nil
	})
	sent := &fakeNotifier{}
	gate := confirm.NewGate(confirm.Config{GraceWindow: time.Hour})
	e2 := NewEngine(Config{}, rig.store, gate, exec, sent, nil, logx.Nop())
	now := rec.ExecuteAt.Add(10 * time.Minute)
	e2.now = func() time.Time { return now }

	if err := e2.Confirm(context.Background(), rec.ID, "alice"); err != nil {
		t.Fatalf("Confirm after restart: %v", err)
	}
	if err := e2.Tick(context.Background(), now); err != nil {
		t.Fatalf("Tick: %v", err)
	}
	if executed != 1 {
		t.Fatalf("executed = %d after restart confirm, want 1", executed)
	}
}

type flakySaveStore struct {
	eventstore.Store
	fail int
}

func (f *flakySaveStore) Save(ctx context.Context, rec eventstore.Record) error {
	if f.fail > 0 && rec.State == eventstore.StateAwaitingConfirmation {
		f.fail--
		return errors.New("disk full")
	}
	return f.Store.Save(ctx, rec)
}

func TestConfirmRequestNotLostWhenPersistFails(t *testing.T) {
	rig := newRig(t, Config{}, time.Hour, nil)
	rec := rig.schedule(t, "103")
	rig.tick(t, rec.ReminderAt)
	rig.sent.reset()

	// The awaiting_confirmation write fails once, right after the request
	// went out.
	rig.engine.store = &flakySaveStore{Store: rig.store, fail: 1}

	rig.tick(t, rec.ExecuteAt)
	if n := rig.sent.count(); n != 2 {
		t.Fatalf("expected the request to go out despite the failed persist, got %d messages", n)
	}
	if got := rig.record(t, rec.ID); got.State != eventstore.StateReminderSent {
		t.Fatalf("state = %s, want reminder_sent (transition must not have committed)", got.State)
	}

	// Next tick re-enters the path: the request is re-sent, never lost.
	rig.tick(t, rec.ExecuteAt.Add(time.Minute))
	if n := rig.sent.count(); n != 4 {
		t.Fatalf("expected a re-sent request, got %d messages total", n)
	}
	if got := rig.record(t, rec.ID); got.State != eventstore.StateAwaitingConfirmation {
		t.Fatalf("state = %s, want awaiting_confirmation", got.State)
	}
}

func TestLifecycleEventsPublished(t *testing.T) {
	bus := eventbus.New()
	recorder := eventbus.NewRecorder(bus, 16)
	defer recorder.Close()

	rig := newRig(t, Config{}, 0, nil)
	rig.engine.bus = bus

	rec := rig.schedule(t, "103")
	rig.tick(t, rec.ReminderAt)
	rig.tick(t, rec.ExecuteAt)

	events := recorder.Recent()
	var types []string
	for _, ev := range events {
		types = append(types, ev.Type)
	}
	want := []string{
		eventbus.TypeScheduled,
		eventbus.TypeReminded,
		eventbus.TypeAwaitConfirm,
		eventbus.TypeExecuted,
	}
	if len(types) != len(want) {
		t.Fatalf("event types = %v, want %v", types, want)
	}
	for i := range want {
		if types[i] != want[i] {
			t.Fatalf("event[%d] = %s, want %s", i, types[i], want[i])
		}
	}
	if events[0].RecordID != rec.ID || events[0].TargetID != "103" {
		t.Fatalf("unexpected event payload: %+v", events[0])
	}
}

func TestConfirmNotPending(t *testing.T) {
	rig := newRig(t, Config{}, time.Hour, nil)
	rec := rig.schedule(t, "103")

	err := rig.engine.Confirm(context.Background(), rec.ID, "bob")
	if !errors.Is(err, ErrNotPending) {
		t.Fatalf("expected ErrNotPending, got %v", err)
	}
}

func TestMissedReminderSkipsToExecution(t *testing.T) {
	var executed int
	exec := executor.Func(func(ctx context.Context, id string) error {
		executed++
		return nil
	})
	rig := newRig(t, Config{}, 0, exec)
	rec := rig.schedule(t, "103")

	// First tick lands after execute_at (e.g. the agent was down): no stale
	// reminder, straight to execution.
	rig.tick(t, rec.ExecuteAt.Add(time.Hour))

	if executed != 1 {
		t.Fatalf("executed = %d, want 1", executed)
	}
	for _, m := range rig.sent.all() {
		if strings.Contains(m.text, "Reminder") {
			t.Fatalf("stale reminder sent: %q", m.text)
		}
	}
}

func TestQuarantineMalformedRecord(t *testing.T) {
	rig := newRig(t, Config{}, 0, nil)
	good := rig.schedule(t, "103")

	bad := good
	bad.ID = "bad-1"
	bad.TargetID = "200"
	bad.ReminderAt = bad.ExecuteAt.Add(time.Hour) // violates reminder < execute
	if err := rig.store.Save(context.Background(), bad); err != nil {
		t.Fatalf("Save: %v", err)
	}

	// Tick past everything: the good record executes, the bad one is left
	// untouched instead of crashing the pass.
	rig.tick(t, good.ExecuteAt)

	recs := rig.records(t)
	if len(recs) != 1 || recs[0].ID != "bad-1" {
		t.Fatalf("unexpected store contents: %+v", recs)
	}
	if recs[0].State != eventstore.StateScheduled {
		t.Fatal("quarantined record must not be mutated")
	}
}

func TestTickIsolatesPerRecordFailure(t *testing.T) {
	exec := executor.Func(func(ctx context.Context, id string) error {
		if id == "101" {
			return errors.New("boom")
		}
		return nil
	})
	rig := newRig(t, Config{}, 0, exec)
	a := rig.schedule(t, "101")
	b := rig.schedule(t, "102")

	// Both due; 101 is processed first (earlier execute_at not guaranteed,
	// both equal) and fails, 102 must still complete.
	rig.tick(t, a.ExecuteAt)

	if got := rig.record(t, a.ID); got.State != eventstore.StateFailed {
		t.Fatalf("record a state = %s, want failed", got.State)
	}
	for _, rec := range rig.records(t) {
		if rec.ID == b.ID {
			t.Fatal("record b should have executed and been removed")
		}
	}
}

func TestScheduleAllowedAfterCompletion(t *testing.T) {
	rig := newRig(t, Config{}, 0, nil)
	rec := rig.schedule(t, "103")
	rig.tick(t, rec.ExecuteAt)
	if len(rig.records(t)) != 0 {
		t.Fatal("setup: record should be gone")
	}

	// The target is free again once nothing live references it.
	rig.now = rig.now.Add(72 * time.Hour)
	if _, err := rig.engine.Schedule(context.Background(), ScheduleRequest{TargetID: "103", RequestedBy: "bob"}); err != nil {
		t.Fatalf("re-schedule after completion: %v", err)
	}
}

func TestListOrdersByExecuteAt(t *testing.T) {
	rig := newRig(t, Config{}, 0, nil)
	rig.schedule(t, "103")
	rig.now = rig.now.Add(-time.Hour) // earlier request -> earlier executeAt
	rig.schedule(t, "104")

	recs, err := rig.engine.List(context.Background())
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(recs) != 2 {
		t.Fatalf("expected 2 records, got %d", len(recs))
	}
	if recs[0].TargetID != "104" {
		t.Fatalf("expected earliest-due first, got %s", recs[0].TargetID)
	}
}

func TestEndToEnd(t *testing.T) {
	var executed []string
	exec := executor.Func(func(ctx context.Context, id string) error {
		executed = append(executed, id)
		return nil
	})
	rig := newRig(t, Config{}, 0, exec)

	rig.schedule(t, "103")

	// T0+1d: reminder to alice and #ops.
	rig.tick(t, t0.Add(24*time.Hour))
	msgs := rig.sent.all()
	if len(msgs) != 2 || msgs[0].dest != "alice" || msgs[1].dest != "#ops" {
		t.Fatalf("unexpected reminder fanout: %+v", msgs)
	}
	rig.sent.reset()

	// T0+2d: executes, notifies both, record gone.
	rig.tick(t, t0.Add(48*time.Hour))
	if len(executed) != 1 || executed[0] != "103" {
		t.Fatalf("executed = %v", executed)
	}
	msgs = rig.sent.all()
	if len(msgs) != 2 {
		t.Fatalf("expected completion fanout to 2 destinations, got %d", len(msgs))
	}
	recs, err := rig.engine.List(context.Background())
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(recs) != 0 {
		t.Fatalf("expected no pending deletions, got %d", len(recs))
	}
}
