package confirm

import (
	"testing"
	"time"
)

func TestZeroGraceApprovesImmediately(t *testing.T) {
	t.Parallel()
	g := NewGate(Config{GraceWindow: 0})
	now := time.Now()
	if !g.IsApproved("any-id", now) {
		t.Fatal("zero grace window must auto-approve")
	}
}

func TestGraceWindowElapses(t *testing.T) {
	t.Parallel()
	g := NewGate(Config{GraceWindow: time.Hour})
	at := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	g.RequestConfirmation("d1", "alice", at)

	if g.IsApproved("d1", at.Add(30*time.Minute)) {
		t.Fatal("approved before grace elapsed")
	}
	if !g.IsApproved("d1", at.Add(time.Hour)) {
		t.Fatal("not approved after grace elapsed")
	}
}

func TestExplicitConfirm(t *testing.T) {
	t.Parallel()
	g := NewGate(Config{GraceWindow: 24 * time.Hour})
	at := time.Now()
	g.RequestConfirmation("d1", "alice", at)

	if err := g.Confirm("d1", "bob"); err != nil {
		t.Fatalf("Confirm: %v", err)
	}
	if !g.IsApproved("d1", at.Add(time.Second)) {
		t.Fatal("explicit confirmation should approve inside the grace window")
	}
}

func TestConfirmNotPending(t *testing.T) {
	t.Parallel()
	g := NewGate(Config{GraceWindow: time.Hour})
	if err := g.Confirm("missing", "bob"); err != ErrNotPending {
		t.Fatalf("expected ErrNotPending, got %v", err)
	}
}

func TestReRegisterKeepsAnchor(t *testing.T) {
	t.Parallel()
	g := NewGate(Config{GraceWindow: time.Hour})
	at := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	g.RequestConfirmation("d1", "alice", at)
	// Simulates re-hydration after a restart: the window must not extend.
	g.RequestConfirmation("d1", "alice", at.Add(50*time.Minute))

	if !g.IsApproved("d1", at.Add(time.Hour)) {
		t.Fatal("re-registration extended the grace window")
	}
}

func TestForget(t *testing.T) {
	t.Parallel()
	g := NewGate(Config{GraceWindow: time.Hour})
	g.RequestConfirmation("d1", "alice", time.Now())
	g.Forget("d1")
	if g.Pending("d1") {
		t.Fatal("record still pending after Forget")
	}
	if err := g.Confirm("d1", "bob"); err != ErrNotPending {
		t.Fatalf("expected ErrNotPending after Forget, got %v", err)
	}
}
