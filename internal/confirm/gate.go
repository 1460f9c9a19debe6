// Package confirm decouples "time to execute" from "permission to execute"
// for destructive actions. A deletion never runs solely because a timer
// fired: it needs an explicit approval, or the configured grace window must
// elapse without a cancellation. A zero grace window recovers the plain
// "proceed at the scheduled time" behavior.
package confirm

import (
	"errors"
	"sync"
	"time"
)

var ErrNotPending = errors.New("no confirmation pending")

type Config struct {
	// GraceWindow is how long a pending deletion waits for an explicit
	// approval before implicit auto-approval applies. Zero approves
	// immediately (no human in the loop).
	GraceWindow time.Duration
}

type pending struct {
	requestedBy string
	requestedAt time.Time
	approved    bool
	approvedBy  string
}

// Gate tracks outstanding confirmations. Safe for concurrent use.
type Gate struct {
	mu      sync.Mutex
	cfg     Config
	pending map[string]*pending
}

func NewGate(cfg Config) *Gate {
	return &Gate{cfg: cfg, pending: map[string]*pending{}}
}

func (g *Gate) Apply(cfg Config) {
	g.mu.Lock()
	g.cfg = cfg
	g.mu.Unlock()
}

// RequestConfirmation registers an outstanding approval for id, anchoring the
// grace window at `at`. Re-registering an existing id keeps the original
// anchor, so re-hydration after a restart does not extend the window.
func (g *Gate) RequestConfirmation(id, requestedBy string, at time.Time) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, ok := g.pending[id]; ok {
		return
	}
	g.pending[id] = &pending{requestedBy: requestedBy, requestedAt: at}
}

// Confirm records an explicit approval.
func (g *Gate) Confirm(id, byUser string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	p, ok := g.pending[id]
	if !ok {
		return ErrNotPending
	}
	p.approved = true
	p.approvedBy = byUser
	return nil
}

// IsApproved reports whether the deletion may proceed at `now`: explicitly
// confirmed, or the grace window has elapsed since the confirmation request.
// With a zero grace window everything is approved.
func (g *Gate) IsApproved(id string, now time.Time) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.cfg.GraceWindow <= 0 {
		return true
	}
	p, ok := g.pending[id]
	if !ok {
		return false
	}
	if p.approved {
		return true
	}
	return !now.Before(p.requestedAt.Add(g.cfg.GraceWindow))
}

// Pending reports whether an approval is outstanding for id.
func (g *Gate) Pending(id string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	_, ok := g.pending[id]
	return ok
}

// Forget drops any outstanding confirmation state for id. Called when the
// record resolves (executed, cancelled, failed terminally).
func (g *Gate) Forget(id string) {
	g.mu.Lock()
	delete(g.pending, id)
	g.mu.Unlock()
}
