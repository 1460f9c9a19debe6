// Package executor performs the destructive action the engine schedules.
package executor

import (
	"context"

	"reaperd/internal/proxmox"
	logx "reaperd/pkg/logx"
)

// Executor performs the deletion of one target resource.
//
// Implementations must be idempotent: if a prior call's result was lost,
// calling Execute again for an already-deleted target must succeed.
type Executor interface {
	Execute(ctx context.Context, targetID string) error
}

// Func adapts a function to the Executor interface. Used in tests.
type Func func(ctx context.Context, targetID string) error

func (f Func) Execute(ctx context.Context, targetID string) error { return f(ctx, targetID) }

// ProxmoxExecutor deletes LXC containers. A target that no longer exists is
// treated as already deleted, which gives the idempotency the engine relies
// on: re-running a lost delete is a no-op.
type ProxmoxExecutor struct {
	client *proxmox.Client
	log    logx.Logger
}

func NewProxmox(client *proxmox.Client, log logx.Logger) *ProxmoxExecutor {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &ProxmoxExecutor{client: client, log: log}
}

func (e *ProxmoxExecutor) Execute(ctx context.Context, targetID string) error {
	exists, err := e.client.ContainerExists(ctx, targetID)
	if err != nil {
		return err
	}
	if !exists {
		e.log.Warn("container already gone, treating delete as done", logx.String("vmid", targetID))
		return nil
	}
	e.log.Info("deleting container", logx.String("vmid", targetID))
	return e.client.DeleteContainer(ctx, targetID)
}
