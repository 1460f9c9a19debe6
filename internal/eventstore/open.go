package eventstore

import (
	"context"
	"errors"
	"strings"

	logx "reaperd/pkg/logx"
)

// Store is the persistence API used by the scheduling engine.
//
// Save is a full read-modify-write of one record keyed by ID; the driver makes
// the update atomic (no partial overwrite visible to a concurrent reader).
// List returns every persisted record, completed/cancelled ones having been
// deleted by the engine on reaching those states.
type Store interface {
	List(ctx context.Context) ([]Record, error)
	Save(ctx context.Context, r Record) error
	Delete(ctx context.Context, id string) error
	Close() error
}

// Open initializes the configured store.
func Open(cfg Config, log logx.Logger) (Store, error) {
	if log.IsZero() {
		log = logx.Nop()
	}
	driver := strings.ToLower(strings.TrimSpace(cfg.Driver))
	switch driver {
	case "", "memory":
		return NewMemory(), nil
	case "file":
		return openFile(cfg, log)
	case "sqlite", "sqlite3":
		return openSQLite(cfg, log)
	default:
		return nil, errors.New("unknown eventstore driver: " + driver)
	}
}
