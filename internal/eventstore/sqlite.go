//go:build sqlite
// +build sqlite

package eventstore

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	logx "reaperd/pkg/logx"

	_ "modernc.org/sqlite"
)

//go:embed migrations.sql
var migrationsFS embed.FS

type sqliteStore struct {
	db  *sql.DB
	log logx.Logger
}

func openSQLite(cfg Config, log logx.Logger) (Store, error) {
	if strings.TrimSpace(cfg.Path) == "" {
		return nil, errors.New("eventstore.path is required for sqlite driver")
	}
	path := cfg.Path
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// SQLite prefers a small number of concurrent writers.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	st := &sqliteStore{db: db, log: log}

	if cfg.BusyTimeout > 0 {
		ms := cfg.BusyTimeout.Milliseconds()
		_, _ = db.Exec(fmt.Sprintf("PRAGMA busy_timeout = %d", ms))
	}
	_, _ = db.Exec("PRAGMA journal_mode = WAL")
	_, _ = db.Exec("PRAGMA synchronous = NORMAL")

	if err := st.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return st, nil
}

func (s *sqliteStore) migrate(ctx context.Context) error {
	b, err := migrationsFS.ReadFile("migrations.sql")
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, string(b))
	return err
}

func (s *sqliteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *sqliteStore) List(ctx context.Context) ([]Record, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, target_id, target_name, requested_by, origin_channel,
		        created_at, execute_at, reminder_at, state, last_error,
		        attempts, last_attempt_at, confirm_requested_at
		 FROM deletions ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		var r Record
		var name, lastErr, lastAttempt, confirmAt sql.NullString
		var created, execute, reminder string
		var state string
		if err := rows.Scan(&r.ID, &r.TargetID, &name, &r.RequestedBy, &r.OriginChannel,
			&created, &execute, &reminder, &state, &lastErr,
			&r.Attempts, &lastAttempt, &confirmAt); err != nil {
			return nil, err
		}
		r.TargetName = name.String
		r.LastError = lastErr.String
		r.State = State(state)
		r.CreatedAt = parseTS(created)
		r.ExecuteAt = parseTS(execute)
		r.ReminderAt = parseTS(reminder)
		r.LastAttemptAt = parseTS(lastAttempt.String)
		r.ConfirmRequestedAt = parseTS(confirmAt.String)
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *sqliteStore) Save(ctx context.Context, r Record) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO deletions(id, target_id, target_name, requested_by, origin_channel,
		                       created_at, execute_at, reminder_at, state, last_error,
		                       attempts, last_attempt_at, confirm_requested_at)
		 VALUES(?,?,?,?,?,?,?,?,?,?,?,?,?)
		 ON CONFLICT(id) DO UPDATE SET
		   state=excluded.state, last_error=excluded.last_error,
		   attempts=excluded.attempts, last_attempt_at=excluded.last_attempt_at,
		   confirm_requested_at=excluded.confirm_requested_at,
		   execute_at=excluded.execute_at, reminder_at=excluded.reminder_at`,
		r.ID, r.TargetID, nullStr(r.TargetName), r.RequestedBy, r.OriginChannel,
		fmtTS(r.CreatedAt), fmtTS(r.ExecuteAt), fmtTS(r.ReminderAt), string(r.State), nullStr(r.LastError),
		r.Attempts, nullStr(fmtTS(r.LastAttemptAt)), nullStr(fmtTS(r.ConfirmRequestedAt)),
	)
	return err
}

func (s *sqliteStore) Delete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM deletions WHERE id = ?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func fmtTS(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTS(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

func nullStr(v string) any {
	if strings.TrimSpace(v) == "" {
		return nil
	}
	return v
}
