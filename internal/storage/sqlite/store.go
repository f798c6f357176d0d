// Package sqlite persists sessions and audit events in SQLite. Sessions carry
// a version column so a swap is a single conditional statement.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/tjfontaine/polyglot-intent-router/internal/core/domain"
	"github.com/tjfontaine/polyglot-intent-router/internal/storage"
)

var (
	_ storage.SessionStore   = (*Store)(nil)
	_ storage.SessionSweeper = (*Store)(nil)
	_ storage.AuditSink      = (*Store)(nil)
)

// Store is a SQLite implementation of SessionStore and AuditSink.
type Store struct {
	db *sql.DB
}

// New creates a new SQLite store
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL; PRAGMA synchronous=NORMAL; PRAGMA busy_timeout=5000;"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	store := &Store{db: db}

	if err := store.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return store, nil
}

func (s *Store) initSchema() error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS sessions (
			id TEXT PRIMARY KEY,
			active_domain TEXT NOT NULL,
			locked INTEGER NOT NULL DEFAULT 0,
			lock_reason TEXT,
			lock_expires_at INTEGER NOT NULL DEFAULT 0,
			history TEXT NOT NULL,
			version INTEGER NOT NULL,
			created_at INTEGER NOT NULL,
			updated_at INTEGER NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS audit_events (
			seq INTEGER PRIMARY KEY,
			trace_id TEXT NOT NULL,
			event_type TEXT NOT NULL,
			session_id TEXT NOT NULL,
			created_at INTEGER NOT NULL,
			payload TEXT NOT NULL,
			hash TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_sessions_updated ON sessions(updated_at)`,
		`CREATE INDEX IF NOT EXISTS idx_audit_session ON audit_events(session_id)`,
	}

	for _, stmt := range statements {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("failed to execute schema statement: %w", err)
		}
	}

	return nil
}

// Timestamps are stored as unix nanoseconds; 0 is the zero time.
func toNanos(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixNano()
}

func fromNanos(n int64) time.Time {
	if n == 0 {
		return time.Time{}
	}
	return time.Unix(0, n).UTC()
}

func (s *Store) Get(ctx context.Context, id string) (*domain.Session, error) {
	query := `SELECT active_domain, locked, lock_reason, lock_expires_at, history, version, created_at, updated_at
		FROM sessions WHERE id = ?`

	var (
		sess                      domain.Session
		locked                    int
		lockReason                sql.NullString
		expires, created, updated int64
		history                   string
	)
	err := s.db.QueryRowContext(ctx, query, id).Scan(
		&sess.ActiveDomain, &locked, &lockReason, &expires, &history, &sess.Version, &created, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("session %s: %w", id, domain.ErrSessionNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get session: %w", err)
	}

	sess.ID = id
	sess.Locked = locked != 0
	sess.LockReason = lockReason.String
	sess.LockExpiresAt = fromNanos(expires)
	sess.CreatedAt = fromNanos(created)
	sess.LastUpdated = fromNanos(updated)
	if err := json.Unmarshal([]byte(history), &sess.History); err != nil {
		return nil, fmt.Errorf("failed to unmarshal session history: %w", err)
	}
	if sess.History == nil {
		sess.History = []domain.SessionEvent{}
	}

	return &sess, nil
}

func (s *Store) CompareAndSwap(ctx context.Context, id string, expected, next *domain.Session) (bool, error) {
	if next == nil {
		return false, fmt.Errorf("session %s: nil replacement", id)
	}

	history, err := json.Marshal(next.History)
	if err != nil {
		return false, fmt.Errorf("failed to marshal session history: %w", err)
	}

	locked := 0
	if next.Locked {
		locked = 1
	}

	var (
		res     sql.Result
		version int64
	)
	if expected == nil {
		version = 1
		res, err = s.db.ExecContext(ctx,
			`INSERT INTO sessions (id, active_domain, locked, lock_reason, lock_expires_at, history, version, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(id) DO NOTHING`,
			id, next.ActiveDomain, locked, next.LockReason, toNanos(next.LockExpiresAt), string(history),
			version, toNanos(next.CreatedAt), toNanos(next.LastUpdated))
	} else {
		version = expected.Version + 1
		res, err = s.db.ExecContext(ctx,
			`UPDATE sessions SET active_domain = ?, locked = ?, lock_reason = ?, lock_expires_at = ?,
				history = ?, version = ?, updated_at = ?
			WHERE id = ? AND version = ?`,
			next.ActiveDomain, locked, next.LockReason, toNanos(next.LockExpiresAt),
			string(history), version, toNanos(next.LastUpdated), id, expected.Version)
	}
	if err != nil {
		return false, fmt.Errorf("failed to swap session: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to check swap result: %w", err)
	}
	if n == 0 {
		return false, nil
	}

	next.Version = version
	return true, nil
}

// DeleteStale removes sessions idle since before cutoff whose lock, if any,
// is no longer active.
func (s *Store) DeleteStale(ctx context.Context, cutoff time.Time) (int, error) {
	c := toNanos(cutoff)
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM sessions WHERE updated_at < ? AND (locked = 0 OR lock_expires_at <= ?)`, c, c)
	if err != nil {
		return 0, fmt.Errorf("failed to delete stale sessions: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	return int(n), nil
}

func (s *Store) Close() error {
	return s.db.Close()
}
