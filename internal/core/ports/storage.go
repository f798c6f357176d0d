package ports

import (
	"context"
	"time"

	"github.com/tjfontaine/polyglot-intent-router/internal/core/domain"
)

// SessionStore is the key-value persistence behind the domain-lock state
// machine. It is the only shared mutable resource in the router.
type SessionStore interface {
	// Get returns the session or domain.ErrSessionNotFound. Any other error
	// means the store is unreachable.
	Get(ctx context.Context, sessionID string) (*domain.Session, error)

	// CompareAndSwap replaces the stored record with next only if the stored
	// record still matches expected (by Version). A nil expected means the
	// record must not exist yet. On success next.Version is bumped.
	CompareAndSwap(ctx context.Context, sessionID string, expected, next *domain.Session) (bool, error)

	// Close closes the storage connection
	Close() error
}

// SessionSweeper is implemented by stores that can garbage-collect stale
// sessions.
type SessionSweeper interface {
	// DeleteStale removes sessions whose LastUpdated is before cutoff and whose
	// lock, if any, has expired. It returns the number of records removed.
	DeleteStale(ctx context.Context, cutoff time.Time) (int, error)
}

// AuditSink is an append-only target for audit events.
type AuditSink interface {
	// Append persists one event. Events arrive in Seq order.
	Append(ctx context.Context, event *domain.AuditEvent) error

	// Last returns the most recent event, or nil when the log is empty.
	Last(ctx context.Context) (*domain.AuditEvent, error)

	// List returns events in Seq order, starting after afterSeq.
	List(ctx context.Context, afterSeq int64, limit int) ([]*domain.AuditEvent, error)

	Close() error
}
