package domain

import (
	"time"
)

// SessionEventType tags an entry in a session's history.
type SessionEventType string

const (
	SessionEventLock   SessionEventType = "LOCK"
	SessionEventUnlock SessionEventType = "UNLOCK"
)

// Unlock reasons recorded in history.
const (
	UnlockReasonPhrase     = "unlock_phrase"
	UnlockReasonSupervisor = "supervisor_override"
	UnlockReasonExpired    = "ttl_expired"
)

// SessionEvent is one lock or unlock transition.
type SessionEvent struct {
	Type    SessionEventType `json:"type"`
	Domain  string           `json:"domain"`
	Reason  string           `json:"reason"`
	TraceID string           `json:"trace_id,omitempty"`
	At      time.Time        `json:"at"`
}

// Session is the persisted per-conversation routing state.
type Session struct {
	ID            string         `json:"session_id"`
	ActiveDomain  string         `json:"active_domain"`
	Locked        bool           `json:"locked"`
	LockReason    string         `json:"lock_reason,omitempty"`
	LockExpiresAt time.Time      `json:"lock_expires_at,omitempty"`
	CreatedAt     time.Time      `json:"created_at"`
	LastUpdated   time.Time      `json:"last_updated"`
	History       []SessionEvent `json:"history"`

	// Version is bumped on every successful compare-and-swap.
	Version int64 `json:"version"`
	// Ephemeral marks a session synthesized because the store was unreachable.
	// It is never written back.
	Ephemeral bool `json:"ephemeral,omitempty"`
}

// NewSession returns a session in the DEFAULT state.
func NewSession(id, defaultDomain string, now time.Time) *Session {
	return &Session{
		ID:           id,
		ActiveDomain: defaultDomain,
		CreatedAt:    now,
		LastUpdated:  now,
		History:      []SessionEvent{},
	}
}

// IsLockedAndActive reports whether the lock is set and has not expired at now.
func (s *Session) IsLockedAndActive(now time.Time) bool {
	if s == nil || !s.Locked {
		return false
	}
	return now.Before(s.LockExpiresAt)
}

// LockExpired reports a lock that is still flagged but past its deadline.
func (s *Session) LockExpired(now time.Time) bool {
	return s != nil && s.Locked && !now.Before(s.LockExpiresAt)
}

// Clone returns a deep copy so callers can build the next state without
// touching the stored record.
func (s *Session) Clone() *Session {
	if s == nil {
		return nil
	}
	c := *s
	c.History = make([]SessionEvent, len(s.History))
	copy(c.History, s.History)
	return &c
}
