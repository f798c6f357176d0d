// Package session implements the domain-lock state machine on top of a
// compare-and-swap session store.
//
// A session is either DEFAULT (routable to the default domain) or
// LOCKED(domain). Every transition is a read-modify-write committed with one
// CompareAndSwap, and all work for one session id is serialized in-process.
// Expired locks are released lazily the next time the session is touched.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/tjfontaine/polyglot-intent-router/internal/core/domain"
	"github.com/tjfontaine/polyglot-intent-router/internal/core/ports"
)

const (
	DefaultTTL             = 30 * time.Minute
	DefaultMaxRetries      = 3
	DefaultMutationTimeout = 5 * time.Second
)

// EvaluateFunc classifies the current message against a session snapshot.
// It must be pure; it may run more than once when a swap loses a race.
type EvaluateFunc func(session *domain.Session, now time.Time) domain.OverrideDecision

// Outcome is the result of processing one message.
type Outcome struct {
	// Previous is the state the decision was evaluated against, after lazy
	// expiry was applied.
	Previous *domain.Session
	// Session is the state after the transition.
	Session  *domain.Session
	Decision domain.OverrideDecision
	// Persisted is false when the transition could not be committed and the
	// message was answered from an unsaved snapshot.
	Persisted bool
	// Err is the recovered store error, if any.
	Err error
}

// ManagerConfig configures a Manager.
type ManagerConfig struct {
	Store         ports.SessionStore
	DefaultDomain string
	// TTL is the lock duration used when a decision carries none.
	TTL             time.Duration
	MaxRetries      int
	MutationTimeout time.Duration
	// Retention is how long an idle, unlocked session is kept before Sweep
	// removes it. Zero disables sweeping.
	Retention time.Duration
	Logger    *slog.Logger
	// Now overrides the clock, for tests.
	Now func() time.Time
}

// Manager owns every session transition.
type Manager struct {
	store           ports.SessionStore
	defaultDomain   string
	ttl             time.Duration
	maxRetries      int
	mutationTimeout time.Duration
	retention       time.Duration
	now             func() time.Time
	locks           *keyedMutex
	logger          *slog.Logger
}

// NewManager creates a Manager.
func NewManager(cfg ManagerConfig) (*Manager, error) {
	if cfg.Store == nil {
		return nil, domain.ErrConfiguration("session manager requires a store")
	}
	if cfg.DefaultDomain == "" {
		return nil, domain.ErrConfiguration("session manager requires a default domain")
	}

	m := &Manager{
		store:           cfg.Store,
		defaultDomain:   cfg.DefaultDomain,
		ttl:             cfg.TTL,
		maxRetries:      cfg.MaxRetries,
		mutationTimeout: cfg.MutationTimeout,
		retention:       cfg.Retention,
		now:             cfg.Now,
		locks:           newKeyedMutex(),
		logger:          cfg.Logger,
	}
	if m.ttl <= 0 {
		m.ttl = DefaultTTL
	}
	if m.maxRetries <= 0 {
		m.maxRetries = DefaultMaxRetries
	}
	if m.mutationTimeout <= 0 {
		m.mutationTimeout = DefaultMutationTimeout
	}
	if m.now == nil {
		m.now = time.Now
	}
	if m.logger == nil {
		m.logger = slog.Default()
	}
	return m, nil
}

// DefaultDomain returns the domain DEFAULT sessions route to.
func (m *Manager) DefaultDomain() string {
	return m.defaultDomain
}

// mutationContext detaches from the caller's cancellation: once a transition
// has started it must be allowed to commit.
func (m *Manager) mutationContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), m.mutationTimeout)
}

// Process evaluates one message against the session and commits the
// resulting transition before returning. It never fails: when the store is
// unreachable the message is evaluated against an ephemeral DEFAULT session,
// and when every swap attempt loses a race the last computed outcome is
// returned unsaved.
func (m *Manager) Process(ctx context.Context, sessionID, traceID string, evaluate EvaluateFunc) *Outcome {
	release := m.locks.Lock(sessionID)
	defer release()

	ctx, cancel := m.mutationContext(ctx)
	defer cancel()

	var last *Outcome
	for attempt := 1; attempt <= m.maxRetries; attempt++ {
		now := m.now()

		stored, err := m.load(ctx, sessionID)
		if err != nil {
			return m.failOpen(sessionID, traceID, evaluate, now, err)
		}

		current := stored.Clone()
		if current == nil {
			current = domain.NewSession(sessionID, m.defaultDomain, now)
		}
		m.expire(current, now, traceID)

		decision := evaluate(current, now)
		next := m.Next(current, decision, now, traceID)

		last = &Outcome{Previous: current, Session: next, Decision: decision}

		ok, err := m.store.CompareAndSwap(ctx, sessionID, stored, next)
		if err != nil {
			return m.failOpen(sessionID, traceID, evaluate, now, domain.ErrSessionUnavailable(err))
		}
		if ok {
			last.Persisted = true
			return last
		}

		m.logger.Debug("session swap lost, retrying",
			slog.String("session_id", sessionID),
			slog.Int("attempt", attempt))
	}

	last.Err = domain.ErrSessionContention(sessionID, m.maxRetries)
	m.logger.Warn("session transition not persisted",
		slog.String("session_id", sessionID),
		slog.String("trace_id", traceID),
		slog.String("error", last.Err.Error()))
	return last
}

func (m *Manager) load(ctx context.Context, sessionID string) (*domain.Session, error) {
	stored, err := m.store.Get(ctx, sessionID)
	if errors.Is(err, domain.ErrSessionNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, domain.ErrSessionUnavailable(err)
	}
	return stored, nil
}

func (m *Manager) failOpen(sessionID, traceID string, evaluate EvaluateFunc, now time.Time, err error) *Outcome {
	m.logger.Warn("session store unavailable, using ephemeral session",
		slog.String("session_id", sessionID),
		slog.String("trace_id", traceID),
		slog.String("error", err.Error()))

	current := domain.NewSession(sessionID, m.defaultDomain, now)
	current.Ephemeral = true
	decision := evaluate(current, now)
	next := m.Next(current, decision, now, traceID)
	return &Outcome{Previous: current, Session: next, Decision: decision, Err: err}
}

// expire releases a lock whose deadline has passed. It reports whether the
// session changed.
func (m *Manager) expire(s *domain.Session, now time.Time, traceID string) bool {
	if !s.LockExpired(now) {
		return false
	}
	m.release(s, domain.UnlockReasonExpired, now, traceID)
	return true
}

func (m *Manager) release(s *domain.Session, reason string, now time.Time, traceID string) {
	s.ActiveDomain = m.defaultDomain
	s.Locked = false
	s.LockReason = ""
	s.LockExpiresAt = time.Time{}
	s.LastUpdated = now
	s.History = append(s.History, domain.SessionEvent{
		Type:    domain.SessionEventUnlock,
		Domain:  m.defaultDomain,
		Reason:  reason,
		TraceID: traceID,
		At:      now,
	})
}

func (m *Manager) lock(s *domain.Session, dom, reason string, ttl time.Duration, now time.Time, traceID string) {
	if ttl <= 0 {
		ttl = m.ttl
	}
	s.ActiveDomain = dom
	s.Locked = true
	s.LockReason = reason
	s.LockExpiresAt = now.Add(ttl)
	s.LastUpdated = now
	s.History = append(s.History, domain.SessionEvent{
		Type:    domain.SessionEventLock,
		Domain:  dom,
		Reason:  reason,
		TraceID: traceID,
		At:      now,
	})
}

// Next computes the state that follows current under decision. current is
// not modified. Hold and no-op decisions leave the lock and its deadline
// untouched.
func (m *Manager) Next(current *domain.Session, decision domain.OverrideDecision, now time.Time, traceID string) *domain.Session {
	next := current.Clone()
	next.LastUpdated = now

	switch decision.Action {
	case domain.ActionLock:
		reason := fmt.Sprintf("%s:%s", decision.Level, decision.TriggerWord)
		m.lock(next, decision.NewDomain, reason, decision.LockTTL, now, traceID)
	case domain.ActionUnlock:
		m.release(next, domain.UnlockReasonPhrase, now, traceID)
	}
	return next
}

// Get returns the session, releasing an expired lock on the way.
func (m *Manager) Get(ctx context.Context, sessionID string) (*domain.Session, error) {
	return m.mutate(ctx, sessionID, "", func(*domain.Session, time.Time) bool { return false })
}

// IsLockedAndActive reports whether the session holds an unexpired lock.
// Unknown sessions are not locked.
func (m *Manager) IsLockedAndActive(ctx context.Context, sessionID string) (bool, error) {
	s, err := m.Get(ctx, sessionID)
	if domain.IsKind(err, domain.ErrorKindNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return s.IsLockedAndActive(m.now()), nil
}

// UnlockResult describes a supervisor unlock.
type UnlockResult struct {
	Session *domain.Session
	// PreviousDomain is the domain the released lock pinned.
	PreviousDomain string
	// Released is true only when this call ended a live lock. A lock that had
	// already expired, or an unlocked session, reports false.
	Released bool
}

// Unlock forces the session back to DEFAULT, as a supervisor override. An
// unlocked session is returned unchanged. Released is decided in the same
// commit that clears the lock.
func (m *Manager) Unlock(ctx context.Context, sessionID, reason, traceID string) (*UnlockResult, error) {
	if reason == "" {
		reason = domain.UnlockReasonSupervisor
	}
	var res UnlockResult
	s, err := m.mutate(ctx, sessionID, traceID, func(s *domain.Session, now time.Time) bool {
		res.Released, res.PreviousDomain = false, ""
		if !s.Locked {
			return false
		}
		res.Released, res.PreviousDomain = true, s.ActiveDomain
		m.release(s, reason, now, traceID)
		return true
	})
	if err != nil {
		return nil, err
	}
	res.Session = s
	return &res, nil
}

// Lock pins an existing session to dom for ttl (the manager TTL when zero).
func (m *Manager) Lock(ctx context.Context, sessionID, dom, reason string, ttl time.Duration, traceID string) (*domain.Session, error) {
	if dom == "" {
		return nil, domain.ErrInvalidRequest("lock requires a domain")
	}
	return m.mutate(ctx, sessionID, traceID, func(s *domain.Session, now time.Time) bool {
		m.lock(s, dom, reason, ttl, now, traceID)
		return true
	})
}

// mutate applies change to an existing session under the per-session lock
// and commits it. change reports whether it modified the session.
func (m *Manager) mutate(ctx context.Context, sessionID, traceID string, change func(*domain.Session, time.Time) bool) (*domain.Session, error) {
	release := m.locks.Lock(sessionID)
	defer release()

	ctx, cancel := m.mutationContext(ctx)
	defer cancel()

	for attempt := 1; attempt <= m.maxRetries; attempt++ {
		now := m.now()

		stored, err := m.load(ctx, sessionID)
		if err != nil {
			return nil, err
		}
		if stored == nil {
			return nil, domain.ErrNotFound(fmt.Sprintf("session %s", sessionID)).Wrap(domain.ErrSessionNotFound)
		}

		next := stored.Clone()
		expired := m.expire(next, now, traceID)
		changed := change(next, now)
		if !expired && !changed {
			return next, nil
		}

		ok, err := m.store.CompareAndSwap(ctx, sessionID, stored, next)
		if err != nil {
			return nil, domain.ErrSessionUnavailable(err)
		}
		if ok {
			return next, nil
		}
	}
	return nil, domain.ErrSessionContention(sessionID, m.maxRetries)
}

// Sweep deletes sessions idle for longer than the retention period. Stores
// that cannot sweep report zero.
func (m *Manager) Sweep(ctx context.Context) (int, error) {
	sweeper, ok := m.store.(ports.SessionSweeper)
	if !ok || m.retention <= 0 {
		return 0, nil
	}
	return sweeper.DeleteStale(ctx, m.now().Add(-m.retention))
}

// RunSweeper calls Sweep every interval until ctx is done.
func (m *Manager) RunSweeper(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := m.Sweep(ctx)
			if err != nil {
				m.logger.Warn("session sweep failed", slog.String("error", err.Error()))
				continue
			}
			if n > 0 {
				m.logger.Info("swept stale sessions", slog.Int("removed", n))
			}
		}
	}
}
