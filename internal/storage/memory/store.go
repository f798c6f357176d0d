// Package memory provides process-local session and audit storage. It is
// sufficient for a single-process deployment and is the default backend.
package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/tjfontaine/polyglot-intent-router/internal/core/domain"
	"github.com/tjfontaine/polyglot-intent-router/internal/storage"
)

var (
	_ storage.SessionStore   = (*Store)(nil)
	_ storage.SessionSweeper = (*Store)(nil)
)

// Store is an in-memory SessionStore with version-checked swaps.
type Store struct {
	mu       sync.RWMutex
	sessions map[string]*domain.Session
}

// New creates a new in-memory store
func New() *Store {
	return &Store{
		sessions: make(map[string]*domain.Session),
	}
}

func (s *Store) Get(ctx context.Context, id string) (*domain.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sess, exists := s.sessions[id]
	if !exists {
		return nil, fmt.Errorf("session %s: %w", id, domain.ErrSessionNotFound)
	}

	return sess.Clone(), nil
}

func (s *Store) CompareAndSwap(ctx context.Context, id string, expected, next *domain.Session) (bool, error) {
	if next == nil {
		return false, fmt.Errorf("session %s: nil replacement", id)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	current, exists := s.sessions[id]
	switch {
	case expected == nil && exists:
		return false, nil
	case expected != nil && (!exists || current.Version != expected.Version):
		return false, nil
	}

	if expected == nil {
		next.Version = 1
	} else {
		next.Version = expected.Version + 1
	}
	s.sessions[id] = next.Clone()
	return true, nil
}

// DeleteStale removes sessions idle since before cutoff whose lock, if any,
// is no longer active.
func (s *Store) DeleteStale(ctx context.Context, cutoff time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for id, sess := range s.sessions {
		if sess.LastUpdated.Before(cutoff) && !sess.IsLockedAndActive(cutoff) {
			delete(s.sessions, id)
			removed++
		}
	}
	return removed, nil
}

// Len returns the number of stored sessions.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

func (s *Store) Close() error {
	return nil
}
