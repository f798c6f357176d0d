package sqlite

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/tjfontaine/polyglot-intent-router/internal/core/domain"
)

var t0 = time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

func TestSQLiteStore_SessionLifecycle(t *testing.T) {
	// Use in-memory SQLite with shared cache for testing
	store, err := New("file:memdb1?mode=memory&cache=shared")
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer store.Close()
	ctx := context.Background()

	if _, err := store.Get(ctx, "s1"); !errors.Is(err, domain.ErrSessionNotFound) {
		t.Fatalf("Get() error = %v, want ErrSessionNotFound", err)
	}

	sess := domain.NewSession("s1", "BELLEZA", t0)
	ok, err := store.CompareAndSwap(ctx, "s1", nil, sess)
	if err != nil || !ok {
		t.Fatalf("create swap = %v, %v", ok, err)
	}

	if ok, _ := store.CompareAndSwap(ctx, "s1", nil, domain.NewSession("s1", "BELLEZA", t0)); ok {
		t.Error("second create should lose")
	}

	stored, err := store.Get(ctx, "s1")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if stored.Version != 1 || stored.Locked || !stored.CreatedAt.Equal(t0) {
		t.Errorf("stored = %+v", stored)
	}

	next := stored.Clone()
	next.ActiveDomain = "EMPRENDIMIENTO"
	next.Locked = true
	next.LockReason = "P1:emprender"
	next.LockExpiresAt = t0.Add(30 * time.Minute)
	next.LastUpdated = t0.Add(time.Second)
	next.History = append(next.History, domain.SessionEvent{
		Type: domain.SessionEventLock, Domain: "EMPRENDIMIENTO", Reason: "P1:emprender", At: t0,
	})
	if ok, err := store.CompareAndSwap(ctx, "s1", stored, next); err != nil || !ok {
		t.Fatalf("update swap = %v, %v", ok, err)
	}
	if next.Version != 2 {
		t.Errorf("next.Version = %d, want 2", next.Version)
	}

	if ok, _ := store.CompareAndSwap(ctx, "s1", stored, stored.Clone()); ok {
		t.Error("stale swap should lose")
	}

	got, err := store.Get(ctx, "s1")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if !got.Locked || got.ActiveDomain != "EMPRENDIMIENTO" || got.LockReason != "P1:emprender" {
		t.Errorf("lock not persisted: %+v", got)
	}
	if !got.LockExpiresAt.Equal(t0.Add(30 * time.Minute)) {
		t.Errorf("LockExpiresAt = %v", got.LockExpiresAt)
	}
	if len(got.History) != 1 || got.History[0].Type != domain.SessionEventLock {
		t.Errorf("History = %+v", got.History)
	}
	if !got.IsLockedAndActive(t0.Add(29 * time.Minute)) {
		t.Error("expected lock active before expiry")
	}
}

func TestSQLiteStore_DeleteStale(t *testing.T) {
	store, err := New("file:memdb2?mode=memory&cache=shared")
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer store.Close()
	ctx := context.Background()

	idle := domain.NewSession("idle", "BELLEZA", t0)
	locked := domain.NewSession("locked", "BELLEZA", t0)
	locked.Locked = true
	locked.LockExpiresAt = t0.Add(72 * time.Hour)
	recent := domain.NewSession("recent", "BELLEZA", t0.Add(47*time.Hour))

	for _, s := range []*domain.Session{idle, locked, recent} {
		if ok, err := store.CompareAndSwap(ctx, s.ID, nil, s); !ok || err != nil {
			t.Fatalf("create %s = %v, %v", s.ID, ok, err)
		}
	}

	n, err := store.DeleteStale(ctx, t0.Add(24*time.Hour))
	if err != nil {
		t.Fatalf("DeleteStale() error = %v", err)
	}
	if n != 1 {
		t.Errorf("removed %d sessions, want 1", n)
	}
	if _, err := store.Get(ctx, "idle"); !errors.Is(err, domain.ErrSessionNotFound) {
		t.Error("idle session should be removed")
	}
	if _, err := store.Get(ctx, "locked"); err != nil {
		t.Error("session with active lock should be kept")
	}
}

func TestSQLiteStore_AuditEvents(t *testing.T) {
	store, err := New(filepath.Join(t.TempDir(), "audit.db"))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer store.Close()
	ctx := context.Background()

	if last, err := store.Last(ctx); err != nil || last != nil {
		t.Fatalf("Last() on empty log = %v, %v", last, err)
	}

	for i := int64(1); i <= 3; i++ {
		evt := &domain.AuditEvent{
			Seq:       i,
			TraceID:   "trc",
			Timestamp: t0.Add(time.Duration(i) * time.Second),
			EventType: domain.AuditEventOverride,
			SessionID: "s1",
			DecisionSnapshot: &domain.OverrideDecision{
				Override: true, Level: domain.LevelP1, NewDomain: "EMPRENDIMIENTO",
			},
			Hash: "h",
		}
		if err := store.Append(ctx, evt); err != nil {
			t.Fatalf("Append(%d) error = %v", i, err)
		}
	}
	if err := store.Append(ctx, &domain.AuditEvent{Seq: 2}); err == nil {
		t.Error("duplicate seq should fail")
	}

	events, err := store.List(ctx, 1, 0)
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(events) != 2 || events[0].Seq != 2 || events[1].Seq != 3 {
		t.Fatalf("List(after 1) = %+v", events)
	}
	if events[0].DecisionSnapshot == nil || events[0].DecisionSnapshot.NewDomain != "EMPRENDIMIENTO" {
		t.Errorf("decision snapshot lost: %+v", events[0].DecisionSnapshot)
	}

	last, err := store.Last(ctx)
	if err != nil || last.Seq != 3 {
		t.Errorf("Last() = %+v, %v", last, err)
	}
}
