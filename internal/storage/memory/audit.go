package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/tjfontaine/polyglot-intent-router/internal/core/domain"
	"github.com/tjfontaine/polyglot-intent-router/internal/storage"
)

var _ storage.AuditSink = (*AuditSink)(nil)

// AuditSink keeps audit events in a slice. Used by tests and when no durable
// audit target is configured.
type AuditSink struct {
	mu     sync.RWMutex
	events []*domain.AuditEvent
}

// NewAuditSink creates an empty in-memory audit sink.
func NewAuditSink() *AuditSink {
	return &AuditSink{}
}

func (a *AuditSink) Append(ctx context.Context, event *domain.AuditEvent) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if n := len(a.events); n > 0 && event.Seq <= a.events[n-1].Seq {
		return fmt.Errorf("audit seq %d out of order (last %d)", event.Seq, a.events[n-1].Seq)
	}
	c := *event
	a.events = append(a.events, &c)
	return nil
}

func (a *AuditSink) Last(ctx context.Context) (*domain.AuditEvent, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()

	if len(a.events) == 0 {
		return nil, nil
	}
	c := *a.events[len(a.events)-1]
	return &c, nil
}

func (a *AuditSink) List(ctx context.Context, afterSeq int64, limit int) ([]*domain.AuditEvent, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()

	var out []*domain.AuditEvent
	for _, e := range a.events {
		if e.Seq <= afterSeq {
			continue
		}
		c := *e
		out = append(out, &c)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

func (a *AuditSink) Close() error {
	return nil
}
