package audit

import (
	"context"
	"fmt"

	"github.com/tjfontaine/polyglot-intent-router/internal/core/domain"
	"github.com/tjfontaine/polyglot-intent-router/internal/core/ports"
)

const verifyPageSize = 500

// ChainError reports the first event that breaks the chain.
type ChainError struct {
	Seq    int64
	Reason string
}

func (e *ChainError) Error() string {
	return fmt.Sprintf("audit chain broken at seq %d: %s", e.Seq, e.Reason)
}

// Verifier checks events incrementally.
type Verifier struct {
	seq      int64
	prevHash string
	count    int
}

// Check validates the next event against the chain so far.
func (v *Verifier) Check(event *domain.AuditEvent) error {
	if event.Seq != v.seq+1 {
		return &ChainError{Seq: event.Seq, Reason: fmt.Sprintf("expected seq %d", v.seq+1)}
	}
	if event.PrevHash != v.prevHash {
		return &ChainError{Seq: event.Seq, Reason: "prev_hash does not match predecessor"}
	}
	want, err := Hash(event)
	if err != nil {
		return &ChainError{Seq: event.Seq, Reason: err.Error()}
	}
	if event.Hash != want {
		return &ChainError{Seq: event.Seq, Reason: "content hash mismatch"}
	}
	v.seq = event.Seq
	v.prevHash = event.Hash
	v.count++
	return nil
}

// Count returns the number of events checked so far.
func (v *Verifier) Count() int {
	return v.count
}

// Verify checks a complete log starting at the genesis event.
func Verify(events []*domain.AuditEvent) error {
	var v Verifier
	for _, e := range events {
		if err := v.Check(e); err != nil {
			return err
		}
	}
	return nil
}

// VerifySink walks the whole sink and returns the number of valid events
// read before the first break.
func VerifySink(ctx context.Context, sink ports.AuditSink) (int, error) {
	var v Verifier
	after := int64(0)
	for {
		page, err := sink.List(ctx, after, verifyPageSize)
		if err != nil {
			return v.Count(), fmt.Errorf("failed to list audit events: %w", err)
		}
		for _, e := range page {
			if err := v.Check(e); err != nil {
				return v.Count(), err
			}
			after = e.Seq
		}
		if len(page) < verifyPageSize {
			return v.Count(), nil
		}
	}
}
