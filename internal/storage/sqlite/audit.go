package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/tjfontaine/polyglot-intent-router/internal/core/domain"
)

// Append stores one audit event. The full event is kept as JSON so the
// hash can be recomputed byte for byte.
func (s *Store) Append(ctx context.Context, event *domain.AuditEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal audit event: %w", err)
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO audit_events (seq, trace_id, event_type, session_id, created_at, payload, hash)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		event.Seq, event.TraceID, string(event.EventType), event.SessionID,
		toNanos(event.Timestamp), string(payload), event.Hash)
	if err != nil {
		return fmt.Errorf("failed to insert audit event: %w", err)
	}
	return nil
}

func (s *Store) Last(ctx context.Context) (*domain.AuditEvent, error) {
	var payload string
	err := s.db.QueryRowContext(ctx,
		`SELECT payload FROM audit_events ORDER BY seq DESC LIMIT 1`).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get last audit event: %w", err)
	}
	return decodeAuditEvent(payload)
}

func (s *Store) List(ctx context.Context, afterSeq int64, limit int) ([]*domain.AuditEvent, error) {
	query := `SELECT payload FROM audit_events WHERE seq > ? ORDER BY seq ASC`
	args := []any{afterSeq}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list audit events: %w", err)
	}
	defer rows.Close()

	var events []*domain.AuditEvent
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("failed to scan audit event: %w", err)
		}
		evt, err := decodeAuditEvent(payload)
		if err != nil {
			return nil, err
		}
		events = append(events, evt)
	}
	return events, rows.Err()
}

func decodeAuditEvent(payload string) (*domain.AuditEvent, error) {
	var evt domain.AuditEvent
	if err := json.Unmarshal([]byte(payload), &evt); err != nil {
		return nil, fmt.Errorf("failed to unmarshal audit event: %w", err)
	}
	return &evt, nil
}
