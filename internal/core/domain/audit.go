package domain

import (
	"time"
)

// AuditEventType identifies what produced an audit record.
type AuditEventType string

const (
	AuditEventOverride   AuditEventType = "override"
	AuditEventGeneration AuditEventType = "generation"
	AuditEventSupervisor AuditEventType = "supervisor_unlock"
)

// AuditEvent is an immutable, hash-chained record of one routing outcome.
// Snapshots are structs rather than maps so the JSON encoding used for
// hashing has a fixed field order.
type AuditEvent struct {
	Seq                int64             `json:"seq"`
	TraceID            string            `json:"trace_id"`
	Timestamp          time.Time         `json:"timestamp"`
	EventType          AuditEventType    `json:"event_type"`
	SessionID          string            `json:"session_id"`
	SenderID           string            `json:"sender_id,omitempty"`
	Channel            string            `json:"channel,omitempty"`
	DecisionSnapshot   *OverrideDecision `json:"decision_snapshot,omitempty"`
	GenerationSnapshot *GenerationResult `json:"generation_snapshot,omitempty"`
	RetrievalHits      int               `json:"retrieval_hits"`
	RetrievalError     string            `json:"retrieval_error,omitempty"`
	SessionEphemeral   bool              `json:"session_ephemeral,omitempty"`
	PrevHash           string            `json:"prev_hash"`
	Hash               string            `json:"hash"`
}
