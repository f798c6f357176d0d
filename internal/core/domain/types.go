// Package domain holds the canonical types shared by the gate, the session
// state machine, the failover orchestrator and the composer.
package domain

import (
	"time"
)

// Priority is a trigger tier. Tiers are not evaluated in lexical order; see
// EvaluationOrder.
type Priority string

const (
	// PrioritySafety pre-empts everything, including other locks.
	PrioritySafety Priority = "P0"
	// PriorityDomainSwitch moves the conversation into another vertical.
	PriorityDomainSwitch Priority = "P1"
	// PriorityAdjustment is a minor context adjustment inside the current domain.
	PriorityAdjustment Priority = "P2"
	// PriorityMeta covers identity questions and conversation resets.
	PriorityMeta Priority = "P3"
)

// EvaluationOrder is the order in which the gate scans tiers.
var EvaluationOrder = []Priority{
	PrioritySafety,
	PriorityMeta,
	PriorityDomainSwitch,
	PriorityAdjustment,
}

// Valid reports whether p is one of the known tiers.
func (p Priority) Valid() bool {
	switch p {
	case PrioritySafety, PriorityDomainSwitch, PriorityAdjustment, PriorityMeta:
		return true
	}
	return false
}

// Level is the tier that produced a decision. It extends Priority with HOLD,
// the decision emitted while a domain lock pins the conversation.
type Level string

const (
	LevelNone Level = ""
	LevelP0   Level = Level(PrioritySafety)
	LevelP1   Level = Level(PriorityDomainSwitch)
	LevelP2   Level = Level(PriorityAdjustment)
	LevelP3   Level = Level(PriorityMeta)
	LevelHold Level = "HOLD"
)

// SafetyDomain is the domain every P0 trigger locks into.
const SafetyDomain = "SAFETY"

// TriggerRule maps a phrase to a category at a given tier.
type TriggerRule struct {
	Pattern  string   `json:"pattern" yaml:"pattern"`
	Priority Priority `json:"priority" yaml:"priority"`
	Category string   `json:"category" yaml:"category"`
}

// IncomingMessage is the shape every channel adapter hands to the composer.
type IncomingMessage struct {
	SessionID  string    `json:"session_id"`
	SenderID   string    `json:"sender_id"`
	Channel    string    `json:"channel"`
	Text       string    `json:"text"`
	ReceivedAt time.Time `json:"received_at"`
}

// Action is the session transition a decision asks for.
type Action string

const (
	ActionNone   Action = "none"
	ActionLock   Action = "lock"
	ActionUnlock Action = "unlock"
	ActionHold   Action = "hold"
)

// OverrideDecision is produced fresh for every message by the gate.
type OverrideDecision struct {
	Override          bool   `json:"override"`
	Level             Level  `json:"level,omitempty"`
	TriggerWord       string `json:"trigger_word,omitempty"`
	Category          string `json:"category,omitempty"`
	CanonicalResponse string `json:"canonical_response,omitempty"`
	PreviousDomain    string `json:"previous_domain"`
	NewDomain         string `json:"new_domain"`
	CanRouteToDefault bool   `json:"can_route_to_default"`
	Action            Action `json:"action"`
	// LockTTL overrides the session TTL for ActionLock when non-zero.
	LockTTL time.Duration `json:"lock_ttl,omitempty"`
}

// GenerationResult is what the failover orchestrator returns.
type GenerationResult struct {
	Content       string   `json:"content"`
	Provider      string   `json:"provider"`
	Model         string   `json:"model"`
	LatencyMS     int64    `json:"latency_ms"`
	FallbackChain []string `json:"fallback_chain"`
	// Failures holds one entry per failed attempt, keyed by provider name.
	Failures map[string]string `json:"failures,omitempty"`
}

// RetrievedDocument is a read-only hit from the similarity index.
type RetrievedDocument struct {
	Content        string            `json:"content"`
	SourceID       string            `json:"source_id"`
	RelevanceScore float64           `json:"relevance_score"`
	Metadata       map[string]string `json:"metadata,omitempty"`
}

// Reply goes back to the channel adapter.
type Reply struct {
	Text      string `json:"reply_text"`
	Canonical bool   `json:"canonical"`
	NewDomain string `json:"new_domain"`
	TraceID   string `json:"trace_id"`
}
