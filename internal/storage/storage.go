// Package storage holds the persistence backends for sessions and audit
// events. Backends live in subpackages; this package re-exports the port
// interfaces they implement.
package storage

import (
	"github.com/tjfontaine/polyglot-intent-router/internal/core/ports"
)

// Re-export storage interfaces from core/ports.
type (
	SessionStore   = ports.SessionStore
	SessionSweeper = ports.SessionSweeper
	AuditSink      = ports.AuditSink
)
