package ports

import (
	"context"

	"github.com/tjfontaine/polyglot-intent-router/internal/core/domain"
)

// Provider is one generation backend in the failover chain.
// Implementations: openai-compatible, anthropic, gemini, ollama, local.
type Provider interface {
	// Name is the configured provider name used in fallback chains.
	Name() string

	// Model is the upstream model identifier reported in results.
	Model() string

	// Complete generates text for prompt. The deadline on ctx bounds the call.
	Complete(ctx context.Context, prompt string) (string, error)
}

// TerminalProvider marks a provider that never performs I/O and never fails.
// The orchestrator requires its chain to end with one.
type TerminalProvider interface {
	Provider
	Terminal() bool
}

// RetrievalIndex is the client for the external similarity-search service.
// Implementations must tolerate an empty or unavailable index by returning an
// error or an empty slice; the composer degrades either way.
type RetrievalIndex interface {
	Search(ctx context.Context, query string, k int) ([]domain.RetrievedDocument, error)
}
