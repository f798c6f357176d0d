// Package registration wires the built-in provider factories into the
// registry.
package registration

import (
	"github.com/tjfontaine/polyglot-intent-router/internal/provider"
	"github.com/tjfontaine/polyglot-intent-router/internal/provider/anthropic"
	"github.com/tjfontaine/polyglot-intent-router/internal/provider/gemini"
	"github.com/tjfontaine/polyglot-intent-router/internal/provider/ollama"
	"github.com/tjfontaine/polyglot-intent-router/internal/provider/openai"
)

// RegisterBuiltins registers every built-in provider type explicitly.
// This replaces init-based side effects and is intended to be called from
// cmd/router, cmd/routerctl and tests before building the chain. It is safe
// to call more than once.
func RegisterBuiltins() {
	openai.RegisterProviderFactory()
	anthropic.RegisterProviderFactory()
	gemini.RegisterProviderFactory()
	ollama.RegisterProviderFactory()
	provider.RegisterLocalFactory()
}
