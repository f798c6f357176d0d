package provider

import (
	"context"

	"github.com/tjfontaine/polyglot-intent-router/internal/core/ports"
	"github.com/tjfontaine/polyglot-intent-router/internal/pkg/config"
	"github.com/tjfontaine/polyglot-intent-router/internal/provider/registry"
)

// LocalProviderType is the configuration type of the terminal fallback.
const LocalProviderType = "local"

// LocalName is the name the orchestrator gives an appended fallback.
const LocalName = "fallback"

// DefaultFallbackMessage is the canned acknowledgment sent when every remote
// provider failed.
const DefaultFallbackMessage = "¡Gracias por escribirnos! En este momento no puedo darte una respuesta completa. Una asesora revisará tu mensaje y te contestará muy pronto."

var _ ports.TerminalProvider = (*Local)(nil)

// Local is the terminal provider. It performs no I/O and never fails.
type Local struct {
	name    string
	message string
}

// NewLocal returns a terminal provider answering with message.
func NewLocal(name, message string) *Local {
	if name == "" {
		name = LocalName
	}
	if message == "" {
		message = DefaultFallbackMessage
	}
	return &Local{name: name, message: message}
}

func (l *Local) Name() string   { return l.name }
func (l *Local) Model() string  { return LocalProviderType }
func (l *Local) Terminal() bool { return true }

func (l *Local) Complete(context.Context, string) (string, error) {
	return l.message, nil
}

// RegisterLocalFactory registers the local fallback provider type.
func RegisterLocalFactory() {
	if registry.IsRegistered(LocalProviderType) {
		return
	}
	registry.RegisterFactory(registry.ProviderFactory{
		Type:        LocalProviderType,
		Description: "Canned acknowledgment; terminal fallback",
		Create: func(cfg config.ProviderConfig) (ports.Provider, error) {
			return NewLocal(cfg.Name, ""), nil
		},
	})
}
