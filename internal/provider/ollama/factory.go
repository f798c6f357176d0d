package ollama

import (
	"github.com/tjfontaine/polyglot-intent-router/internal/core/ports"
	"github.com/tjfontaine/polyglot-intent-router/internal/pkg/config"
	"github.com/tjfontaine/polyglot-intent-router/internal/provider/registry"
)

// ProviderType is the provider type identifier used in configuration.
const ProviderType = "ollama"

// RegisterProviderFactory registers the Ollama provider type.
func RegisterProviderFactory() {
	if registry.IsRegistered(ProviderType) {
		return
	}
	registry.RegisterFactory(registry.ProviderFactory{
		Type:        ProviderType,
		Description: "Local Ollama server",
		Create:      CreateFromConfig,
	})
}

// CreateFromConfig creates a new Ollama provider from configuration.
func CreateFromConfig(cfg config.ProviderConfig) (ports.Provider, error) {
	opts := []ProviderOption{WithModel(cfg.Model)}
	if cfg.BaseURL != "" {
		opts = append(opts, WithBaseURL(cfg.BaseURL))
	}
	return New(cfg.Name, opts...), nil
}
