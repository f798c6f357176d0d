package openai

import (
	"github.com/tjfontaine/polyglot-intent-router/internal/core/domain"
	"github.com/tjfontaine/polyglot-intent-router/internal/core/ports"
	"github.com/tjfontaine/polyglot-intent-router/internal/pkg/config"
	"github.com/tjfontaine/polyglot-intent-router/internal/provider/registry"
)

// ProviderType is the provider type identifier used in configuration.
const ProviderType = "openai"

// ProviderTypeCompatible is for self-hosted or third-party servers that speak
// the chat completions protocol.
const ProviderTypeCompatible = "openai-compatible"

// RegisterProviderFactory registers both OpenAI provider types.
func RegisterProviderFactory() {
	if !registry.IsRegistered(ProviderType) {
		registry.RegisterFactory(registry.ProviderFactory{
			Type:           ProviderType,
			Description:    "OpenAI chat completions API",
			Create:         CreateFromConfig,
			ValidateConfig: ValidateConfig,
		})
	}
	if !registry.IsRegistered(ProviderTypeCompatible) {
		registry.RegisterFactory(registry.ProviderFactory{
			Type:           ProviderTypeCompatible,
			Description:    "OpenAI-compatible chat completions server",
			Create:         CreateFromConfig,
			ValidateConfig: ValidateConfig,
		})
	}
}

// CreateFromConfig creates a new OpenAI provider from configuration.
func CreateFromConfig(cfg config.ProviderConfig) (ports.Provider, error) {
	opts := []ProviderOption{WithModel(cfg.Model)}
	if cfg.BaseURL != "" {
		opts = append(opts, WithBaseURL(cfg.BaseURL))
	}
	return New(cfg.Name, cfg.APIKey, opts...), nil
}

// ValidateConfig validates the provider configuration.
func ValidateConfig(cfg config.ProviderConfig) error {
	switch cfg.Type {
	case ProviderTypeCompatible:
		if cfg.BaseURL == "" {
			return domain.ErrConfiguration("openai-compatible provider requires base_url")
		}
	default:
		if cfg.APIKey == "" {
			return domain.ErrConfiguration("openai provider requires api_key")
		}
	}
	return nil
}
