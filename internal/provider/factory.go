// Package provider builds the generation chain from configuration.
package provider

import (
	"fmt"

	"github.com/tjfontaine/polyglot-intent-router/internal/core/domain"
	"github.com/tjfontaine/polyglot-intent-router/internal/core/ports"
	"github.com/tjfontaine/polyglot-intent-router/internal/pkg/config"
	"github.com/tjfontaine/polyglot-intent-router/internal/provider/registry"
)

// Re-export types and functions from the registry package for convenience.
type ProviderFactory = registry.ProviderFactory

var (
	RegisterFactory        = registry.RegisterFactory
	GetFactory             = registry.GetFactory
	ListFactories          = registry.ListFactories
	ListProviderTypes      = registry.ListProviderTypes
	IsRegistered           = registry.IsRegistered
	ValidateProviderConfig = registry.ValidateProviderConfig
	CreateFromFactory      = registry.CreateFromFactory
	ClearFactories         = registry.ClearFactories
)

// BuildOption configures Build.
type BuildOption func(*buildOptions)

type buildOptions struct {
	fallbackMessage string
}

// WithFallbackMessage replaces the acknowledgment of every local provider.
func WithFallbackMessage(msg string) BuildOption {
	return func(o *buildOptions) {
		o.fallbackMessage = msg
	}
}

// Build creates the configured providers in chain order. Providers with a
// positive rate_per_second are wrapped in a Throttled limiter.
func Build(cfgs []config.ProviderConfig, opts ...BuildOption) ([]ports.Provider, error) {
	var o buildOptions
	for _, opt := range opts {
		opt(&o)
	}
	if len(cfgs) == 0 {
		return nil, domain.ErrConfiguration("provider chain is empty")
	}

	chain := make([]ports.Provider, 0, len(cfgs))
	for _, cfg := range cfgs {
		p, err := CreateFromFactory(cfg)
		if err != nil {
			return nil, domain.ErrConfiguration(fmt.Sprintf("create provider %s", cfg.Name)).Wrap(err)
		}
		if l, ok := p.(*Local); ok && o.fallbackMessage != "" {
			p = NewLocal(l.Name(), o.fallbackMessage)
		}
		if cfg.RatePerSecond > 0 {
			p = NewThrottled(p, cfg.RatePerSecond, cfg.Burst)
		}
		chain = append(chain, p)
	}
	return chain, nil
}
