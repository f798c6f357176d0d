package provider

import (
	"context"
	"os"
	"testing"

	"github.com/tjfontaine/polyglot-intent-router/internal/core/ports"
	"github.com/tjfontaine/polyglot-intent-router/internal/pkg/config"
)

type stubProvider struct {
	name  string
	model string
}

func (s *stubProvider) Name() string  { return s.name }
func (s *stubProvider) Model() string { return s.model }

func (s *stubProvider) Complete(ctx context.Context, prompt string) (string, error) {
	return "stub:" + prompt, nil
}

func TestMain(m *testing.M) {
	ClearFactories()
	// Register minimal stub factories to satisfy provider tests without pulling in full dependencies.
	for _, typ := range []string{"openai", "openai-compatible", "anthropic"} {
		RegisterFactory(ProviderFactory{
			Type:        typ,
			Description: "stub " + typ,
			Create: func(cfg config.ProviderConfig) (ports.Provider, error) {
				return &stubProvider{name: cfg.Name, model: cfg.Model}, nil
			},
			ValidateConfig: func(cfg config.ProviderConfig) error { return nil },
		})
	}
	RegisterLocalFactory()
	os.Exit(m.Run())
}
