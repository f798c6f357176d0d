package runtime

import (
	"log/slog"

	"github.com/tjfontaine/polyglot-intent-router/internal/core/domain"
	"github.com/tjfontaine/polyglot-intent-router/internal/core/ports"
	"github.com/tjfontaine/polyglot-intent-router/internal/pkg/config"
)

// Option is a functional option for configuring an App.
type Option func(*App) error

// WithFileConfig loads configuration from path, with ROUTER_ environment
// overrides applied on top.
func WithFileConfig(path string) Option {
	return func(a *App) error {
		cfg, err := config.Load(path)
		if err != nil {
			return err
		}
		a.cfg = cfg
		return nil
	}
}

// WithConfig uses an already loaded configuration.
func WithConfig(cfg *config.Config) Option {
	return func(a *App) error {
		if cfg == nil {
			return domain.ErrConfiguration("nil config")
		}
		if err := cfg.Validate(); err != nil {
			return err
		}
		a.cfg = cfg
		return nil
	}
}

// WithLogger sets the logger shared by every component.
func WithLogger(logger *slog.Logger) Option {
	return func(a *App) error {
		a.logger = logger
		return nil
	}
}

// WithSessionStore overrides the store selected by storage.type.
func WithSessionStore(store ports.SessionStore) Option {
	return func(a *App) error {
		a.store = store
		return nil
	}
}

// WithAuditSink overrides the sink selected by audit.type.
func WithAuditSink(sink ports.AuditSink) Option {
	return func(a *App) error {
		a.auditSink = sink
		return nil
	}
}

// WithRetrievalIndex overrides the index selected by retrieval.type.
func WithRetrievalIndex(index ports.RetrievalIndex) Option {
	return func(a *App) error {
		a.index = index
		return nil
	}
}
