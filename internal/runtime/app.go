// Package runtime assembles the router from configuration and manages its
// lifecycle. App can be embedded in a larger program or run standalone.
package runtime

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"

	"github.com/tjfontaine/polyglot-intent-router/internal/audit"
	"github.com/tjfontaine/polyglot-intent-router/internal/composer"
	"github.com/tjfontaine/polyglot-intent-router/internal/core/domain"
	"github.com/tjfontaine/polyglot-intent-router/internal/core/ports"
	"github.com/tjfontaine/polyglot-intent-router/internal/failover"
	"github.com/tjfontaine/polyglot-intent-router/internal/gate"
	"github.com/tjfontaine/polyglot-intent-router/internal/pkg/config"
	"github.com/tjfontaine/polyglot-intent-router/internal/provider"
	"github.com/tjfontaine/polyglot-intent-router/internal/rules"
	"github.com/tjfontaine/polyglot-intent-router/internal/server"
	"github.com/tjfontaine/polyglot-intent-router/internal/session"
	"github.com/tjfontaine/polyglot-intent-router/internal/tokens"
)

// App owns every long-lived component of the router.
type App struct {
	cfg    *config.Config
	logger *slog.Logger

	store     ports.SessionStore
	auditSink ports.AuditSink
	index     ports.RetrievalIndex

	sessions     *session.Manager
	orchestrator *failover.Orchestrator
	audit        *audit.Logger
	composer     *composer.Composer
	server       *server.Server

	// Lifecycle management
	mu      sync.Mutex
	cancel  context.CancelFunc
	done    chan struct{}
	serveCh chan error
}

// New builds the router. A configuration is required (WithFileConfig or
// WithConfig). Provider factories must already be registered.
func New(opts ...Option) (*App, error) {
	a := &App{logger: slog.Default()}
	for _, opt := range opts {
		if err := opt(a); err != nil {
			return nil, fmt.Errorf("apply option: %w", err)
		}
	}
	if a.cfg == nil {
		return nil, domain.ErrConfiguration("config required (use WithFileConfig or WithConfig)")
	}
	if err := a.build(); err != nil {
		a.closeStorage()
		return nil, err
	}
	return a, nil
}

func (a *App) build() error {
	cfg := a.cfg
	ctx := context.Background()

	set, err := rules.Load(cfg.Rules.Path)
	if err != nil {
		return fmt.Errorf("load rules: %w", err)
	}
	g, err := gate.New(set, cfg.Session.DefaultDomain)
	if err != nil {
		return err
	}

	if a.store == nil {
		if a.store, err = OpenSessionStore(cfg.Storage); err != nil {
			return err
		}
	}
	a.sessions, err = session.NewManager(session.ManagerConfig{
		Store:         a.store,
		DefaultDomain: cfg.Session.DefaultDomain,
		TTL:           cfg.Session.TTL,
		MaxRetries:    cfg.Session.MaxCASRetries,
		Retention:     cfg.Session.Retention,
		Logger:        a.logger,
	})
	if err != nil {
		return err
	}

	chain, err := provider.Build(cfg.Providers, provider.WithFallbackMessage(cfg.Generation.FallbackMessage))
	if err != nil {
		return err
	}
	foOpts := []failover.Option{
		failover.WithLogger(a.logger),
		failover.WithTimeout(cfg.Generation.ProviderTimeout),
		failover.WithFallback(provider.NewLocal("", cfg.Generation.FallbackMessage)),
	}
	for _, p := range cfg.Providers {
		if p.Timeout > 0 {
			foOpts = append(foOpts, failover.WithProviderTimeout(p.Name, p.Timeout))
		}
	}
	if a.orchestrator, err = failover.New(chain, foOpts...); err != nil {
		return err
	}

	if a.auditSink == nil {
		if a.auditSink, err = OpenAuditSink(cfg.Audit, a.store); err != nil {
			return err
		}
	}
	if err := verifyAuditTail(ctx, a.auditSink); err != nil {
		a.logger.Warn("audit log tail failed verification", slog.String("error", err.Error()))
	}
	if a.audit, err = audit.NewLogger(ctx, a.auditSink, audit.WithLogger(a.logger)); err != nil {
		return err
	}

	if a.index == nil {
		if a.index, err = OpenRetrievalIndex(cfg.Retrieval); err != nil {
			return err
		}
	}

	compOpts := []composer.Option{
		composer.WithLogger(a.logger),
		composer.WithPreferredProvider(cfg.PreferredProvider),
		composer.WithPromptBuilder(composer.NewPromptBuilder(
			tokens.New(cfg.Generation.Encoding), cfg.Generation.MaxContextTokens)),
	}
	if a.index != nil {
		compOpts = append(compOpts, composer.WithRetrieval(a.index, cfg.Retrieval.TopK, cfg.Retrieval.Timeout))
	}
	if a.composer, err = composer.New(g, a.sessions, a.orchestrator, a.audit, compOpts...); err != nil {
		return err
	}

	a.server = server.New(cfg.Server.Port, a.logger, cfg.Server.RequestTimeout)
	server.NewAPI(server.APIConfig{
		Composer:   a.composer,
		Sessions:   a.sessions,
		Recorder:   a.audit,
		AuditSink:  a.auditSink,
		AdminToken: cfg.Server.AdminToken,
		Logger:     a.logger,
	}).Routes(a.server.Router)

	a.logger.Info("router assembled",
		slog.Int("rules", len(set.Rules())),
		slog.Any("providers", a.orchestrator.Providers()),
		slog.String("storage", cfg.Storage.Type),
		slog.String("audit", cfg.Audit.Type),
		slog.Bool("retrieval", a.index != nil))
	return nil
}

// Start serves HTTP and runs the session sweeper in the background. It
// returns once both are running.
func (a *App) Start(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.cancel != nil {
		return errors.New("router already started")
	}
	ctx, a.cancel = context.WithCancel(ctx)
	a.done = make(chan struct{})
	a.serveCh = make(chan error, 1)

	go func() {
		defer close(a.done)
		a.sessions.RunSweeper(ctx, a.cfg.Session.SweepInterval)
	}()
	go func() {
		if err := a.server.Start(); err != nil {
			a.logger.Error("server failed", slog.String("error", err.Error()))
			a.serveCh <- err
		}
		close(a.serveCh)
	}()

	a.logger.Info("router started", slog.Int("port", a.cfg.Server.Port))
	return nil
}

// Errors delivers a server failure, if one happens after Start.
func (a *App) Errors() <-chan error {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.serveCh
}

// Shutdown stops the server and the sweeper, then closes storage.
func (a *App) Shutdown(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.logger.Info("shutting down router")

	var shutdownErr error
	if a.server != nil {
		if err := a.server.Shutdown(ctx); err != nil {
			a.logger.Error("failed to shutdown server", slog.String("error", err.Error()))
			shutdownErr = err
		}
	}
	if a.cancel != nil {
		a.cancel()
		<-a.done
		a.cancel = nil
	}
	a.closeStorage()

	a.logger.Info("router shutdown complete")
	return shutdownErr
}

func (a *App) closeStorage() {
	if a.auditSink != nil && any(a.auditSink) != any(a.store) {
		if err := a.auditSink.Close(); err != nil {
			a.logger.Error("failed to close audit sink", slog.String("error", err.Error()))
		}
	}
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			a.logger.Error("failed to close session store", slog.String("error", err.Error()))
		}
	}
}

// Handler returns the HTTP handler without starting a listener.
func (a *App) Handler() http.Handler {
	return a.server.Router
}

// Composer returns the message pipeline.
func (a *App) Composer() *composer.Composer {
	return a.composer
}

// Sessions returns the session manager.
func (a *App) Sessions() *session.Manager {
	return a.sessions
}

// Config returns the effective configuration.
func (a *App) Config() *config.Config {
	return a.cfg
}
