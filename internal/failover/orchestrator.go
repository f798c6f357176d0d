// Package failover tries an ordered chain of generation providers until one
// answers. The chain always ends with a terminal provider that never fails, so
// Generate always returns a result.
package failover

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/tjfontaine/polyglot-intent-router/internal/core/domain"
	"github.com/tjfontaine/polyglot-intent-router/internal/core/ports"
	"github.com/tjfontaine/polyglot-intent-router/internal/provider"
)

// DefaultProviderTimeout bounds each provider attempt.
const DefaultProviderTimeout = 10 * time.Second

const tracerName = "github.com/tjfontaine/polyglot-intent-router/internal/failover"

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithLogger sets the logger for the orchestrator.
func WithLogger(logger *slog.Logger) Option {
	return func(o *Orchestrator) {
		o.logger = logger
	}
}

// WithTimeout sets the per-attempt timeout for providers without an override.
func WithTimeout(d time.Duration) Option {
	return func(o *Orchestrator) {
		if d > 0 {
			o.timeout = d
		}
	}
}

// WithProviderTimeout overrides the attempt timeout for one provider.
func WithProviderTimeout(name string, d time.Duration) Option {
	return func(o *Orchestrator) {
		if d > 0 {
			o.timeouts[name] = d
		}
	}
}

// WithFallback sets the terminal provider appended when the chain does not
// already end with one.
func WithFallback(p ports.TerminalProvider) Option {
	return func(o *Orchestrator) {
		o.fallback = p
	}
}

// Orchestrator holds the fixed provider order. It is read-only after New and
// safe for concurrent use.
type Orchestrator struct {
	chain    []ports.Provider
	index    map[string]int
	timeout  time.Duration
	timeouts map[string]time.Duration
	fallback ports.TerminalProvider
	logger   *slog.Logger
	tracer   trace.Tracer
}

// New validates the chain and appends the terminal fallback if needed.
// Provider names must be unique and a terminal provider may only appear last.
func New(chain []ports.Provider, opts ...Option) (*Orchestrator, error) {
	o := &Orchestrator{
		timeout:  DefaultProviderTimeout,
		timeouts: make(map[string]time.Duration),
		logger:   slog.Default(),
		tracer:   otel.Tracer(tracerName),
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.fallback == nil {
		o.fallback = provider.NewLocal("", "")
	}

	if len(chain) == 0 {
		return nil, domain.ErrConfiguration("provider chain is empty")
	}

	o.chain = make([]ports.Provider, 0, len(chain)+1)
	o.index = make(map[string]int, len(chain)+1)
	for i, p := range chain {
		if p == nil {
			return nil, domain.ErrConfiguration(fmt.Sprintf("provider %d is nil", i))
		}
		if _, dup := o.index[p.Name()]; dup {
			return nil, domain.ErrConfiguration(fmt.Sprintf("duplicate provider %q in chain", p.Name()))
		}
		if isTerminal(p) && i != len(chain)-1 {
			return nil, domain.ErrConfiguration(fmt.Sprintf("terminal provider %q must be last in chain", p.Name()))
		}
		o.index[p.Name()] = len(o.chain)
		o.chain = append(o.chain, p)
	}

	if !isTerminal(o.chain[len(o.chain)-1]) {
		if _, dup := o.index[o.fallback.Name()]; dup {
			return nil, domain.ErrConfiguration(fmt.Sprintf("fallback name %q collides with a provider", o.fallback.Name()))
		}
		o.index[o.fallback.Name()] = len(o.chain)
		o.chain = append(o.chain, o.fallback)
	}
	return o, nil
}

// Providers returns the standard order, terminal last.
func (o *Orchestrator) Providers() []string {
	names := make([]string, len(o.chain))
	for i, p := range o.chain {
		names[i] = p.Name()
	}
	return names
}

// Order returns the attempt order for preferred: the preferred provider
// first, then the standard order continuing after it and wrapping around.
// The terminal provider is always last. An unknown or empty preference
// yields the standard order.
func (o *Orchestrator) Order(preferred string) []ports.Provider {
	last := len(o.chain) - 1
	start, ok := o.index[preferred]
	if !ok || start == last {
		out := make([]ports.Provider, len(o.chain))
		copy(out, o.chain)
		return out
	}

	out := make([]ports.Provider, 0, len(o.chain))
	for i := 0; i < last; i++ {
		out = append(out, o.chain[(start+i)%last])
	}
	return append(out, o.chain[last])
}

// Generate tries providers in Order(preferred) and returns the first
// non-empty completion. Failures are recorded in the result, never returned.
// If ctx is cancelled the remaining remote providers are skipped and the
// terminal provider answers.
func (o *Orchestrator) Generate(ctx context.Context, prompt, preferred string) *domain.GenerationResult {
	start := time.Now()
	ctx, span := o.tracer.Start(ctx, "generate", trace.WithAttributes(
		attribute.String("router.preferred_provider", preferred),
	))
	defer span.End()

	result := &domain.GenerationResult{}
	order := o.Order(preferred)
	for _, p := range order {
		if isTerminal(p) {
			break
		}
		if ctx.Err() != nil {
			o.logger.Debug("request cancelled, skipping to fallback",
				slog.String("provider", p.Name()))
			break
		}

		result.FallbackChain = append(result.FallbackChain, p.Name())
		text, err := o.attempt(ctx, p, prompt)
		if err == nil {
			result.Content = text
			result.Provider = p.Name()
			result.Model = p.Model()
			result.LatencyMS = time.Since(start).Milliseconds()
			span.SetAttributes(attribute.String("router.provider", p.Name()))
			return result
		}

		if result.Failures == nil {
			result.Failures = make(map[string]string)
		}
		result.Failures[p.Name()] = err.Error()
		o.logger.Warn("provider failed, advancing chain",
			slog.String("provider", p.Name()),
			slog.String("error", err.Error()))
	}

	terminal := order[len(order)-1]
	text, err := terminal.Complete(context.WithoutCancel(ctx), prompt)
	if err != nil || strings.TrimSpace(text) == "" {
		text = provider.DefaultFallbackMessage
	}
	result.FallbackChain = append(result.FallbackChain, terminal.Name())
	result.Content = text
	result.Provider = terminal.Name()
	result.Model = terminal.Model()
	result.LatencyMS = time.Since(start).Milliseconds()

	span.SetAttributes(attribute.String("router.provider", terminal.Name()))
	span.SetStatus(codes.Error, "all providers failed")
	return result
}

type completion struct {
	text string
	err  error
}

// attempt runs one provider call bounded by its timeout. The call runs in its
// own goroutine so a provider that ignores its context cannot stall the chain.
func (o *Orchestrator) attempt(ctx context.Context, p ports.Provider, prompt string) (string, error) {
	timeout := o.timeout
	if d, ok := o.timeouts[p.Name()]; ok {
		timeout = d
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	ctx, span := o.tracer.Start(ctx, "provider.complete", trace.WithAttributes(
		attribute.String("router.provider", p.Name()),
		attribute.String("router.model", p.Model()),
	))
	defer span.End()

	done := make(chan completion, 1)
	go func() {
		text, err := p.Complete(ctx, prompt)
		done <- completion{text: text, err: err}
	}()

	var err error
	select {
	case c := <-done:
		err = c.err
		if err == nil && strings.TrimSpace(c.text) == "" {
			err = domain.ErrProvider(p.Name(), domain.ErrEmptyCompletion)
		}
		if err == nil {
			return c.text, nil
		}
	case <-ctx.Done():
		err = domain.ErrProvider(p.Name(), ctx.Err())
	}

	var de *domain.Error
	if !errors.As(err, &de) {
		err = domain.ErrProvider(p.Name(), err)
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	return "", err
}

type unwrapper interface {
	Unwrap() ports.Provider
}

func isTerminal(p ports.Provider) bool {
	for p != nil {
		if t, ok := p.(ports.TerminalProvider); ok && t.Terminal() {
			return true
		}
		u, ok := p.(unwrapper)
		if !ok {
			return false
		}
		p = u.Unwrap()
	}
	return false
}
