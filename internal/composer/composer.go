// Package composer turns one inbound message into a reply. It runs the
// override gate through the session state machine, and only when nothing
// overrides does it retrieve catalog context and call the provider chain.
package composer

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/tjfontaine/polyglot-intent-router/internal/core/domain"
	"github.com/tjfontaine/polyglot-intent-router/internal/core/ports"
	"github.com/tjfontaine/polyglot-intent-router/internal/gate"
	"github.com/tjfontaine/polyglot-intent-router/internal/session"
)

const (
	// DefaultTopK is the number of documents requested from the index.
	DefaultTopK = 5
	// DefaultRetrievalTimeout bounds one search.
	DefaultRetrievalTimeout = 3 * time.Second
)

const tracerName = "github.com/tjfontaine/polyglot-intent-router/internal/composer"

// Generator produces a completion and never fails.
type Generator interface {
	Generate(ctx context.Context, prompt, preferred string) *domain.GenerationResult
}

// Recorder appends audit events. Failures are the recorder's to log.
type Recorder interface {
	Record(ctx context.Context, event *domain.AuditEvent)
}

// Option configures a Composer.
type Option func(*Composer)

// WithRetrieval enables catalog grounding.
func WithRetrieval(index ports.RetrievalIndex, topK int, timeout time.Duration) Option {
	return func(c *Composer) {
		c.index = index
		if topK > 0 {
			c.topK = topK
		}
		if timeout > 0 {
			c.retrievalTimeout = timeout
		}
	}
}

// WithPromptBuilder replaces the default estimator-backed builder.
func WithPromptBuilder(b *PromptBuilder) Option {
	return func(c *Composer) {
		c.prompts = b
	}
}

// WithPreferredProvider maps a channel to the provider tried first.
func WithPreferredProvider(fn func(channel string) string) Option {
	return func(c *Composer) {
		c.preferred = fn
	}
}

// WithLogger sets the logger for the composer.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Composer) {
		c.logger = logger
	}
}

// WithTraceIDs overrides trace id generation, for tests.
func WithTraceIDs(fn func() string) Option {
	return func(c *Composer) {
		c.newTraceID = fn
	}
}

// Composer is safe for concurrent use.
type Composer struct {
	gate             *gate.Gate
	sessions         *session.Manager
	generator        Generator
	audit            Recorder
	index            ports.RetrievalIndex
	topK             int
	retrievalTimeout time.Duration
	prompts          *PromptBuilder
	preferred        func(string) string
	newTraceID       func() string
	logger           *slog.Logger
	tracer           trace.Tracer
}

// New creates a Composer. Retrieval is disabled unless WithRetrieval is given.
func New(g *gate.Gate, sessions *session.Manager, generator Generator, recorder Recorder, opts ...Option) (*Composer, error) {
	if g == nil || sessions == nil || generator == nil || recorder == nil {
		return nil, domain.ErrConfiguration("composer requires a gate, session manager, generator and audit recorder")
	}
	c := &Composer{
		gate:             g,
		sessions:         sessions,
		generator:        generator,
		audit:            recorder,
		topK:             DefaultTopK,
		retrievalTimeout: DefaultRetrievalTimeout,
		preferred:        func(string) string { return "" },
		newTraceID:       NewTraceID,
		logger:           slog.Default(),
		tracer:           otel.Tracer(tracerName),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.prompts == nil {
		c.prompts = NewPromptBuilder(nil, DefaultMaxContextTokens)
	}
	return c, nil
}

// NewTraceID returns a fresh "trc_" identifier.
func NewTraceID() string {
	return "trc_" + strings.ReplaceAll(uuid.NewString(), "-", "")
}

// Compose answers msg. The session transition is committed before any
// retrieval or provider call. The only error is an invalid request; every
// downstream failure degrades into a reply.
func (c *Composer) Compose(ctx context.Context, msg domain.IncomingMessage) (*domain.Reply, *domain.AuditEvent, error) {
	if strings.TrimSpace(msg.SessionID) == "" {
		return nil, nil, domain.ErrInvalidRequest("session_id is required")
	}
	if strings.TrimSpace(msg.Text) == "" {
		return nil, nil, domain.ErrInvalidRequest("text is required")
	}

	traceID := c.newTraceID()
	ctx, span := c.tracer.Start(ctx, "compose", trace.WithAttributes(
		attribute.String("router.trace_id", traceID),
		attribute.String("router.session_id", msg.SessionID),
		attribute.String("router.channel", msg.Channel),
	))
	defer span.End()

	outcome := c.sessions.Process(ctx, msg.SessionID, traceID, func(s *domain.Session, now time.Time) domain.OverrideDecision {
		return c.gate.Evaluate(msg.Text, s, now)
	})
	decision := outcome.Decision
	span.SetAttributes(
		attribute.Bool("router.override", decision.Override),
		attribute.String("router.level", string(decision.Level)),
		attribute.String("router.new_domain", decision.NewDomain),
	)

	event := &domain.AuditEvent{
		TraceID:          traceID,
		SessionID:        msg.SessionID,
		SenderID:         msg.SenderID,
		Channel:          msg.Channel,
		DecisionSnapshot: &decision,
		SessionEphemeral: outcome.Session != nil && outcome.Session.Ephemeral,
	}
	reply := &domain.Reply{
		NewDomain: decision.NewDomain,
		TraceID:   traceID,
	}

	if decision.Override {
		event.EventType = domain.AuditEventOverride
		reply.Text = decision.CanonicalResponse
		reply.Canonical = true
		c.logger.Info("override",
			slog.String("trace_id", traceID),
			slog.String("session_id", msg.SessionID),
			slog.String("level", string(decision.Level)),
			slog.String("category", decision.Category),
			slog.String("trigger", decision.TriggerWord))
		c.audit.Record(ctx, event)
		return reply, event, nil
	}

	docs, err := c.retrieve(ctx, msg.Text)
	if err != nil {
		event.RetrievalError = err.Error()
		c.logger.Warn("retrieval failed, answering ungrounded",
			slog.String("trace_id", traceID),
			slog.String("error", err.Error()))
	}
	event.RetrievalHits = len(docs)

	prompt, grounded := c.prompts.Build(decision.NewDomain, msg.Text, docs)
	span.SetAttributes(
		attribute.Int("router.retrieval_hits", len(docs)),
		attribute.Int("router.grounding_docs", grounded),
	)

	gen := c.generator.Generate(ctx, prompt, c.preferred(msg.Channel))
	event.EventType = domain.AuditEventGeneration
	event.GenerationSnapshot = gen
	reply.Text = gen.Content

	c.logger.Info("generated",
		slog.String("trace_id", traceID),
		slog.String("session_id", msg.SessionID),
		slog.String("provider", gen.Provider),
		slog.Int64("latency_ms", gen.LatencyMS),
		slog.Int("retrieval_hits", len(docs)))
	c.audit.Record(ctx, event)
	return reply, event, nil
}

func (c *Composer) retrieve(ctx context.Context, query string) ([]domain.RetrievedDocument, error) {
	if c.index == nil {
		return nil, nil
	}
	ctx, cancel := context.WithTimeout(ctx, c.retrievalTimeout)
	defer cancel()

	type result struct {
		docs []domain.RetrievedDocument
		err  error
	}
	done := make(chan result, 1)
	go func() {
		docs, err := c.index.Search(ctx, query, c.topK)
		done <- result{docs: docs, err: err}
	}()

	select {
	case r := <-done:
		if r.err != nil {
			return nil, r.err
		}
		return r.docs, nil
	case <-ctx.Done():
		return nil, domain.ErrRetrieval(ctx.Err())
	}
}
