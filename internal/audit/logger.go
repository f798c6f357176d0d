// Package audit records routing outcomes in an append-only, hash-chained log.
//
// Each event carries the hash of its predecessor; the first event chains to
// the empty string. Recording never fails the caller: a sink error is logged
// and the chain is not advanced, so the next event links to the last one that
// was actually written.
package audit

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/tjfontaine/polyglot-intent-router/internal/core/domain"
	"github.com/tjfontaine/polyglot-intent-router/internal/core/ports"
)

// DefaultWriteTimeout bounds a single sink append.
const DefaultWriteTimeout = 2 * time.Second

// Logger appends events to a sink in sequence order.
type Logger struct {
	sink    ports.AuditSink
	timeout time.Duration
	now     func() time.Time
	logger  *slog.Logger

	mu       sync.Mutex
	seq      int64
	prevHash string
}

// Option configures a Logger.
type Option func(*Logger)

// WithLogger sets the logger used for write failures.
func WithLogger(logger *slog.Logger) Option {
	return func(l *Logger) {
		l.logger = logger
	}
}

// WithWriteTimeout bounds each sink append.
func WithWriteTimeout(d time.Duration) Option {
	return func(l *Logger) {
		l.timeout = d
	}
}

// WithClock overrides the timestamp source.
func WithClock(now func() time.Time) Option {
	return func(l *Logger) {
		l.now = now
	}
}

// NewLogger creates a Logger that continues the chain already in sink.
func NewLogger(ctx context.Context, sink ports.AuditSink, opts ...Option) (*Logger, error) {
	if sink == nil {
		return nil, domain.ErrConfiguration("audit logger requires a sink")
	}

	l := &Logger{
		sink:    sink,
		timeout: DefaultWriteTimeout,
		now:     time.Now,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(l)
	}

	last, err := sink.Last(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read audit tail: %w", err)
	}
	if last != nil {
		l.seq = last.Seq
		l.prevHash = last.Hash
	}
	return l, nil
}

// Record seals event into the chain and appends it. Seq, Timestamp (when
// unset), PrevHash and Hash are filled in on event. The append runs with its
// own deadline so a cancelled request still leaves a trail.
func (l *Logger) Record(ctx context.Context, event *domain.AuditEvent) {
	if event == nil {
		return
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	event.Seq = l.seq + 1
	if event.Timestamp.IsZero() {
		event.Timestamp = l.now().UTC()
	}
	event.PrevHash = l.prevHash

	hash, err := Hash(event)
	if err != nil {
		l.logger.Warn("audit event not hashable",
			slog.String("trace_id", event.TraceID),
			slog.String("error", err.Error()))
		return
	}
	event.Hash = hash

	wctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), l.timeout)
	defer cancel()

	if err := l.sink.Append(wctx, event); err != nil {
		l.logger.Warn("audit append failed",
			slog.String("trace_id", event.TraceID),
			slog.String("session_id", event.SessionID),
			slog.Int64("seq", event.Seq),
			slog.String("error", err.Error()))
		return
	}

	l.seq = event.Seq
	l.prevHash = hash
}

// Head returns the sequence number and hash of the last written event.
func (l *Logger) Head() (int64, string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.seq, l.prevHash
}

// Sink returns the underlying sink.
func (l *Logger) Sink() ports.AuditSink {
	return l.sink
}

// Hash returns the hex SHA-256 of the event's JSON encoding with Hash
// cleared. Snapshot structs encode in declaration order and maps encode with
// sorted keys, so the encoding is stable.
func Hash(event *domain.AuditEvent) (string, error) {
	c := *event
	c.Hash = ""
	data, err := json.Marshal(&c)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}
