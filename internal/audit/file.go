package audit

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/tjfontaine/polyglot-intent-router/internal/core/domain"
	"github.com/tjfontaine/polyglot-intent-router/internal/core/ports"
)

var _ ports.AuditSink = (*FileSink)(nil)

const maxLineSize = 4 << 20

// FileSink is a JSONL audit log: one event per line, fsynced on append.
type FileSink struct {
	mu   sync.Mutex
	path string
	f    *os.File
}

// OpenFile opens (or creates) a JSONL audit log at path.
func OpenFile(path string) (*FileSink, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create audit directory: %w", err)
		}
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("failed to open audit log: %w", err)
	}
	return &FileSink{path: path, f: f}, nil
}

func (s *FileSink) Append(ctx context.Context, event *domain.AuditEvent) error {
	line, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal audit event: %w", err)
	}
	line = append(line, '\n')

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}
	if _, err := s.f.Write(line); err != nil {
		return fmt.Errorf("failed to write audit event: %w", err)
	}
	return s.f.Sync()
}

func (s *FileSink) Last(ctx context.Context) (*domain.AuditEvent, error) {
	var last *domain.AuditEvent
	err := s.scan(func(e *domain.AuditEvent) bool {
		last = e
		return true
	})
	return last, err
}

func (s *FileSink) List(ctx context.Context, afterSeq int64, limit int) ([]*domain.AuditEvent, error) {
	var out []*domain.AuditEvent
	err := s.scan(func(e *domain.AuditEvent) bool {
		if e.Seq <= afterSeq {
			return true
		}
		out = append(out, e)
		return limit <= 0 || len(out) < limit
	})
	return out, err
}

func (s *FileSink) scan(fn func(*domain.AuditEvent) bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := os.Open(s.path)
	if err != nil {
		return fmt.Errorf("failed to open audit log: %w", err)
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 64*1024), maxLineSize)
	line := 0
	for sc.Scan() {
		line++
		if len(sc.Bytes()) == 0 {
			continue
		}
		var e domain.AuditEvent
		if err := json.Unmarshal(sc.Bytes(), &e); err != nil {
			return fmt.Errorf("audit log line %d: %w", line, err)
		}
		if !fn(&e) {
			return nil
		}
	}
	return sc.Err()
}

func (s *FileSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.f.Close()
}
