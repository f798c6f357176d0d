package main

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/tjfontaine/polyglot-intent-router/internal/core/domain"
	"github.com/tjfontaine/polyglot-intent-router/internal/registration"
	"github.com/tjfontaine/polyglot-intent-router/internal/runtime"
)

func TestMain(m *testing.M) {
	registration.RegisterBuiltins()
	os.Exit(m.Run())
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(io.Discard)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

// seededConfig writes a sqlite-backed config and locks session wa:1 through
// a real router instance.
func seededConfig(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	body := `
storage:
  type: sqlite
  sqlite:
    path: ` + filepath.Join(dir, "router.db") + `
audit:
  type: sqlite
providers:
  - name: local
    type: local
`
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}

	app, err := runtime.New(runtime.WithFileConfig(path), runtime.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))
	if err != nil {
		t.Fatalf("runtime.New() error = %v", err)
	}
	req := httptest.NewRequest(http.MethodPost, "/v1/messages",
		strings.NewReader(`{"session_id":"wa:1","channel":"whatsapp","text":"Quiero emprender"}`))
	rec := httptest.NewRecorder()
	app.Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("seed message = %d: %s", rec.Code, rec.Body.String())
	}
	if err := app.Shutdown(context.Background()); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestEvaluate(t *testing.T) {
	tests := []struct {
		name       string
		args       []string
		wantLevel  domain.Level
		wantDomain string
	}{
		{"domain switch", []string{"evaluate", "Quiero emprender"}, domain.LevelP1, "EMPRENDIMIENTO"},
		{"no match", []string{"evaluate", "Hola"}, domain.LevelNone, "BELLEZA"},
		{"held while locked", []string{"evaluate", "Hola", "--locked", "--domain", "ACADEMIA"}, domain.LevelHold, "ACADEMIA"},
		{"safety while locked", []string{"evaluate", "es una emergencia", "--locked", "--domain", "ACADEMIA"}, domain.LevelP0, domain.SafetyDomain},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := run(t, tt.args...)
			if err != nil {
				t.Fatalf("evaluate error = %v", err)
			}
			var d domain.OverrideDecision
			if err := json.Unmarshal([]byte(out), &d); err != nil {
				t.Fatalf("output is not a decision: %v\n%s", err, out)
			}
			if d.Level != tt.wantLevel || d.NewDomain != tt.wantDomain {
				t.Errorf("decision = %+v", d)
			}
		})
	}
}

func TestRulesList(t *testing.T) {
	out, err := run(t, "rules", "list")
	if err != nil {
		t.Fatalf("rules list error = %v", err)
	}
	lines := strings.Split(strings.TrimSpace(out), "\n")
	if !strings.HasPrefix(lines[0], "PRIORITY") {
		t.Errorf("missing header: %q", lines[0])
	}
	if !strings.HasPrefix(lines[1], "P0") {
		t.Errorf("safety rules should come first, got %q", lines[1])
	}
	if !strings.Contains(out, "15m0s") {
		t.Error("category TTL not shown")
	}
}

func TestSessionCommands(t *testing.T) {
	cfg := seededConfig(t)

	out, err := run(t, "session", "show", "wa:1", "--config", cfg)
	if err != nil {
		t.Fatalf("session show error = %v", err)
	}
	var s domain.Session
	json.Unmarshal([]byte(out), &s)
	if !s.Locked || s.ActiveDomain != "EMPRENDIMIENTO" {
		t.Fatalf("session = %+v", s)
	}

	out, err = run(t, "session", "unlock", "wa:1", "--config", cfg)
	if err != nil {
		t.Fatalf("session unlock error = %v", err)
	}
	s = domain.Session{}
	json.Unmarshal([]byte(out), &s)
	if s.Locked || s.ActiveDomain != "BELLEZA" {
		t.Errorf("session after unlock = %+v", s)
	}

	out, err = run(t, "audit", "verify", "--config", cfg)
	if err != nil {
		t.Fatalf("audit verify error = %v", err)
	}
	if !strings.Contains(out, "2 events verified") {
		t.Errorf("audit verify output = %q", out)
	}

	out, err = run(t, "session", "lock", "wa:1", "--domain", "ACADEMIA", "--config", cfg)
	if err != nil {
		t.Fatalf("session lock error = %v", err)
	}
	s = domain.Session{}
	json.Unmarshal([]byte(out), &s)
	if !s.Locked || s.ActiveDomain != "ACADEMIA" {
		t.Errorf("session after lock = %+v", s)
	}

	if _, err := run(t, "session", "show", "nobody", "--config", cfg); !domain.IsKind(err, domain.ErrorKindNotFound) {
		t.Errorf("show unknown session error = %v, want not found", err)
	}
}
