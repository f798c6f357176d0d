package router

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/tjfontaine/polyglot-intent-router/internal/storage/memory"
)

func TestNew_Embedded(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	os.WriteFile(path, []byte(`
audit:
  type: memory
providers:
  - name: local
    type: local
`), 0o644)

	store := memory.New()
	app, err := New(
		WithFileConfig(path),
		WithSessionStore(store),
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
	)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer app.Shutdown(context.Background())

	req := httptest.NewRequest(http.MethodPost, "/v1/messages",
		strings.NewReader(`{"session_id":"embed:1","text":"quiero un curso de maquillaje"}`))
	rec := httptest.NewRecorder()
	app.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"new_domain":"ACADEMIA"`) {
		t.Errorf("response = %d %s", rec.Code, rec.Body.String())
	}
	if store.Len() != 1 {
		t.Errorf("injected store holds %d sessions, want 1", store.Len())
	}
}
