package anthropic

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	anthropicapi "github.com/tjfontaine/polyglot-intent-router/internal/api/anthropic"
	"github.com/tjfontaine/polyglot-intent-router/internal/core/domain"
	"github.com/tjfontaine/polyglot-intent-router/internal/pkg/config"
)

func TestProvider_Complete(t *testing.T) {
	var gotReq anthropicapi.MessagesRequest
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/messages" {
			t.Fatalf("unexpected path: %s", r.URL.Path)
		}
		if r.Header.Get("x-api-key") != "test-key" {
			t.Errorf("expected x-api-key header to be 'test-key', got %q", r.Header.Get("x-api-key"))
		}
		if r.Header.Get("anthropic-version") == "" {
			t.Error("expected anthropic-version header to be set")
		}
		json.NewDecoder(r.Body).Decode(&gotReq)

		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintln(w, `{
  "id": "msg_01",
  "type": "message",
  "model": "claude-3-5-haiku-20241022",
  "content": [
    {"type": "text", "text": "Claro, "},
    {"type": "text", "text": "tenemos tono cálido."}
  ],
  "stop_reason": "end_turn"
}`)
	}))
	defer ts.Close()

	p, err := CreateFromConfig(config.ProviderConfig{Name: "backup", Type: ProviderType, APIKey: "test-key", BaseURL: ts.URL})
	if err != nil {
		t.Fatal(err)
	}

	got, err := p.Complete(context.Background(), "¿tono cálido?")
	if err != nil {
		t.Fatalf("Complete() error = %v", err)
	}
	if got != "Claro, tenemos tono cálido." {
		t.Errorf("Complete() = %q", got)
	}
	if gotReq.Model != DefaultModel || gotReq.MaxTokens != DefaultMaxTokens {
		t.Errorf("request = %+v", gotReq)
	}
	if p.Name() != "backup" {
		t.Errorf("Name() = %q", p.Name())
	}
}

func TestProvider_Errors(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		body      string
		wantEmpty bool
	}{
		{"overloaded", 529, `{"type":"error","error":{"type":"overloaded_error","message":"Overloaded"}}`, false},
		{"unauthorized", http.StatusUnauthorized, `denied`, false},
		{"only tool blocks", http.StatusOK, `{"content":[{"type":"tool_use"}]}`, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			}))
			defer ts.Close()

			_, err := New("backup", "k", WithBaseURL(ts.URL)).Complete(context.Background(), "hola")
			if !domain.IsKind(err, domain.ErrorKindProvider) {
				t.Fatalf("Complete() error = %v, want provider error", err)
			}
			if got := errors.Is(err, domain.ErrEmptyCompletion); got != tt.wantEmpty {
				t.Errorf("errors.Is(ErrEmptyCompletion) = %v, want %v", got, tt.wantEmpty)
			}
		})
	}
}

func TestValidateConfig(t *testing.T) {
	if err := ValidateConfig(config.ProviderConfig{Type: ProviderType}); err == nil {
		t.Error("missing api_key should fail")
	}
	if err := ValidateConfig(config.ProviderConfig{Type: ProviderType, APIKey: "k"}); err != nil {
		t.Errorf("ValidateConfig() error = %v", err)
	}
}
