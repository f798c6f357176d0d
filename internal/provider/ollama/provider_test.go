package ollama

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/tjfontaine/polyglot-intent-router/internal/core/domain"
	"github.com/tjfontaine/polyglot-intent-router/internal/pkg/config"
)

func TestProvider_Complete(t *testing.T) {
	var gotReq generateRequest
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/generate" {
			t.Fatalf("unexpected path: %s", r.URL.Path)
		}
		json.NewDecoder(r.Body).Decode(&gotReq)
		w.Write([]byte(`{"model":"qwen2.5","response":"Hola, ¿en qué te ayudo?","done":true}`))
	}))
	defer ts.Close()

	p, _ := CreateFromConfig(config.ProviderConfig{Name: "edge", Type: ProviderType, BaseURL: ts.URL + "/", Model: "qwen2.5"})
	got, err := p.Complete(context.Background(), "hola")
	if err != nil {
		t.Fatalf("Complete() error = %v", err)
	}
	if got != "Hola, ¿en qué te ayudo?" {
		t.Errorf("Complete() = %q", got)
	}
	if gotReq.Stream || gotReq.Model != "qwen2.5" || gotReq.Prompt != "hola" {
		t.Errorf("request = %+v", gotReq)
	}
}

func TestProvider_Errors(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		body      string
		wantEmpty bool
	}{
		{"model missing", http.StatusNotFound, `{"error":"model not found"}`, false},
		{"error field", http.StatusOK, `{"error":"out of memory"}`, false},
		{"empty response", http.StatusOK, `{"response":"","done":true}`, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			}))
			defer ts.Close()

			_, err := New("edge", WithBaseURL(ts.URL)).Complete(context.Background(), "hola")
			if !domain.IsKind(err, domain.ErrorKindProvider) {
				t.Fatalf("Complete() error = %v, want provider error", err)
			}
			if got := errors.Is(err, domain.ErrEmptyCompletion); got != tt.wantEmpty {
				t.Errorf("errors.Is(ErrEmptyCompletion) = %v, want %v", got, tt.wantEmpty)
			}
		})
	}
}
