package anthropic

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestClient_CreateMessage(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/messages" {
			t.Errorf("path = %s", r.URL.Path)
		}
		if r.Header.Get("x-api-key") != "sk-ant" || r.Header.Get("anthropic-version") != "2024-01-01" {
			t.Errorf("headers = %v", r.Header)
		}
		w.Write([]byte(`{"id":"m1","content":[{"type":"text","text":"Hola, "},{"type":"tool_use"},{"type":"text","text":"bienvenida"}],"stop_reason":"end_turn"}`))
	}))
	defer server.Close()

	c := NewClient("sk-ant", WithBaseURL(server.URL+"/"), WithVersion("2024-01-01"))
	resp, err := c.CreateMessage(context.Background(), &MessagesRequest{
		Model:     "claude-3-5-haiku-latest",
		MaxTokens: 64,
		Messages:  []Message{{Role: "user", Content: "hola"}},
	})
	if err != nil {
		t.Fatalf("CreateMessage() error = %v", err)
	}
	if got := resp.Text(); got != "Hola, bienvenida" {
		t.Errorf("Text() = %q", got)
	}
}

func TestClient_APIError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		w.Write([]byte(`{"type":"error","error":{"type":"rate_limit_error","message":"slow down"}}`))
	}))
	defer server.Close()

	_, err := NewClient("sk-ant", WithBaseURL(server.URL)).CreateMessage(context.Background(), &MessagesRequest{})
	if err == nil || !strings.Contains(err.Error(), "rate_limit_error: slow down") {
		t.Errorf("error = %v", err)
	}
}
