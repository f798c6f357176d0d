package openai

import (
	"context"
	"net/http"
	"strings"

	openaiapi "github.com/tjfontaine/polyglot-intent-router/internal/api/openai"
	"github.com/tjfontaine/polyglot-intent-router/internal/core/domain"
	"github.com/tjfontaine/polyglot-intent-router/internal/core/ports"
)

// DefaultModel is used when the provider config names none.
const DefaultModel = "gpt-4o-mini"

var _ ports.Provider = (*Provider)(nil)

// ProviderOption configures the provider.
type ProviderOption func(*Provider)

// WithBaseURL sets a custom base URL for the API.
func WithBaseURL(baseURL string) ProviderOption {
	return func(p *Provider) {
		p.baseURL = baseURL
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(httpClient *http.Client) ProviderOption {
	return func(p *Provider) {
		p.httpClient = httpClient
	}
}

// WithModel sets the upstream model.
func WithModel(model string) ProviderOption {
	return func(p *Provider) {
		if model != "" {
			p.model = model
		}
	}
}

// Provider sends the grounded prompt as a single user message.
type Provider struct {
	name       string
	model      string
	client     *openaiapi.Client
	baseURL    string
	httpClient *http.Client
}

// New creates a new OpenAI provider registered under name.
func New(name, apiKey string, opts ...ProviderOption) *Provider {
	p := &Provider{
		name:  name,
		model: DefaultModel,
	}
	for _, opt := range opts {
		opt(p)
	}

	var clientOpts []openaiapi.ClientOption
	if p.baseURL != "" {
		clientOpts = append(clientOpts, openaiapi.WithBaseURL(p.baseURL))
	}
	if p.httpClient != nil {
		clientOpts = append(clientOpts, openaiapi.WithHTTPClient(p.httpClient))
	}
	p.client = openaiapi.NewClient(apiKey, clientOpts...)
	return p
}

func (p *Provider) Name() string  { return p.name }
func (p *Provider) Model() string { return p.model }

func (p *Provider) Complete(ctx context.Context, prompt string) (string, error) {
	resp, err := p.client.CreateChatCompletion(ctx, &openaiapi.ChatCompletionRequest{
		Model:    p.model,
		Messages: []openaiapi.ChatMessage{{Role: "user", Content: prompt}},
	})
	if err != nil {
		return "", domain.ErrProvider(p.name, err)
	}
	if len(resp.Choices) == 0 {
		return "", domain.ErrProvider(p.name, domain.ErrEmptyCompletion)
	}
	text := strings.TrimSpace(resp.Choices[0].Message.Content)
	if text == "" {
		return "", domain.ErrProvider(p.name, domain.ErrEmptyCompletion)
	}
	return text, nil
}
