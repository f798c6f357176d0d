package anthropic

import (
	"context"
	"net/http"
	"strings"

	anthropicapi "github.com/tjfontaine/polyglot-intent-router/internal/api/anthropic"
	"github.com/tjfontaine/polyglot-intent-router/internal/core/domain"
	"github.com/tjfontaine/polyglot-intent-router/internal/core/ports"
)

const (
	// DefaultModel is used when the provider config names none.
	DefaultModel = "claude-3-5-haiku-latest"
	// DefaultMaxTokens bounds the reply; chat answers are short.
	DefaultMaxTokens = 512
)

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

type Provider struct {
	name       string
	model      string
	client     *anthropicapi.Client
	baseURL    string
	httpClient *http.Client
}

// New creates a new Anthropic provider registered under name.
func New(name, apiKey string, opts ...ProviderOption) *Provider {
	p := &Provider{
		name:  name,
		model: DefaultModel,
	}
	for _, opt := range opts {
		opt(p)
	}

	var clientOpts []anthropicapi.ClientOption
	if p.baseURL != "" {
		clientOpts = append(clientOpts, anthropicapi.WithBaseURL(p.baseURL))
	}
	if p.httpClient != nil {
		clientOpts = append(clientOpts, anthropicapi.WithHTTPClient(p.httpClient))
	}
	p.client = anthropicapi.NewClient(apiKey, clientOpts...)
	return p
}

func (p *Provider) Name() string  { return p.name }
func (p *Provider) Model() string { return p.model }

func (p *Provider) Complete(ctx context.Context, prompt string) (string, error) {
	resp, err := p.client.CreateMessage(ctx, &anthropicapi.MessagesRequest{
		Model:     p.model,
		MaxTokens: DefaultMaxTokens,
		Messages:  []anthropicapi.Message{{Role: "user", Content: prompt}},
	})
	if err != nil {
		return "", domain.ErrProvider(p.name, err)
	}
	text := strings.TrimSpace(resp.Text())
	if text == "" {
		return "", domain.ErrProvider(p.name, domain.ErrEmptyCompletion)
	}
	return text, nil
}
