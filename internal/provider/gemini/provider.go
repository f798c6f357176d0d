// Package gemini adapts the Google Gen AI SDK to the provider chain.
package gemini

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"google.golang.org/genai"

	"github.com/tjfontaine/polyglot-intent-router/internal/core/domain"
	"github.com/tjfontaine/polyglot-intent-router/internal/core/ports"
)

// DefaultModel is used when the provider config names none.
const DefaultModel = "gemini-2.0-flash"

var _ ports.Provider = (*Provider)(nil)

// ProviderOption configures the provider.
type ProviderOption func(*Provider)

// WithBaseURL points the SDK at a different endpoint.
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
	client     *genai.Client
	baseURL    string
	httpClient *http.Client
}

// New creates a Gemini provider. The SDK client performs no I/O until the
// first request.
func New(name, apiKey string, opts ...ProviderOption) (*Provider, error) {
	if apiKey == "" {
		return nil, domain.ErrConfiguration("gemini provider requires api_key")
	}
	p := &Provider{
		name:  name,
		model: DefaultModel,
	}
	for _, opt := range opts {
		opt(p)
	}

	cc := &genai.ClientConfig{
		APIKey:     apiKey,
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: p.httpClient,
	}
	if p.baseURL != "" {
		cc.HTTPOptions = genai.HTTPOptions{BaseURL: p.baseURL}
	}
	client, err := genai.NewClient(context.Background(), cc)
	if err != nil {
		return nil, domain.ErrConfiguration(fmt.Sprintf("create gemini client %s", name)).Wrap(err)
	}
	p.client = client
	return p, nil
}

func (p *Provider) Name() string  { return p.name }
func (p *Provider) Model() string { return p.model }

func (p *Provider) Complete(ctx context.Context, prompt string) (string, error) {
	resp, err := p.client.Models.GenerateContent(ctx, p.model, genai.Text(prompt), nil)
	if err != nil {
		return "", domain.ErrProvider(p.name, err)
	}
	text := strings.TrimSpace(resp.Text())
	if text == "" {
		return "", domain.ErrProvider(p.name, domain.ErrEmptyCompletion)
	}
	return text, nil
}
