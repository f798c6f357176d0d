// Package retrieval provides RetrievalIndex implementations: a client for a
// remote similarity-search service, an in-process catalog index, and a
// caching wrapper.
package retrieval

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"

	"github.com/tjfontaine/polyglot-intent-router/internal/core/domain"
	"github.com/tjfontaine/polyglot-intent-router/internal/core/ports"
)

var _ ports.RetrievalIndex = (*Client)(nil)

// ClientOption configures the client.
type ClientOption func(*Client)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(httpClient *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

// WithAPIKey sends a bearer token with every search.
func WithAPIKey(key string) ClientOption {
	return func(c *Client) {
		c.apiKey = key
	}
}

// Client talks to a similarity-search service exposing POST /search.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// NewClient creates a search client for baseURL.
func NewClient(baseURL string, opts ...ClientOption) *Client {
	c := &Client{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		httpClient: http.DefaultClient,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type searchRequest struct {
	Query string `json:"query"`
	K     int    `json:"k"`
}

type searchResponse struct {
	Results []domain.RetrievedDocument `json:"results"`
}

// Search returns at most k documents ordered by descending relevance. Ties
// are broken by source id so identical queries give identical orderings.
func (c *Client) Search(ctx context.Context, query string, k int) ([]domain.RetrievedDocument, error) {
	if k <= 0 || strings.TrimSpace(query) == "" {
		return nil, nil
	}

	body, err := json.Marshal(searchRequest{Query: query, K: k})
	if err != nil {
		return nil, domain.ErrRetrieval(fmt.Errorf("failed to marshal request: %w", err))
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/search", bytes.NewReader(body))
	if err != nil {
		return nil, domain.ErrRetrieval(fmt.Errorf("failed to create request: %w", err))
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, domain.ErrRetrieval(fmt.Errorf("request failed: %w", err))
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, domain.ErrRetrieval(fmt.Errorf("failed to read response: %w", err))
	}
	if resp.StatusCode != http.StatusOK {
		return nil, domain.ErrRetrieval(fmt.Errorf("search error (status %d): %s", resp.StatusCode, string(respBody)))
	}

	var result searchResponse
	if err := json.Unmarshal(respBody, &result); err != nil {
		return nil, domain.ErrRetrieval(fmt.Errorf("failed to unmarshal response: %w", err))
	}

	docs := result.Results
	rank(docs)
	if len(docs) > k {
		docs = docs[:k]
	}
	return docs, nil
}

// rank orders documents by descending score, then ascending source id.
func rank(docs []domain.RetrievedDocument) {
	sort.SliceStable(docs, func(i, j int) bool {
		if docs[i].RelevanceScore != docs[j].RelevanceScore {
			return docs[i].RelevanceScore > docs[j].RelevanceScore
		}
		return docs[i].SourceID < docs[j].SourceID
	})
}
