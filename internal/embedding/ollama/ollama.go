// Package ollama is an embedding provider backed by a local Ollama server's
// /api/embeddings endpoint.
package ollama

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"teabot/internal/domain"
)

const (
	// DefaultBaseURL is the default address of a locally running Ollama.
	DefaultBaseURL = "http://localhost:11434"
	// DefaultModel is the default embedding model.
	DefaultModel = "nomic-embed-text"
)

// Client embeds text with a model served by Ollama.
type Client struct {
	baseURL string
	model   string
	client  *http.Client
}

// Config configures the Ollama embeddings client.
type Config struct {
	BaseURL string
	Model   string
	Timeout time.Duration
}

var _ domain.Embedder = (*Client)(nil)

// NewClient creates a client, applying defaults for empty fields. A zero
// timeout leaves requests unbounded.
func NewClient(cfg Config) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	return &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		model:   cfg.Model,
		client:  &http.Client{Timeout: cfg.Timeout},
	}
}

// ModelID returns the configured embedding model.
func (c *Client) ModelID() string { return c.model }

type embedRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
}

type embedResponse struct {
	Embedding []float64 `json:"embedding"`
}

// Embed posts text to /api/embeddings and returns the vector. Transport
// failures, non-2xx statuses and empty vectors are reported as
// *domain.ProviderError.
func (c *Client) Embed(ctx context.Context, text string) (domain.Vector, error) {
	data, err := json.Marshal(embedRequest{Model: c.model, Prompt: text})
	if err != nil {
		return nil, fmt.Errorf("marshal embed request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/embeddings", bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("build embed request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, domain.NewProviderError("ollama", "embed", 0, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, domain.NewProviderError("ollama", "embed", resp.StatusCode, errors.New(strings.TrimSpace(string(body))))
	}
	var out embedResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, domain.NewProviderError("ollama", "embed", resp.StatusCode, fmt.Errorf("decode response: %w", err))
	}
	if len(out.Embedding) == 0 {
		return nil, domain.NewProviderError("ollama", "embed", resp.StatusCode, errors.New("no embedding returned"))
	}
	return out.Embedding, nil
}
