// Package ollama is a generation provider backed by Ollama's /api/generate
// endpoint.
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
	// DefaultModel is the default generation model.
	DefaultModel = "gpt-oss:20b"
)

// Client generates completions with a model served by Ollama.
type Client struct {
	baseURL string
	model   string
	client  *http.Client
}

// Config configures the Ollama generation client.
type Config struct {
	BaseURL string
	Model   string
	Timeout time.Duration
}

var _ domain.Generator = (*Client)(nil)

// NewClient creates a client, applying defaults for empty fields.
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

// ModelID returns the configured model.
func (c *Client) ModelID() string { return c.model }

type generateRequest struct {
	Model   string          `json:"model"`
	Prompt  string          `json:"prompt"`
	System  string          `json:"system,omitempty"`
	Stream  bool            `json:"stream"`
	Options generateOptions `json:"options"`
}

type generateOptions struct {
	Temperature float64 `json:"temperature"`
}

type generateResponse struct {
	Response string `json:"response"`
}

// Generate runs a single non-streaming completion.
func (c *Client) Generate(ctx context.Context, prompt, system string, opts domain.GenerateOptions) (string, error) {
	data, err := json.Marshal(generateRequest{
		Model:   c.model,
		Prompt:  prompt,
		System:  system,
		Stream:  false,
		Options: generateOptions{Temperature: opts.Temperature},
	})
	if err != nil {
		return "", fmt.Errorf("marshal generate request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/generate", bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("build generate request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return "", domain.NewProviderError("ollama", "generate", 0, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", domain.NewProviderError("ollama", "generate", resp.StatusCode, errors.New(strings.TrimSpace(string(body))))
	}
	var out generateResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", domain.NewProviderError("ollama", "generate", resp.StatusCode, fmt.Errorf("decode response: %w", err))
	}
	return out.Response, nil
}

// Ping lists the installed models to check that the server is up.
func (c *Client) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/tags", nil)
	if err != nil {
		return fmt.Errorf("build ping request: %w", err)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return domain.NewProviderError("ollama", "ping", 0, err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	if resp.StatusCode != http.StatusOK {
		return domain.NewProviderError("ollama", "ping", resp.StatusCode, nil)
	}
	return nil
}
