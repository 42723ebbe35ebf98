// Package openai is an embedding provider backed by the OpenAI embeddings API
// or any OpenAI-compatible endpoint.
package openai

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	oai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/packages/param"

	"teabot/internal/domain"
)

// DefaultModel is the embedding model used when none is configured.
const DefaultModel = "text-embedding-ada-002"

// Client is an OpenAI embeddings client implementing domain.Embedder.
type Client struct {
	client oai.Client
	model  string
}

// Config configures the OpenAI embeddings client.
type Config struct {
	BaseURL string
	APIKey  string
	Model   string
	Timeout time.Duration
}

var _ domain.Embedder = (*Client)(nil)

// NewClient creates a new embeddings client. SDK retries are disabled: each
// Embed call is a single attempt.
func NewClient(cfg Config) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, &domain.ConfigurationError{Setting: "embedder.openai.api_key_env", Err: errors.New("missing API key")}
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithMaxRetries(0),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	if cfg.Timeout > 0 {
		opts = append(opts, option.WithHTTPClient(&http.Client{Timeout: cfg.Timeout}))
	}
	return &Client{client: oai.NewClient(opts...), model: cfg.Model}, nil
}

// ModelID returns the configured embedding model.
func (c *Client) ModelID() string { return c.model }

// Embed returns the embedding of text. Newlines are flattened to spaces, as
// recommended for the ada family.
func (c *Client) Embed(ctx context.Context, text string) (domain.Vector, error) {
	text = strings.ReplaceAll(text, "\n", " ")
	resp, err := c.client.Embeddings.New(ctx, oai.EmbeddingNewParams{
		Model: c.model,
		Input: oai.EmbeddingNewParamsInputUnion{
			OfString: param.NewOpt(text),
		},
	})
	if err != nil {
		return nil, wrapError("embed", err)
	}
	if len(resp.Data) == 0 || len(resp.Data[0].Embedding) == 0 {
		return nil, domain.NewProviderError("openai", "embed", 0, errors.New("no embedding returned"))
	}
	return domain.Vector(resp.Data[0].Embedding), nil
}

func wrapError(op string, err error) error {
	var apiErr *oai.Error
	if errors.As(err, &apiErr) {
		return domain.NewProviderError("openai", op, apiErr.StatusCode, err)
	}
	return domain.NewProviderError("openai", op, 0, fmt.Errorf("request failed: %w", err))
}
