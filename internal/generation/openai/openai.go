// Package openai is a generation provider backed by the OpenAI chat
// completions API or any compatible endpoint.
package openai

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	oai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/packages/param"
	"github.com/openai/openai-go/shared"

	"teabot/internal/domain"
)

// DefaultModel is the chat model used when none is configured.
const DefaultModel = "gpt-3.5-turbo"

// Client is a chat completions client implementing domain.Generator.
type Client struct {
	client oai.Client
	model  string
}

// Config configures the OpenAI chat client.
type Config struct {
	BaseURL string
	APIKey  string
	Model   string
	Timeout time.Duration
}

var _ domain.Generator = (*Client)(nil)

// NewClient creates a chat client with SDK retries disabled.
func NewClient(cfg Config) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, &domain.ConfigurationError{Setting: "generator.openai.api_key_env", Err: errors.New("missing API key")}
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

// ModelID returns the configured chat model.
func (c *Client) ModelID() string { return c.model }

// Generate sends system and prompt as a two-message conversation and returns
// the first choice's content.
func (c *Client) Generate(ctx context.Context, prompt, system string, opts domain.GenerateOptions) (string, error) {
	var messages []oai.ChatCompletionMessageParamUnion
	if system != "" {
		messages = append(messages, oai.SystemMessage(system))
	}
	messages = append(messages, oai.UserMessage(prompt))

	resp, err := c.client.Chat.Completions.New(ctx, oai.ChatCompletionNewParams{
		Model:       shared.ChatModel(c.model),
		Messages:    messages,
		Temperature: param.NewOpt(opts.Temperature),
	})
	if err != nil {
		var apiErr *oai.Error
		if errors.As(err, &apiErr) {
			return "", domain.NewProviderError("openai", "generate", apiErr.StatusCode, err)
		}
		return "", domain.NewProviderError("openai", "generate", 0, fmt.Errorf("request failed: %w", err))
	}
	if len(resp.Choices) == 0 {
		return "", domain.NewProviderError("openai", "generate", 0, errors.New("empty choices in response"))
	}
	return resp.Choices[0].Message.Content, nil
}
