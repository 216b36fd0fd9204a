// Package genai provides GenAI-enhanced operations using the OpenAI API.
//
// It wraps the chat completion service behind a small interface so flows and
// services can inject mock clients in tests. Every call is a single
// request/response exchange; retry policy belongs to callers.
package genai

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/BTreeMap/CoachPipe/internal/models"
)

// Default sampling configuration.
const (
	// DefaultModel is the chat model used when none is configured.
	DefaultModel = openai.ChatModelGPT4oMini
	// DefaultTemperature balances persona variety against prompt adherence.
	DefaultTemperature = 0.7
	// DefaultMaxTokens bounds a single completion.
	DefaultMaxTokens = 1024
)

// Usage carries token accounting for one completion call.
type Usage struct {
	PromptTokens     int64
	CompletionTokens int64
	TotalTokens      int64
}

// ClientInterface is the LLM orchestrator boundary consumed by the persona
// synthesizer, the persona service and the engagement policy.
type ClientInterface interface {
	// GeneratePrompt runs one completion from a system and user prompt.
	GeneratePrompt(ctx context.Context, systemPrompt, userPrompt string) (string, error)
	// GenerateWithMessages runs one completion over a full message history.
	GenerateWithMessages(ctx context.Context, messages []openai.ChatCompletionMessageParamUnion) (string, error)
	// LastUsage returns token accounting for the most recent call.
	LastUsage() Usage
}

// Opts holds configuration options for the GenAI client.
type Opts struct {
	APIKey      string
	Model       string
	Temperature float64
	MaxTokens   int64
}

// Option defines a configuration option for the GenAI client.
type Option func(*Opts)

// WithAPIKey sets the OpenAI API key explicitly.
func WithAPIKey(key string) Option {
	return func(o *Opts) { o.APIKey = key }
}

// WithModel overrides the chat model.
func WithModel(model string) Option {
	return func(o *Opts) { o.Model = model }
}

// WithTemperature overrides the sampling temperature.
func WithTemperature(t float64) Option {
	return func(o *Opts) { o.Temperature = t }
}

// WithMaxTokens overrides the completion token cap.
func WithMaxTokens(n int64) Option {
	return func(o *Opts) { o.MaxTokens = n }
}

// Client wraps the OpenAI chat completion service.
type Client struct {
	oai         openai.Client
	model       string
	temperature float64
	maxTokens   int64
	lastUsage   Usage
}

// NewClient initializes a GenAI client. The API key falls back to the
// OPENAI_API_KEY environment variable when not provided via options.
func NewClient(opts ...Option) (*Client, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.APIKey == "" {
		cfg.APIKey = os.Getenv("OPENAI_API_KEY")
	}
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("OPENAI_API_KEY not set")
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.Temperature == 0 {
		cfg.Temperature = DefaultTemperature
	}
	if cfg.MaxTokens == 0 {
		cfg.MaxTokens = DefaultMaxTokens
	}
	slog.Debug("GenAI.NewClient: client configured", "model", cfg.Model, "temperature", cfg.Temperature, "max_tokens", cfg.MaxTokens)

	cli := openai.NewClient(option.WithAPIKey(cfg.APIKey))
	return &Client{
		oai:         cli,
		model:       cfg.Model,
		temperature: cfg.Temperature,
		maxTokens:   cfg.MaxTokens,
	}, nil
}

// GeneratePrompt generates a response from a system and user prompt pair.
func (c *Client) GeneratePrompt(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	messages := []openai.ChatCompletionMessageParamUnion{
		openai.SystemMessage(systemPrompt),
		openai.UserMessage(userPrompt),
	}
	return c.GenerateWithMessages(ctx, messages)
}

// GenerateWithMessages generates a response over a full message history.
// Provider failures are wrapped in models.ErrProvider so callers can
// distinguish them from parse failures.
func (c *Client) GenerateWithMessages(ctx context.Context, messages []openai.ChatCompletionMessageParamUnion) (string, error) {
	resp, err := c.oai.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model:       openai.ChatModel(c.model),
		Messages:    messages,
		Temperature: openai.Float(c.temperature),
		MaxTokens:   openai.Int(c.maxTokens),
	})
	if err != nil {
		slog.Error("GenAI.GenerateWithMessages: completion failed", "error", err, "model", c.model)
		return "", fmt.Errorf("%w: %v", models.ErrProvider, err)
	}
	if len(resp.Choices) == 0 {
		slog.Error("GenAI.GenerateWithMessages: no choices returned", "model", c.model)
		return "", fmt.Errorf("%w: no choices returned", models.ErrProvider)
	}
	c.lastUsage = Usage{
		PromptTokens:     resp.Usage.PromptTokens,
		CompletionTokens: resp.Usage.CompletionTokens,
		TotalTokens:      resp.Usage.TotalTokens,
	}
	slog.Debug("GenAI.GenerateWithMessages: completion succeeded",
		"model", c.model,
		"prompt_tokens", c.lastUsage.PromptTokens,
		"completion_tokens", c.lastUsage.CompletionTokens)
	return resp.Choices[0].Message.Content, nil
}

// LastUsage returns token accounting for the most recent completion.
func (c *Client) LastUsage() Usage {
	return c.lastUsage
}
