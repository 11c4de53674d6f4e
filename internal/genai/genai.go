// Package genai wraps the OpenAI API for chat completion and embedding calls.
package genai

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

// ClientInterface is the generation and embedding surface the rest of the
// application depends on. Both calls are blocking; failures are returned as
// plain errors and recovered by the caller.
type ClientInterface interface {
	// GenerateWithMessages runs one chat completion over the given message
	// sequence and returns the model's text.
	GenerateWithMessages(ctx context.Context, messages []openai.ChatCompletionMessageParamUnion) (string, error)

	// Embed converts text into an embedding vector.
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Opts holds configuration for the GenAI client.
type Opts struct {
	APIKey         string
	Model          openai.ChatModel
	EmbeddingModel openai.EmbeddingModel
}

// Option configures the GenAI client.
type Option func(*Opts)

// WithAPIKey sets the OpenAI API key, overriding $OPENAI_API_KEY.
func WithAPIKey(key string) Option {
	return func(o *Opts) { o.APIKey = key }
}

// WithModel sets the chat completion model.
func WithModel(model openai.ChatModel) Option {
	return func(o *Opts) { o.Model = model }
}

// WithEmbeddingModel sets the embedding model.
func WithEmbeddingModel(model openai.EmbeddingModel) Option {
	return func(o *Opts) { o.EmbeddingModel = model }
}

// Client wraps the OpenAI client for completions and embeddings.
type Client struct {
	client         openai.Client
	model          openai.ChatModel
	embeddingModel openai.EmbeddingModel
}

// NewClient creates a GenAI client. The API key falls back to the
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
		return nil, fmt.Errorf("OpenAI API key not set")
	}
	if cfg.Model == "" {
		cfg.Model = openai.ChatModelGPT4o
	}
	if cfg.EmbeddingModel == "" {
		cfg.EmbeddingModel = openai.EmbeddingModelTextEmbeddingAda002
	}
	slog.Debug("genai.NewClient: configured", "model", cfg.Model, "embeddingModel", cfg.EmbeddingModel)

	return &Client{
		client:         openai.NewClient(option.WithAPIKey(cfg.APIKey)),
		model:          cfg.Model,
		embeddingModel: cfg.EmbeddingModel,
	}, nil
}

// GenerateWithMessages implements ClientInterface.
func (c *Client) GenerateWithMessages(ctx context.Context, messages []openai.ChatCompletionMessageParamUnion) (string, error) {
	resp, err := c.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model:    c.model,
		Messages: messages,
	})
	if err != nil {
		slog.Error("genai.GenerateWithMessages: completion failed", "error", err, "model", c.model)
		return "", fmt.Errorf("chat completion failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		slog.Error("genai.GenerateWithMessages: no choices returned", "model", c.model)
		return "", fmt.Errorf("chat completion returned no choices")
	}
	slog.Debug("genai.GenerateWithMessages: completion succeeded", "messageCount", len(messages), "responseLength", len(resp.Choices[0].Message.Content))
	return resp.Choices[0].Message.Content, nil
}

// Embed implements ClientInterface.
func (c *Client) Embed(ctx context.Context, text string) ([]float32, error) {
	resp, err := c.client.Embeddings.New(ctx, openai.EmbeddingNewParams{
		Model: c.embeddingModel,
		Input: openai.EmbeddingNewParamsInputUnion{OfArrayOfStrings: []string{text}},
	})
	if err != nil {
		slog.Error("genai.Embed: embedding failed", "error", err, "model", c.embeddingModel)
		return nil, fmt.Errorf("embedding failed: %w", err)
	}
	if len(resp.Data) == 0 {
		return nil, fmt.Errorf("embedding returned no data")
	}

	vec := make([]float32, len(resp.Data[0].Embedding))
	for i, v := range resp.Data[0].Embedding {
		vec[i] = float32(v)
	}
	slog.Debug("genai.Embed: embedding succeeded", "textLength", len(text), "dimensions", len(vec))
	return vec, nil
}
