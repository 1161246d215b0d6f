// Package genai wraps the OpenAI chat-completion API for DemoBot.
package genai

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/mhealthlab/demobot/internal/models"
	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

// chatService defines the minimal interface for chat completions, allowing
// tests to substitute the real API client.
type chatService interface {
	New(ctx context.Context, params openai.ChatCompletionNewParams, opts ...option.RequestOption) (*openai.ChatCompletion, error)
}

// Opts holds configuration options for the GenAI client.
type Opts struct {
	APIKey string
	Model  openai.ChatModel
}

// Option defines a configuration option for the GenAI client.
type Option func(*Opts)

// WithAPIKey sets the OpenAI API key, overriding $OPENAI_API_KEY.
func WithAPIKey(key string) Option {
	return func(o *Opts) { o.APIKey = key }
}

// WithModel sets the completion model. Defaults to gpt-4o-mini.
func WithModel(model openai.ChatModel) Option {
	return func(o *Opts) { o.Model = model }
}

// Client wraps the OpenAI chat-completion service.
type Client struct {
	chat  chatService
	model openai.ChatModel
}

// NewClient initializes a GenAI client, falling back to the OPENAI_API_KEY
// environment variable when no key option is provided.
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
		cfg.Model = openai.ChatModelGPT4oMini
	}
	slog.Debug("genai.NewClient: client configured", "model", cfg.Model, "api_key_set", true)

	cli := openai.NewClient(option.WithAPIKey(cfg.APIKey))
	return &Client{chat: &cli.Chat.Completions, model: cfg.Model}, nil
}

// GenerateWithHistory produces a completion from a system instruction, prior
// sanitized turns, and the new input text.
//
// Callers must pass already-sanitized history (user-first, strictly
// alternating, not user-terminal); this method performs no reshaping of its
// own beyond role mapping.
func (c *Client) GenerateWithHistory(ctx context.Context, systemPrompt string, turns []models.Turn, input string) (string, error) {
	messages := make([]openai.ChatCompletionMessageParamUnion, 0, len(turns)+2)
	if systemPrompt != "" {
		messages = append(messages, openai.SystemMessage(systemPrompt))
	}
	for _, t := range turns {
		switch t.Speaker {
		case models.SpeakerUser:
			messages = append(messages, openai.UserMessage(t.Text))
		case models.SpeakerAssistant:
			messages = append(messages, openai.AssistantMessage(t.Text))
		default:
			slog.Warn("genai.GenerateWithHistory: skipping turn with unknown speaker", "speaker", t.Speaker)
		}
	}
	messages = append(messages, openai.UserMessage(input))

	resp, err := c.chat.New(ctx, openai.ChatCompletionNewParams{
		Model:    c.model,
		Messages: messages,
	})
	if err != nil {
		slog.Error("genai.GenerateWithHistory: completion request failed", "error", err, "history_turns", len(turns))
		return "", fmt.Errorf("chat completion failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		slog.Error("genai.GenerateWithHistory: completion returned no choices")
		return "", models.ErrEmptyCompletion
	}

	content := resp.Choices[0].Message.Content
	slog.Debug("genai.GenerateWithHistory: completion succeeded", "history_turns", len(turns), "response_length", len(content))
	return content, nil
}
