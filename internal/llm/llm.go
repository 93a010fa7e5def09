package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	openai "github.com/sashabaranov/go-openai"
)

// ErrNoContent is returned when a backend answers without any completion text.
var ErrNoContent = errors.New("backend returned no content")

// Request is a single prompt-completion call.
type Request struct {
	System      string
	Prompt      string
	Model       string // empty means the backend default
	Temperature float32
	MaxTokens   int
}

// Backend is a generative-text service. Implementations return the raw completion text;
// callers decide whether it is usable JSON.
type Backend interface {
	Name() string
	Complete(ctx context.Context, req Request) (string, error)
}

// Backend kinds accepted by New.
const (
	KindOpenAI = "openai"
	KindGemini = "gemini"
)

// Config selects and tunes one backend.
type Config struct {
	Kind        string  `mapstructure:"kind"`
	BaseURL     string  `mapstructure:"url"`
	APIKey      string  `mapstructure:"key"`
	Model       string  `mapstructure:"model"`
	RateLimit   float64 `mapstructure:"rate-limit"` // requests per second, 0 = unlimited
	Burst       int     `mapstructure:"burst"`
	MaxInFlight int64   `mapstructure:"max-in-flight"` // 0 = unbounded
}

// New builds a backend from configuration, wrapped with its rate and concurrency limits.
func New(cfg Config) (Backend, error) {
	var b Backend
	switch strings.ToLower(strings.TrimSpace(cfg.Kind)) {
	case "", KindOpenAI:
		b = NewOpenAI(cfg.BaseURL, cfg.APIKey, cfg.Model)
	case KindGemini:
		if cfg.APIKey == "" {
			return nil, fmt.Errorf("gemini backend requires an API key")
		}
		b = NewGemini(cfg.BaseURL, cfg.APIKey, cfg.Model)
	default:
		return nil, fmt.Errorf("unknown backend kind %q", cfg.Kind)
	}
	return NewLimited(b, cfg.RateLimit, cfg.Burst, cfg.MaxInFlight), nil
}

// OpenAI wraps an OpenAI-compatible API client.
type OpenAI struct {
	api   *openai.Client
	model string
}

// NewOpenAI creates a client for any OpenAI-compatible endpoint (OpenAI, Ollama, vLLM).
func NewOpenAI(baseURL, apiKey, modelName string) *OpenAI {
	config := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		config.BaseURL = baseURL
	}
	return &OpenAI{
		api:   openai.NewClientWithConfig(config),
		model: modelName,
	}
}

// Name implements Backend.
func (c *OpenAI) Name() string { return KindOpenAI }

// Complete sends one chat completion in JSON object mode.
func (c *OpenAI) Complete(ctx context.Context, req Request) (string, error) {
	modelName := req.Model
	if modelName == "" {
		modelName = c.model
	}

	var msgs []openai.ChatCompletionMessage
	if req.System != "" {
		msgs = append(msgs, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleSystem, Content: req.System})
	}
	msgs = append(msgs, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser, Content: req.Prompt})

	resp, err := c.api.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:    modelName,
		Messages: msgs,
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
	})
	if err != nil {
		return "", fmt.Errorf("LLM API call: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", ErrNoContent
	}

	raw := resp.Choices[0].Message.Content
	slog.Debug("LLM response", "backend", KindOpenAI, "model", modelName, "raw", raw)
	return raw, nil
}

// Ping checks that the endpoint is reachable and the key is accepted.
func (c *OpenAI) Ping(ctx context.Context) error {
	if _, err := c.api.ListModels(ctx); err != nil {
		return fmt.Errorf("list models: %w", err)
	}
	return nil
}
