package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/libelia/libelia/internal/llm/prompts"
	"github.com/libelia/libelia/internal/model"

	openai "github.com/sashabaranov/go-openai"
)

var (
	// ErrMissingAPIKey is returned when a hosted provider is configured without a key.
	ErrMissingAPIKey = errors.New("missing LLM API key")

	// ErrNoChoices is returned when the provider answers without any content.
	ErrNoChoices = errors.New("LLM returned no choices")
)

// Grader obtains an LLM evaluation for one grading request.
type Grader interface {
	Evaluate(ctx context.Context, req model.GradingRequest) (*model.LLMEvaluation, error)
	Ping(ctx context.Context) error
}

// Client wraps an OpenAI-compatible API client (OpenAI, Mistral, Ollama).
type Client struct {
	api     *openai.Client
	model   string
	variant prompts.PromptVariant
}

// New creates a new LLM client.
func New(baseURL, apiKey, modelName string, variant prompts.PromptVariant) *Client {
	config := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		config.BaseURL = baseURL
	}
	return &Client{
		api:     openai.NewClientWithConfig(config),
		model:   modelName,
		variant: variant,
	}
}

// Evaluate sends the OCR text and grading instructions to the LLM and parses its JSON answer.
func (c *Client) Evaluate(ctx context.Context, req model.GradingRequest) (*model.LLMEvaluation, error) {
	systemPrompt, err := prompts.BuildSystemPrompt(c.variant, req)
	if err != nil {
		return nil, fmt.Errorf("build prompt: %w", err)
	}

	resp, err := c.api.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: c.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: prompts.BuildUserPrompt(req.ExtractedText)},
		},
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
		Temperature: 0.1,
	})
	if err != nil {
		return nil, fmt.Errorf("LLM API call: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, ErrNoChoices
	}

	raw := resp.Choices[0].Message.Content
	slog.Debug("LLM response", "model", c.model, "raw", raw)
	return ParseEvaluation(raw)
}

// Ping checks that the endpoint answers and the model exists.
func (c *Client) Ping(ctx context.Context) error {
	if _, err := c.api.GetModel(ctx, c.model); err != nil {
		return fmt.Errorf("LLM model %s: %w", c.model, err)
	}
	return nil
}
