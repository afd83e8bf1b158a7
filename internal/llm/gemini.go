package llm

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"

	"github.com/libelia/libelia/internal/llm/prompts"
	"github.com/libelia/libelia/internal/model"
)

const geminiAttempts = 3

// Gemini grades through the Google Generative AI API.
type Gemini struct {
	client  *genai.Client
	model   string
	variant prompts.PromptVariant
}

// NewGemini creates a Gemini grader. The client is shared by all requests; call Close when done.
func NewGemini(ctx context.Context, apiKey, modelName string, variant prompts.PromptVariant) (*Gemini, error) {
	apiKey = strings.TrimSpace(apiKey)
	if apiKey == "" {
		return nil, fmt.Errorf("gemini: %w", ErrMissingAPIKey)
	}
	cl, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("gemini client: %w", err)
	}
	return &Gemini{client: cl, model: strings.TrimSpace(modelName), variant: variant}, nil
}

func (g *Gemini) Close() error {
	return g.client.Close()
}

// Evaluate asks Gemini for a JSON evaluation, retrying transport errors with a linear backoff.
func (g *Gemini) Evaluate(ctx context.Context, req model.GradingRequest) (*model.LLMEvaluation, error) {
	sys, err := prompts.BuildSystemPrompt(g.variant, req)
	if err != nil {
		return nil, fmt.Errorf("build prompt: %w", err)
	}

	m := g.client.GenerativeModel(g.model)
	m.GenerationConfig = genai.GenerationConfig{
		Temperature:      ptrFloat32(0),
		ResponseMIMEType: "application/json",
	}
	m.SystemInstruction = &genai.Content{
		Parts: []genai.Part{genai.Text(sys)},
	}
	parts := []genai.Part{genai.Text(prompts.BuildUserPrompt(req.ExtractedText))}

	var lastErr error
	for attempt := 1; attempt <= geminiAttempts; attempt++ {
		resp, err := m.GenerateContent(ctx, parts...)
		if err != nil {
			lastErr = err
			slog.Warn("gemini call failed", "attempt", attempt, "error", err)
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(time.Duration(attempt) * 300 * time.Millisecond):
			}
			continue
		}
		txt := firstText(resp)
		if txt == "" {
			return nil, fmt.Errorf("gemini: %w", ErrNoChoices)
		}
		slog.Debug("LLM response", "model", g.model, "raw", txt)
		return ParseEvaluation(txt)
	}
	return nil, fmt.Errorf("gemini after %d attempts: %w", geminiAttempts, lastErr)
}

// Ping checks that the model is reachable.
func (g *Gemini) Ping(ctx context.Context) error {
	if _, err := g.client.GenerativeModel(g.model).Info(ctx); err != nil {
		return fmt.Errorf("gemini model %s: %w", g.model, err)
	}
	return nil
}

func firstText(resp *genai.GenerateContentResponse) string {
	if resp == nil {
		return ""
	}
	for _, c := range resp.Candidates {
		if c.Content == nil {
			continue
		}
		for _, p := range c.Content.Parts {
			if t, ok := p.(genai.Text); ok {
				return string(t)
			}
		}
	}
	return ""
}

func ptrFloat32(v float32) *float32 { return &v }
