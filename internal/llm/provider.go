package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/libelia/libelia/internal/llm/prompts"
)

const (
	ProviderOpenAI  = "openai"
	ProviderMistral = "mistral"
	ProviderOllama  = "ollama"
	ProviderGemini  = "gemini"
)

var defaultBaseURLs = map[string]string{
	ProviderMistral: "https://api.mistral.ai/v1",
	ProviderOllama:  "http://localhost:11434/v1",
}

var defaultModels = map[string]string{
	ProviderOpenAI:  "gpt-4o-mini",
	ProviderMistral: "mistral-large-latest",
	ProviderOllama:  "llama3.2",
	ProviderGemini:  "gemini-1.5-flash",
}

// Config selects and configures the grading LLM.
type Config struct {
	Provider string
	BaseURL  string
	APIKey   string
	Model    string
	Variant  string
}

// NewGrader builds the Grader named by cfg.Provider. Every hosted provider
// requires an API key; Ollama does not. An empty model selects the
// provider's default.
func NewGrader(ctx context.Context, cfg Config) (Grader, error) {
	provider := strings.ToLower(strings.TrimSpace(cfg.Provider))
	if provider == "" {
		provider = ProviderOpenAI
	}
	variant := prompts.ParseVariant(cfg.Variant)

	if cfg.APIKey == "" && provider != ProviderOllama {
		return nil, fmt.Errorf("%s: %w", provider, ErrMissingAPIKey)
	}

	modelName := strings.TrimSpace(cfg.Model)
	if modelName == "" {
		modelName = defaultModels[provider]
	}

	switch provider {
	case ProviderGemini:
		return NewGemini(ctx, cfg.APIKey, modelName, variant)
	case ProviderOpenAI, ProviderMistral, ProviderOllama:
		baseURL := cfg.BaseURL
		if baseURL == "" {
			baseURL = defaultBaseURLs[provider]
		}
		key := cfg.APIKey
		if key == "" {
			key = "ollama"
		}
		return New(baseURL, key, modelName, variant), nil
	}
	return nil, fmt.Errorf("unknown LLM provider %q", cfg.Provider)
}
