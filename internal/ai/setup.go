package ai

import (
	"context"

	"github.com/pentabot/backend/internal/config"
)

// NewRegistryFromConfig registers every provider this service knows how to build.
func NewRegistryFromConfig(cfg config.Config) *Registry {
	reg := NewRegistry()

	reg.Register("gemini", func(ctx context.Context, model string) (Provider, error) {
		p, err := NewGeminiProvider(ctx, cfg.GeminiAPIKey, model)
		if err != nil {
			return nil, err
		}
		return p, nil
	})
	reg.Register("openai", func(ctx context.Context, model string) (Provider, error) {
		return NewOpenAIProvider(cfg.OpenAIAPIKey, cfg.OpenAIBaseURL, model), nil
	})
	reg.Register("openrouter", func(ctx context.Context, model string) (Provider, error) {
		if model == "" {
			model = "openrouter/auto"
		}
		return NewOpenAIProvider(cfg.OpenRouterAPIKey, cfg.OpenRouterBaseURL, model), nil
	})
	reg.Register("ollama", func(ctx context.Context, model string) (Provider, error) {
		return NewOllamaProvider(cfg.OllamaBaseURL, model), nil
	})

	return reg
}
