package llm

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/a3tai/pdf-assistant/internal/config"
)

// New selects the generator configured for the server.
func New(ctx context.Context, cfg *config.Config, logger *zap.Logger) (Generator, error) {
	switch cfg.LLMProvider {
	case config.ProviderGemini:
		return NewGeminiGenerator(ctx, cfg.GeminiAPIKey, cfg.LLMModel, logger)
	case config.ProviderRules, "":
		return NewRuleGenerator(), nil
	default:
		return nil, fmt.Errorf("unknown llm provider %q", cfg.LLMProvider)
	}
}
