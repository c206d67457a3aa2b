package llm

import (
	"fmt"
	"strings"

	"github.com/ppiankov/mediclaim/internal/model"
	"github.com/ppiankov/mediclaim/internal/ratelimit"
)

// NewProvider creates a new provider based on configuration
func NewProvider(config Config) (Provider, error) {
	provider := strings.ToLower(config.Provider)

	switch provider {
	case "openai":
		return NewOpenAIProvider(config)

	case "ollama":
		return NewOllamaProvider(config)

	case "":
		// No provider configured - model scoring disabled
		return nil, nil

	default:
		return nil, fmt.Errorf("unknown LLM provider: %s (supported: openai, ollama)", config.Provider)
	}
}

// ConfigFromModel converts model.LLMConfig to llm.Config
func ConfigFromModel(modelConfig model.LLMConfig) Config {
	return Config{
		Provider:   modelConfig.Provider,
		Model:      modelConfig.Model,
		APIKey:     modelConfig.APIKey,
		BaseURL:    modelConfig.BaseURL,
		Timeout:    modelConfig.Timeout,
		MaxTokens:  modelConfig.MaxTokens,
		HTTPProxy:  modelConfig.HTTPProxy,
		HTTPSProxy: modelConfig.HTTPSProxy,
		NoProxy:    modelConfig.NoProxy,
	}
}

// NewFraudStrategyFromModel builds the model-backed fraud scorer configured
// in cfg. It fails when no provider is configured. A positive
// cfg.RequestsPerSecond throttles calls to the provider.
func NewFraudStrategyFromModel(cfg model.LLMConfig) (*FraudStrategy, error) {
	provider, err := NewProvider(ConfigFromModel(cfg))
	if err != nil {
		return nil, err
	}
	if provider == nil {
		return nil, fmt.Errorf("llm scoring strategy requires llm.provider (openai or ollama)")
	}
	var opts []FraudOption
	if cfg.RequestsPerSecond > 0 {
		limiter := ratelimit.NewLimiter(0, 0)
		limiter.SetKeyRate(provider.Name(), cfg.RequestsPerSecond, cfg.Burst)
		opts = append(opts, WithLimiter(limiter))
	}
	return NewFraudStrategy(provider, opts...), nil
}
