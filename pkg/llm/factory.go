package llm

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/ekaya-inc/datagenie/pkg/config"
)

const (
	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"
)

// NewClient builds the configured provider client, wrapped with metrics.
func NewClient(cfg config.LLMConfig, logger *zap.Logger) (Client, error) {
	clientCfg := &Config{
		BaseURL:   cfg.BaseURL,
		Model:     cfg.Model,
		APIKey:    cfg.APIKey,
		MaxTokens: cfg.MaxTokens,
	}

	var (
		client Client
		err    error
	)
	switch cfg.Provider {
	case ProviderOpenAI:
		client, err = NewOpenAIClient(clientCfg, logger)
	case ProviderAnthropic:
		client, err = NewAnthropicClient(clientCfg, logger)
	default:
		return nil, fmt.Errorf("unsupported llm provider %q", cfg.Provider)
	}
	if err != nil {
		return nil, fmt.Errorf("create %s client: %w", cfg.Provider, err)
	}

	return NewInstrumentedClient(client), nil
}
