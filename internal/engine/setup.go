package engine

import (
	"context"
	"fmt"

	"github.com/ferrychris/policyweb-sub000/internal/audit"
	"github.com/ferrychris/policyweb-sub000/internal/connectors"
	"github.com/ferrychris/policyweb-sub000/internal/infra"
	"go.uber.org/zap"
)

// NewTextGenerator выбирает провайдера по конфигу и оборачивает его
// в ReliabilityWrapper (лимитер, предохранитель, повторы).
func NewTextGenerator(ctx context.Context, cfg infra.GenerationConfig, metrics *Metrics, logger *zap.Logger) (connectors.TextGenerator, error) {
	var provider connectors.TextGenerator
	switch cfg.Provider {
	case "openai":
		provider = connectors.NewOpenAIClient(connectors.OpenAIConfig{
			APIKey:  cfg.APIKey,
			BaseURL: cfg.BaseURL,
			Model:   cfg.Model,
			Timeout: cfg.Timeout,
		})
	case "gemini":
		client, err := connectors.NewGeminiClient(ctx, cfg.APIKey, cfg.Model)
		if err != nil {
			return nil, fmt.Errorf("engine: gemini client: %w", err)
		}
		provider = client
	case "mock":
		provider = connectors.NewMockGenerator()
	default:
		return nil, fmt.Errorf("engine: unknown generation provider %q", cfg.Provider)
	}

	rc := DefaultReliabilityConfig()
	rc.Name = cfg.Provider
	if cfg.RetryAttempts > 0 {
		rc.Attempts = cfg.RetryAttempts
	}
	if cfg.RetryBaseDelay > 0 {
		rc.BaseDelay = cfg.RetryBaseDelay
	}
	if cfg.Timeout > 0 {
		rc.CallTimeout = cfg.Timeout
	}
	if cfg.CBMaxRequests > 0 {
		rc.CBMaxRequests = cfg.CBMaxRequests
	}
	if cfg.CBInterval > 0 {
		rc.CBInterval = cfg.CBInterval
	}
	if cfg.CBTimeout > 0 {
		rc.CBTimeout = cfg.CBTimeout
	}
	rc.RateLimit, rc.RateBurst = cfg.RateLimit, cfg.RateBurst

	return NewReliabilityWrapper(provider, rc, metrics, logger), nil
}

// NewFromConfig собирает Generator. В режиме template провайдер не создается.
func NewFromConfig(ctx context.Context, cfg infra.GenerationConfig, auditor audit.Auditor, metrics *Metrics, logger *zap.Logger) (*Generator, error) {
	gc := Config{Mode: Mode(cfg.Mode), MaxTokens: cfg.MaxTokens, Temperature: cfg.Temperature}
	if gc.Mode != ModeLLM {
		return NewGenerator(gc, nil, auditor, metrics, logger)
	}
	llm, err := NewTextGenerator(ctx, cfg, metrics, logger)
	if err != nil {
		return nil, err
	}
	return NewGenerator(gc, llm, auditor, metrics, logger)
}
