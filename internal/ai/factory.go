// factory.go - Provider Factory for creating provider instances from configuration

package ai

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/bosocmputer/invoice_scanner/configs"
	apperrors "github.com/bosocmputer/invoice_scanner/internal/errors"
	"github.com/bosocmputer/invoice_scanner/internal/metrics"
	"github.com/bosocmputer/invoice_scanner/internal/ratelimit"
)

// CreateProvider creates a single provider by name. Missing credentials do
// not fail here; the provider reports PROV_001 when called.
func CreateProvider(ctx context.Context, name string, cfg *configs.Config) (Provider, error) {
	switch name {
	case ProviderAnthropic:
		return NewAnthropicProvider(AnthropicConfig{
			APIKey:    cfg.AnthropicAPIKey,
			Model:     cfg.AnthropicModel,
			BaseURL:   cfg.AnthropicBaseURL,
			Version:   cfg.AnthropicVersion,
			MaxTokens: cfg.MaxOutputTokens,
		}), nil

	case ProviderBedrock:
		p, err := NewBedrockProvider(ctx, BedrockConfig{
			AccessKeyID:     cfg.AWSAccessKeyID,
			SecretAccessKey: cfg.AWSSecretAccessKey,
			Region:          cfg.AWSRegion,
			Model:           cfg.BedrockModel,
			MaxTokens:       cfg.MaxOutputTokens,
		})
		if err != nil {
			return nil, apperrors.Wrap(err, apperrors.ErrProviderNotConfigured.Code,
				"failed to load AWS configuration for bedrock")
		}
		return p, nil

	case ProviderGemini:
		return NewGeminiProvider(GeminiConfig{
			APIKey:    cfg.GeminiAPIKey,
			Model:     cfg.GeminiModel,
			MaxTokens: cfg.MaxOutputTokens,
		}), nil

	default:
		return nil, apperrors.New(apperrors.ErrUnknownProvider.Code,
			fmt.Sprintf("unsupported provider: %s (supported: anthropic, bedrock, gemini)", name))
	}
}

// NewOrchestratorFromConfig creates every provider named in PROVIDER_ORDER,
// each behind its own circuit breaker, and the orchestrator over them.
func NewOrchestratorFromConfig(ctx context.Context, cfg *configs.Config, m *metrics.Metrics, logger *zap.Logger) (*Orchestrator, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	order := cfg.Providers()
	providers := make([]Provider, 0, len(order))
	for _, name := range order {
		p, err := CreateProvider(ctx, name, cfg)
		if err != nil {
			return nil, err
		}
		providers = append(providers, WithBreaker(p, DefaultBreakerSettings(), logger))
		logger.Info("provider configured", zap.String("provider", name))
	}

	return NewOrchestrator(providers, OrchestratorConfig{
		Order:   order,
		Timeout: cfg.ProviderTimeout(),
		Limiter: ratelimit.NewRateLimiter(cfg.ProviderRPM, 1),
		Metrics: m,
		Logger:  logger,
	}), nil
}
