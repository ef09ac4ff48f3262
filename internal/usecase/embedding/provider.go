package embedding

import (
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/catalograg/internal/domain"
	"github.com/kailas-cloud/catalograg/internal/transport/nebius"
	"github.com/kailas-cloud/catalograg/internal/transport/openai"
)

// ProviderConfig selects and configures the embedding transport.
type ProviderConfig struct {
	Provider   string // "openai" or "nebius"
	APIKey     string
	BaseURL    string
	Model      string
	Dimensions int
	Timeout    time.Duration
}

// NewProvider builds the configured embedding provider variant.
func NewProvider(cfg ProviderConfig, logger *zap.Logger) (domain.EmbeddingProvider, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("%w: embedding API key is required for provider %q", domain.ErrConfiguration, cfg.Provider)
	}

	switch cfg.Provider {
	case openai.ProviderName, "":
		return openai.NewEmbedder(&openai.Config{
			APIKey:     cfg.APIKey,
			BaseURL:    cfg.BaseURL,
			Model:      cfg.Model,
			Dimensions: cfg.Dimensions,
			Timeout:    cfg.Timeout,
			Logger:     logger,
		}), nil
	case nebius.ProviderName:
		return nebius.NewEmbedder(nebius.Config{
			APIKey:  cfg.APIKey,
			URL:     cfg.BaseURL,
			Model:   cfg.Model,
			Timeout: cfg.Timeout,
			Logger:  logger,
		}), nil
	default:
		return nil, fmt.Errorf("%w: unknown embedding provider %q", domain.ErrConfiguration, cfg.Provider)
	}
}
