// Package nebius is a raw JSON-over-HTTP client for the Nebius AI Studio
// embeddings endpoint. The endpoint rejects large payloads, so callers must
// keep batches at MaxBatchSize or below.
package nebius

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/catalograg/internal/domain"
	"github.com/kailas-cloud/catalograg/internal/metrics"
)

const (
	ProviderName   = "nebius"
	DefaultURL     = "https://api.studio.nebius.com/v1/embeddings"
	DefaultModel   = "Qwen/Qwen3-Embedding-8B"
	DefaultTimeout = 60 * time.Second
	MaxBatchSize   = 5
)

// Config holds the Nebius provider settings.
type Config struct {
	APIKey  string
	URL     string
	Model   string
	Timeout time.Duration
	Logger  *zap.Logger
}

// Embedder implements domain.EmbeddingProvider over the Nebius HTTP API.
type Embedder struct {
	client *http.Client
	url    string
	apiKey string
	model  string
	logger *zap.Logger
}

type embReq struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type embResp struct {
	Data []struct {
		Embedding []float32 `json:"embedding"`
		Index     int       `json:"index"`
	} `json:"data"`
	Usage struct {
		PromptTokens int `json:"prompt_tokens"`
		TotalTokens  int `json:"total_tokens"`
	} `json:"usage"`
	Detail string `json:"detail"`
}

// NewEmbedder creates a Nebius embedder, filling defaults for empty fields.
func NewEmbedder(cfg Config) *Embedder {
	if cfg.URL == "" {
		cfg.URL = DefaultURL
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	return &Embedder{
		client: &http.Client{Timeout: cfg.Timeout},
		url:    cfg.URL,
		apiKey: cfg.APIKey,
		model:  cfg.Model,
		logger: cfg.Logger,
	}
}

func (e *Embedder) Name() string      { return ProviderName }
func (e *Embedder) Model() string     { return e.model }
func (e *Embedder) MaxBatchSize() int { return MaxBatchSize }

// Embed implements domain.Embedder.
func (e *Embedder) Embed(ctx context.Context, text string) (domain.EmbeddingResult, error) {
	res, err := e.BatchEmbed(ctx, []string{text})
	if err != nil {
		return domain.EmbeddingResult{}, err
	}
	return domain.EmbeddingResult{
		Embedding:    res.Embeddings[0],
		PromptTokens: res.PromptTokens,
		TotalTokens:  res.TotalTokens,
	}, nil
}

// BatchEmbed sends one request with all texts.
func (e *Embedder) BatchEmbed(ctx context.Context, texts []string) (domain.BatchEmbeddingResult, error) {
	if len(texts) == 0 {
		return domain.BatchEmbeddingResult{}, nil
	}

	start := time.Now()
	result, err := e.do(ctx, texts)
	if err != nil {
		metrics.EmbeddingRequestsTotal.WithLabelValues(ProviderName, e.model, "error").Inc()
		metrics.EmbeddingErrorsTotal.WithLabelValues(ProviderName, e.model, "api_error").Inc()
		return domain.BatchEmbeddingResult{}, fmt.Errorf("nebius embed %d texts: %w: %w",
			len(texts), err, domain.ErrEmbeddingProviderError)
	}

	metrics.EmbeddingRequestsTotal.WithLabelValues(ProviderName, e.model, "success").Inc()
	metrics.EmbeddingRequestDuration.WithLabelValues(ProviderName, e.model).Observe(time.Since(start).Seconds())
	if result.TotalTokens > 0 {
		metrics.EmbeddingTokensTotal.WithLabelValues(ProviderName, e.model, "prompt").Add(float64(result.PromptTokens))
		metrics.EmbeddingTokensTotal.WithLabelValues(ProviderName, e.model, "total").Add(float64(result.TotalTokens))
	}
	return result, nil
}

func (e *Embedder) do(ctx context.Context, texts []string) (domain.BatchEmbeddingResult, error) {
	body, err := json.Marshal(embReq{Model: e.model, Input: texts})
	if err != nil {
		return domain.BatchEmbeddingResult{}, fmt.Errorf("marshal: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.url, bytes.NewReader(body))
	if err != nil {
		return domain.BatchEmbeddingResult{}, fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+e.apiKey)

	resp, err := e.client.Do(req)
	if err != nil {
		return domain.BatchEmbeddingResult{}, fmt.Errorf("do request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return domain.BatchEmbeddingResult{}, fmt.Errorf("read response: %w", err)
	}

	var parsed embResp
	decodeErr := json.Unmarshal(raw, &parsed)

	if resp.StatusCode != http.StatusOK {
		if decodeErr == nil && parsed.Detail != "" {
			return domain.BatchEmbeddingResult{}, fmt.Errorf("status %d: %s", resp.StatusCode, parsed.Detail)
		}
		return domain.BatchEmbeddingResult{}, fmt.Errorf("status %d", resp.StatusCode)
	}
	if decodeErr != nil {
		return domain.BatchEmbeddingResult{}, fmt.Errorf("decode: %w", decodeErr)
	}
	if len(parsed.Data) != len(texts) {
		return domain.BatchEmbeddingResult{}, fmt.Errorf("got %d embeddings for %d texts", len(parsed.Data), len(texts))
	}

	embeddings := make([][]float32, len(texts))
	for _, d := range parsed.Data {
		if d.Index < 0 || d.Index >= len(texts) || embeddings[d.Index] != nil {
			return domain.BatchEmbeddingResult{}, fmt.Errorf("invalid or duplicate index %d", d.Index)
		}
		embeddings[d.Index] = d.Embedding
	}

	e.logger.Debug("Nebius embeddings received",
		zap.Int("texts", len(texts)),
		zap.Int("total_tokens", parsed.Usage.TotalTokens),
	)

	return domain.BatchEmbeddingResult{
		Embeddings:   embeddings,
		PromptTokens: parsed.Usage.PromptTokens,
		TotalTokens:  parsed.Usage.TotalTokens,
	}, nil
}

// HealthCheck embeds a one-word probe; the Nebius API has no free models endpoint.
func (e *Embedder) HealthCheck(ctx context.Context) error {
	if _, err := e.do(ctx, []string{"ping"}); err != nil {
		return fmt.Errorf("nebius probe: %w", err)
	}
	return nil
}
