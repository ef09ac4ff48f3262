package app

import (
	"context"
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/catalograg/internal/config"
	"github.com/kailas-cloud/catalograg/internal/db"
	"github.com/kailas-cloud/catalograg/internal/domain"
	"github.com/kailas-cloud/catalograg/internal/metrics"
	budgetrepo "github.com/kailas-cloud/catalograg/internal/repository/budget"
	"github.com/kailas-cloud/catalograg/internal/repository/embcache"
	"github.com/kailas-cloud/catalograg/internal/transport/openai"
	"github.com/kailas-cloud/catalograg/internal/usecase/completion"
	embeddinguc "github.com/kailas-cloud/catalograg/internal/usecase/embedding"
	"github.com/kailas-cloud/catalograg/internal/usecase/store"
)

// Budgets holds one tracker per provider, shared by its embedding and completion calls.
type Budgets map[string]*embeddinguc.BudgetTracker

// NewBudgets creates trackers for the embedding and chat providers. With a
// KV store the counters are loaded from and written behind to it.
func NewBudgets(ctx context.Context, cfg *config.Config, kv db.KVStore, logger *zap.Logger) Budgets {
	budgets := make(Budgets)
	for _, name := range []string{cfg.Embedding.Provider, cfg.Chat.Provider} {
		if _, ok := budgets[name]; ok {
			continue
		}
		bc := cfg.Providers[name].Budget
		action := embeddinguc.BudgetActionWarn
		if bc.Action == string(embeddinguc.BudgetActionReject) {
			action = embeddinguc.BudgetActionReject
		}
		t := embeddinguc.NewBudgetTracker(name, cfg.Storage.KeyPrefix, embeddinguc.BudgetLimits{
			Daily:   bc.DailyTokenLimit,
			Monthly: bc.MonthlyTokenLimit,
			Action:  action,
		}, logger)
		if kv != nil {
			t.WithStore(ctx, budgetrepo.New(kv, budgetrepo.DefaultDailyTTL, budgetrepo.DefaultMonthlyTTL))
		}
		budgets[name] = t
	}
	return budgets
}

// Checker returns the provider's tracker as a BudgetChecker, or a nil interface.
func (b Budgets) Checker(provider string) embeddinguc.BudgetChecker {
	if t, ok := b[provider]; ok && t != nil {
		return t
	}
	return nil
}

// Sorted returns the trackers ordered by provider name.
func (b Budgets) Sorted() []*embeddinguc.BudgetTracker {
	names := make([]string, 0, len(b))
	for n := range b {
		names = append(names, n)
	}
	sort.Strings(names)
	out := make([]*embeddinguc.BudgetTracker, len(names))
	for i, n := range names {
		out[i] = b[n]
	}
	return out
}

// Embedding is the assembled embedder chain.
type Embedding struct {
	Provider  domain.EmbeddingProvider
	Embedders store.Embedders
	Dim       int
}

// NewEmbedding builds provider -> cache -> instrumented -> instruction, once
// for documents and once for queries. The cache is skipped without a KV store.
func NewEmbedding(cfg *config.Config, kv db.KVStore, budgets Budgets, logger *zap.Logger) (*Embedding, error) {
	ec := cfg.Embedding
	prov := cfg.Providers[ec.Provider]

	p, err := embeddinguc.NewProvider(embeddinguc.ProviderConfig{
		Provider:   ec.Provider,
		APIKey:     prov.APIKey,
		BaseURL:    prov.BaseURL,
		Model:      ec.Model,
		Dimensions: ec.Dimensions,
		Timeout:    time.Duration(ec.TimeoutSec) * time.Second,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("embedding provider: %w", err)
	}

	var base domain.TextEmbedder = p
	if kv != nil && ec.CacheEnabled {
		base = embcache.New(p, kv, embcache.Options{
			KeyPrefix: cfg.Storage.KeyPrefix,
			Model:     p.Model(),
			TTL:       time.Duration(ec.CacheTTLSec) * time.Second,
		}, metrics.EmbeddingCacheTotal, logger)
	}
	instrumented := embeddinguc.NewInstrumentedEmbedder(
		base, p.Name(), p.Model(), p.MaxBatchSize(), budgets.Checker(ec.Provider), logger,
	)

	doc := domain.WithInstruction(instrumented, ec.DocumentInstruction)
	query := domain.WithInstruction(instrumented, ec.QueryInstruction)

	logger.Info("Embedders created",
		zap.String("provider", p.Name()),
		zap.String("model", p.Model()),
		zap.Int("dimensions", ec.Dimensions),
		zap.Int("max_batch_size", p.MaxBatchSize()),
		zap.Bool("cache", kv != nil && ec.CacheEnabled),
	)
	return &Embedding{
		Provider:  p,
		Embedders: store.Embedders{Document: doc, Query: query},
		Dim:       ec.Dimensions,
	}, nil
}

// HealthCheck probes the provider when it supports it.
func (e *Embedding) HealthCheck(ctx context.Context) error {
	hc, ok := e.Provider.(domain.HealthChecker)
	if !ok {
		return nil
	}
	if err := hc.HealthCheck(ctx); err != nil {
		return fmt.Errorf("embedding health check: %w", err)
	}
	return nil
}

// NewCompleter builds the chat completion client with budget enforcement.
func NewCompleter(cfg *config.Config, budgets Budgets, logger *zap.Logger) domain.Completer {
	cc := cfg.Chat
	prov := cfg.Providers[cc.Provider]

	c := openai.NewCompleter(&openai.Config{
		APIKey:   prov.APIKey,
		BaseURL:  prov.BaseURL,
		Model:    cc.Model,
		Provider: cc.Provider,
		Timeout:  time.Duration(cc.TimeoutSec) * time.Second,
		Logger:   logger,
	})
	return completion.New(c, c.Name(), c.Model(), budgets.Checker(cc.Provider), logger)
}
