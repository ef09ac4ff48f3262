// Package completion decorates chat completion providers with budget
// enforcement and per-request usage accounting.
package completion

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/catalograg/internal/domain"
	"github.com/kailas-cloud/catalograg/internal/usecase/embedding"
)

// InstrumentedCompleter enforces the provider's token budget around Complete.
type InstrumentedCompleter struct {
	inner    domain.Completer
	provider string
	model    string
	budget   embedding.BudgetChecker
	logger   *zap.Logger
}

// New wraps a completer. budget may be nil.
func New(
	inner domain.Completer, provider, model string,
	budget embedding.BudgetChecker, logger *zap.Logger,
) *InstrumentedCompleter {
	return &InstrumentedCompleter{
		inner:    inner,
		provider: provider,
		model:    model,
		budget:   budget,
		logger:   logger,
	}
}

// Complete checks the budget, calls the provider and books the tokens.
func (c *InstrumentedCompleter) Complete(
	ctx context.Context, req domain.CompletionRequest,
) (domain.CompletionResult, error) {
	if c.budget != nil {
		if err := c.budget.Check(ctx); err != nil {
			c.logger.Error("Budget exceeded (completion)",
				zap.String("provider", c.provider),
				zap.String("model", c.model),
				zap.Error(err),
			)
			return domain.CompletionResult{}, fmt.Errorf("budget check: %w", err)
		}
	}

	start := time.Now()
	res, err := c.inner.Complete(ctx, req)
	if err != nil {
		return domain.CompletionResult{}, fmt.Errorf("complete: %w", err)
	}

	domain.UsageFromContext(ctx).AddCompletionTokens(res.TotalTokens)
	embedding.RecordBudget(c.budget, c.provider, res.TotalTokens)

	c.logger.Debug("Completion recorded",
		zap.String("provider", c.provider),
		zap.String("model", c.model),
		zap.Duration("duration", time.Since(start)),
		zap.Int("messages", len(req.Messages)),
		zap.Int("total_tokens", res.TotalTokens),
	)
	return res, nil
}
