// Package agent answers catalog questions: validate, retrieve, assemble,
// generate, classify.
package agent

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/catalograg/internal/domain"
	"github.com/kailas-cloud/catalograg/internal/logger"
	"github.com/kailas-cloud/catalograg/internal/metrics"
	"github.com/kailas-cloud/catalograg/internal/usecase/store"
)

// Outcome is the terminal state of a query.
type Outcome string

const (
	OutcomeAnswered Outcome = "answered"
	OutcomeRejected Outcome = "rejected"
	OutcomeFailed   Outcome = "failed"
)

// Defaults applied by New for zero option values.
const (
	DefaultTopK        = 5
	DefaultTemperature = 0.7
	DefaultCollection  = "semantic_chunks"
)

// DocumentStore is the read side of the Document Store used by the agent.
type DocumentStore interface {
	GetOrCreateCollection(ctx context.Context, name string) (*store.Collection, error)
	Query(ctx context.Context, col *store.Collection, text string, k int) ([]domain.ScoredDocument, error)
}

// Options tunes the pipeline.
type Options struct {
	Collection  string
	TopK        int
	Temperature *float32 // nil means DefaultTemperature
	MaxTokens   int
	Timeout     time.Duration // per query, 0 disables
}

// Agent runs the query pipeline.
type Agent struct {
	store     DocumentStore
	completer domain.Completer
	opts      Options
	logger    *zap.Logger
}

// New creates an agent.
func New(s DocumentStore, c domain.Completer, opts Options, l *zap.Logger) *Agent {
	if opts.Collection == "" {
		opts.Collection = DefaultCollection
	}
	if opts.TopK <= 0 {
		opts.TopK = DefaultTopK
	}
	if opts.Temperature == nil {
		t := float32(DefaultTemperature)
		opts.Temperature = &t
	}
	return &Agent{store: s, completer: c, opts: opts, logger: l}
}

// Process answers one query given the prior history. Only an empty query is
// an error; every other condition ends in a QueryResponse.
func (a *Agent) Process(ctx context.Context, query string, history []domain.ChatMessage) (domain.QueryResponse, error) {
	if strings.TrimSpace(query) == "" {
		return domain.QueryResponse{}, fmt.Errorf("process query: %w: empty query", domain.ErrInvalidInput)
	}

	if a.opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.opts.Timeout)
		defer cancel()
	}

	log := logger.FromContextOr(ctx, a.logger)

	resp, outcome, err := a.run(ctx, query, history)
	metrics.QueryOutcomesTotal.WithLabelValues(string(outcome)).Inc()

	switch outcome {
	case OutcomeFailed:
		log.Error("Query failed", zap.Error(err))
	case OutcomeRejected:
		log.Info("Query rejected", zap.NamedError("reason", err))
	default:
		log.Debug("Query answered", zap.String("format", string(resp.Format)))
	}
	return resp, nil
}

func (a *Agent) run(ctx context.Context, query string, history []domain.ChatMessage) (domain.QueryResponse, Outcome, error) {
	if valid, err := a.validate(ctx, query); !valid {
		return rejected(), OutcomeRejected, err
	}

	docs, err := a.retrieve(ctx, query)
	if err != nil {
		return failed(), OutcomeFailed, err
	}

	text, err := a.generate(ctx, history, buildContext(docs), query)
	if err != nil {
		return failed(), OutcomeFailed, err
	}

	return domain.QueryResponse{
		IsValid:  true,
		Response: text,
		Format:   domain.ClassifyFormat(text),
	}, OutcomeAnswered, nil
}

// validate is fail-closed: a provider error or an unparseable verdict rejects.
func (a *Agent) validate(ctx context.Context, query string) (bool, error) {
	defer observeStage("validate", time.Now())

	res, err := a.completer.Complete(ctx, domain.CompletionRequest{
		Messages:    buildValidationMessages(query),
		Temperature: 0,
		MaxTokens:   5,
	})
	if err != nil {
		return false, fmt.Errorf("validation call: %w", err)
	}

	valid, ok := parseVerdict(res.Content)
	if !ok {
		return false, fmt.Errorf("ambiguous validation verdict %q", res.Content)
	}
	if !valid {
		return false, errors.New("off-topic query")
	}
	return true, nil
}

func (a *Agent) retrieve(ctx context.Context, query string) ([]domain.ScoredDocument, error) {
	defer observeStage("retrieve", time.Now())

	col, err := a.store.GetOrCreateCollection(ctx, a.opts.Collection)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrRetrieval, err)
	}
	docs, err := a.store.Query(ctx, col, query, a.opts.TopK)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrRetrieval, err)
	}
	return docs, nil
}

func (a *Agent) generate(ctx context.Context, history []domain.ChatMessage, context, query string) (string, error) {
	defer observeStage("generate", time.Now())

	res, err := a.completer.Complete(ctx, domain.CompletionRequest{
		Messages:    buildGenerationMessages(history, context, query),
		Temperature: *a.opts.Temperature,
		MaxTokens:   a.opts.MaxTokens,
	})
	if err != nil {
		return "", fmt.Errorf("%w: %w", domain.ErrGeneration, err)
	}
	if strings.TrimSpace(res.Content) == "" {
		return "", fmt.Errorf("%w: empty completion", domain.ErrGeneration)
	}
	return res.Content, nil
}

func rejected() domain.QueryResponse {
	return domain.QueryResponse{IsValid: false, Response: RejectionMessage, Format: domain.FormatText}
}

func failed() domain.QueryResponse {
	return domain.QueryResponse{IsValid: true, Response: FailureMessage, Format: domain.FormatText}
}

func observeStage(stage string, start time.Time) {
	metrics.QueryStageDuration.WithLabelValues(stage).Observe(time.Since(start).Seconds())
}
