package embedding

import (
	"context"
	"errors"
	"fmt"
	"os"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"go.uber.org/zap"

	"github.com/kailas-cloud/catalograg/internal/domain"
	"github.com/kailas-cloud/catalograg/internal/metrics"
)

func TestMain(m *testing.M) {
	metrics.RegisterEmbeddingMetrics()
	os.Exit(m.Run())
}

type mockEmbedder struct {
	result      domain.EmbeddingResult
	err         error
	batchResult domain.BatchEmbeddingResult
	batchErr    error
	batchCalls  int
}

func (m *mockEmbedder) Embed(_ context.Context, _ string) (domain.EmbeddingResult, error) {
	return m.result, m.err
}

func (m *mockEmbedder) BatchEmbed(_ context.Context, texts []string) (domain.BatchEmbeddingResult, error) {
	m.batchCalls++
	if m.batchErr != nil {
		return domain.BatchEmbeddingResult{}, m.batchErr
	}
	if m.batchResult.Embeddings != nil {
		return m.batchResult, nil
	}
	embeddings := make([][]float32, len(texts))
	for i := range texts {
		embeddings[i] = m.result.Embedding
	}
	return domain.BatchEmbeddingResult{
		Embeddings:   embeddings,
		PromptTokens: m.result.PromptTokens * len(texts),
		TotalTokens:  m.result.TotalTokens * len(texts),
	}, nil
}

func TestInstrumentedEmbedder_Success(t *testing.T) {
	inner := &mockEmbedder{result: domain.EmbeddingResult{
		Embedding: []float32{0.1, 0.2, 0.3},
	}}
	p := NewInstrumentedEmbedder(inner, "test", "test-model", 0, nil, zap.NewNop())

	result, err := p.Embed(context.Background(), "hello")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(result.Embedding) != 3 {
		t.Fatalf("expected 3 dimensions, got %d", len(result.Embedding))
	}
}

func TestInstrumentedEmbedder_WithUsage(t *testing.T) {
	inner := &mockEmbedder{result: domain.EmbeddingResult{
		Embedding:    []float32{0.1, 0.2},
		PromptTokens: 100,
		TotalTokens:  100,
	}}
	p := NewInstrumentedEmbedder(inner, "test-usage", "test-model-u", 0, nil, zap.NewNop())

	result, err := p.Embed(context.Background(), "hello")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(result.Embedding) != 2 {
		t.Fatalf("expected 2 dimensions, got %d", len(result.Embedding))
	}
	if result.TotalTokens != 100 {
		t.Fatalf("expected 100 total tokens, got %d", result.TotalTokens)
	}
}

func TestInstrumentedEmbedder_Error(t *testing.T) {
	inner := &mockEmbedder{err: fmt.Errorf("api error")}
	p := NewInstrumentedEmbedder(inner, "test-err", "test-model-e", 0, nil, zap.NewNop())

	_, err := p.Embed(context.Background(), "hello")
	if err == nil {
		t.Fatal("expected error")
	}
}

func TestInstrumentedEmbedder_BudgetRejection(t *testing.T) {
	budget := NewBudgetTracker("test-budget", testPrefix, BudgetLimits{Daily: 100, Monthly: 0, Action: BudgetActionReject}, zap.NewNop())
	budget.Record(100)

	inner := &mockEmbedder{result: domain.EmbeddingResult{
		Embedding: []float32{0.1, 0.2, 0.3},
	}}
	p := NewInstrumentedEmbedder(inner, "test-budget", "test-model-b", 0, budget, zap.NewNop())

	_, err := p.Embed(context.Background(), "hello")
	if err == nil {
		t.Fatal("expected error when budget exceeded")
	}
	if !errors.Is(err, domain.ErrTokenBudgetExceeded) {
		t.Fatalf("expected domain.ErrTokenBudgetExceeded, got %v", err)
	}
}

func TestInstrumentedEmbedder_RecordsBudgetAndMetrics(t *testing.T) {
	budget := NewBudgetTracker("test-record", testPrefix, BudgetLimits{Daily: 1000000, Monthly: 10000000, Action: BudgetActionReject}, zap.NewNop())

	inner := &mockEmbedder{result: domain.EmbeddingResult{
		Embedding:    []float32{0.1, 0.2, 0.3},
		PromptTokens: 500,
		TotalTokens:  500,
	}}
	p := NewInstrumentedEmbedder(inner, "test-record", "test-model-r", 0, budget, zap.NewNop())

	initialDaily := budget.RemainingDaily()
	initialMonthly := budget.RemainingMonthly()

	result, err := p.Embed(context.Background(), "hello")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(result.Embedding) != 3 {
		t.Fatalf("expected 3 dimensions, got %d", len(result.Embedding))
	}

	newDaily := budget.RemainingDaily()
	newMonthly := budget.RemainingMonthly()

	if newDaily != initialDaily-500 {
		t.Errorf("expected daily remaining to decrease by 500, got %d -> %d", initialDaily, newDaily)
	}
	if newMonthly != initialMonthly-500 {
		t.Errorf("expected monthly remaining to decrease by 500, got %d -> %d", initialMonthly, newMonthly)
	}
}

func TestRecordBudget_GaugeSharedAcrossCallKinds(t *testing.T) {
	budget := NewBudgetTracker("test-shared", testPrefix, BudgetLimits{Daily: 1000, Monthly: 5000}, zap.NewNop())

	// One embedding call and one completion booking against the same provider.
	RecordBudget(budget, "test-shared", 100)
	RecordBudget(budget, "test-shared", 250)

	if v := testutil.ToFloat64(metrics.BudgetTokensRemaining.WithLabelValues("test-shared", "daily")); v != 650 {
		t.Errorf("expected daily gauge 650, got %f", v)
	}
	if v := testutil.ToFloat64(metrics.BudgetTokensRemaining.WithLabelValues("test-shared", "monthly")); v != 4650 {
		t.Errorf("expected monthly gauge 4650, got %f", v)
	}
}

func TestInstrumentedEmbedder_ObservesBatchSizePerSlice(t *testing.T) {
	before := testutil.CollectAndCount(metrics.EmbeddingBatchSize)

	texts := makeTexts(12)
	p := NewInstrumentedEmbedder(newIndexEmbedder(texts), "test-batch-hist", "model", 5, nil, zap.NewNop())
	if _, err := p.BatchEmbed(context.Background(), texts); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if after := testutil.CollectAndCount(metrics.EmbeddingBatchSize); after != before+1 {
		t.Errorf("expected one new batch size series, got %d -> %d", before, after)
	}
}

// --- BatchEmbed tests ---

func TestInstrumentedEmbedder_BatchEmbed_Success(t *testing.T) {
	inner := &mockEmbedder{result: domain.EmbeddingResult{
		Embedding:    []float32{0.1, 0.2},
		PromptTokens: 10,
		TotalTokens:  10,
	}}
	p := NewInstrumentedEmbedder(inner, "test-batch", "test-model-b", 0, nil, zap.NewNop())

	res, err := p.BatchEmbed(context.Background(), []string{"a", "b", "c"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(res.Embeddings) != 3 {
		t.Fatalf("expected 3 embeddings, got %d", len(res.Embeddings))
	}
	if inner.batchCalls != 1 {
		t.Errorf("expected 1 batch call, got %d", inner.batchCalls)
	}
}

func TestInstrumentedEmbedder_BatchEmbed_Empty(t *testing.T) {
	inner := &mockEmbedder{}
	p := NewInstrumentedEmbedder(inner, "test", "test-model", 0, nil, zap.NewNop())

	res, err := p.BatchEmbed(context.Background(), nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Embeddings != nil {
		t.Errorf("expected nil for empty input")
	}
}

func TestInstrumentedEmbedder_BatchEmbed_BudgetRejection(t *testing.T) {
	budget := NewBudgetTracker("test-batch-budget", testPrefix, BudgetLimits{Daily: 100, Monthly: 0, Action: BudgetActionReject}, zap.NewNop())
	budget.Record(100)

	inner := &mockEmbedder{result: domain.EmbeddingResult{Embedding: []float32{0.1}}}
	p := NewInstrumentedEmbedder(inner, "test-batch-budget", "model", 0, budget, zap.NewNop())

	_, err := p.BatchEmbed(context.Background(), []string{"a", "b"})
	if err == nil {
		t.Fatal("expected budget rejection error")
	}
	if !errors.Is(err, domain.ErrTokenBudgetExceeded) {
		t.Errorf("expected ErrTokenBudgetExceeded, got %v", err)
	}
}

func TestInstrumentedEmbedder_BatchEmbed_RecordsBudget(t *testing.T) {
	budget := NewBudgetTracker("test-batch-rec", testPrefix, BudgetLimits{Daily: 1000000, Monthly: 10000000, Action: BudgetActionReject}, zap.NewNop())

	inner := &mockEmbedder{result: domain.EmbeddingResult{
		Embedding:    []float32{0.1},
		PromptTokens: 100,
		TotalTokens:  100,
	}}
	p := NewInstrumentedEmbedder(inner, "test-batch-rec", "model", 0, budget, zap.NewNop())

	initialDaily := budget.RemainingDaily()

	_, err := p.BatchEmbed(context.Background(), []string{"a", "b", "c"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// 3 texts * 100 tokens = 300
	expectedDecrease := int64(300)
	actual := initialDaily - budget.RemainingDaily()
	if actual != expectedDecrease {
		t.Errorf("expected budget decrease of %d, got %d", expectedDecrease, actual)
	}
}

func TestInstrumentedEmbedder_BatchEmbed_InnerError(t *testing.T) {
	inner := &mockEmbedder{
		result:   domain.EmbeddingResult{Embedding: []float32{0.1}},
		batchErr: fmt.Errorf("api error"),
	}
	p := NewInstrumentedEmbedder(inner, "test-err", "model", 0, nil, zap.NewNop())

	_, err := p.BatchEmbed(context.Background(), []string{"a"})
	if err == nil {
		t.Fatal("expected error")
	}
}

func TestInstrumentedEmbedder_BatchEmbed_FallbackToSingle(t *testing.T) {
	// inner without BatchEmbedder
	inner := &plainMockEmbedder{result: domain.EmbeddingResult{
		Embedding:    []float32{0.1},
		PromptTokens: 5,
		TotalTokens:  5,
	}}
	p := NewInstrumentedEmbedder(inner, "test-fb", "model", 0, nil, zap.NewNop())

	res, err := p.BatchEmbed(context.Background(), []string{"a", "b"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(res.Embeddings) != 2 {
		t.Fatalf("expected 2 embeddings, got %d", len(res.Embeddings))
	}
	if inner.calls != 2 {
		t.Errorf("expected 2 fallback Embed calls, got %d", inner.calls)
	}
}

// plainMockEmbedder implements only Embedder, not BatchEmbedder.
type plainMockEmbedder struct {
	result domain.EmbeddingResult
	err    error
	calls  int
}

func (m *plainMockEmbedder) Embed(_ context.Context, _ string) (domain.EmbeddingResult, error) {
	m.calls++
	return m.result, m.err
}

// indexEmbedder returns a one-dimensional vector holding the text's global
// position, and records the size of every batch it receives.
type indexEmbedder struct {
	positions  map[string]float32
	batchSizes []int
	failOnCall int // 1-based; 0 never fails
}

func newIndexEmbedder(texts []string) *indexEmbedder {
	pos := make(map[string]float32, len(texts))
	for i, t := range texts {
		pos[t] = float32(i)
	}
	return &indexEmbedder{positions: pos}
}

func (m *indexEmbedder) Embed(_ context.Context, text string) (domain.EmbeddingResult, error) {
	return domain.EmbeddingResult{Embedding: []float32{m.positions[text]}, TotalTokens: 1}, nil
}

func (m *indexEmbedder) BatchEmbed(_ context.Context, texts []string) (domain.BatchEmbeddingResult, error) {
	m.batchSizes = append(m.batchSizes, len(texts))
	if m.failOnCall == len(m.batchSizes) {
		return domain.BatchEmbeddingResult{}, fmt.Errorf("%w: upstream 500", domain.ErrEmbeddingProviderError)
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = []float32{m.positions[t]}
	}
	return domain.BatchEmbeddingResult{Embeddings: out, TotalTokens: len(texts)}, nil
}

func makeTexts(n int) []string {
	texts := make([]string, n)
	for i := range texts {
		texts[i] = fmt.Sprintf("text-%03d", i)
	}
	return texts
}

func TestInstrumentedEmbedder_BatchBoundaries(t *testing.T) {
	tests := []struct {
		name      string
		maxBatch  int
		n         int
		wantSizes []int
	}{
		{"nebius exact", 5, 5, []int{5}},
		{"nebius plus one", 5, 6, []int{5, 1}},
		{"nebius three slices", 5, 12, []int{5, 5, 2}},
		{"openai exact", 100, 100, []int{100}},
		{"openai plus one", 100, 101, []int{100, 1}},
		{"single", 100, 1, []int{1}},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			texts := makeTexts(tc.n)
			inner := newIndexEmbedder(texts)
			p := NewInstrumentedEmbedder(inner, "test", "model", tc.maxBatch, nil, zap.NewNop())

			res, err := p.BatchEmbed(context.Background(), texts)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if len(res.Embeddings) != tc.n {
				t.Fatalf("expected %d embeddings, got %d", tc.n, len(res.Embeddings))
			}
			for i, e := range res.Embeddings {
				if e[0] != float32(i) {
					t.Fatalf("position %d holds vector for %v", i, e[0])
				}
			}
			if fmt.Sprint(inner.batchSizes) != fmt.Sprint(tc.wantSizes) {
				t.Errorf("expected batch sizes %v, got %v", tc.wantSizes, inner.batchSizes)
			}
			if res.TotalTokens != tc.n {
				t.Errorf("expected %d tokens, got %d", tc.n, res.TotalTokens)
			}
		})
	}
}

func TestInstrumentedEmbedder_BatchMatchesUnbatched(t *testing.T) {
	texts := makeTexts(13)
	batched := NewInstrumentedEmbedder(newIndexEmbedder(texts), "test", "model", 5, nil, zap.NewNop())
	single := NewInstrumentedEmbedder(newIndexEmbedder(texts), "test", "model", 1000, nil, zap.NewNop())

	a, err := batched.BatchEmbed(context.Background(), texts)
	if err != nil {
		t.Fatalf("batched: %v", err)
	}
	b, err := single.BatchEmbed(context.Background(), texts)
	if err != nil {
		t.Fatalf("unbatched: %v", err)
	}
	for i := range texts {
		if a.Embeddings[i][0] != b.Embeddings[i][0] {
			t.Fatalf("position %d differs: %v vs %v", i, a.Embeddings[i], b.Embeddings[i])
		}
	}
}

func TestInstrumentedEmbedder_SliceFailureAborts(t *testing.T) {
	texts := makeTexts(11)
	inner := newIndexEmbedder(texts)
	inner.failOnCall = 2
	p := NewInstrumentedEmbedder(inner, "test", "model", 5, nil, zap.NewNop())

	res, err := p.BatchEmbed(context.Background(), texts)
	if !errors.Is(err, domain.ErrEmbeddingProviderError) {
		t.Fatalf("expected ErrEmbeddingProviderError, got %v", err)
	}
	if res.Embeddings != nil {
		t.Errorf("expected no partial results, got %d", len(res.Embeddings))
	}
	if len(inner.batchSizes) != 2 {
		t.Errorf("expected the third slice to never be sent, got %v", inner.batchSizes)
	}
}

func TestInstrumentedEmbedder_CountMismatch(t *testing.T) {
	inner := &mockEmbedder{batchResult: domain.BatchEmbeddingResult{Embeddings: [][]float32{{1}}}}
	p := NewInstrumentedEmbedder(inner, "test", "model", 0, nil, zap.NewNop())

	_, err := p.BatchEmbed(context.Background(), []string{"a", "b"})
	if !errors.Is(err, domain.ErrEmbeddingProviderError) {
		t.Fatalf("expected ErrEmbeddingProviderError, got %v", err)
	}
}

func TestInstrumentedEmbedder_RecordsRequestUsage(t *testing.T) {
	texts := makeTexts(7)
	p := NewInstrumentedEmbedder(newIndexEmbedder(texts), "test", "model", 5, nil, zap.NewNop())
	ctx, usage := domain.NewContextWithUsage(context.Background())

	if _, err := p.BatchEmbed(ctx, texts); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := p.Embed(ctx, texts[0]); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	emb, completion := usage.Totals()
	if emb != 8 || completion != 0 {
		t.Errorf("expected 8 embedding tokens and 0 completion, got %d/%d", emb, completion)
	}
}

type fakeProvider struct {
	*indexEmbedder
}

func (fakeProvider) Name() string      { return "nebius" }
func (fakeProvider) Model() string     { return "Qwen/Qwen3-Embedding-8B" }
func (fakeProvider) MaxBatchSize() int { return 5 }

func TestInstrument_UsesProviderLimit(t *testing.T) {
	texts := makeTexts(6)
	inner := newIndexEmbedder(texts)
	p := Instrument(fakeProvider{inner}, nil, zap.NewNop())

	if _, err := p.BatchEmbed(context.Background(), texts); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if fmt.Sprint(inner.batchSizes) != "[5 1]" {
		t.Errorf("expected [5 1], got %v", inner.batchSizes)
	}
}
