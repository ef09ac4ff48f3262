package agent

import (
	"context"
	"errors"
	"os"
	"strings"
	"testing"

	"go.uber.org/zap"

	"github.com/kailas-cloud/catalograg/internal/domain"
	"github.com/kailas-cloud/catalograg/internal/metrics"
	"github.com/kailas-cloud/catalograg/internal/repository/memory"
	"github.com/kailas-cloud/catalograg/internal/usecase/store"
)

func TestMain(m *testing.M) {
	metrics.RegisterPipelineMetrics()
	os.Exit(m.Run())
}

// scriptedCompleter answers the validation call first, then generation.
type scriptedCompleter struct {
	verdict    string
	verdictErr error
	answer     string
	answerErr  error
	requests   []domain.CompletionRequest
}

func (c *scriptedCompleter) Complete(_ context.Context, req domain.CompletionRequest) (domain.CompletionResult, error) {
	c.requests = append(c.requests, req)
	if len(c.requests) == 1 {
		return domain.CompletionResult{Content: c.verdict}, c.verdictErr
	}
	return domain.CompletionResult{Content: c.answer}, c.answerErr
}

type fakeStore struct {
	docs    []domain.ScoredDocument
	err     error
	queries int
	lastK   int
}

func (s *fakeStore) GetOrCreateCollection(_ context.Context, name string) (*store.Collection, error) {
	return nil, s.err
}

func (s *fakeStore) Query(_ context.Context, _ *store.Collection, _ string, k int) ([]domain.ScoredDocument, error) {
	s.queries++
	s.lastK = k
	return s.docs, s.err
}

func laptopDoc() domain.ScoredDocument {
	return domain.ScoredDocument{
		Document: domain.Document{
			ID:   "product_1_chunk_0",
			Text: "Title: UltraBook Pro\nPrice: $1299.99",
			Metadata: domain.Metadata{
				"productId": "1",
				"category":  "Laptops",
				"price":     1299.99,
				"features":  []string{"16GB RAM", "OLED"},
			},
		},
		Score: 0.9,
	}
}

func lastUserContent(req domain.CompletionRequest) string {
	return req.Messages[len(req.Messages)-1].Content
}

func TestProcess_Answered(t *testing.T) {
	tests := []struct {
		name   string
		answer string
		format domain.Format
	}{
		{"plain text", "Great choice! The UltraBook Pro costs $1299.99.", domain.FormatText},
		{"json array", "[1,2,3]", domain.FormatJSON},
		{"json object", `{"name":"UltraBook Pro"}`, domain.FormatJSON},
		{"table", "Here is a table comparing both laptops.", domain.FormatTable},
		{"graph", "This graph shows prices.", domain.FormatGraph},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := &scriptedCompleter{verdict: "true", answer: tt.answer}
			s := &fakeStore{docs: []domain.ScoredDocument{laptopDoc()}}
			a := New(s, c, Options{TopK: 3}, zap.NewNop())

			resp, err := a.Process(context.Background(), "Show me laptops", nil)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !resp.IsValid || resp.Response != tt.answer || resp.Format != tt.format {
				t.Errorf("unexpected response: %+v", resp)
			}
			if s.lastK != 3 {
				t.Errorf("expected top-k 3, got %d", s.lastK)
			}
		})
	}
}

func TestProcess_ValidationCallShape(t *testing.T) {
	c := &scriptedCompleter{verdict: " TRUE \n", answer: "ok"}
	a := New(&fakeStore{}, c, Options{}, zap.NewNop())

	if _, err := a.Process(context.Background(), "What phones do you have?", nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(c.requests) != 2 {
		t.Fatalf("expected validation and generation calls, got %d", len(c.requests))
	}
	v := c.requests[0]
	if v.Temperature != 0 || v.MaxTokens != 5 {
		t.Errorf("validation must be deterministic and short, got %+v", v)
	}
	if !strings.Contains(lastUserContent(v), "What phones do you have?") {
		t.Error("validation prompt must include the query")
	}
	if g := c.requests[1]; g.Temperature != DefaultTemperature {
		t.Errorf("expected default temperature, got %v", g.Temperature)
	}
}

func TestProcess_GenerationTemperature(t *testing.T) {
	zero, warm := float32(0), float32(1.1)
	tests := []struct {
		name string
		temp *float32
		want float32
	}{
		{"unset uses default", nil, DefaultTemperature},
		{"explicit zero kept", &zero, 0},
		{"explicit value", &warm, 1.1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := &scriptedCompleter{verdict: "true", answer: "ok"}
			a := New(&fakeStore{}, c, Options{Temperature: tt.temp}, zap.NewNop())

			if _, err := a.Process(context.Background(), "Cheapest laptop?", nil); err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if len(c.requests) != 2 {
				t.Fatalf("expected 2 calls, got %d", len(c.requests))
			}
			if got := c.requests[1].Temperature; got != tt.want {
				t.Errorf("generation temperature: got %v, want %v", got, tt.want)
			}
		})
	}
}

func TestProcess_RejectedSkipsRetrievalAndGeneration(t *testing.T) {
	tests := []struct {
		name       string
		verdict    string
		verdictErr error
	}{
		{"off topic", "false", nil},
		{"ambiguous verdict", "maybe", nil},
		{"sentence verdict", "true, it is about products", nil},
		{"validation error", "", domain.ErrCompletionProviderError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := &scriptedCompleter{verdict: tt.verdict, verdictErr: tt.verdictErr}
			s := &fakeStore{docs: []domain.ScoredDocument{laptopDoc()}}
			a := New(s, c, Options{}, zap.NewNop())

			resp, err := a.Process(context.Background(), "What's the weather?", nil)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			want := domain.QueryResponse{IsValid: false, Response: RejectionMessage, Format: domain.FormatText}
			if resp != want {
				t.Errorf("got %+v, want %+v", resp, want)
			}
			if s.queries != 0 {
				t.Errorf("store must not be queried, got %d queries", s.queries)
			}
			if len(c.requests) != 1 {
				t.Errorf("expected only the validation call, got %d", len(c.requests))
			}
		})
	}
}

func TestProcess_FailedKeepsValidFlag(t *testing.T) {
	tests := []struct {
		name     string
		store    *fakeStore
		answer   string
		genErr   error
		genCalls int
	}{
		{"retrieval error", &fakeStore{err: errors.New("connection refused")}, "", nil, 1},
		{"generation error", &fakeStore{}, "", domain.ErrCompletionProviderError, 2},
		{"empty completion", &fakeStore{}, "   ", nil, 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := &scriptedCompleter{verdict: "true", answer: tt.answer, answerErr: tt.genErr}
			a := New(tt.store, c, Options{}, zap.NewNop())

			resp, err := a.Process(context.Background(), "Show me laptops", nil)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			want := domain.QueryResponse{IsValid: true, Response: FailureMessage, Format: domain.FormatText}
			if resp != want {
				t.Errorf("got %+v, want %+v", resp, want)
			}
			if len(c.requests) != tt.genCalls {
				t.Errorf("expected %d completion calls, got %d", tt.genCalls, len(c.requests))
			}
		})
	}
}

func TestProcess_EmptyQuery(t *testing.T) {
	c := &scriptedCompleter{}
	a := New(&fakeStore{}, c, Options{}, zap.NewNop())

	for _, q := range []string{"", "   \n"} {
		_, err := a.Process(context.Background(), q, nil)
		if !errors.Is(err, domain.ErrInvalidInput) {
			t.Errorf("query %q: expected ErrInvalidInput, got %v", q, err)
		}
	}
	if len(c.requests) != 0 {
		t.Errorf("empty query must not reach the provider, got %d calls", len(c.requests))
	}
}

func TestProcess_EmptyCollectionContext(t *testing.T) {
	c := &scriptedCompleter{verdict: "true", answer: "I don't have that information."}
	a := New(&fakeStore{}, c, Options{}, zap.NewNop())

	if _, err := a.Process(context.Background(), "Show me tablets", nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	got := lastUserContent(c.requests[1])
	if !strings.Contains(got, "Context:\n"+NoResultsContext) {
		t.Errorf("expected no-results context, got %q", got)
	}
	if !strings.HasSuffix(got, "Question: Show me tablets") {
		t.Errorf("expected trailing question, got %q", got)
	}
}

func TestProcess_HistoryOrdering(t *testing.T) {
	history := []domain.ChatMessage{
		{Role: domain.RoleUser, Content: "Show me laptops"},
		{Role: domain.RoleAssistant, Content: "We have the UltraBook Pro."},
	}
	c := &scriptedCompleter{verdict: "true", answer: "It has 16GB RAM."}
	a := New(&fakeStore{docs: []domain.ScoredDocument{laptopDoc()}}, c, Options{}, zap.NewNop())

	if _, err := a.Process(context.Background(), "How much RAM?", history); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	msgs := c.requests[1].Messages
	if len(msgs) != 4 {
		t.Fatalf("expected system + 2 history + user, got %d", len(msgs))
	}
	if msgs[0].Role != domain.RoleSystem {
		t.Errorf("first message must be the system prompt, got %s", msgs[0].Role)
	}
	if msgs[1] != history[0] || msgs[2] != history[1] {
		t.Errorf("history must be passed in order, got %+v", msgs[1:3])
	}
	if msgs[3].Role != domain.RoleUser || !strings.Contains(msgs[3].Content, "UltraBook Pro") {
		t.Errorf("unexpected final message: %+v", msgs[3])
	}
}

func TestProcess_WithMemoryStore(t *testing.T) {
	mem := memory.New()
	emb := constEmbedder{}
	st := store.New(
		store.Repositories{Collections: mem, Documents: mem, Search: mem},
		store.Embedders{Document: emb, Query: emb},
		2, zap.NewNop(),
	)
	ctx := context.Background()
	col, err := st.GetOrCreateCollection(ctx, DefaultCollection)
	if err != nil {
		t.Fatalf("create collection: %v", err)
	}
	if err := st.Upsert(ctx, col, []domain.Document{laptopDoc().Document}); err != nil {
		t.Fatalf("upsert: %v", err)
	}

	c := &scriptedCompleter{verdict: "true", answer: "The UltraBook Pro."}
	resp, err := New(st, c, Options{}, zap.NewNop()).Process(ctx, "Show me laptops", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !resp.IsValid || resp.Format != domain.FormatText {
		t.Errorf("unexpected response: %+v", resp)
	}
	if !strings.Contains(lastUserContent(c.requests[1]), "1 | category: Laptops | price: $1299.99") {
		t.Errorf("expected product details in context, got %q", lastUserContent(c.requests[1]))
	}
}

type constEmbedder struct{}

func (constEmbedder) Embed(_ context.Context, _ string) (domain.EmbeddingResult, error) {
	return domain.EmbeddingResult{Embedding: []float32{1, 0}}, nil
}

func (constEmbedder) BatchEmbed(_ context.Context, texts []string) (domain.BatchEmbeddingResult, error) {
	out := make([][]float32, len(texts))
	for i := range out {
		out[i] = []float32{1, 0}
	}
	return domain.BatchEmbeddingResult{Embeddings: out}, nil
}
