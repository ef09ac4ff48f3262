// Package ingest turns a catalog file into embedded chunks in the Document Store.
package ingest

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/catalograg/internal/domain"
	"github.com/kailas-cloud/catalograg/internal/metrics"
	"github.com/kailas-cloud/catalograg/internal/usecase/store"
)

// DocumentStore is the write side of the Document Store used by ingestion.
type DocumentStore interface {
	GetOrCreateCollection(ctx context.Context, name string) (*store.Collection, error)
	Upsert(ctx context.Context, col *store.Collection, docs []domain.Document) error
	Count(ctx context.Context, col *store.Collection) (int, error)
}

// Options configures a pipeline.
type Options struct {
	Collection string
	RecordsKey string
	Provider   string // recorded in chunk metadata
	Model      string // recorded in chunk metadata
}

// Stats summarises a finished run.
type Stats struct {
	File            string
	FileSizeBytes   int64
	Records         int
	Chunks          int
	AvgTokens       int // estimated as len(text)/4, rounded up per chunk
	EmbeddingTokens int
	CollectionCount int
	Duration        time.Duration
}

// Service runs ingestion. Every stage failure aborts the whole run.
type Service struct {
	store    DocumentStore
	embedder domain.BatchEmbedder
	opts     Options
	now      func() time.Time
	logger   *zap.Logger
}

// New creates an ingestion service.
func New(s DocumentStore, e domain.BatchEmbedder, opts Options, logger *zap.Logger) *Service {
	return &Service{store: s, embedder: e, opts: opts, now: time.Now, logger: logger}
}

// WithClock overrides the processedAt clock.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// Ingest reads path, builds one chunk per record, embeds all chunk texts and
// upserts them with their vectors. Errors wrap domain.ErrIngestion.
func (s *Service) Ingest(ctx context.Context, path string) (Stats, error) {
	start := time.Now()
	stats, err := s.run(ctx, path)
	if err != nil {
		s.logger.Error("Ingestion failed", zap.String("file", path), zap.Error(err))
		return Stats{}, fmt.Errorf("%w: %w", domain.ErrIngestion, err)
	}
	stats.Duration = time.Since(start)

	metrics.IngestedChunksTotal.WithLabelValues(s.opts.Collection).Add(float64(stats.Chunks))
	s.logger.Info("Ingestion complete",
		zap.String("file", stats.File),
		zap.Int64("file_size_bytes", stats.FileSizeBytes),
		zap.Int("records", stats.Records),
		zap.Int("chunks", stats.Chunks),
		zap.Int("avg_tokens_per_chunk", stats.AvgTokens),
		zap.Int("embedding_tokens", stats.EmbeddingTokens),
		zap.String("collection", s.opts.Collection),
		zap.Int("collection_count", stats.CollectionCount),
		zap.String("embedding_provider", s.opts.Provider),
		zap.String("embedding_model", s.opts.Model),
		zap.Duration("duration", stats.Duration),
	)
	return stats, nil
}

func (s *Service) run(ctx context.Context, path string) (Stats, error) {
	if !strings.EqualFold(filepath.Ext(path), ".json") {
		return Stats{}, fmt.Errorf("%w: %s is not a .json file", domain.ErrInvalidInput, path)
	}

	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return Stats{}, fmt.Errorf("read %s: %w", path, err)
	}
	stats := Stats{File: path, FileSizeBytes: int64(len(data))}

	records, err := ParseCatalog(data, s.opts.RecordsKey)
	if err != nil {
		return Stats{}, err
	}
	stats.Records = len(records)
	s.logger.Info("Catalog parsed",
		zap.String("file", path),
		zap.Int64("file_size_bytes", stats.FileSizeBytes),
		zap.Int("records", len(records)),
	)

	docs, err := BuildChunks(records, ChunkMeta{
		Source:      filepath.Base(path),
		Provider:    s.opts.Provider,
		Model:       s.opts.Model,
		ProcessedAt: s.now(),
	})
	if err != nil {
		return Stats{}, err
	}
	if len(docs) == 0 {
		return Stats{}, fmt.Errorf("no chunks created from %s", path)
	}
	stats.Chunks = len(docs)
	stats.AvgTokens = avgTokens(docs)

	texts := make([]string, len(docs))
	for i, d := range docs {
		texts[i] = d.Text
	}
	res, err := s.embedder.BatchEmbed(ctx, texts)
	if err != nil {
		return Stats{}, fmt.Errorf("embed chunks: %w", err)
	}
	if len(res.Embeddings) != len(docs) {
		return Stats{}, fmt.Errorf("embedding count mismatch: %d vs %d chunks", len(res.Embeddings), len(docs))
	}
	for i := range docs {
		docs[i].Embedding = res.Embeddings[i]
	}
	stats.EmbeddingTokens = res.TotalTokens

	col, err := s.store.GetOrCreateCollection(ctx, s.opts.Collection)
	if err != nil {
		return Stats{}, err
	}
	if err := s.store.Upsert(ctx, col, docs); err != nil {
		return Stats{}, err
	}

	count, err := s.store.Count(ctx, col)
	if err != nil {
		// Written already; a failed count only loses a statistic.
		s.logger.Warn("Failed to count collection", zap.String("collection", col.Name()), zap.Error(err))
		count = -1
	}
	stats.CollectionCount = count
	return stats, nil
}

func avgTokens(docs []domain.Document) int {
	total := 0
	for _, d := range docs {
		total += (len(d.Text) + 3) / 4
	}
	return total / len(docs)
}
