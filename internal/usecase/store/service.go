// Package store is the Document Store: named vector collections with
// embedding functions bound at creation time.
package store

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/catalograg/internal/domain"
)

// MetricCosine is the only metric collections are created with.
const MetricCosine = "cosine"

// Collection names become key segments, so no separators and no leading
// underscore (reserved for backend metadata keys).
var validCollectionName = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9_-]{0,127}$`)

// Collection is a handle to a named collection and the embedders bound to it.
type Collection struct {
	info          domain.CollectionInfo
	docEmbedder   domain.BatchEmbedder
	queryEmbedder domain.Embedder
}

// Name returns the collection name.
func (c *Collection) Name() string { return c.info.Name }

// Info returns the stored collection metadata.
func (c *Collection) Info() domain.CollectionInfo { return c.info }

// Embedders are the functions bound to every collection handle. Document and
// query embedders differ only for instruction-tuned models.
type Embedders struct {
	Document domain.BatchEmbedder
	Query    domain.Embedder
}

// Service implements Document Store operations over a repository backend.
type Service struct {
	repos     Repositories
	emb       Embedders
	vectorDim int
	now       func() time.Time
	logger    *zap.Logger

	mu      sync.RWMutex
	handles map[string]*Collection
}

// New creates a store service. vectorDim is the dimension of vectors
// produced by the bound embedders.
func New(repos Repositories, emb Embedders, vectorDim int, logger *zap.Logger) *Service {
	return &Service{
		repos:     repos,
		emb:       emb,
		vectorDim: vectorDim,
		now:       time.Now,
		logger:    logger,
		handles:   make(map[string]*Collection),
	}
}

// GetOrCreateCollection returns the named collection, creating it if absent.
// A concurrent creator winning the race is not an error.
func (s *Service) GetOrCreateCollection(ctx context.Context, name string) (*Collection, error) {
	if !validCollectionName.MatchString(name) {
		return nil, fmt.Errorf("get or create collection: %w: invalid name %q", domain.ErrInvalidInput, name)
	}

	s.mu.RLock()
	h, ok := s.handles[name]
	s.mu.RUnlock()
	if ok {
		return h, nil
	}

	info, err := s.repos.Collections.Get(ctx, name)
	switch {
	case err == nil:
	case errors.Is(err, domain.ErrNotFound):
		info, err = s.create(ctx, name)
		if err != nil {
			return nil, fmt.Errorf("get or create collection %s: %w", name, err)
		}
	default:
		return nil, fmt.Errorf("get or create collection %s: %w", name, err)
	}

	if info.VectorDim != s.vectorDim {
		return nil, fmt.Errorf("collection %s has dimension %d, embedder produces %d: %w",
			name, info.VectorDim, s.vectorDim, domain.ErrVectorDimMismatch)
	}

	h = &Collection{info: info, docEmbedder: s.emb.Document, queryEmbedder: s.emb.Query}

	s.mu.Lock()
	if existing, ok := s.handles[name]; ok {
		h = existing
	} else {
		s.handles[name] = h
	}
	s.mu.Unlock()

	return h, nil
}

func (s *Service) create(ctx context.Context, name string) (domain.CollectionInfo, error) {
	info := domain.CollectionInfo{
		Name:      name,
		VectorDim: s.vectorDim,
		Metric:    MetricCosine,
		CreatedAt: s.now().UnixMilli(),
	}

	err := s.repos.Collections.Create(ctx, info)
	switch {
	case err == nil:
		s.logger.Info("Collection created", zap.String("collection", name), zap.Int("vector_dim", s.vectorDim))
		return info, nil
	case errors.Is(err, domain.ErrAlreadyExists):
		existing, getErr := s.repos.Collections.Get(ctx, name)
		if getErr != nil {
			return domain.CollectionInfo{}, fmt.Errorf("get after create race: %w", getErr)
		}
		return existing, nil
	default:
		return domain.CollectionInfo{}, fmt.Errorf("create: %w", err)
	}
}

// Upsert writes documents. Precomputed vectors are used only when every
// document carries one of the collection's dimension; otherwise the whole
// batch is embedded with the bound document embedder. Ids overwrite.
func (s *Service) Upsert(ctx context.Context, col *Collection, docs []domain.Document) error {
	if len(docs) == 0 {
		return nil
	}

	out := make([]domain.Document, len(docs))
	copy(out, docs)

	withVector := 0
	for _, d := range out {
		if len(d.Embedding) == col.info.VectorDim {
			withVector++
		}
	}

	if withVector != len(out) {
		if err := s.embedAll(ctx, col, out); err != nil {
			return fmt.Errorf("upsert %s: %w", col.info.Name, err)
		}
	}

	if err := s.repos.Documents.Upsert(ctx, col.info.Name, out); err != nil {
		return fmt.Errorf("upsert %s: %w", col.info.Name, err)
	}

	s.logger.Debug("Documents upserted",
		zap.String("collection", col.info.Name),
		zap.Int("documents", len(out)),
		zap.Bool("precomputed", withVector == len(out)),
	)
	return nil
}

func (s *Service) embedAll(ctx context.Context, col *Collection, docs []domain.Document) error {
	texts := make([]string, len(docs))
	for i, d := range docs {
		texts[i] = d.Text
	}

	res, err := col.docEmbedder.BatchEmbed(ctx, texts)
	if err != nil {
		return fmt.Errorf("embed documents: %w", err)
	}
	if len(res.Embeddings) != len(docs) {
		return fmt.Errorf("%w: got %d embeddings for %d documents",
			domain.ErrEmbeddingProviderError, len(res.Embeddings), len(docs))
	}

	for i := range docs {
		if len(res.Embeddings[i]) != col.info.VectorDim {
			return fmt.Errorf("document %s: got %d dimensions, want %d: %w",
				docs[i].ID, len(res.Embeddings[i]), col.info.VectorDim, domain.ErrVectorDimMismatch)
		}
		docs[i].Embedding = res.Embeddings[i]
	}
	return nil
}

// Query returns up to k documents ranked by similarity to text. An empty
// query, an empty collection or a collection deleted underneath the handle
// yields an empty result.
func (s *Service) Query(ctx context.Context, col *Collection, text string, k int) ([]domain.ScoredDocument, error) {
	if k <= 0 {
		return nil, fmt.Errorf("query %s: %w: k must be positive, got %d", col.info.Name, domain.ErrInvalidInput, k)
	}
	if strings.TrimSpace(text) == "" {
		return nil, nil
	}

	res, err := col.queryEmbedder.Embed(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("query %s: embed: %w", col.info.Name, err)
	}

	docs, err := s.repos.Search.KNN(ctx, col.info.Name, res.Embedding, k)
	if errors.Is(err, domain.ErrNotFound) {
		// Dropped by another process (ingest --clear). The next
		// GetOrCreateCollection recreates it.
		s.evict(col)
		s.logger.Warn("Collection vanished, handle evicted", zap.String("collection", col.info.Name))
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", col.info.Name, err)
	}
	return docs, nil
}

// evict forgets col unless a newer handle already replaced it.
func (s *Service) evict(col *Collection) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.handles[col.info.Name] == col {
		delete(s.handles, col.info.Name)
	}
}

// Count returns the number of documents in the collection.
func (s *Service) Count(ctx context.Context, col *Collection) (int, error) {
	n, err := s.repos.Documents.Count(ctx, col.info.Name)
	if err != nil {
		return 0, fmt.Errorf("count %s: %w", col.info.Name, err)
	}
	return n, nil
}

// ListCollections returns all collections.
func (s *Service) ListCollections(ctx context.Context) ([]domain.CollectionInfo, error) {
	cols, err := s.repos.Collections.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list collections: %w", err)
	}
	return cols, nil
}

// DeleteCollection removes a collection and its documents. A missing
// collection is a no-op.
func (s *Service) DeleteCollection(ctx context.Context, name string) error {
	s.mu.Lock()
	delete(s.handles, name)
	s.mu.Unlock()

	if err := s.repos.Collections.Delete(ctx, name); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil
		}
		return fmt.Errorf("delete collection %s: %w", name, err)
	}

	s.logger.Info("Collection deleted", zap.String("collection", name))
	return nil
}

// ResetCollection deletes the collection and creates it empty.
func (s *Service) ResetCollection(ctx context.Context, name string) (*Collection, error) {
	if err := s.DeleteCollection(ctx, name); err != nil {
		return nil, fmt.Errorf("reset: %w", err)
	}
	col, err := s.GetOrCreateCollection(ctx, name)
	if err != nil {
		return nil, fmt.Errorf("reset: %w", err)
	}
	return col, nil
}

// DeleteAllCollections removes every collection and returns their names.
func (s *Service) DeleteAllCollections(ctx context.Context) ([]string, error) {
	cols, err := s.ListCollections(ctx)
	if err != nil {
		return nil, err
	}

	deleted := make([]string, 0, len(cols))
	for _, c := range cols {
		if err := s.DeleteCollection(ctx, c.Name); err != nil {
			return deleted, err
		}
		deleted = append(deleted, c.Name)
	}
	return deleted, nil
}
