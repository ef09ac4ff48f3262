package search

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/kailas-cloud/catalograg/internal/db"
	"github.com/kailas-cloud/catalograg/internal/domain"
	"github.com/kailas-cloud/catalograg/internal/repository/document"
)

// store is the consumer interface for search operations (ISP).
type store interface {
	SearchKNN(ctx context.Context, q *db.KNNQuery) (*db.SearchResult, error)
}

// Repo runs vector similarity queries against a collection index.
type Repo struct {
	store  store
	prefix string
}

// New creates a search repository.
func New(s store, keyPrefix string) *Repo {
	return &Repo{store: s, prefix: keyPrefix}
}

// KNN returns up to k documents nearest to vector, most similar first.
func (r *Repo) KNN(ctx context.Context, collection string, vector []float32, k int) ([]domain.ScoredDocument, error) {
	q := &db.KNNQuery{
		IndexName:    fmt.Sprintf("%s%s:idx", r.prefix, collection),
		Vector:       vector,
		K:            k,
		ReturnFields: []string{document.FieldContent, document.FieldMetadata},
	}

	sr, err := r.store.SearchKNN(ctx, q)
	if err != nil {
		if errors.Is(err, db.ErrIndexNotFound) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("search knn %s: %w", collection, err)
	}

	keyPrefix := fmt.Sprintf("%s%s:", r.prefix, collection)
	out := make([]domain.ScoredDocument, 0, len(sr.Entries))
	for _, e := range sr.Entries {
		meta, err := document.ParseMetadata(e.Fields[document.FieldMetadata])
		if err != nil {
			return nil, fmt.Errorf("document %s: %w", e.Key, err)
		}
		out = append(out, domain.ScoredDocument{
			Document: domain.Document{
				ID:       strings.TrimPrefix(e.Key, keyPrefix),
				Text:     e.Fields[document.FieldContent],
				Metadata: meta,
			},
			Score: e.Score,
		})
	}
	return out, nil
}
