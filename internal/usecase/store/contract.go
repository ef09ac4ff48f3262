package store

import (
	"context"

	"github.com/kailas-cloud/catalograg/internal/domain"
)

// CollectionRepository defines the storage contract for collections.
type CollectionRepository interface {
	Create(ctx context.Context, info domain.CollectionInfo) error
	Get(ctx context.Context, name string) (domain.CollectionInfo, error)
	List(ctx context.Context) ([]domain.CollectionInfo, error)
	Delete(ctx context.Context, name string) error
}

// DocumentRepository writes and counts documents. Every document passed to
// Upsert carries its embedding.
type DocumentRepository interface {
	Upsert(ctx context.Context, collection string, docs []domain.Document) error
	Count(ctx context.Context, collection string) (int, error)
}

// SearchRepository runs nearest-neighbour queries.
type SearchRepository interface {
	KNN(ctx context.Context, collection string, vector []float32, k int) ([]domain.ScoredDocument, error)
}

// Repositories groups the backend for one driver.
type Repositories struct {
	Collections CollectionRepository
	Documents   DocumentRepository
	Search      SearchRepository
}
