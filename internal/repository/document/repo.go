package document

import (
	"context"
	"errors"
	"fmt"

	"github.com/kailas-cloud/catalograg/internal/db"
	"github.com/kailas-cloud/catalograg/internal/domain"
)

// store is the consumer interface for documents (ISP).
type store interface {
	HSetMulti(ctx context.Context, items []db.HashSetItem) error
	SearchCount(ctx context.Context, index string) (int, error)
}

// Repo writes document hashes under the collection prefix so the FT index picks them up.
type Repo struct {
	store  store
	prefix string
}

// New creates a document repository.
func New(s store, keyPrefix string) *Repo {
	return &Repo{store: s, prefix: keyPrefix}
}

// Upsert writes every document in one pipelined round-trip. HSET overwrites
// fields of an existing key, so re-upserting an id replaces the document.
// Every document must carry its embedding.
func (r *Repo) Upsert(ctx context.Context, collection string, docs []domain.Document) error {
	if len(docs) == 0 {
		return nil
	}

	items := make([]db.HashSetItem, len(docs))
	for i := range docs {
		if len(docs[i].Embedding) == 0 {
			return fmt.Errorf("document %s: %w: missing embedding", docs[i].ID, domain.ErrInvalidInput)
		}
		fields, err := buildHashFields(&docs[i])
		if err != nil {
			return fmt.Errorf("document %s: %w", docs[i].ID, err)
		}
		items[i] = db.HashSetItem{Key: r.docKey(collection, docs[i].ID), Fields: fields}
	}

	if err := r.store.HSetMulti(ctx, items); err != nil {
		return fmt.Errorf("upsert %d documents into %s: %w", len(docs), collection, err)
	}
	return nil
}

// Count returns the number of indexed documents.
func (r *Repo) Count(ctx context.Context, collection string) (int, error) {
	n, err := r.store.SearchCount(ctx, r.indexName(collection))
	if err != nil {
		if errors.Is(err, db.ErrIndexNotFound) {
			return 0, domain.ErrNotFound
		}
		return 0, fmt.Errorf("count %s: %w", collection, err)
	}
	return n, nil
}

func (r *Repo) docKey(collection, id string) string {
	return fmt.Sprintf("%s%s:%s", r.prefix, collection, id)
}

func (r *Repo) indexName(collection string) string {
	return fmt.Sprintf("%s%s:idx", r.prefix, collection)
}
