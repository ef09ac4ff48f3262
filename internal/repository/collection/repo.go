package collection

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/kailas-cloud/catalograg/internal/db"
	"github.com/kailas-cloud/catalograg/internal/domain"
)

// store is the consumer interface for collections (ISP).
type store interface {
	HSet(ctx context.Context, key string, fields map[string]string) error
	HGetAll(ctx context.Context, key string) (map[string]string, error)
	HGetAllMulti(ctx context.Context, keys []string) ([]map[string]string, error)
	Del(ctx context.Context, keys ...string) error
	Exists(ctx context.Context, key string) (bool, error)
	Scan(ctx context.Context, pattern string) ([]string, error)
	CreateIndex(ctx context.Context, def *db.IndexDefinition) error
	DropIndex(ctx context.Context, name string, deleteDocs bool) error
}

// IndexConfig holds vector index parameters.
type IndexConfig struct {
	Algorithm   db.VectorAlgorithm
	M           int
	EFConstruct int
}

// Repo stores collection metadata in a hash and owns the FT index per collection.
type Repo struct {
	store  store
	prefix string
	index  IndexConfig
}

// New creates a collection repository. keyPrefix namespaces every key it touches.
func New(s store, keyPrefix string) *Repo {
	return &Repo{
		store:  s,
		prefix: keyPrefix,
		index:  IndexConfig{Algorithm: db.VectorHNSW, M: 32, EFConstruct: 400},
	}
}

// WithIndex overrides index parameters. Zero values keep the defaults.
func (r *Repo) WithIndex(cfg IndexConfig) *Repo {
	if cfg.Algorithm != "" {
		r.index.Algorithm = cfg.Algorithm
	}
	if cfg.M > 0 {
		r.index.M = cfg.M
	}
	if cfg.EFConstruct > 0 {
		r.index.EFConstruct = cfg.EFConstruct
	}
	return r
}

// Create stores a collection: HSET metadata then FT.CREATE.
// A failed FT.CREATE rolls the HSET back, except when another writer won
// the race and the index already exists.
func (r *Repo) Create(ctx context.Context, info domain.CollectionInfo) error {
	key := r.metaKey(info.Name)
	exists, err := r.store.Exists(ctx, key)
	if err != nil {
		return fmt.Errorf("check exists: %w", err)
	}
	if exists {
		return domain.ErrAlreadyExists
	}

	def, err := buildIndex(r.indexName(info.Name), r.docPrefix(info.Name), info.VectorDim, r.index)
	if err != nil {
		return fmt.Errorf("build index: %w", err)
	}

	if err := r.store.HSet(ctx, key, collectionToHash(info)); err != nil {
		return fmt.Errorf("hset collection %s: %w", info.Name, err)
	}

	if err := r.store.CreateIndex(ctx, def); err != nil {
		if errors.Is(err, db.ErrIndexExists) {
			return domain.ErrAlreadyExists
		}
		cleanupErr := r.store.Del(ctx, key)
		return errors.Join(err, cleanupErr)
	}

	return nil
}

// Get retrieves a collection by name.
func (r *Repo) Get(ctx context.Context, name string) (domain.CollectionInfo, error) {
	m, err := r.store.HGetAll(ctx, r.metaKey(name))
	if err != nil {
		return domain.CollectionInfo{}, fmt.Errorf("hgetall collection %s: %w", name, err)
	}
	if len(m) == 0 {
		return domain.CollectionInfo{}, domain.ErrNotFound
	}
	return collectionFromHash(m)
}

// List returns all collections sorted by creation time.
func (r *Repo) List(ctx context.Context) ([]domain.CollectionInfo, error) {
	keys, err := r.store.Scan(ctx, r.metaKey("*"))
	if err != nil {
		return nil, fmt.Errorf("scan collections: %w", err)
	}
	if len(keys) == 0 {
		return []domain.CollectionInfo{}, nil
	}

	hashes, err := r.store.HGetAllMulti(ctx, keys)
	if err != nil {
		return nil, fmt.Errorf("hgetall multi collections: %w", err)
	}

	out := make([]domain.CollectionInfo, 0, len(hashes))
	for i, m := range hashes {
		if len(m) == 0 {
			continue
		}
		info, err := collectionFromHash(m)
		if err != nil {
			return nil, fmt.Errorf("parse collection %s: %w", keys[i], err)
		}
		out = append(out, info)
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt != out[j].CreatedAt {
			return out[i].CreatedAt < out[j].CreatedAt
		}
		return out[i].Name < out[j].Name
	})
	return out, nil
}

// Delete removes the metadata hash, the index and every document under the
// collection prefix. Unknown collections are domain.ErrNotFound.
func (r *Repo) Delete(ctx context.Context, name string) error {
	key := r.metaKey(name)
	backup, err := r.store.HGetAll(ctx, key)
	if err != nil {
		return fmt.Errorf("hgetall collection %s: %w", name, err)
	}
	if len(backup) == 0 {
		return domain.ErrNotFound
	}

	if err := r.store.Del(ctx, key); err != nil {
		return fmt.Errorf("del collection %s: %w", name, err)
	}

	err = r.store.DropIndex(ctx, r.indexName(name), true)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, db.ErrIndexNotFound):
		// Metadata without an index: documents were never indexed, sweep them by prefix.
		return r.deleteDocuments(ctx, name)
	default:
		cleanupErr := r.store.HSet(ctx, key, backup)
		return errors.Join(err, cleanupErr)
	}
}

func (r *Repo) deleteDocuments(ctx context.Context, name string) error {
	keys, err := r.store.Scan(ctx, r.docPrefix(name)+"*")
	if err != nil {
		return fmt.Errorf("scan documents %s: %w", name, err)
	}
	if err := r.store.Del(ctx, keys...); err != nil {
		return fmt.Errorf("del documents %s: %w", name, err)
	}
	return nil
}

// Key patterns: {prefix}__collection:{name}, {prefix}{name}:idx, {prefix}{name}:{docID}.
// Collection names never start with an underscore, so metadata keys stay
// outside every document prefix.

func (r *Repo) metaKey(name string) string {
	return fmt.Sprintf("%s__collection:%s", r.prefix, name)
}

func (r *Repo) indexName(name string) string {
	return fmt.Sprintf("%s%s:idx", r.prefix, name)
}

func (r *Repo) docPrefix(name string) string {
	return fmt.Sprintf("%s%s:", r.prefix, name)
}
