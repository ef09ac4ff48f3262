// Package memory is a process-local collection backend with brute-force
// cosine search. It implements the same repository contracts as the Redis
// backend and is meant for local runs and tests.
package memory

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"

	"github.com/kailas-cloud/catalograg/internal/domain"
)

type collection struct {
	info domain.CollectionInfo
	docs map[string]domain.Document
}

// Store holds every collection in memory.
type Store struct {
	mu          sync.RWMutex
	collections map[string]*collection
}

// New creates an empty store.
func New() *Store {
	return &Store{collections: make(map[string]*collection)}
}

// Ping always succeeds.
func (s *Store) Ping(_ context.Context) error { return nil }

// Create registers a collection.
func (s *Store) Create(_ context.Context, info domain.CollectionInfo) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.collections[info.Name]; ok {
		return domain.ErrAlreadyExists
	}
	s.collections[info.Name] = &collection{info: info, docs: make(map[string]domain.Document)}
	return nil
}

// Get returns collection info.
func (s *Store) Get(_ context.Context, name string) (domain.CollectionInfo, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.collections[name]
	if !ok {
		return domain.CollectionInfo{}, domain.ErrNotFound
	}
	return c.info, nil
}

// List returns all collections sorted by creation time.
func (s *Store) List(_ context.Context) ([]domain.CollectionInfo, error) {
	s.mu.RLock()
	out := make([]domain.CollectionInfo, 0, len(s.collections))
	for _, c := range s.collections {
		out = append(out, c.info)
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt != out[j].CreatedAt {
			return out[i].CreatedAt < out[j].CreatedAt
		}
		return out[i].Name < out[j].Name
	})
	return out, nil
}

// Delete drops a collection and its documents.
func (s *Store) Delete(_ context.Context, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.collections[name]; !ok {
		return domain.ErrNotFound
	}
	delete(s.collections, name)
	return nil
}

// Upsert stores documents by id, replacing any earlier version.
func (s *Store) Upsert(_ context.Context, name string, docs []domain.Document) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.collections[name]
	if !ok {
		return domain.ErrNotFound
	}
	for i := range docs {
		if len(docs[i].Embedding) != c.info.VectorDim {
			return fmt.Errorf("document %s: %w: got %d, want %d",
				docs[i].ID, domain.ErrVectorDimMismatch, len(docs[i].Embedding), c.info.VectorDim)
		}
	}
	for _, d := range docs {
		d.Embedding = append([]float32(nil), d.Embedding...)
		c.docs[d.ID] = d
	}
	return nil
}

// Count returns the number of documents in a collection.
func (s *Store) Count(_ context.Context, name string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.collections[name]
	if !ok {
		return 0, domain.ErrNotFound
	}
	return len(c.docs), nil
}

// KNN ranks every document by cosine similarity to vector and returns the top k.
// Ties are broken by id so results are stable.
func (s *Store) KNN(_ context.Context, name string, vector []float32, k int) ([]domain.ScoredDocument, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.collections[name]
	if !ok {
		return nil, domain.ErrNotFound
	}

	hits := make([]domain.ScoredDocument, 0, len(c.docs))
	for _, d := range c.docs {
		// similarity = 1 - cosine distance, clamped like the Redis backend
		score := max(0, cosine(d.Embedding, vector))
		hits = append(hits, domain.ScoredDocument{
			Document: domain.Document{ID: d.ID, Text: d.Text, Metadata: d.Metadata},
			Score:    score,
		})
	}
	sort.Slice(hits, func(i, j int) bool {
		if hits[i].Score != hits[j].Score {
			return hits[i].Score > hits[j].Score
		}
		return hits[i].ID < hits[j].ID
	})
	if k < len(hits) {
		hits = hits[:k]
	}
	return hits, nil
}

func cosine(a, b []float32) float64 {
	n := min(len(a), len(b))
	var dot, na, nb float64
	for i := 0; i < n; i++ {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
