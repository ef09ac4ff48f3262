package collection

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/kailas-cloud/catalograg/internal/db"
	"github.com/kailas-cloud/catalograg/internal/domain"
)

func testInfo() domain.CollectionInfo {
	return domain.CollectionInfo{Name: "semantic_chunks", VectorDim: 1536, Metric: "cosine", CreatedAt: 1700000000000}
}

// --- Create ---

func TestCreate_HappyPath(t *testing.T) {
	repo, ms := newTestRepo(t)

	var hsetKey string
	var created *db.IndexDefinition
	ms.hsetFn = func(_ context.Context, key string, fields map[string]string) error {
		hsetKey = key
		if fields["vector_dim"] != "1536" || fields["metric"] != "cosine" {
			t.Errorf("unexpected fields: %v", fields)
		}
		return nil
	}
	ms.createIndexFn = func(_ context.Context, def *db.IndexDefinition) error {
		created = def
		return nil
	}

	if err := repo.Create(context.Background(), testInfo()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if hsetKey != "catalograg:__collection:semantic_chunks" {
		t.Errorf("unexpected meta key: %s", hsetKey)
	}
	if created.Name != "catalograg:semantic_chunks:idx" {
		t.Errorf("unexpected index name: %s", created.Name)
	}
	if created.Prefixes[0] != "catalograg:semantic_chunks:" {
		t.Errorf("unexpected prefix: %v", created.Prefixes)
	}
	f := created.Fields[0]
	if f.VectorDistance != db.DistanceCosine || f.VectorAlgo != db.VectorHNSW || f.VectorDim != 1536 {
		t.Errorf("unexpected vector field: %+v", f)
	}
}

func TestCreate_AlreadyExists(t *testing.T) {
	repo, ms := newTestRepo(t)
	ms.existsFn = func(_ context.Context, _ string) (bool, error) { return true, nil }
	ms.hsetFn = func(_ context.Context, _ string, _ map[string]string) error {
		t.Error("HSET must not be called for an existing collection")
		return nil
	}

	err := repo.Create(context.Background(), testInfo())
	if !errors.Is(err, domain.ErrAlreadyExists) {
		t.Errorf("expected ErrAlreadyExists, got %v", err)
	}
}

func TestCreate_FTCreateError_Rollback(t *testing.T) {
	repo, ms := newTestRepo(t)

	var deleted []string
	ms.createIndexFn = func(_ context.Context, _ *db.IndexDefinition) error {
		return errors.New("index limit reached")
	}
	ms.delFn = func(_ context.Context, keys ...string) error {
		deleted = append(deleted, keys...)
		return nil
	}

	if err := repo.Create(context.Background(), testInfo()); err == nil {
		t.Fatal("expected error on FT.CREATE failure")
	}
	if len(deleted) != 1 || deleted[0] != "catalograg:__collection:semantic_chunks" {
		t.Errorf("expected rollback DEL of meta key, got %v", deleted)
	}
}

func TestCreate_LostRace_NoRollback(t *testing.T) {
	repo, ms := newTestRepo(t)

	ms.createIndexFn = func(_ context.Context, _ *db.IndexDefinition) error { return db.ErrIndexExists }
	ms.delFn = func(_ context.Context, _ ...string) error {
		t.Error("winner's metadata must not be rolled back")
		return nil
	}

	err := repo.Create(context.Background(), testInfo())
	if !errors.Is(err, domain.ErrAlreadyExists) {
		t.Errorf("expected ErrAlreadyExists, got %v", err)
	}
}

func TestCreate_FlatIndex(t *testing.T) {
	repo, ms := newTestRepo(t)
	repo.WithIndex(IndexConfig{Algorithm: db.VectorFlat})

	ms.createIndexFn = func(_ context.Context, def *db.IndexDefinition) error {
		if def.Fields[0].VectorAlgo != db.VectorFlat {
			t.Errorf("expected FLAT, got %s", def.Fields[0].VectorAlgo)
		}
		return nil
	}
	if err := repo.Create(context.Background(), testInfo()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

// --- Get / List ---

func TestGet_HappyPath(t *testing.T) {
	repo, ms := newTestRepo(t)
	ms.hgetAllFn = func(_ context.Context, _ string) (map[string]string, error) {
		return collectionToHash(testInfo()), nil
	}

	info, err := repo.Get(context.Background(), "semantic_chunks")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if info != testInfo() {
		t.Errorf("expected %+v, got %+v", testInfo(), info)
	}
}

func TestGet_NotFound(t *testing.T) {
	repo, _ := newTestRepo(t)
	_, err := repo.Get(context.Background(), "missing")
	if !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestGet_CorruptHash(t *testing.T) {
	repo, ms := newTestRepo(t)
	ms.hgetAllFn = func(_ context.Context, _ string) (map[string]string, error) {
		return map[string]string{"name": "x", "vector_dim": "abc"}, nil
	}
	if _, err := repo.Get(context.Background(), "x"); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestList_SortedByCreatedAt(t *testing.T) {
	repo, ms := newTestRepo(t)
	ms.scanFn = func(_ context.Context, pattern string) ([]string, error) {
		if pattern != "catalograg:__collection:*" {
			t.Errorf("unexpected pattern: %s", pattern)
		}
		return []string{"k1", "k2", "k3"}, nil
	}
	ms.hgetAllMultiFn = func(_ context.Context, _ []string) ([]map[string]string, error) {
		return []map[string]string{
			collectionToHash(domain.CollectionInfo{Name: "b", VectorDim: 4, CreatedAt: 2}),
			{}, // deleted between SCAN and HGETALL
			collectionToHash(domain.CollectionInfo{Name: "a", VectorDim: 4, CreatedAt: 1}),
		}, nil
	}

	list, err := repo.List(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(list) != 2 || list[0].Name != "a" || list[1].Name != "b" {
		t.Errorf("unexpected list: %+v", list)
	}
}

// --- Delete ---

func TestDelete_DropsIndexWithDocuments(t *testing.T) {
	repo, ms := newTestRepo(t)
	ms.hgetAllFn = func(_ context.Context, _ string) (map[string]string, error) {
		return collectionToHash(testInfo()), nil
	}
	var dropped string
	var withDocs bool
	ms.dropIndexFn = func(_ context.Context, name string, deleteDocs bool) error {
		dropped, withDocs = name, deleteDocs
		return nil
	}

	if err := repo.Delete(context.Background(), "semantic_chunks"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if dropped != "catalograg:semantic_chunks:idx" || !withDocs {
		t.Errorf("expected FT.DROPINDEX ... DD, got %s %v", dropped, withDocs)
	}
}

func TestDelete_NotFound(t *testing.T) {
	repo, _ := newTestRepo(t)
	err := repo.Delete(context.Background(), "missing")
	if !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestDelete_MissingIndexSweepsDocuments(t *testing.T) {
	repo, ms := newTestRepo(t)
	ms.hgetAllFn = func(_ context.Context, _ string) (map[string]string, error) {
		return collectionToHash(testInfo()), nil
	}
	ms.dropIndexFn = func(_ context.Context, _ string, _ bool) error { return db.ErrIndexNotFound }
	ms.scanFn = func(_ context.Context, pattern string) ([]string, error) {
		if pattern != "catalograg:semantic_chunks:*" {
			t.Errorf("unexpected pattern: %s", pattern)
		}
		return []string{"catalograg:semantic_chunks:product_1_chunk_0"}, nil
	}
	var deleted []string
	ms.delFn = func(_ context.Context, keys ...string) error {
		deleted = append(deleted, keys...)
		return nil
	}

	if err := repo.Delete(context.Background(), "semantic_chunks"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(deleted) != 2 {
		t.Errorf("expected meta key and one document deleted, got %v", deleted)
	}
}

func TestDelete_DropError_RestoresMetadata(t *testing.T) {
	repo, ms := newTestRepo(t)
	ms.hgetAllFn = func(_ context.Context, _ string) (map[string]string, error) {
		return collectionToHash(testInfo()), nil
	}
	ms.dropIndexFn = func(_ context.Context, _ string, _ bool) error { return errors.New("busy") }
	restored := false
	ms.hsetFn = func(_ context.Context, _ string, _ map[string]string) error {
		restored = true
		return nil
	}

	if err := repo.Delete(context.Background(), "semantic_chunks"); err == nil {
		t.Fatal("expected error")
	}
	if !restored {
		t.Error("expected metadata restored after failed drop")
	}
}

// --- Key layout ---

func TestKeys_MetadataOutsideDocumentPrefixes(t *testing.T) {
	repo, _ := newTestRepo(t)

	for _, name := range []string{"collection", "semantic_chunks", "c"} {
		docPrefix := repo.docPrefix(name)
		for _, other := range []string{"collection", "semantic_chunks", "c", "laptops"} {
			if strings.HasPrefix(repo.metaKey(other), docPrefix) {
				t.Errorf("metadata key %q falls under document prefix %q", repo.metaKey(other), docPrefix)
			}
		}
	}
}
