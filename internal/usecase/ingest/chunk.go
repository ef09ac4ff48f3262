package ingest

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/kailas-cloud/catalograg/internal/domain"
)

// ChunkID is stable per record so re-ingestion overwrites instead of duplicating.
func ChunkID(id RecordID) string {
	return fmt.Sprintf("product_%s_chunk_0", id)
}

// ChunkText renders a record as labeled lines in a fixed order. Specification
// keys are sorted, so unchanged records always produce identical text.
func ChunkText(r Record) string {
	lines := []string{
		"Title: " + r.Title,
		"Description: " + r.Description,
		"Category: " + r.Category,
		"Price: $" + strconv.FormatFloat(r.Price, 'f', -1, 64),
	}
	if len(r.Features) > 0 {
		lines = append(lines, "Features: "+strings.Join(r.Features, ", "))
	}
	if len(r.Specifications) > 0 {
		keys := make([]string, 0, len(r.Specifications))
		for k := range r.Specifications {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		specs := make([]string, len(keys))
		for i, k := range keys {
			specs[i] = k + ": " + formatScalar(r.Specifications[k])
		}
		lines = append(lines, "Specifications: "+strings.Join(specs, ", "))
	}
	return strings.Join(lines, "\n")
}

// ChunkMeta is the per-run metadata stamped on every chunk.
type ChunkMeta struct {
	Source      string
	Provider    string
	Model       string
	ProcessedAt time.Time
}

// BuildChunks maps every record to exactly one document without an embedding.
func BuildChunks(records []Record, meta ChunkMeta) ([]domain.Document, error) {
	docs := make([]domain.Document, len(records))
	processedAt := meta.ProcessedAt.UTC().Format(time.RFC3339)

	for i, r := range records {
		specs := r.Specifications
		if specs == nil {
			specs = map[string]any{}
		}
		specJSON, err := json.Marshal(specs)
		if err != nil {
			return nil, fmt.Errorf("record %s: marshal specifications: %w", r.ID, err)
		}
		features := r.Features
		if features == nil {
			features = []string{}
		}

		docs[i] = domain.Document{
			ID:   ChunkID(r.ID),
			Text: ChunkText(r),
			Metadata: domain.Metadata{
				"productId":         string(r.ID),
				"category":          r.Category,
				"price":             r.Price,
				"features":          features,
				"specifications":    string(specJSON),
				"source":            meta.Source,
				"embeddingProvider": meta.Provider,
				"embeddingModel":    meta.Model,
				"processedAt":       processedAt,
			},
		}
	}
	return docs, nil
}
