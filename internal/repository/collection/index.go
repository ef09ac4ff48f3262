package collection

import "github.com/kailas-cloud/catalograg/internal/db"

// buildIndex defines the FT index over a collection's document hashes.
// Only the vector is indexed; text and metadata ride along as plain hash fields.
func buildIndex(name, prefix string, vectorDim int, cfg IndexConfig) (*db.IndexDefinition, error) {
	b := db.NewIndex(name).Prefix(prefix)
	if cfg.Algorithm == db.VectorFlat {
		b = b.VectorFlatAs("__vector", "vector", vectorDim, db.DistanceCosine)
	} else {
		b = b.VectorHNSWAs("__vector", "vector", vectorDim, db.DistanceCosine, cfg.M, cfg.EFConstruct)
	}
	return b.Build()
}
