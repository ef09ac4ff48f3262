package app

import (
	"go.uber.org/zap"

	"github.com/kailas-cloud/catalograg/internal/config"
	logpkg "github.com/kailas-cloud/catalograg/internal/logger"
	"github.com/kailas-cloud/catalograg/internal/usecase/ingest"
	"github.com/kailas-cloud/catalograg/internal/usecase/store"
)

// NewLogger builds the process logger from the logging section.
func NewLogger(env string, cfg *config.Config) (*zap.Logger, error) {
	var file *logpkg.FileConfig
	if cfg.Logging.File != "" {
		file = &logpkg.FileConfig{
			Path:       cfg.Logging.File,
			MaxSizeMB:  cfg.Logging.MaxSizeMB,
			MaxBackups: cfg.Logging.MaxBackups,
			MaxAgeDays: cfg.Logging.MaxAgeDays,
		}
	}
	return logpkg.NewLogger(env, cfg.Logging.Level, file) //nolint:wrapcheck // already descriptive
}

// NewIngestService wires the ingestion pipeline to the document store.
func NewIngestService(
	cfg *config.Config, st *store.Service, emb *Embedding, collection string, logger *zap.Logger,
) *ingest.Service {
	if collection == "" {
		collection = cfg.Agent.Collection
	}
	return ingest.New(st, emb.Embedders.Document, ingest.Options{
		Collection: collection,
		RecordsKey: cfg.Ingest.RecordsKey,
		Provider:   emb.Provider.Name(),
		Model:      emb.Provider.Model(),
	}, logger)
}
