// Package app assembles the services shared by the API server and the
// ingestion CLI from a loaded configuration.
package app

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/catalograg/internal/config"
	"github.com/kailas-cloud/catalograg/internal/db"
	dbRedis "github.com/kailas-cloud/catalograg/internal/db/redis"
	"github.com/kailas-cloud/catalograg/internal/domain"
	collectionrepo "github.com/kailas-cloud/catalograg/internal/repository/collection"
	documentrepo "github.com/kailas-cloud/catalograg/internal/repository/document"
	"github.com/kailas-cloud/catalograg/internal/repository/memory"
	searchrepo "github.com/kailas-cloud/catalograg/internal/repository/search"
	"github.com/kailas-cloud/catalograg/internal/usecase/store"
)

// Backend is the opened storage layer.
type Backend struct {
	Pinger db.Pinger
	// KV is nil for the memory driver: no embedding cache, budgets stay in process.
	KV    db.KVStore
	repos store.Repositories
	close func()
}

// OpenBackend connects to the configured driver and waits for it to be ready.
// redis and valkey share the rueidis store.
func OpenBackend(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Backend, error) {
	switch cfg.Database.Driver {
	case config.DriverMemory:
		mem := memory.New()
		logger.Warn("Using in-memory document store, data is lost on exit")
		return &Backend{
			Pinger: mem,
			repos:  store.Repositories{Collections: mem, Documents: mem, Search: mem},
			close:  func() {},
		}, nil

	case config.DriverRedis, config.DriverValkey:
		s, err := dbRedis.NewStore(dbRedis.Config{
			Addrs:    cfg.Database.Addrs,
			Username: cfg.Database.Username,
			Password: cfg.Database.Password,
			DB:       cfg.Database.DB,
		})
		if err != nil {
			return nil, fmt.Errorf("create %s store: %w", cfg.Database.Driver, err)
		}
		timeout := time.Duration(cfg.Database.ReadinessTimeout) * time.Second
		if err := s.WaitForReady(ctx, timeout); err != nil {
			s.Close()
			return nil, fmt.Errorf("database not ready: %w", err)
		}
		logger.Info("Connected to database",
			zap.String("driver", cfg.Database.Driver),
			zap.Strings("addrs", cfg.Database.Addrs),
		)

		prefix := cfg.Storage.KeyPrefix
		return &Backend{
			Pinger: s,
			KV:     s,
			repos: store.Repositories{
				Collections: collectionrepo.New(s, prefix).WithIndex(collectionrepo.IndexConfig{
					Algorithm:   indexAlgorithm(cfg.Index.Algorithm),
					M:           cfg.Index.HNSWM,
					EFConstruct: cfg.Index.HNSWEFConstruct,
				}),
				Documents: documentrepo.New(s, prefix),
				Search:    searchrepo.New(s, prefix),
			},
			close: s.Close,
		}, nil
	}
	return nil, fmt.Errorf("%w: unknown database driver %q", domain.ErrConfiguration, cfg.Database.Driver)
}

// DocumentStore binds the embedders to the backend repositories.
func (b *Backend) DocumentStore(emb store.Embedders, vectorDim int, logger *zap.Logger) *store.Service {
	return store.New(b.repos, emb, vectorDim, logger)
}

// Close releases the connection.
func (b *Backend) Close() { b.close() }

func indexAlgorithm(s string) db.VectorAlgorithm {
	if s == "flat" {
		return db.VectorFlat
	}
	return db.VectorHNSW
}
