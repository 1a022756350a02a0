package repository

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/fertility-cds-server/internal/database"
	"github.com/fertility-cds-server/internal/domain"
)

// pooledStore closes the pgx pool together with the store.
type pooledStore struct {
	*PostgresStore
	db *database.DB
}

func (s *pooledStore) Close() error {
	err := s.PostgresStore.Close()
	s.db.Close()
	return err
}

// NewStore builds the configured store, guarded by a circuit breaker and,
// when configured, fronted by a record cache.
func NewStore(ctx context.Context, cfg *domain.Config, logger *logrus.Logger) (Store, error) {
	var base Store

	switch cfg.Storage.Driver {
	case "", "memory":
		base = NewMemoryStore()
	case "sqlite":
		store, err := NewSQLiteStore(cfg.Storage.SQLitePath)
		if err != nil {
			return nil, err
		}
		base = store
	case "postgres":
		db, err := database.NewConnection(ctx, cfg.Storage, logger)
		if err != nil {
			return nil, err
		}
		store, err := NewPostgresStore(db.SQL())
		if err != nil {
			db.Close()
			return nil, err
		}
		base = &pooledStore{PostgresStore: store, db: db}
	default:
		return nil, fmt.Errorf("unsupported storage driver: %s", cfg.Storage.Driver)
	}

	logger.WithFields(logrus.Fields{
		"driver":            cfg.Storage.Driver,
		"record_cache_size": cfg.Cache.RecordCacheSize,
	}).Info("Prescription store initialized")

	var store Store = NewResilientStore(base, cfg.Breaker, logger)
	if cfg.Cache.RecordCacheSize > 0 {
		cached, err := NewCachedStore(store, cfg.Cache.RecordCacheSize)
		if err != nil {
			store.Close()
			return nil, err
		}
		store = cached
	}
	return store, nil
}
