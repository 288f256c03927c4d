package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/bensupplier/catalog/internal/catalog"
	"github.com/bensupplier/catalog/internal/platform/db"
	"github.com/bensupplier/catalog/internal/platform/docstore"
)

// OpenRepository connects the storage driver selected by cfg and prepares its
// schema. An unreachable database is logged and tolerated: the returned
// repository fails per call until the server becomes reachable. Only invalid
// connection settings are returned as errors.
func OpenRepository(ctx context.Context, cfg *Config, logger *slog.Logger) (catalog.Repository, func(), error) {
	prepareCtx, cancel := context.WithTimeout(ctx, 2*cfg.StorageTimeout)
	defer cancel()

	switch cfg.StorageDriver {
	case DriverMongo:
		client, err := docstore.New(ctx, cfg.MongoURI)
		if client == nil {
			return nil, nil, err
		}
		if err != nil {
			logger.Error("connect mongo", slog.Any("error", err))
		}
		repo := catalog.NewMongoRepository(client, cfg.MongoDatabase, cfg.MongoCollection)
		if err := repo.EnsureIndexes(prepareCtx); err != nil {
			logger.Error("ensure mongo indexes", slog.Any("error", err))
		}
		closeFn := func() {
			if err := client.Disconnect(context.Background()); err != nil {
				logger.Warn("mongo disconnect", slog.Any("error", err))
			}
		}
		return repo, closeFn, nil
	case DriverPostgres:
		pool, err := db.New(ctx, cfg.PGDSN)
		if err != nil {
			return nil, nil, err
		}
		if err := db.Ping(ctx, pool); err != nil {
			logger.Error("connect postgres", slog.Any("error", err))
		}
		repo := catalog.NewPGRepository(pool)
		if err := repo.EnsureSchema(prepareCtx); err != nil {
			logger.Warn("ensure postgres schema, retrying on first use", slog.Any("error", err))
		}
		return repo, pool.Close, nil
	default:
		return nil, nil, fmt.Errorf("unknown storage driver %q", cfg.StorageDriver)
	}
}
