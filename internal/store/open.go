package store

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"github.com/vitebski/schema-designer/internal/config"
	"github.com/vitebski/schema-designer/internal/connector"
)

// Backend is a store that holds resources until closed
type Backend interface {
	Store
	Close() error
}

// Open builds the document store selected by STORE_BACKEND and, when
// REDIS_ADDR is set, layers the realtime store over it
func Open(ctx context.Context, cfg *config.Config, logger *logrus.Logger) (Backend, error) {
	documents, err := openDocuments(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}

	if cfg.RedisAddr == "" {
		logger.Infof("Using %s document store without realtime layer", cfg.StoreBackend)
		return documents, nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		documents.Close()
		return nil, fmt.Errorf("failed to connect to redis at %s: %w", cfg.RedisAddr, err)
	}

	realtime := NewRedisStore(client, logger)
	realtime.PresenceTTL = cfg.PresenceTTL
	logger.Infof("Using %s document store with realtime layer at %s", cfg.StoreBackend, cfg.RedisAddr)
	return NewReplicated(realtime, documents, logger), nil
}

func openDocuments(ctx context.Context, cfg *config.Config, logger *logrus.Logger) (Backend, error) {
	switch cfg.StoreBackend {
	case config.BackendBadger, "":
		badgerCfg := DefaultBadgerConfig(cfg.BadgerPath)
		if cfg.BadgerInMemory {
			badgerCfg = InMemoryBadgerConfig()
		}
		return NewBadgerStore(badgerCfg, logger)

	case config.BackendMySQL:
		db := connector.NewDatabaseConnector(cfg.MySQLHost, cfg.MySQLUser, cfg.MySQLPassword, cfg.MySQLDatabase, cfg.MySQLPort, logger)
		return openSQL(ctx, db, logger)

	case config.BackendSQLite:
		return openSQL(ctx, connector.NewSQLiteConnector(cfg.SQLitePath, logger), logger)

	case config.BackendPostgres:
		pool, err := ConnectPostgres(ctx, cfg.PostgresURL, logger)
		if err != nil {
			return nil, err
		}
		pg := NewPostgresStore(pool, logger)
		if err := pg.Migrate(ctx); err != nil {
			pool.Close()
			return nil, err
		}
		return pg, nil

	default:
		return nil, fmt.Errorf("unsupported store backend %q", cfg.StoreBackend)
	}
}

func openSQL(ctx context.Context, db *connector.DatabaseConnector, logger *logrus.Logger) (Backend, error) {
	if err := db.Connect(ctx); err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", db.Driver, err)
	}
	sqlStore := NewSQLStore(db, logger)
	if err := sqlStore.Migrate(ctx); err != nil {
		db.Disconnect()
		return nil, err
	}
	return sqlStore, nil
}
