package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/dgraph-io/badger/v4"
	"github.com/sirupsen/logrus"
	"github.com/vitebski/schema-designer/pkg/models"
)

// BadgerConfig configures the embedded document store
type BadgerConfig struct {
	// Path is the data directory. Ignored when InMemory is set.
	Path string

	// InMemory keeps everything in memory, mostly for tests
	InMemory bool

	// SyncWrites fsyncs every commit
	SyncWrites bool

	// NumVersionsToKeep is how many versions of each key badger retains
	NumVersionsToKeep int

	Logger *logrus.Logger
}

// DefaultBadgerConfig returns a durable on-disk configuration
func DefaultBadgerConfig(path string) BadgerConfig {
	return BadgerConfig{
		Path:              path,
		SyncWrites:        true,
		NumVersionsToKeep: 1,
	}
}

// InMemoryBadgerConfig returns a configuration that never touches disk
func InMemoryBadgerConfig() BadgerConfig {
	return BadgerConfig{
		InMemory:          true,
		NumVersionsToKeep: 1,
	}
}

// badgerLogger routes badger's internal logging through logrus
type badgerLogger struct {
	logger *logrus.Logger
}

func (l *badgerLogger) Errorf(format string, args ...interface{}) {
	l.logger.Errorf("badger: "+format, args...)
}

func (l *badgerLogger) Warningf(format string, args ...interface{}) {
	l.logger.Warningf("badger: "+format, args...)
}

func (l *badgerLogger) Infof(format string, args ...interface{}) {
	l.logger.Debugf("badger: "+format, args...)
}

func (l *badgerLogger) Debugf(format string, args ...interface{}) {
	l.logger.Tracef("badger: "+format, args...)
}

// OpenBadger opens a badger database with the given configuration
func OpenBadger(cfg BadgerConfig) (*badger.DB, error) {
	var opts badger.Options
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if cfg.Path == "" {
			return nil, errors.New("badger path must be set when not running in memory")
		}
		opts = badger.DefaultOptions(cfg.Path)
	}

	opts = opts.WithSyncWrites(cfg.SyncWrites)
	if cfg.NumVersionsToKeep > 0 {
		opts = opts.WithNumVersionsToKeep(cfg.NumVersionsToKeep)
	}
	if cfg.Logger != nil {
		opts = opts.WithLogger(&badgerLogger{logger: cfg.Logger})
	} else {
		opts = opts.WithLogger(nil)
	}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open badger: %w", err)
	}
	return db, nil
}

// BadgerStore is the embedded document store
type BadgerStore struct {
	DB     *badger.DB
	Logger *logrus.Logger
}

// NewBadgerStore opens a badger database and wraps it as a store
func NewBadgerStore(cfg BadgerConfig, logger *logrus.Logger) (*BadgerStore, error) {
	if cfg.Logger == nil {
		cfg.Logger = logger
	}
	db, err := OpenBadger(cfg)
	if err != nil {
		return nil, err
	}
	if cfg.InMemory {
		logger.Infof("Opened in-memory badger store")
	} else {
		logger.Infof("Opened badger store at %s", cfg.Path)
	}
	return &BadgerStore{DB: db, Logger: logger}, nil
}

func badgerPrefix(ownerID string) []byte {
	return []byte("schema/" + ownerSegment(ownerID) + "/")
}

func badgerKey(ownerID, schemaID string) []byte {
	return append(badgerPrefix(ownerID), schemaID...)
}

// ReadSchema loads one schema document
func (b *BadgerStore) ReadSchema(ctx context.Context, ownerID, schemaID string) (*models.SchemaRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var record models.SchemaRecord
	err := b.DB.View(func(txn *badger.Txn) error {
		item, err := txn.Get(badgerKey(ownerID, schemaID))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &record)
		})
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read schema %s: %w", schemaID, err)
	}
	return &record, nil
}

// WriteSchema inserts or replaces a schema document
func (b *BadgerStore) WriteSchema(ctx context.Context, ownerID, schemaID string, record *models.SchemaRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	stored := prepareRecord(ownerID, schemaID, record)
	raw, err := json.Marshal(stored)
	if err != nil {
		return fmt.Errorf("failed to encode schema %s: %w", schemaID, err)
	}

	err = b.DB.Update(func(txn *badger.Txn) error {
		return txn.Set(badgerKey(ownerID, schemaID), raw)
	})
	if err != nil {
		return fmt.Errorf("failed to write schema %s: %w", schemaID, err)
	}
	return nil
}

// DeleteSchema removes a schema document. Deleting a missing schema is not an error.
func (b *BadgerStore) DeleteSchema(ctx context.Context, ownerID, schemaID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	err := b.DB.Update(func(txn *badger.Txn) error {
		return txn.Delete(badgerKey(ownerID, schemaID))
	})
	if err != nil {
		return fmt.Errorf("failed to delete schema %s: %w", schemaID, err)
	}
	return nil
}

// ListSchemas returns every schema of the owner, newest first
func (b *BadgerStore) ListSchemas(ctx context.Context, ownerID string) ([]models.SchemaRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	records := []models.SchemaRecord{}
	prefix := badgerPrefix(ownerID)

	err := b.DB.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefix
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			item := it.Item()
			var record models.SchemaRecord
			err := item.Value(func(val []byte) error {
				return json.Unmarshal(val, &record)
			})
			if err != nil {
				b.Logger.Warningf("Skipping undecodable schema %s: %v", item.Key(), err)
				continue
			}
			records = append(records, record)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list schemas: %w", err)
	}

	SortByLastModified(records)
	return records, nil
}

// Close flushes and closes the database
func (b *BadgerStore) Close() error {
	return b.DB.Close()
}
