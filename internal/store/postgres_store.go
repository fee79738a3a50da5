package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sirupsen/logrus"
	"github.com/vitebski/schema-designer/pkg/models"
)

const (
	postgresCreateTable = `
		CREATE TABLE IF NOT EXISTS schemas (
			owner_id TEXT NOT NULL,
			schema_id TEXT NOT NULL,
			name TEXT NOT NULL,
			document JSONB NOT NULL,
			last_modified TIMESTAMPTZ NOT NULL,
			last_modified_by TEXT NOT NULL,
			PRIMARY KEY (owner_id, schema_id)
		)
	`
	postgresCreateIndex = `
		CREATE INDEX IF NOT EXISTS idx_schemas_owner_modified
		ON schemas (owner_id, last_modified DESC)
	`
	postgresUpsert = `
		INSERT INTO schemas (owner_id, schema_id, name, document, last_modified, last_modified_by)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (owner_id, schema_id) DO UPDATE SET
			name = EXCLUDED.name,
			document = EXCLUDED.document,
			last_modified = EXCLUDED.last_modified,
			last_modified_by = EXCLUDED.last_modified_by
	`
	postgresSelect = `SELECT document FROM schemas WHERE owner_id = $1 AND schema_id = $2`
	postgresList   = `SELECT document FROM schemas WHERE owner_id = $1 ORDER BY last_modified DESC`
	postgresDelete = `DELETE FROM schemas WHERE owner_id = $1 AND schema_id = $2`
)

// PostgresStore keeps schema documents in a JSONB column
type PostgresStore struct {
	Pool   *pgxpool.Pool
	Logger *logrus.Logger
}

// ConnectPostgres opens a connection pool and verifies it with a ping
func ConnectPostgres(ctx context.Context, url string, logger *logrus.Logger) (*pgxpool.Pool, error) {
	if url == "" {
		return nil, errors.New("postgres connection url must be provided as POSTGRES_URL")
	}

	config, err := pgxpool.ParseConfig(url)
	if err != nil {
		return nil, fmt.Errorf("failed to parse postgres connection string: %w", err)
	}
	config.MaxConns = 10
	config.MinConns = 1
	config.MaxConnLifetime = 5 * time.Minute
	config.MaxConnIdleTime = 1 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("failed to create postgres pool: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping postgres: %w", err)
	}

	logger.Infof("Connected to postgres database %s", config.ConnConfig.Database)
	return pool, nil
}

// NewPostgresStore wraps an existing pool
func NewPostgresStore(pool *pgxpool.Pool, logger *logrus.Logger) *PostgresStore {
	return &PostgresStore{
		Pool:   pool,
		Logger: logger,
	}
}

// Migrate creates the schemas table and its index if they do not exist
func (p *PostgresStore) Migrate(ctx context.Context) error {
	for _, stmt := range []string{postgresCreateTable, postgresCreateIndex} {
		if _, err := p.Pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("failed to migrate schemas table: %w", err)
		}
	}
	p.Logger.Debugf("Ensured schemas table exists (postgres)")
	return nil
}

// ReadSchema loads one schema document
func (p *PostgresStore) ReadSchema(ctx context.Context, ownerID, schemaID string) (*models.SchemaRecord, error) {
	var raw []byte
	err := p.Pool.QueryRow(ctx, postgresSelect, ownerID, schemaID).Scan(&raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read schema %s: %w", schemaID, err)
	}

	record, err := decodeDocument(raw)
	if err != nil {
		return nil, fmt.Errorf("failed to decode schema %s: %w", schemaID, err)
	}
	return record, nil
}

// WriteSchema inserts or replaces a schema document
func (p *PostgresStore) WriteSchema(ctx context.Context, ownerID, schemaID string, record *models.SchemaRecord) error {
	stored := prepareRecord(ownerID, schemaID, record)
	document, err := json.Marshal(stored)
	if err != nil {
		return fmt.Errorf("failed to encode schema %s: %w", schemaID, err)
	}

	_, err = p.Pool.Exec(ctx, postgresUpsert,
		ownerID,
		schemaID,
		stored.Name,
		document,
		stored.LastModified,
		stored.LastModifiedBy,
	)
	if err != nil {
		return fmt.Errorf("failed to write schema %s: %w", schemaID, err)
	}
	return nil
}

// DeleteSchema removes a schema document. Deleting a missing schema is not an error.
func (p *PostgresStore) DeleteSchema(ctx context.Context, ownerID, schemaID string) error {
	if _, err := p.Pool.Exec(ctx, postgresDelete, ownerID, schemaID); err != nil {
		return fmt.Errorf("failed to delete schema %s: %w", schemaID, err)
	}
	return nil
}

// ListSchemas returns every schema of the owner, newest first
func (p *PostgresStore) ListSchemas(ctx context.Context, ownerID string) ([]models.SchemaRecord, error) {
	rows, err := p.Pool.Query(ctx, postgresList, ownerID)
	if err != nil {
		return nil, fmt.Errorf("failed to list schemas: %w", err)
	}
	defer rows.Close()

	records := []models.SchemaRecord{}
	for rows.Next() {
		var raw []byte
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("failed to scan schema row: %w", err)
		}
		record, err := decodeDocument(raw)
		if err != nil {
			p.Logger.Warningf("Skipping undecodable schema document: %v", err)
			continue
		}
		records = append(records, *record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate schema rows: %w", err)
	}
	return records, nil
}

// Close closes the connection pool
func (p *PostgresStore) Close() error {
	p.Pool.Close()
	return nil
}
