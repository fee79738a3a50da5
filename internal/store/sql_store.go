package store

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/sirupsen/logrus"
	"github.com/vitebski/schema-designer/internal/connector"
	"github.com/vitebski/schema-designer/pkg/models"
)

// Dialect holds the statements that differ between SQL engines
type Dialect struct {
	Name        string
	CreateTable string
	Upsert      string
}

// MySQLDialect stores documents in a JSON column and upserts on the primary key
var MySQLDialect = Dialect{
	Name: connector.DriverMySQL,
	CreateTable: `
		CREATE TABLE IF NOT EXISTS schemas (
			owner_id VARCHAR(128) NOT NULL,
			schema_id VARCHAR(64) NOT NULL,
			name VARCHAR(255) NOT NULL,
			document JSON NOT NULL,
			last_modified BIGINT NOT NULL,
			last_modified_by VARCHAR(128) NOT NULL,
			PRIMARY KEY (owner_id, schema_id),
			INDEX idx_schemas_owner_modified (owner_id, last_modified)
		)
	`,
	Upsert: `
		INSERT INTO schemas (owner_id, schema_id, name, document, last_modified, last_modified_by)
		VALUES (?, ?, ?, ?, ?, ?)
		ON DUPLICATE KEY UPDATE
			name = VALUES(name),
			document = VALUES(document),
			last_modified = VALUES(last_modified),
			last_modified_by = VALUES(last_modified_by)
	`,
}

// SQLiteDialect stores documents as text and upserts with ON CONFLICT
var SQLiteDialect = Dialect{
	Name: connector.DriverSQLite,
	CreateTable: `
		CREATE TABLE IF NOT EXISTS schemas (
			owner_id TEXT NOT NULL,
			schema_id TEXT NOT NULL,
			name TEXT NOT NULL,
			document TEXT NOT NULL,
			last_modified INTEGER NOT NULL,
			last_modified_by TEXT NOT NULL,
			PRIMARY KEY (owner_id, schema_id)
		)
	`,
	Upsert: `
		INSERT INTO schemas (owner_id, schema_id, name, document, last_modified, last_modified_by)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (owner_id, schema_id) DO UPDATE SET
			name = excluded.name,
			document = excluded.document,
			last_modified = excluded.last_modified,
			last_modified_by = excluded.last_modified_by
	`,
}

const (
	selectSchemaQuery = `SELECT document FROM schemas WHERE owner_id = ? AND schema_id = ?`
	listSchemasQuery  = `SELECT document FROM schemas WHERE owner_id = ? ORDER BY last_modified DESC`
	deleteSchemaQuery = `DELETE FROM schemas WHERE owner_id = ? AND schema_id = ?`
)

// SQLStore keeps schema documents in a relational database through the connector
type SQLStore struct {
	DB      *connector.DatabaseConnector
	Dialect Dialect
	Logger  *logrus.Logger
}

// NewSQLStore creates a store using the dialect matching the connector's driver
func NewSQLStore(db *connector.DatabaseConnector, logger *logrus.Logger) *SQLStore {
	dialect := MySQLDialect
	if db.Driver == connector.DriverSQLite {
		dialect = SQLiteDialect
	}
	return &SQLStore{
		DB:      db,
		Dialect: dialect,
		Logger:  logger,
	}
}

// Migrate creates the schemas table if it does not exist
func (s *SQLStore) Migrate(ctx context.Context) error {
	if _, err := s.DB.ExecuteStatement(ctx, s.Dialect.CreateTable); err != nil {
		return fmt.Errorf("failed to create schemas table: %w", err)
	}
	s.Logger.Debugf("Ensured schemas table exists (%s)", s.Dialect.Name)
	return nil
}

// ReadSchema loads one schema document
func (s *SQLStore) ReadSchema(ctx context.Context, ownerID, schemaID string) (*models.SchemaRecord, error) {
	rows, err := s.DB.ExecuteQuery(ctx, selectSchemaQuery, ownerID, schemaID)
	if err != nil {
		return nil, fmt.Errorf("failed to read schema %s: %w", schemaID, err)
	}
	if len(rows) == 0 {
		return nil, ErrNotFound
	}

	record, err := decodeDocument(rows[0]["document"])
	if err != nil {
		return nil, fmt.Errorf("failed to decode schema %s: %w", schemaID, err)
	}
	return record, nil
}

// WriteSchema inserts or replaces a schema document
func (s *SQLStore) WriteSchema(ctx context.Context, ownerID, schemaID string, record *models.SchemaRecord) error {
	stored := prepareRecord(ownerID, schemaID, record)
	document, err := json.Marshal(stored)
	if err != nil {
		return fmt.Errorf("failed to encode schema %s: %w", schemaID, err)
	}

	_, err = s.DB.ExecuteStatement(ctx, s.Dialect.Upsert,
		ownerID,
		schemaID,
		stored.Name,
		string(document),
		stored.LastModified.UnixMilli(),
		stored.LastModifiedBy,
	)
	if err != nil {
		return fmt.Errorf("failed to write schema %s: %w", schemaID, err)
	}
	return nil
}

// DeleteSchema removes a schema document. Deleting a missing schema is not an error.
func (s *SQLStore) DeleteSchema(ctx context.Context, ownerID, schemaID string) error {
	if _, err := s.DB.ExecuteStatement(ctx, deleteSchemaQuery, ownerID, schemaID); err != nil {
		return fmt.Errorf("failed to delete schema %s: %w", schemaID, err)
	}
	return nil
}

// ListSchemas returns every schema of the owner, newest first
func (s *SQLStore) ListSchemas(ctx context.Context, ownerID string) ([]models.SchemaRecord, error) {
	rows, err := s.DB.ExecuteQuery(ctx, listSchemasQuery, ownerID)
	if err != nil {
		return nil, fmt.Errorf("failed to list schemas: %w", err)
	}

	records := make([]models.SchemaRecord, 0, len(rows))
	for _, row := range rows {
		record, err := decodeDocument(row["document"])
		if err != nil {
			s.Logger.Warningf("Skipping undecodable schema document: %v", err)
			continue
		}
		records = append(records, *record)
	}
	return records, nil
}

// Close releases the database connection
func (s *SQLStore) Close() error {
	s.DB.Disconnect()
	return nil
}

func decodeDocument(value interface{}) (*models.SchemaRecord, error) {
	var raw []byte
	switch v := value.(type) {
	case string:
		raw = []byte(v)
	case []byte:
		raw = v
	default:
		return nil, fmt.Errorf("unexpected document type %T", value)
	}

	var record models.SchemaRecord
	if err := json.Unmarshal(raw, &record); err != nil {
		return nil, err
	}
	return &record, nil
}
