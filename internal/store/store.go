package store

import (
	"context"
	"errors"
	"sort"
	"strconv"

	"github.com/google/uuid"
	"github.com/vitebski/schema-designer/pkg/models"
)

// ErrNotFound is returned when a schema does not exist for the owner
var ErrNotFound = errors.New("schema not found")

// Store persists schema records keyed by owner and schema id
type Store interface {
	ReadSchema(ctx context.Context, ownerID, schemaID string) (*models.SchemaRecord, error)
	WriteSchema(ctx context.Context, ownerID, schemaID string, record *models.SchemaRecord) error
	DeleteSchema(ctx context.Context, ownerID, schemaID string) error
	ListSchemas(ctx context.Context, ownerID string) ([]models.SchemaRecord, error)
}

// Presence tracks which users are currently looking at a schema
type Presence interface {
	Touch(ctx context.Context, ownerID, schemaID, userID string) error
	ActiveCollaborators(ctx context.Context, ownerID, schemaID string) ([]string, error)
}

// NewSchemaID returns an id for a new schema
func NewSchemaID() string {
	return uuid.NewString()
}

// SortByLastModified orders records newest first
func SortByLastModified(records []models.SchemaRecord) {
	sort.SliceStable(records, func(i, j int) bool {
		return records[i].LastModified.After(records[j].LastModified)
	})
}

// ownerSegment encodes an owner id for use inside a storage key. The length
// prefix keeps owner ids containing a key separator from running into the
// schema id or into another owner's keys.
func ownerSegment(ownerID string) string {
	return strconv.Itoa(len(ownerID)) + ":" + ownerID
}

// prepareRecord returns a copy of record stamped with the key it is stored under
func prepareRecord(ownerID, schemaID string, record *models.SchemaRecord) models.SchemaRecord {
	out := *record
	out.ID = schemaID
	out.OwnerID = ownerID
	if out.Name == "" {
		out.Name = models.DefaultSchemaName
	}
	return out
}
