package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"
	"github.com/vitebski/schema-designer/pkg/models"
)

// RealtimeStore is a low-latency schema store that also tracks presence
type RealtimeStore interface {
	Store
	Presence
}

// Replicated pairs a realtime copy with a durable document store.
// Reads prefer the realtime copy, listing always comes from the documents.
type Replicated struct {
	Realtime  RealtimeStore
	Documents Store
	Logger    *logrus.Logger
}

// NewReplicated creates a replicated store
func NewReplicated(realtime RealtimeStore, documents Store, logger *logrus.Logger) *Replicated {
	return &Replicated{
		Realtime:  realtime,
		Documents: documents,
		Logger:    logger,
	}
}

// ReadSchema reads the realtime copy, falling back to the document store.
// A document found only in the document store is copied to the realtime store.
func (r *Replicated) ReadSchema(ctx context.Context, ownerID, schemaID string) (*models.SchemaRecord, error) {
	record, err := r.Realtime.ReadSchema(ctx, ownerID, schemaID)
	if err == nil {
		return record, nil
	}
	if !errors.Is(err, ErrNotFound) {
		r.Logger.Warningf("Realtime read of schema %s failed, using document store: %v", schemaID, err)
	}

	record, err = r.Documents.ReadSchema(ctx, ownerID, schemaID)
	if err != nil {
		return nil, err
	}

	if err := r.Realtime.WriteSchema(ctx, ownerID, schemaID, record); err != nil {
		r.Logger.Warningf("Failed to seed realtime copy of schema %s: %v", schemaID, err)
	} else {
		r.Logger.Debugf("Seeded realtime copy of schema %s", schemaID)
	}
	return record, nil
}

// WriteSchema writes the realtime copy first, then the document
func (r *Replicated) WriteSchema(ctx context.Context, ownerID, schemaID string, record *models.SchemaRecord) error {
	if err := r.Realtime.WriteSchema(ctx, ownerID, schemaID, record); err != nil {
		return fmt.Errorf("realtime write failed: %w", err)
	}
	if err := r.Documents.WriteSchema(ctx, ownerID, schemaID, record); err != nil {
		return fmt.Errorf("document write failed: %w", err)
	}
	return nil
}

// DeleteSchema deletes the document first, then the realtime copy
func (r *Replicated) DeleteSchema(ctx context.Context, ownerID, schemaID string) error {
	if err := r.Documents.DeleteSchema(ctx, ownerID, schemaID); err != nil {
		return fmt.Errorf("document delete failed: %w", err)
	}
	if err := r.Realtime.DeleteSchema(ctx, ownerID, schemaID); err != nil {
		return fmt.Errorf("realtime delete failed: %w", err)
	}
	return nil
}

// ListSchemas lists from the document store, newest first
func (r *Replicated) ListSchemas(ctx context.Context, ownerID string) ([]models.SchemaRecord, error) {
	records, err := r.Documents.ListSchemas(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	SortByLastModified(records)
	return records, nil
}

// Touch records a heartbeat on the realtime store
func (r *Replicated) Touch(ctx context.Context, ownerID, schemaID, userID string) error {
	return r.Realtime.Touch(ctx, ownerID, schemaID, userID)
}

// ActiveCollaborators reads presence from the realtime store
func (r *Replicated) ActiveCollaborators(ctx context.Context, ownerID, schemaID string) ([]string, error) {
	return r.Realtime.ActiveCollaborators(ctx, ownerID, schemaID)
}

// Close closes both stores
func (r *Replicated) Close() error {
	var errs []error
	if c, ok := r.Realtime.(interface{ Close() error }); ok {
		errs = append(errs, c.Close())
	}
	if c, ok := r.Documents.(interface{ Close() error }); ok {
		errs = append(errs, c.Close())
	}
	return errors.Join(errs...)
}
