package populator

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/vitebski/schema-designer/internal/generator"
	"github.com/vitebski/schema-designer/pkg/models"
)

// SchemaCreator stores a new schema for an owner
type SchemaCreator interface {
	Create(ctx context.Context, ownerID, name string, g models.Graph) (*models.SchemaRecord, error)
}

// SchemaPopulator fills an owner's workspace with generated sample schemas
type SchemaPopulator struct {
	Creator         SchemaCreator
	DataGenerator   *generator.DataGenerator
	NumSchemas      int
	TablesPerSchema int
	MaxRetries      int
	RetryDelay      time.Duration
	Created         []models.SchemaRecord
	Failed          map[string]error
	Logger          *logrus.Logger
}

// NewSchemaPopulator creates a new schema populator
func NewSchemaPopulator(
	creator SchemaCreator,
	dataGenerator *generator.DataGenerator,
	numSchemas int,
	tablesPerSchema int,
	maxRetries int,
	logger *logrus.Logger,
) *SchemaPopulator {
	return &SchemaPopulator{
		Creator:         creator,
		DataGenerator:   dataGenerator,
		NumSchemas:      numSchemas,
		TablesPerSchema: tablesPerSchema,
		MaxRetries:      maxRetries,
		RetryDelay:      500 * time.Millisecond,
		Failed:          make(map[string]error),
		Logger:          logger,
	}
}

// Populate creates NumSchemas generated schemas for the owner and reports
// whether all of them were stored. Generation errors are not retried;
// store errors are retried up to MaxRetries times.
func (sp *SchemaPopulator) Populate(ctx context.Context, ownerID string) bool {
	success := true

	for i := 0; i < sp.NumSchemas; i++ {
		if err := ctx.Err(); err != nil {
			sp.Logger.Warningf("Seeding interrupted after %d schemas: %v", i, err)
			return false
		}

		name := fmt.Sprintf("%s %d", sp.DataGenerator.SchemaName(), i+1)
		g, err := sp.DataGenerator.Generate(sp.TablesPerSchema)
		if err != nil {
			sp.Logger.Errorf("Error generating schema %s: %v", name, err)
			sp.Failed[name] = err
			success = false
			continue
		}

		record, err := sp.createWithRetry(ctx, ownerID, name, g)
		if err != nil {
			sp.Logger.Errorf("Error storing schema %s: %v", name, err)
			sp.Failed[name] = err
			success = false
			continue
		}

		sp.Created = append(sp.Created, *record)
		sp.Logger.Infof("Created schema %s (%s) with %d nodes", record.Name, record.ID, len(record.Nodes))
	}

	return success
}

func (sp *SchemaPopulator) createWithRetry(ctx context.Context, ownerID, name string, g models.Graph) (*models.SchemaRecord, error) {
	var lastErr error
	for attempt := 0; attempt <= sp.MaxRetries; attempt++ {
		if attempt > 0 {
			sp.Logger.Warningf("Retrying schema %s (attempt %d of %d)", name, attempt, sp.MaxRetries)
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(sp.RetryDelay):
			}
		}

		record, err := sp.Creator.Create(ctx, ownerID, name, g)
		if err == nil {
			return record, nil
		}
		lastErr = err
	}
	return nil, fmt.Errorf("giving up after %d attempts: %w", sp.MaxRetries+1, lastErr)
}
