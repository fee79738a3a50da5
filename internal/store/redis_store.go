package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"github.com/vitebski/schema-designer/pkg/models"
)

// DefaultPresenceTTL is how long a heartbeat keeps a collaborator active
const DefaultPresenceTTL = 60 * time.Second

// RedisStore is the realtime copy of schema documents plus collaborator presence
type RedisStore struct {
	Client      *redis.Client
	PresenceTTL time.Duration
	Logger      *logrus.Logger
	now         func() time.Time
}

// NewRedisStore creates a realtime store on an existing client
func NewRedisStore(client *redis.Client, logger *logrus.Logger) *RedisStore {
	return &RedisStore{
		Client:      client,
		PresenceTTL: DefaultPresenceTTL,
		Logger:      logger,
		now:         time.Now,
	}
}

func schemaKey(ownerID, schemaID string) string {
	return "schemas:" + ownerSegment(ownerID) + ":" + schemaID
}

func presenceKey(ownerID, schemaID string) string {
	return "presence:" + ownerSegment(ownerID) + ":" + schemaID
}

// ownerIndexKey names the set of schema ids an owner has in redis
func ownerIndexKey(ownerID string) string {
	return "owner-schemas:" + ownerSegment(ownerID)
}

// ReadSchema loads the realtime copy of a schema
func (r *RedisStore) ReadSchema(ctx context.Context, ownerID, schemaID string) (*models.SchemaRecord, error) {
	raw, err := r.Client.Get(ctx, schemaKey(ownerID, schemaID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read realtime schema %s: %w", schemaID, err)
	}

	var record models.SchemaRecord
	if err := json.Unmarshal(raw, &record); err != nil {
		return nil, fmt.Errorf("failed to decode realtime schema %s: %w", schemaID, err)
	}
	return &record, nil
}

// WriteSchema replaces the realtime copy of a schema
func (r *RedisStore) WriteSchema(ctx context.Context, ownerID, schemaID string, record *models.SchemaRecord) error {
	stored := prepareRecord(ownerID, schemaID, record)
	raw, err := json.Marshal(stored)
	if err != nil {
		return fmt.Errorf("failed to encode schema %s: %w", schemaID, err)
	}
	pipe := r.Client.TxPipeline()
	pipe.Set(ctx, schemaKey(ownerID, schemaID), raw, 0)
	pipe.SAdd(ctx, ownerIndexKey(ownerID), schemaID)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to write realtime schema %s: %w", schemaID, err)
	}
	return nil
}

// DeleteSchema removes the realtime copy and presence of a schema
func (r *RedisStore) DeleteSchema(ctx context.Context, ownerID, schemaID string) error {
	pipe := r.Client.TxPipeline()
	pipe.Del(ctx, schemaKey(ownerID, schemaID), presenceKey(ownerID, schemaID))
	pipe.SRem(ctx, ownerIndexKey(ownerID), schemaID)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to delete realtime schema %s: %w", schemaID, err)
	}
	return nil
}

// ListSchemas returns the owner's realtime copies, newest first
func (r *RedisStore) ListSchemas(ctx context.Context, ownerID string) ([]models.SchemaRecord, error) {
	var records []models.SchemaRecord

	ids, err := r.Client.SMembers(ctx, ownerIndexKey(ownerID)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list realtime schemas: %w", err)
	}
	if len(ids) == 0 {
		return records, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = schemaKey(ownerID, id)
	}
	values, err := r.Client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read realtime schemas: %w", err)
	}

	for i, value := range values {
		raw, ok := value.(string)
		if !ok {
			r.Logger.Debugf("Realtime schema %s is indexed but missing", ids[i])
			continue
		}
		var record models.SchemaRecord
		if err := json.Unmarshal([]byte(raw), &record); err != nil {
			r.Logger.Warningf("Skipping undecodable realtime schema %s: %v", keys[i], err)
			continue
		}
		records = append(records, record)
	}

	SortByLastModified(records)
	return records, nil
}

// Touch records a heartbeat from a user viewing the schema
func (r *RedisStore) Touch(ctx context.Context, ownerID, schemaID, userID string) error {
	key := presenceKey(ownerID, schemaID)
	now := r.now()

	pipe := r.Client.TxPipeline()
	pipe.ZAdd(ctx, key, redis.Z{Score: float64(now.UnixMilli()), Member: userID})
	pipe.Expire(ctx, key, r.presenceTTL())
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to record presence for %s: %w", schemaID, err)
	}
	return nil
}

// ActiveCollaborators returns the users whose last heartbeat is within the presence TTL
func (r *RedisStore) ActiveCollaborators(ctx context.Context, ownerID, schemaID string) ([]string, error) {
	key := presenceKey(ownerID, schemaID)
	cutoff := r.now().Add(-r.presenceTTL()).UnixMilli()

	if err := r.Client.ZRemRangeByScore(ctx, key, "-inf", "("+strconv.FormatInt(cutoff, 10)).Err(); err != nil {
		return nil, fmt.Errorf("failed to expire presence for %s: %w", schemaID, err)
	}
	users, err := r.Client.ZRange(ctx, key, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read presence for %s: %w", schemaID, err)
	}
	return users, nil
}

// Close closes the redis client
func (r *RedisStore) Close() error {
	return r.Client.Close()
}

func (r *RedisStore) presenceTTL() time.Duration {
	if r.PresenceTTL <= 0 {
		return DefaultPresenceTTL
	}
	return r.PresenceTTL
}
