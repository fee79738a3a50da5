package store

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRedisStore(t *testing.T) (*RedisStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	s := NewRedisStore(client, createTestLogger())
	t.Cleanup(func() { s.Close() })
	return s, mr
}

func TestRedisStore(t *testing.T) {
	s, _ := newRedisStore(t)
	exerciseStore(t, s)
}

func TestRedisStoreKeys(t *testing.T) {
	s, mr := newRedisStore(t)

	require.NoError(t, s.WriteSchema(context.Background(), "owner-1", "s1", sampleRecord("Shop", time.Now())))

	assert.True(t, mr.Exists("schemas:7:owner-1:s1"))
	members, err := mr.Members("owner-schemas:7:owner-1")
	require.NoError(t, err)
	assert.Equal(t, []string{"s1"}, members)
}

func TestRedisStoreSkipsUndecodableValues(t *testing.T) {
	s, mr := newRedisStore(t)
	ctx := context.Background()

	require.NoError(t, s.WriteSchema(ctx, "owner-1", "good", sampleRecord("Good", time.Now())))
	require.NoError(t, mr.Set(schemaKey("owner-1", "bad"), "{not json"))
	_, err := mr.SAdd(ownerIndexKey("owner-1"), "bad", "gone")
	require.NoError(t, err)

	list, err := s.ListSchemas(ctx, "owner-1")
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "good", list[0].ID)

	_, err = s.ReadSchema(ctx, "owner-1", "bad")
	assert.Error(t, err)
	assert.NotErrorIs(t, err, ErrNotFound)
}

func TestRedisPresence(t *testing.T) {
	s, mr := newRedisStore(t)
	ctx := context.Background()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return now }

	require.NoError(t, s.Touch(ctx, "owner-1", "s1", "alice"))
	now = now.Add(30 * time.Second)
	require.NoError(t, s.Touch(ctx, "owner-1", "s1", "bob"))

	users, err := s.ActiveCollaborators(ctx, "owner-1", "s1")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"alice", "bob"}, users)
	assert.Equal(t, DefaultPresenceTTL, mr.TTL(presenceKey("owner-1", "s1")))

	// alice's heartbeat is now older than the TTL
	now = now.Add(45 * time.Second)
	users, err = s.ActiveCollaborators(ctx, "owner-1", "s1")
	require.NoError(t, err)
	assert.Equal(t, []string{"bob"}, users)

	// A repeated heartbeat refreshes the score instead of adding a member
	require.NoError(t, s.Touch(ctx, "owner-1", "s1", "bob"))
	users, err = s.ActiveCollaborators(ctx, "owner-1", "s1")
	require.NoError(t, err)
	assert.Equal(t, []string{"bob"}, users)
}

func TestRedisPresenceEmpty(t *testing.T) {
	s, _ := newRedisStore(t)

	users, err := s.ActiveCollaborators(context.Background(), "owner-1", "nobody")
	require.NoError(t, err)
	assert.Empty(t, users)
}

func TestRedisDeleteClearsPresence(t *testing.T) {
	s, mr := newRedisStore(t)
	ctx := context.Background()

	require.NoError(t, s.WriteSchema(ctx, "owner-1", "s1", sampleRecord("Shop", time.Now())))
	require.NoError(t, s.Touch(ctx, "owner-1", "s1", "alice"))
	require.NoError(t, s.DeleteSchema(ctx, "owner-1", "s1"))

	assert.False(t, mr.Exists(schemaKey("owner-1", "s1")))
	assert.False(t, mr.Exists(presenceKey("owner-1", "s1")))
	members, _ := mr.Members(ownerIndexKey("owner-1"))
	assert.Empty(t, members)
}
