package business

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingStore struct {
	*MemoryStore
	hourReads int
}

func (c *countingStore) ListHours(ctx context.Context, businessID string) (WeeklyHours, error) {
	c.hourReads++
	return c.MemoryStore.ListHours(ctx, businessID)
}

func setupTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, client
}

func TestCachedStoreReadsThroughOnce(t *testing.T) {
	ctx := context.Background()
	mr, client := setupTestRedis(t)
	backing := &countingStore{MemoryStore: NewMemoryStore()}
	require.NoError(t, backing.SetHours(ctx, "biz-1", WeeklyHours{{Day: time.Tuesday, Open: hhmm(9, 0), Close: hhmm(18, 0)}}))

	cached := NewCachedStore(backing, client, time.Minute, nil)

	first, err := cached.ListHours(ctx, "biz-1")
	require.NoError(t, err)
	second, err := cached.ListHours(ctx, "biz-1")
	require.NoError(t, err)

	assert.Equal(t, 1, backing.hourReads)
	assert.Equal(t, first, second)
	assert.True(t, mr.Exists("business:hours:biz-1"))
	assert.Equal(t, time.Minute, mr.TTL("business:hours:biz-1"))
}

func TestCachedStoreInvalidatesOnWrite(t *testing.T) {
	ctx := context.Background()
	mr, client := setupTestRedis(t)
	backing := &countingStore{MemoryStore: NewMemoryStore()}
	cached := NewCachedStore(backing, client, time.Minute, nil)

	_, err := cached.ListHours(ctx, "biz-1")
	require.NoError(t, err)
	require.True(t, mr.Exists("business:hours:biz-1"))

	require.NoError(t, cached.SetHours(ctx, "biz-1", WeeklyHours{{Day: time.Monday, Closed: true}}))
	assert.False(t, mr.Exists("business:hours:biz-1"))

	hours, err := cached.ListHours(ctx, "biz-1")
	require.NoError(t, err)
	require.Len(t, hours, 1)
	assert.True(t, hours[0].Closed)
}

func TestCachedStoreSurvivesRedisOutage(t *testing.T) {
	ctx := context.Background()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	t.Cleanup(func() { _ = client.Close() })
	backing := &countingStore{MemoryStore: NewMemoryStore()}
	require.NoError(t, backing.SaveBusiness(ctx, Business{ID: "biz-1", Name: "Polished"}))
	cached := NewCachedStore(backing, client, time.Minute, nil)

	mr.Close()

	b, err := cached.GetBusiness(ctx, "biz-1")
	require.NoError(t, err)
	assert.Equal(t, "Polished", b.Name)
}

func TestCachedStoreWithoutRedis(t *testing.T) {
	ctx := context.Background()
	backing := &countingStore{MemoryStore: NewMemoryStore()}
	cached := NewCachedStore(backing, nil, 0, nil)
	_, err := cached.ListHours(ctx, "biz-1")
	require.NoError(t, err)
	_, err = cached.ListHours(ctx, "biz-1")
	require.NoError(t, err)
	assert.Equal(t, 2, backing.hourReads)
}
