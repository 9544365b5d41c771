package cache

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"discussfront/internal/model"
)

func notice(id string, at time.Time) model.Notice {
	return model.Notice{ID: id, Level: model.NoticeError, Message: model.ErrActionFailed.Error(), CreatedAt: at}
}

func setupTestRedis(t *testing.T) *redis.Client {
	redisURL := os.Getenv("TEST_REDIS_URL")
	if redisURL == "" {
		redisURL = "redis://localhost:6379"
	}
	opts, err := redis.ParseURL(redisURL)
	require.NoError(t, err)
	opts.DB = 1

	client := redis.NewClient(opts)
	if err := client.Ping(context.Background()).Err(); err != nil {
		t.Skipf("Redis not available, skipping test: %v", err)
	}
	client.FlushDB(context.Background())
	t.Cleanup(func() {
		client.FlushDB(context.Background())
		client.Close()
	})
	return client
}

// =============================================================================
// Memory
// =============================================================================

func TestMemoryNoticeCache_DrainReturnsOldestFirstAndEmpties(t *testing.T) {
	ctx := context.Background()
	c := NewMemoryNoticeCache(time.Minute)
	now := time.Now()

	require.NoError(t, c.Push(ctx, "s1", notice("b", now)))
	require.NoError(t, c.Push(ctx, "s1", notice("a", now.Add(-time.Second))))
	require.NoError(t, c.Push(ctx, "s2", notice("c", now)))

	got, err := c.Drain(ctx, "s1")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "a", got[0].ID)
	assert.Equal(t, "b", got[1].ID)

	size, _ := c.Size(ctx, "s1")
	assert.Zero(t, size)
	size, _ = c.Size(ctx, "s2")
	assert.Equal(t, int64(1), size)
}

func TestMemoryNoticeCache_CapAndExpiry(t *testing.T) {
	ctx := context.Background()
	c := NewMemoryNoticeCache(time.Minute)
	now := time.Now()
	c.now = func() time.Time { return now }

	for i := 0; i < NoticeCacheCap+5; i++ {
		require.NoError(t, c.Push(ctx, "s1", notice(fmt.Sprint(i), now.Add(time.Duration(i)*time.Millisecond))))
	}
	size, _ := c.Size(ctx, "s1")
	assert.Equal(t, int64(NoticeCacheCap), size)

	now = now.Add(2 * time.Minute)
	got, err := c.Drain(ctx, "s1")
	require.NoError(t, err)
	assert.Empty(t, got)
}

// =============================================================================
// Redis
// =============================================================================

func TestRedisNoticeCache_PushAndDrain(t *testing.T) {
	client := setupTestRedis(t)
	ctx := context.Background()
	c := NewNoticeCache(client, time.Minute)
	now := time.Now()

	require.NoError(t, c.Push(ctx, "s1", notice("second", now)))
	require.NoError(t, c.Push(ctx, "s1", notice("first", now.Add(-time.Second))))

	size, err := c.Size(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, int64(2), size)

	ttl := client.TTL(ctx, noticeKey("s1")).Val()
	assert.Greater(t, ttl, time.Duration(0))

	got, err := c.Drain(ctx, "s1")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "first", got[0].ID)
	assert.Equal(t, "second", got[1].ID)

	got, err = c.Drain(ctx, "s1")
	require.NoError(t, err)
	assert.Empty(t, got)
}
