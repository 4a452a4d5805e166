package session

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	apperrors "querybot/internal/common/errors"
	"querybot/internal/models"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redismock/v9"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupMiniredis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return mr, client
}

func TestRedisCache_RoundTripAndExpiry(t *testing.T) {
	ctx := context.Background()
	mr, client := setupMiniredis(t)
	cache := NewRedisCache(client, 300*time.Second)

	entry := models.CacheEntry{
		Answer:     "No records found for the requested criteria.",
		SQLQueries: []string{"SELECT * FROM t WHERE d='2024-05-15'"},
		ReportID:   "AT1201",
		Timestamp:  time.Now(),
	}
	require.NoError(t, cache.Put(ctx, "s1", "abc", entry))
	assert.True(t, mr.Exists("querybot:cache:s1:abc"))

	got, err := cache.Get(ctx, "s1", "abc")
	require.NoError(t, err)
	assert.Equal(t, entry.Answer, got.Answer)
	assert.Equal(t, entry.SQLQueries, got.SQLQueries)
	assert.Equal(t, "AT1201", got.ReportID)

	mr.FastForward(301 * time.Second)
	_, err = cache.Get(ctx, "s1", "abc")
	assert.ErrorIs(t, err, ErrCacheMiss)
}

func TestRedisCache_Clear(t *testing.T) {
	ctx := context.Background()
	mr, client := setupMiniredis(t)
	cache := NewRedisCache(client, time.Minute)

	require.NoError(t, cache.Put(ctx, "s1", "a", models.CacheEntry{Answer: "1"}))
	require.NoError(t, cache.Put(ctx, "s1", "b", models.CacheEntry{Answer: "2"}))
	require.NoError(t, cache.Put(ctx, "s10", "a", models.CacheEntry{Answer: "3"}))

	require.NoError(t, cache.Clear(ctx, "s1"))
	assert.False(t, mr.Exists("querybot:cache:s1:a"))
	assert.True(t, mr.Exists("querybot:cache:s10:a"))
}

func TestRedisCache_ClearManyEntries(t *testing.T) {
	ctx := context.Background()
	mr, client := setupMiniredis(t)
	cache := NewRedisCache(client, time.Minute)

	for i := 0; i < 250; i++ {
		require.NoError(t, cache.Put(ctx, "s1", fmt.Sprintf("q%d", i), models.CacheEntry{Answer: "x"}))
	}
	require.NoError(t, cache.Put(ctx, "s2", "q0", models.CacheEntry{Answer: "y"}))

	require.NoError(t, cache.Clear(ctx, "s1"))
	assert.Equal(t, []string{"querybot:cache:s2:q0"}, mr.Keys())
}

func TestRedisCache_Unavailable(t *testing.T) {
	ctx := context.Background()
	client, mock := redismock.NewClientMock()
	cache := NewRedisCache(client, time.Minute)

	mock.ExpectGet("querybot:cache:s1:k").SetErr(errors.New("connection refused"))
	_, err := cache.Get(ctx, "s1", "k")
	require.Error(t, err)
	assert.Equal(t, apperrors.ErrCodeCacheUnavailable, apperrors.CodeOf(err))

	mock.ExpectGet("querybot:cache:s1:k").RedisNil()
	_, err = cache.Get(ctx, "s1", "k")
	assert.ErrorIs(t, err, ErrCacheMiss)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_WithRedisCache(t *testing.T) {
	ctx := context.Background()
	_, client := setupMiniredis(t)
	s := NewStore(3, 300*time.Second, NewRedisCache(client, 300*time.Second))

	key := CacheKey("list classes", "")
	st := s.GetOrCreate("s1")
	require.NoError(t, st.Remember(ctx, key, models.CacheEntry{Answer: "7, 8", SQLQueries: []string{}}))

	entry, err := st.Lookup(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, "7, 8", entry.Answer)
}
