package session

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"time"

	"querybot/internal/common/database"
	apperrors "querybot/internal/common/errors"
	"querybot/internal/models"

	"github.com/redis/go-redis/v9"
)

var ErrCacheMiss = errors.New("cache miss")

const redisKeyPrefix = "querybot:cache:"

// Cache stores terminal results per session. Freshness is judged by the
// caller against the entry timestamp.
type Cache interface {
	Get(ctx context.Context, sessionID, key string) (*models.CacheEntry, error)
	Put(ctx context.Context, sessionID, key string, entry models.CacheEntry) error
	Clear(ctx context.Context, sessionID string) error
}

// CacheKey hashes the normalized question, and the format instruction when present.
func CacheKey(question, formatInstruction string) string {
	text := normalize(question)
	if f := normalize(formatInstruction); f != "" {
		text += "\n" + f
	}
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}

func normalize(s string) string {
	return strings.ToLower(strings.Join(strings.Fields(s), " "))
}

// MemoryCache keeps entries in process, namespaced by session.
type MemoryCache struct {
	mu      sync.Mutex
	entries map[string]map[string]models.CacheEntry
}

func NewMemoryCache() *MemoryCache {
	return &MemoryCache{entries: map[string]map[string]models.CacheEntry{}}
}

func (c *MemoryCache) Get(_ context.Context, sessionID, key string) (*models.CacheEntry, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[sessionID][key]
	if !ok {
		return nil, ErrCacheMiss
	}
	return &e, nil
}

func (c *MemoryCache) Put(_ context.Context, sessionID, key string, entry models.CacheEntry) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	bucket, ok := c.entries[sessionID]
	if !ok {
		bucket = map[string]models.CacheEntry{}
		c.entries[sessionID] = bucket
	}
	bucket[key] = entry
	return nil
}

func (c *MemoryCache) Clear(_ context.Context, sessionID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, sessionID)
	return nil
}

// RedisCache shares entries between replicas. Keys expire with the TTL.
type RedisCache struct {
	client redis.Cmdable
	ttl    time.Duration
}

func NewRedisCache(client redis.Cmdable, ttl time.Duration) *RedisCache {
	return &RedisCache{client: client, ttl: ttl}
}

func redisKey(sessionID, key string) string {
	return redisKeyPrefix + sessionID + ":" + key
}

func (c *RedisCache) Get(ctx context.Context, sessionID, key string) (*models.CacheEntry, error) {
	val, err := c.client.Get(ctx, redisKey(sessionID, key)).Result()
	if errors.Is(err, redis.Nil) {
		return nil, ErrCacheMiss
	}
	if err != nil {
		return nil, apperrors.NewCacheUnavailableError(err)
	}

	var entry models.CacheEntry
	if err := json.Unmarshal([]byte(val), &entry); err != nil {
		return nil, ErrCacheMiss
	}
	return &entry, nil
}

func (c *RedisCache) Put(ctx context.Context, sessionID, key string, entry models.CacheEntry) error {
	data, err := json.Marshal(entry)
	if err != nil {
		return err
	}
	if err := c.client.Set(ctx, redisKey(sessionID, key), data, c.ttl).Err(); err != nil {
		return apperrors.NewCacheUnavailableError(err)
	}
	return nil
}

func (c *RedisCache) Clear(ctx context.Context, sessionID string) error {
	if _, err := database.DeletePrefix(ctx, c.client, redisKeyPrefix+sessionID+":"); err != nil {
		return apperrors.NewCacheUnavailableError(err)
	}
	return nil
}
