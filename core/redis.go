package core

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"plotvault/metrics"
)

// RedisCache provides a Redis-based cache for frequently accessed datasets
type RedisCache struct {
	client *redis.Client
	logger *zap.SugaredLogger
}

// NewRedisCache creates a new Redis cache instance
func NewRedisCache(addr, password string, db, poolSize int, logger *zap.SugaredLogger) *RedisCache {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
		PoolSize: poolSize,
	})

	return &RedisCache{
		client: client,
		logger: logger,
	}
}

// Ping tests the Redis connection
func (rc *RedisCache) Ping(ctx context.Context) error {
	return rc.client.Ping(ctx).Err()
}

// Client exposes the underlying connection for components that need raw
// command access, such as the CSRF token registry. The pool is shared.
func (rc *RedisCache) Client() *redis.Client {
	return rc.client
}

// Close closes the Redis connection
func (rc *RedisCache) Close() error {
	return rc.client.Close()
}

// Set stores a value in the cache with expiration
func (rc *RedisCache) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		rc.logger.Errorf("Failed to marshal cache value for key %s: %v", key, err)
		metrics.CacheErrors.WithLabelValues("redis", "marshal").Inc()
		return err
	}

	// Check size limit to prevent excessive memory usage (10MB limit)
	const maxSize = 10 * 1024 * 1024 // 10MB
	if len(data) > maxSize {
		rc.logger.Warnf("Cache value for key %s exceeds size limit (%d bytes > %d bytes), rejecting", key, len(data), maxSize)
		metrics.CacheErrors.WithLabelValues("redis", "size_limit").Inc()
		return fmt.Errorf("cache value size %d bytes exceeds maximum allowed size %d bytes", len(data), maxSize)
	}

	err = rc.client.Set(ctx, key, data, expiration).Err()
	if err != nil {
		metrics.CacheErrors.WithLabelValues("redis", "set").Inc()
	}
	return err
}

// Get retrieves a value from the cache
func (rc *RedisCache) Get(ctx context.Context, key string, dest interface{}) (bool, error) {
	data, err := rc.client.Get(ctx, key).Result()
	if err != nil {
		if err == redis.Nil {
			metrics.CacheMisses.WithLabelValues("redis").Inc()
			return false, nil // Key not found
		}
		rc.logger.Errorf("Failed to get cache value for key %s: %v", key, err)
		metrics.CacheErrors.WithLabelValues("redis", "get").Inc()
		return false, err
	}

	err = json.Unmarshal([]byte(data), dest)
	if err != nil {
		rc.logger.Errorf("Failed to unmarshal cache value for key %s: %v", key, err)
		metrics.CacheErrors.WithLabelValues("redis", "unmarshal").Inc()
		return false, err
	}

	metrics.CacheHits.WithLabelValues("redis").Inc()
	return true, nil
}

// Delete removes a key from the cache
func (rc *RedisCache) Delete(ctx context.Context, key string) error {
	return rc.client.Del(ctx, key).Err()
}

// DeletePrefix removes every key under a prefix. Used to invalidate list
// caches after a dataset mutation.
func (rc *RedisCache) DeletePrefix(ctx context.Context, prefix string) (int, error) {
	var cursor uint64
	deleted := 0
	for {
		keys, next, err := rc.client.Scan(ctx, cursor, prefix+"*", 100).Result()
		if err != nil {
			metrics.CacheErrors.WithLabelValues("redis", "scan").Inc()
			return deleted, err
		}
		if len(keys) > 0 {
			if err := rc.client.Del(ctx, keys...).Err(); err != nil {
				metrics.CacheErrors.WithLabelValues("redis", "delete").Inc()
				return deleted, err
			}
			deleted += len(keys)
		}
		cursor = next
		if cursor == 0 {
			return deleted, nil
		}
	}
}

// Exists checks if a key exists in the cache
func (rc *RedisCache) Exists(ctx context.Context, key string) (bool, error) {
	count, err := rc.client.Exists(ctx, key).Result()
	return count > 0, err
}

// SetNX sets a value only if the key does not exist (atomic operation)
func (rc *RedisCache) SetNX(ctx context.Context, key string, value interface{}, expiration time.Duration) (bool, error) {
	data, err := json.Marshal(value)
	if err != nil {
		rc.logger.Errorf("Failed to marshal cache value for key %s: %v", key, err)
		return false, err
	}

	return rc.client.SetNX(ctx, key, data, expiration).Result()
}

// Increment atomically increments a counter key and sets its expiry on
// first use. Backs the shared rate limit window when Redis is configured.
func (rc *RedisCache) Increment(ctx context.Context, key string, expiration time.Duration) (int64, error) {
	count, err := rc.client.Incr(ctx, key).Result()
	if err != nil {
		metrics.CacheErrors.WithLabelValues("redis", "incr").Inc()
		return 0, err
	}
	if count == 1 {
		if err := rc.client.Expire(ctx, key, expiration).Err(); err != nil {
			metrics.CacheErrors.WithLabelValues("redis", "expire").Inc()
			return count, err
		}
	}
	return count, nil
}

// GetTTL returns the remaining TTL for a key
func (rc *RedisCache) GetTTL(ctx context.Context, key string) (time.Duration, error) {
	return rc.client.TTL(ctx, key).Result()
}

// FlushAll clears all keys from the current database
func (rc *RedisCache) FlushAll(ctx context.Context) error {
	return rc.client.FlushAll(ctx).Err()
}

// Cache keys for different data types
const (
	CacheKeyDatasetPrefix     = "dataset:"
	CacheKeyRecordPrefix      = "record:"
	CacheKeyDatasetListPrefix = "datasets:list:"
	CacheKeyRecordListPrefix  = "records:list:"
	CacheKeyRateLimitPrefix   = "ratelimit:"
)

// GetDatasetCacheKey generates a cache key for a Plotly dataset
func GetDatasetCacheKey(itemID int) string {
	return CacheKeyDatasetPrefix + strconv.Itoa(itemID)
}

// GetRecordCacheKey generates a cache key for a simple record
func GetRecordCacheKey(itemID int) string {
	return CacheKeyRecordPrefix + strconv.Itoa(itemID)
}

// GetDatasetListCacheKey generates a cache key for a dataset list page
func GetDatasetListCacheKey(limit, skip int) string {
	return CacheKeyDatasetListPrefix + strconv.Itoa(limit) + ":" + strconv.Itoa(skip)
}

// GetRecordListCacheKey generates a cache key for a record list page
func GetRecordListCacheKey(limit, skip int) string {
	return CacheKeyRecordListPrefix + strconv.Itoa(limit) + ":" + strconv.Itoa(skip)
}

// GetRateLimitCacheKey generates a counter key for a client address
func GetRateLimitCacheKey(clientIP string) string {
	return CacheKeyRateLimitPrefix + clientIP
}
