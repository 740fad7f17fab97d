package csrf

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// redisKeyPrefix namespaces registry entries in a shared Redis instance.
const redisKeyPrefix = "csrf:token:"

// RedisRegistry is a pluggable Registry backend for deployments that want
// tokens to survive process restarts or be shared across instances. It
// satisfies the same contract as MemoryRegistry; the validator stays unaware
// of which backend it reads.
//
// Entries are stored with a store-side TTL, so Redis itself evicts expired
// tokens and Sweep has nothing to do. Backend failures surface as lookup
// errors, which the validator treats as expired: a registry that cannot
// answer must fail closed, never open.
type RedisRegistry struct {
	client *redis.Client
	ttl    time.Duration
	logger *zap.SugaredLogger
}

// NewRedisRegistry creates a registry on an existing Redis client. ttl bounds
// both the store-side key expiry and the age accepted by validation, so it
// must match the validator's TTL.
func NewRedisRegistry(client *redis.Client, ttl time.Duration, logger *zap.SugaredLogger) *RedisRegistry {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &RedisRegistry{
		client: client,
		ttl:    ttl,
		logger: logger,
	}
}

func (r *RedisRegistry) key(value string) string {
	return redisKeyPrefix + value
}

// Insert stores the issuance time as Unix nanoseconds with key expiry at ttl.
func (r *RedisRegistry) Insert(ctx context.Context, value string, issuedAt time.Time) error {
	encoded := strconv.FormatInt(issuedAt.UnixNano(), 10)
	if err := r.client.Set(ctx, r.key(value), encoded, r.ttl).Err(); err != nil {
		return fmt.Errorf("failed to insert csrf token: %w", err)
	}
	return nil
}

// Lookup reads the issuance time back. A missing key is not an error.
func (r *RedisRegistry) Lookup(ctx context.Context, value string) (time.Time, bool, error) {
	encoded, err := r.client.Get(ctx, r.key(value)).Result()
	if err == redis.Nil {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, fmt.Errorf("failed to look up csrf token: %w", err)
	}

	nanos, err := strconv.ParseInt(encoded, 10, 64)
	if err != nil {
		// A corrupt entry is as good as absent. Drop it so it cannot
		// keep poisoning lookups.
		r.logger.Warnw("Dropping corrupt CSRF registry entry", "error", err)
		_ = r.client.Del(ctx, r.key(value)).Err()
		return time.Time{}, false, nil
	}

	return time.Unix(0, nanos), true, nil
}

// Delete removes the token. Deleting an unknown value is a no-op.
func (r *RedisRegistry) Delete(ctx context.Context, value string) error {
	if err := r.client.Del(ctx, r.key(value)).Err(); err != nil {
		return fmt.Errorf("failed to delete csrf token: %w", err)
	}
	return nil
}

// Sweep is a no-op: the store expires entries on its own schedule.
func (r *RedisRegistry) Sweep(_ context.Context, _ time.Time, _ time.Duration) (int, error) {
	return 0, nil
}

// Len counts live entries by scanning the key prefix. Intended for metrics
// and tests, not hot paths.
func (r *RedisRegistry) Len(ctx context.Context) (int, error) {
	var (
		cursor uint64
		count  int
	)
	for {
		keys, next, err := r.client.Scan(ctx, cursor, redisKeyPrefix+"*", 100).Result()
		if err != nil {
			return 0, fmt.Errorf("failed to scan csrf tokens: %w", err)
		}
		count += len(keys)
		cursor = next
		if cursor == 0 {
			break
		}
	}
	return count, nil
}
