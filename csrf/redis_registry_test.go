package csrf

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func setupRedisRegistry(t *testing.T, ttl time.Duration) (*RedisRegistry, *miniredis.Miniredis) {
	t.Helper()

	mr, err := miniredis.Run()
	require.NoError(t, err, "Failed to start miniredis")
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	return NewRedisRegistry(client, ttl, zaptest.NewLogger(t).Sugar()), mr
}

func TestRedisRegistryInsertLookup(t *testing.T) {
	registry, _ := setupRedisRegistry(t, time.Hour)
	ctx := context.Background()

	issuedAt := time.Now().Truncate(time.Nanosecond)
	require.NoError(t, registry.Insert(ctx, "token1", issuedAt))

	got, found, err := registry.Lookup(ctx, "token1")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, issuedAt.UnixNano(), got.UnixNano())
}

func TestRedisRegistryLookupUnknown(t *testing.T) {
	registry, _ := setupRedisRegistry(t, time.Hour)

	_, found, err := registry.Lookup(context.Background(), "neverissued")
	require.NoError(t, err, "an unknown token is a miss, not an error")
	assert.False(t, found)
}

func TestRedisRegistryDelete(t *testing.T) {
	registry, _ := setupRedisRegistry(t, time.Hour)
	ctx := context.Background()

	require.NoError(t, registry.Insert(ctx, "token1", time.Now()))
	require.NoError(t, registry.Delete(ctx, "token1"))

	_, found, err := registry.Lookup(ctx, "token1")
	require.NoError(t, err)
	assert.False(t, found)

	require.NoError(t, registry.Delete(ctx, "token1"))
}

func TestRedisRegistryLen(t *testing.T) {
	registry, _ := setupRedisRegistry(t, time.Hour)
	ctx := context.Background()

	for _, token := range []string{"a", "b", "c"} {
		require.NoError(t, registry.Insert(ctx, token, time.Now()))
	}

	size, err := registry.Len(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, size)
}

func TestRedisRegistryStoreSideExpiry(t *testing.T) {
	ttl := time.Hour
	registry, mr := setupRedisRegistry(t, ttl)
	ctx := context.Background()

	require.NoError(t, registry.Insert(ctx, "token1", time.Now()))

	// The store evicts on its own clock; Sweep stays a no-op.
	swept, err := registry.Sweep(ctx, time.Now(), ttl)
	require.NoError(t, err)
	assert.Zero(t, swept)

	mr.FastForward(ttl + time.Second)

	_, found, err := registry.Lookup(ctx, "token1")
	require.NoError(t, err)
	assert.False(t, found, "store-side TTL must have evicted the token")
}

func TestRedisRegistryCorruptEntry(t *testing.T) {
	registry, mr := setupRedisRegistry(t, time.Hour)
	ctx := context.Background()

	require.NoError(t, mr.Set(redisKeyPrefix+"bad", "not-a-timestamp"))

	_, found, err := registry.Lookup(ctx, "bad")
	require.NoError(t, err, "corrupt entries read as absent, not as errors")
	assert.False(t, found)

	// The corrupt key must have been dropped.
	assert.False(t, mr.Exists(redisKeyPrefix+"bad"))
}

func TestValidatorWithRedisRegistry(t *testing.T) {
	opts := DefaultOptions()
	opts.TTL = time.Hour
	registry, mr := setupRedisRegistry(t, opts.TTL)

	issuer := NewIssuer(registry, opts, zaptest.NewLogger(t).Sugar())
	validator := NewValidator(registry, opts, zaptest.NewLogger(t).Sugar())
	ctx := context.Background()

	token, err := issuer.Issue(ctx)
	require.NoError(t, err)

	decision := validator.Validate(ctx, "POST", token, token, time.Now())
	assert.True(t, decision.Allowed)

	mr.FastForward(opts.TTL + time.Second)

	decision = validator.Validate(ctx, "POST", token, token, time.Now())
	require.False(t, decision.Allowed)
	assert.Equal(t, ReasonTokenExpired, decision.Reason)
}

func TestValidatorFailsClosedOnRedisOutage(t *testing.T) {
	opts := DefaultOptions()
	registry, mr := setupRedisRegistry(t, opts.TTL)

	issuer := NewIssuer(registry, opts, zaptest.NewLogger(t).Sugar())
	validator := NewValidator(registry, opts, zaptest.NewLogger(t).Sugar())
	ctx := context.Background()

	token, err := issuer.Issue(ctx)
	require.NoError(t, err)

	// A registry that cannot answer must reject, never allow.
	mr.Close()

	decision := validator.Validate(ctx, "POST", token, token, time.Now())
	require.False(t, decision.Allowed)
	assert.Equal(t, ReasonTokenExpired, decision.Reason)
}
