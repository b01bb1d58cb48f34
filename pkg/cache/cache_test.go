package cache

import (
	"context"
	"testing"
	"time"

	"github.com/go-redis/redismock/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type payload struct {
	Regime string `json:"regime"`
}

func TestRedisCacheSetGet(t *testing.T) {
	db, mock := redismock.NewClientMock()
	c := NewRedisCacheWithClient(db, "ms")
	ctx := context.Background()

	mock.ExpectSet("ms:latest:distance", []byte(`{"regime":"Steady Climb"}`), time.Hour).SetVal("OK")
	require.NoError(t, c.Set(ctx, "latest:distance", payload{Regime: "Steady Climb"}, time.Hour))

	mock.ExpectGet("ms:latest:distance").SetVal(`{"regime":"Steady Climb"}`)
	var got payload
	require.NoError(t, c.Get(ctx, "latest:distance", &got))
	assert.Equal(t, "Steady Climb", got.Regime)

	mock.ExpectGet("ms:missing").RedisNil()
	assert.ErrorIs(t, c.Get(ctx, "missing", &got), ErrCacheMiss)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRedisCacheLock(t *testing.T) {
	db, mock := redismock.NewClientMock()
	c := NewRedisCacheWithClient(db, "ms")
	ctx := context.Background()

	mock.ExpectSetNX("ms:lock", "tok", time.Minute).SetVal(true)
	ok, err := c.TryLock(ctx, "lock", "tok", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)

	mock.ExpectSetNX("ms:lock", "other", time.Minute).SetVal(false)
	ok, err = c.TryLock(ctx, "lock", "other", time.Minute)
	require.NoError(t, err)
	assert.False(t, ok)

	mock.ExpectEval(unlockScript, []string{"ms:lock"}, "other").SetVal(int64(0))
	assert.ErrorIs(t, c.Unlock(ctx, "lock", "other"), ErrLockNotHeld)

	mock.ExpectEval(unlockScript, []string{"ms:lock"}, "tok").SetVal(int64(1))
	assert.NoError(t, c.Unlock(ctx, "lock", "tok"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMemoryCacheExpiry(t *testing.T) {
	now := time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)
	c := NewMemoryCache(WithMemoryClock(func() time.Time { return now }))
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "k", payload{Regime: "Sharp Decline"}, time.Minute))
	var got payload
	require.NoError(t, c.Get(ctx, "k", &got))
	assert.Equal(t, "Sharp Decline", got.Regime)

	now = now.Add(2 * time.Minute)
	assert.ErrorIs(t, c.Get(ctx, "k", &got), ErrCacheMiss)
}

func TestMemoryCacheLock(t *testing.T) {
	now := time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)
	c := NewMemoryCache(WithMemoryClock(func() time.Time { return now }))
	ctx := context.Background()

	ok, _ := c.TryLock(ctx, "run", "a", time.Minute)
	assert.True(t, ok)
	ok, _ = c.TryLock(ctx, "run", "b", time.Minute)
	assert.False(t, ok)
	assert.ErrorIs(t, c.Unlock(ctx, "run", "b"), ErrLockNotHeld)

	// Expired locks can be taken over.
	now = now.Add(time.Hour)
	ok, _ = c.TryLock(ctx, "run", "b", time.Minute)
	assert.True(t, ok)
	assert.NoError(t, c.Unlock(ctx, "run", "b"))
}

func TestMemoryCacheEvictsWhenFull(t *testing.T) {
	c := NewMemoryCache(WithMemoryMaxSize(2))
	ctx := context.Background()
	require.NoError(t, c.Set(ctx, "a", "1", time.Minute))
	require.NoError(t, c.Set(ctx, "b", "2", time.Hour))
	require.NoError(t, c.Set(ctx, "c", "3", time.Hour))

	var s string
	assert.ErrorIs(t, c.Get(ctx, "a", &s), ErrCacheMiss)
	require.NoError(t, c.Get(ctx, "c", &s))
	assert.Equal(t, "3", s)
}
