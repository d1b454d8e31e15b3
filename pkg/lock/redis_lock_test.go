package lock

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	s, err := miniredis.Run()
	require.NoError(t, err)

	client := redis.NewClient(&redis.Options{
		Addr: s.Addr(),
	})

	t.Cleanup(func() {
		client.Close()
		s.Close()
	})

	return s, client
}

func TestRedisLock(t *testing.T) {
	s, client := setupRedis(t)
	ctx := context.Background()

	t.Run("LockUnlock", func(t *testing.T) {
		l := NewRedisLock(client, "message:1", "owner-a", time.Minute)

		require.NoError(t, l.Lock(ctx))
		held, err := l.IsHeld(ctx)
		require.NoError(t, err)
		assert.True(t, held)

		require.NoError(t, l.Unlock(ctx))
		held, err = l.IsHeld(ctx)
		require.NoError(t, err)
		assert.False(t, held)
	})

	t.Run("Conflict", func(t *testing.T) {
		a := NewRedisLock(client, "message:2", "owner-a", time.Minute)
		b := NewRedisLock(client, "message:2", "owner-b", time.Minute)

		require.NoError(t, a.Lock(ctx))
		assert.ErrorIs(t, b.Lock(ctx), ErrLockHeld)

		held, err := b.IsHeld(ctx)
		require.NoError(t, err)
		assert.False(t, held)

		assert.ErrorIs(t, b.Unlock(ctx), ErrLockNotHeld)
		require.NoError(t, a.Unlock(ctx))
		require.NoError(t, b.Lock(ctx))
		require.NoError(t, b.Unlock(ctx))
	})

	t.Run("Expiry", func(t *testing.T) {
		a := NewRedisLock(client, "message:3", "owner-a", time.Second)
		b := NewRedisLock(client, "message:3", "owner-b", time.Minute)

		require.NoError(t, a.Lock(ctx))
		s.FastForward(2 * time.Second)

		require.NoError(t, b.Lock(ctx))
		assert.ErrorIs(t, a.Unlock(ctx), ErrLockNotHeld, "an expired owner must not release the new owner's lock")
		require.NoError(t, b.Unlock(ctx))
	})

	t.Run("Extend", func(t *testing.T) {
		l := NewRedisLock(client, "message:4", "owner-a", time.Second)

		require.NoError(t, l.Lock(ctx))
		require.NoError(t, l.Extend(ctx, time.Minute))
		s.FastForward(2 * time.Second)

		held, err := l.IsHeld(ctx)
		require.NoError(t, err)
		assert.True(t, held)
		require.NoError(t, l.Unlock(ctx))

		assert.ErrorIs(t, l.Extend(ctx, time.Minute), ErrLockNotHeld)
	})

	t.Run("RedisDown", func(t *testing.T) {
		dead := redis.NewClient(&redis.Options{Addr: "127.0.0.1:1", MaxRetries: -1})
		defer dead.Close()

		err := NewRedisLock(dead, "message:5", "owner-a", time.Minute).Lock(ctx)
		require.Error(t, err)
		assert.NotErrorIs(t, err, ErrLockHeld)
	})
}

func TestRedisLocker(t *testing.T) {
	s, client := setupRedis(t)
	ctx := context.Background()
	locker := NewRedisLocker(client, "shopchat:lock:message:", time.Minute)

	first, err := locker.Acquire(ctx, "42")
	require.NoError(t, err)
	assert.Equal(t, "shopchat:lock:message:42", first.Key())
	assert.True(t, s.Exists("shopchat:lock:message:42"))

	_, err = locker.Acquire(ctx, "42")
	assert.ErrorIs(t, err, ErrLockHeld)

	other, err := locker.Acquire(ctx, "43")
	require.NoError(t, err)

	require.NoError(t, first.Unlock(ctx))
	again, err := locker.Acquire(ctx, "42")
	require.NoError(t, err)

	require.NoError(t, again.Unlock(ctx))
	require.NoError(t, other.Unlock(ctx))

	var _ Locker = locker
}
