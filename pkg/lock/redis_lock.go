package lock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

var (
	// ErrLockHeld the key is locked by another owner
	ErrLockHeld = errors.New("lock held by another owner")
	// ErrLockNotHeld the lock expired or belongs to another owner
	ErrLockNotHeld = errors.New("lock not held")
)

// Compare-and-delete / compare-and-expire so an owner never touches a lock
// that expired and was taken by someone else.
var (
	unlockScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
end
return 0`)

	extendScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("pexpire", KEYS[1], ARGV[2])
end
return 0`)
)

// RedisLock one SETNX lock with an owner token
type RedisLock struct {
	client *redis.Client
	key    string
	token  string
	ttl    time.Duration
}

// NewRedisLock creates a lock on key owned by token
func NewRedisLock(client *redis.Client, key, token string, ttl time.Duration) *RedisLock {
	return &RedisLock{
		client: client,
		key:    key,
		token:  token,
		ttl:    ttl,
	}
}

// Key returns the locked key
func (l *RedisLock) Key() string {
	return l.key
}

// Lock acquires the lock or returns ErrLockHeld
func (l *RedisLock) Lock(ctx context.Context) error {
	ok, err := l.client.SetNX(ctx, l.key, l.token, l.ttl).Result()
	if err != nil {
		return fmt.Errorf("failed to lock %s: %w", l.key, err)
	}
	if !ok {
		return ErrLockHeld
	}
	return nil
}

// Unlock releases the lock if this owner still holds it
func (l *RedisLock) Unlock(ctx context.Context) error {
	n, err := unlockScript.Run(ctx, l.client, []string{l.key}, l.token).Int()
	if err != nil {
		return fmt.Errorf("failed to unlock %s: %w", l.key, err)
	}
	if n == 0 {
		return ErrLockNotHeld
	}
	return nil
}

// Extend resets the lock TTL if this owner still holds it
func (l *RedisLock) Extend(ctx context.Context, ttl time.Duration) error {
	n, err := extendScript.Run(ctx, l.client, []string{l.key}, l.token, ttl.Milliseconds()).Int()
	if err != nil {
		return fmt.Errorf("failed to extend %s: %w", l.key, err)
	}
	if n == 0 {
		return ErrLockNotHeld
	}
	return nil
}

// IsHeld reports whether this owner holds the lock
func (l *RedisLock) IsHeld(ctx context.Context) (bool, error) {
	value, err := l.client.Get(ctx, l.key).Result()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return value == l.token, nil
}

// Locker hands out processing locks keyed by name
type Locker interface {
	// Acquire locks name or returns ErrLockHeld. The returned lock must be unlocked by the caller.
	Acquire(ctx context.Context, name string) (*RedisLock, error)
}

// RedisLocker issues RedisLocks under a common prefix, each with a fresh owner token
type RedisLocker struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// NewRedisLocker creates a locker. ttl bounds how long a crashed owner blocks the key.
func NewRedisLocker(client *redis.Client, prefix string, ttl time.Duration) *RedisLocker {
	if ttl <= 0 {
		ttl = 2 * time.Minute
	}
	return &RedisLocker{client: client, prefix: prefix, ttl: ttl}
}

// Acquire locks prefix+name
func (r *RedisLocker) Acquire(ctx context.Context, name string) (*RedisLock, error) {
	l := NewRedisLock(r.client, r.prefix+name, uuid.NewString(), r.ttl)
	if err := l.Lock(ctx); err != nil {
		return nil, err
	}
	return l, nil
}
