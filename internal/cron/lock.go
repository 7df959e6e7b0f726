package cron

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/watchpoints/points-engine/pkg/instance"
	"github.com/watchpoints/points-engine/pkg/redis"
)

// defaultLockTTL stays below the default cycle interval so a crashed holder
// never blocks the next cycle.
const defaultLockTTL = 4 * time.Minute

// ErrLockLost means the lease expired and another replica now holds it.
var ErrLockLost = errors.New("sweep lock lost")

// Lock coordinates exclusive sweep cycles across replicas.
type Lock interface {
	Acquire(ctx context.Context) (bool, error)
	// Extend renews a held lease. It reports false once the lease is gone.
	Extend(ctx context.Context) (bool, error)
	Release(ctx context.Context) error
}

type redisStore interface {
	SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error)
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
	Get(ctx context.Context, key string) (string, error)
	Del(ctx context.Context, keys ...string) error
}

// RedisLock is a lease on a single redis key. The value names the holding
// instance plus a random token, so a holder only ever touches its own lease.
type RedisLock struct {
	store redisStore
	key   string
	ttl   time.Duration
	token string
}

func NewRedisLock(store redisStore, key string, ttl time.Duration) (*RedisLock, error) {
	switch {
	case store == nil:
		return nil, errors.New("redis client required for lock")
	case key == "":
		return nil, errors.New("lock key is required")
	}
	if ttl <= 0 {
		ttl = defaultLockTTL
	}
	return &RedisLock{store: store, key: key, ttl: ttl}, nil
}

func (l *RedisLock) Acquire(ctx context.Context) (bool, error) {
	token := instance.ID() + ":" + uuid.NewString()
	ok, err := l.store.SetNX(ctx, l.key, token, l.ttl)
	if err != nil {
		return false, fmt.Errorf("setnx %s: %w", l.key, err)
	}
	if ok {
		l.token = token
	}
	return ok, nil
}

func (l *RedisLock) Extend(ctx context.Context) (bool, error) {
	held, err := l.holds(ctx)
	if err != nil || !held {
		return false, err
	}
	if err := l.store.Set(ctx, l.key, l.token, l.ttl); err != nil {
		return false, fmt.Errorf("extend %s: %w", l.key, err)
	}
	return true, nil
}

// Release drops the lease if it is still ours. A lease that expired and was
// taken by another replica is left alone.
func (l *RedisLock) Release(ctx context.Context) error {
	held, err := l.holds(ctx)
	l.token = ""
	if err != nil || !held {
		return err
	}
	if err := l.store.Del(ctx, l.key); err != nil {
		return fmt.Errorf("delete %s: %w", l.key, err)
	}
	return nil
}

func (l *RedisLock) holds(ctx context.Context) (bool, error) {
	if l.token == "" {
		return false, nil
	}
	current, err := l.store.Get(ctx, l.key)
	switch {
	case errors.Is(err, redis.Nil):
		return false, nil
	case err != nil:
		return false, fmt.Errorf("read %s: %w", l.key, err)
	}
	return current == l.token, nil
}
