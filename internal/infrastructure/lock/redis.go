package lock

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/bsm/redislock"
	"github.com/redis/go-redis/v9"

	"cropclaim/internal/errs"
	"cropclaim/internal/ports"
)

// RedisLocker shares claim locks between engine instances.
type RedisLocker struct {
	client  *redislock.Client
	prefix  string
	backoff time.Duration
}

var _ ports.ClaimLocker = (*RedisLocker)(nil)

func NewRedisLocker(rdb *redis.Client, prefix string) *RedisLocker {
	return &RedisLocker{
		client:  redislock.New(rdb),
		prefix:  prefix,
		backoff: 100 * time.Millisecond,
	}
}

// Lock retries until the lock is obtained or ctx ends.
func (l *RedisLocker) Lock(ctx context.Context, key string, ttl time.Duration) (func(context.Context) error, error) {
	if ctx == nil {
		return nil, errors.New("context is required")
	}
	key = strings.TrimSpace(key)
	if key == "" {
		return nil, errors.New("lock key is required")
	}
	if ttl <= 0 {
		ttl = 30 * time.Second
	}

	held, err := l.client.Obtain(ctx, l.prefix+key, ttl, &redislock.Options{
		RetryStrategy: redislock.LinearBackoff(l.backoff),
	})
	if err != nil {
		if errors.Is(err, redislock.ErrNotObtained) || errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			return nil, errors.Join(ports.ErrLockNotObtained, err)
		}
		return nil, errs.Wrapf(err, "obtain lock %s", key)
	}

	return func(releaseCtx context.Context) error {
		if err := held.Release(releaseCtx); err != nil && !errors.Is(err, redislock.ErrLockNotHeld) {
			return errs.Wrapf(err, "release lock %s", key)
		}
		return nil
	}, nil
}
