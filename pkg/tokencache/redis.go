package tokencache

import (
	"context"
	"time"

	"github.com/bsm/redislock"
	"github.com/redis/go-redis/v9"
)

// RedisLocker implements Locker with redislock. Lock waits up to Wait for a
// held lock before giving up with redislock.ErrNotObtained.
type RedisLocker struct {
	locker *redislock.Client
	TTL    time.Duration
	Wait   time.Duration
}

func NewRedisLocker(client *redis.Client) *RedisLocker {
	return &RedisLocker{
		locker: redislock.New(client),
		TTL:    30 * time.Second,
		Wait:   10 * time.Second,
	}
}

func (l *RedisLocker) Lock(ctx context.Context, key string) (func(context.Context) error, error) {
	ctx, cancel := context.WithTimeout(ctx, l.Wait)
	defer cancel()

	lock, err := l.locker.Obtain(ctx, key, l.TTL, &redislock.Options{
		RetryStrategy: redislock.LinearBackoff(100 * time.Millisecond),
	})
	if err != nil {
		return nil, err
	}
	return lock.Release, nil
}
