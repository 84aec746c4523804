package poller

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/bsm/redislock"
	"github.com/redis/go-redis/v9"
)

// Locker guards a user's cycle across poller replicas. Acquire reports
// ok=false when another holder has the key.
type Locker interface {
	Acquire(ctx context.Context, key string) (release func(), ok bool, err error)
}

// NoopLocker always grants the lock; used for single-process deployments.
type NoopLocker struct{}

func (NoopLocker) Acquire(context.Context, string) (func(), bool, error) {
	return func() {}, true, nil
}

type RedisLocker struct {
	client *redislock.Client
	ttl    time.Duration
	logger *slog.Logger
}

const lockPrefix = "inbox-ledger:user:"

func NewRedisLocker(rdb redis.Scripter, ttl time.Duration, logger *slog.Logger) *RedisLocker {
	if logger == nil {
		logger = slog.Default()
	}
	if ttl <= 0 {
		ttl = 15 * time.Minute
	}
	return &RedisLocker{client: redislock.New(rdb), ttl: ttl, logger: logger}
}

func (l *RedisLocker) Acquire(ctx context.Context, key string) (func(), bool, error) {
	lock, err := l.client.Obtain(ctx, lockPrefix+key, l.ttl, nil)
	if errors.Is(err, redislock.ErrNotObtained) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return func() {
		// the caller's ctx may already be cancelled by now
		rctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := lock.Release(rctx); err != nil && !errors.Is(err, redislock.ErrLockNotHeld) {
			l.logger.Warn("redis lock release failed", "key", key, "error", err)
		}
	}, true, nil
}
