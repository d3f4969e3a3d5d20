package importer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/bsm/redislock"
	"github.com/redis/go-redis/v9"

	"pubrec/pkg/platform/sentinel"
)

// RedisLocker takes a per-feed lease in Redis so two processes cannot run the
// same feed concurrently. Reconciliation is idempotent, so a lost lock is a
// wasted run rather than corruption; the lease is about not hammering feeds
// and keeping task audit records one-per-run.
type RedisLocker struct {
	locker *redislock.Client
	ttl    time.Duration
	log    *slog.Logger
}

func NewRedisLocker(client redis.UniversalClient, ttl time.Duration, log *slog.Logger) *RedisLocker {
	return &RedisLocker{locker: redislock.New(client), ttl: ttl, log: log}
}

func (l *RedisLocker) Acquire(ctx context.Context, feed string) (func(), error) {
	key := "pubrec:importer:lock:" + feed
	lock, err := l.locker.Obtain(ctx, key, l.ttl, nil)
	if err != nil {
		if errors.Is(err, redislock.ErrNotObtained) {
			return nil, fmt.Errorf("%w: feed %s run already in progress", sentinel.ErrLocked, feed)
		}
		return nil, fmt.Errorf("obtain run lock: %w", err)
	}
	return func() {
		if err := lock.Release(context.Background()); err != nil {
			l.log.Warn("release run lock", "feed", feed, "error", err)
		}
	}, nil
}
