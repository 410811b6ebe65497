package redisx

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/d60-Lab/attribution/pkg/logger"
)

const lockKeyPrefix = "cron:lock:"

// Lock is a cache-backed mutual exclusion guard for scheduled jobs.
// Multiple stateless instances may race to run the same job; only the
// instance that creates the key runs it. Fail-closed: if the cache is
// unreachable we skip the run rather than risk double execution.
type Lock struct {
	client *redis.Client
}

func NewLock(client *redis.Client) *Lock {
	return &Lock{client: client}
}

// TryAcquire returns true only if this caller created the lock key.
// The value records the acquisition time for operator debugging; the TTL
// bounds the lock lifetime so a crashed holder cannot deadlock the job.
func (l *Lock) TryAcquire(ctx context.Context, name string, ttl time.Duration) bool {
	key := lockKeyPrefix + name
	ok, err := l.client.SetNX(ctx, key, time.Now().UTC().Format(time.RFC3339), ttl).Result()
	if err != nil {
		logger.Warn("lock acquire failed, skipping run",
			zap.String("job", name), zap.Error(err))
		return false
	}
	return ok
}

// Release deletes the lock key. Best effort: a failed delete is harmless
// because the TTL expires the key anyway.
func (l *Lock) Release(ctx context.Context, name string) {
	if err := l.client.Del(ctx, lockKeyPrefix+name).Err(); err != nil {
		logger.Warn("lock release failed, relying on TTL",
			zap.String("job", name), zap.Error(err))
	}
}

// Key exposes the cache key for a job name, used by admin tooling.
func Key(name string) string { return fmt.Sprintf("%s%s", lockKeyPrefix, name) }
