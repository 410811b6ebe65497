package redisx

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/d60-Lab/attribution/pkg/logger"
)

const semKeyPrefix = "conc:"

// acquire: bump the counter atomically; the first holder sets the expiry so
// an abandoned counter cannot pin slots forever. Over-limit bumps are undone
// in the same script, keeping the whole acquire a single round trip.
var semAcquireScript = redis.NewScript(`
local n = redis.call("INCR", KEYS[1])
if n == 1 then
  redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
if n > tonumber(ARGV[1]) then
  redis.call("DECR", KEYS[1])
  return 0
end
return n
`)

// release: decrement only while the counter still exists and is positive.
// A counter that already expired means every token it covered is gone too.
var semReleaseScript = redis.NewScript(`
local v = redis.call("GET", KEYS[1])
if v and tonumber(v) > 0 then
  return redis.call("DECR", KEYS[1])
end
return 0
`)

// Token represents one granted concurrency slot.
type Token struct {
	key       string
	id        string
	failOpen  bool
	expiresAt time.Time
	released  atomic.Bool
}

// ID returns the unique token id (diagnostic only).
func (t *Token) ID() string { return t.id }

// FailOpen reports whether the token was granted because the cache backend
// was unreachable rather than because a slot was free.
func (t *Token) FailOpen() bool { return t.failOpen }

// Semaphore is a cache-backed counting semaphore bounding concurrent work
// per scope+provider pair. Unlike Lock it fails OPEN: limiting concurrency
// is a cost control, not a correctness guarantee, so a cache outage must not
// stall the pipeline.
type Semaphore struct {
	client *redis.Client
}

func NewSemaphore(client *redis.Client) *Semaphore {
	return &Semaphore{client: client}
}

// Acquire grants a slot for key, or returns nil when all slots are taken.
// limit <= 0 disables the feature and always returns nil.
func (s *Semaphore) Acquire(ctx context.Context, key string, limit int, ttl time.Duration) *Token {
	if limit <= 0 {
		return nil
	}
	full := semKeyPrefix + key
	n, err := semAcquireScript.Run(ctx, s.client, []string{full},
		limit, ttl.Milliseconds()).Int()
	if err != nil {
		logger.Warn("semaphore backend unavailable, failing open",
			zap.String("key", key), zap.Error(err))
		return &Token{key: full, id: uuid.NewString(), failOpen: true}
	}
	if n == 0 {
		return nil
	}
	return &Token{key: full, id: uuid.NewString(), expiresAt: time.Now().Add(ttl)}
}

// Release frees the slot held by token. Idempotent: double release and
// release after expiry are no-ops.
func (s *Semaphore) Release(ctx context.Context, token *Token) {
	if token == nil || token.failOpen {
		return
	}
	if !token.released.CompareAndSwap(false, true) {
		return
	}
	// 槽位已随 TTL 过期：计数器可能已被新的持有者重建，
	// 再去递减会把别人的槽位放掉、导致超限放行
	if !time.Now().Before(token.expiresAt) {
		return
	}
	if err := semReleaseScript.Run(ctx, s.client, []string{token.key}).Err(); err != nil {
		logger.Warn("semaphore release failed, slot expires with TTL",
			zap.String("key", token.key), zap.Error(err))
	}
}

// SemKey builds the counter key for a scope and provider.
func SemKey(scope, provider string) string {
	return fmt.Sprintf("%s:%s", scope, provider)
}
