package lock

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Lua script for atomic compare-and-delete.
// Only the holder that set the token may remove the key; a lock whose TTL
// already lapsed and was re-acquired by someone else is left alone.
const unlockScript = `
if redis.call('GET', KEYS[1]) == ARGV[1] then
    return redis.call('DEL', KEYS[1])
end
return 0
`

const retryInterval = 25 * time.Millisecond

// RedisLocker is a Locker shared by every replica through Redis SET NX.
type RedisLocker struct {
	client *redis.Client
	keyFn  func(string) string
	ttl    time.Duration
	wait   time.Duration
	logger *zap.Logger
}

// NewRedisLocker creates a RedisLocker. ttl bounds how long a crashed holder
// keeps the key; wait bounds how long Lock polls before giving up. keyFn maps
// a lock key to its Redis key.
func NewRedisLocker(client *redis.Client, keyFn func(string) string, ttl, wait time.Duration, logger *zap.Logger) *RedisLocker {
	if logger == nil {
		logger = zap.NewNop()
	}
	if keyFn == nil {
		keyFn = func(k string) string { return k }
	}
	return &RedisLocker{
		client: client,
		keyFn:  keyFn,
		ttl:    ttl,
		wait:   wait,
		logger: logger,
	}
}

// Lock polls SET NX until it wins, wait elapses, or ctx is done.
func (r *RedisLocker) Lock(ctx context.Context, key string) (func(), error) {
	redisKey := r.keyFn(key)
	token := uuid.NewString()

	deadline := time.NewTimer(r.wait)
	defer deadline.Stop()
	ticker := time.NewTicker(retryInterval)
	defer ticker.Stop()

	for {
		ok, err := r.client.SetNX(ctx, redisKey, token, r.ttl).Result()
		if err != nil {
			return nil, fmt.Errorf("failed to acquire lock %s: %w", redisKey, err)
		}
		if ok {
			break
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-deadline.C:
			return nil, fmt.Errorf("%w: %s", ErrLockTimeout, redisKey)
		case <-ticker.C:
		}
	}

	return func() {
		// Unlock must run even when the caller's ctx is already cancelled.
		unlockCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Second)
		defer cancel()
		if err := r.client.Eval(unlockCtx, unlockScript, []string{redisKey}, token).Err(); err != nil {
			r.logger.Warn("failed to release lock",
				zap.String("key", redisKey),
				zap.Error(err),
			)
		}
	}, nil
}
