// Package lock provides the Redis-backed Locker used when several engine
// replicas share one booking store.
package lock

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	corelock "github.com/homefixr/dispatch/core/lock"
	"github.com/homefixr/dispatch/infra/logger"
)

const (
	defaultTTL       = 30 * time.Second
	defaultRetryWait = 50 * time.Millisecond
)

// releaseScript deletes the key only if it still holds our token, so an
// expired lock reacquired by another replica is never released by us.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisLocker implements lock.Locker on top of SET NX PX. Each Acquire
// writes a random token under "dispatch:lock:<key>" and polls until the
// key is free or the context expires.
type RedisLocker struct {
	client    redis.UniversalClient
	ttl       time.Duration
	retryWait time.Duration
	log       logger.Logger
}

var _ corelock.Locker = (*RedisLocker)(nil)

// Option customizes a RedisLocker.
type Option func(*RedisLocker)

// WithTTL overrides the lock expiry. Locks outliving their holder are
// reclaimed after the TTL even if release was never called.
func WithTTL(ttl time.Duration) Option {
	return func(l *RedisLocker) { l.ttl = ttl }
}

// WithRetryWait overrides the polling interval used while the lock is held
// elsewhere.
func WithRetryWait(d time.Duration) Option {
	return func(l *RedisLocker) { l.retryWait = d }
}

// NewRedisLocker wraps client as a distributed Locker.
func NewRedisLocker(client redis.UniversalClient, log logger.Logger, opts ...Option) *RedisLocker {
	l := &RedisLocker{
		client:    client,
		ttl:       defaultTTL,
		retryWait: defaultRetryWait,
		log:       log,
	}
	if l.log == nil {
		l.log = logger.NopLogger{}
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

func (l *RedisLocker) Acquire(ctx context.Context, key string) (func(), error) {
	redisKey := "dispatch:lock:" + key
	token := uuid.NewString()

	for {
		ok, err := l.client.SetNX(ctx, redisKey, token, l.ttl).Result()
		if err != nil {
			return nil, err
		}
		if ok {
			break
		}
		select {
		case <-time.After(l.retryWait):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	released := false
	release := func() {
		if released {
			return
		}
		released = true
		// Best effort: the TTL reclaims the lock if the delete fails.
		releaseCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := releaseScript.Run(releaseCtx, l.client, []string{redisKey}, token).Err(); err != nil && err != redis.Nil {
			l.log.Warnf("failed to release lock %s: %v", redisKey, err)
		}
	}
	return release, nil
}
