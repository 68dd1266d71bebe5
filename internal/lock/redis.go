package lock

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// ErrNotAcquired is returned when the lock is still held by someone else
// after the wait budget.
var ErrNotAcquired = errors.New("lock: not acquired")

const keyPrefix = "movie-ratings:lock:"

// Deletes the key only while it still holds our token, so an expired lock
// re-acquired by another instance is never released by us.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
    return redis.call("DEL", KEYS[1])
end
return 0
`)

// Redis is a lease-based lock shared by every instance using the same Redis.
// The TTL bounds how long a crashed holder can block a key.
type Redis struct {
	client   redis.UniversalClient
	ttl      time.Duration
	pollWait time.Duration
	maxWait  time.Duration
}

// RedisOptions configures NewRedis.
type RedisOptions struct {
	Addr     string
	Password string
	TTL      time.Duration
	// MaxWait caps how long Lock polls before returning ErrNotAcquired. Defaults to TTL.
	MaxWait time.Duration
}

// NewRedis connects to Redis and verifies it with PING.
func NewRedis(ctx context.Context, opts RedisOptions) (*Redis, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis %s: %w", opts.Addr, err)
	}
	return NewRedisWithClient(client, opts.TTL, opts.MaxWait), nil
}

// NewRedisWithClient wraps an existing client.
func NewRedisWithClient(client redis.UniversalClient, ttl, maxWait time.Duration) *Redis {
	if ttl <= 0 {
		ttl = 5 * time.Second
	}
	if maxWait <= 0 {
		maxWait = ttl
	}
	return &Redis{client: client, ttl: ttl, pollWait: 25 * time.Millisecond, maxWait: maxWait}
}

// Lock polls SET NX PX until it owns the key, ctx ends, or MaxWait elapses.
func (r *Redis) Lock(ctx context.Context, key string) (func(), error) {
	token := uuid.NewString()
	redisKey := keyPrefix + key
	deadline := time.Now().Add(r.maxWait)

	for {
		ok, err := r.client.SetNX(ctx, redisKey, token, r.ttl).Result()
		if err != nil {
			return nil, fmt.Errorf("redis lock %s: %w", key, err)
		}
		if ok {
			break
		}
		if time.Now().After(deadline) {
			return nil, fmt.Errorf("%w: %s", ErrNotAcquired, key)
		}
		timer := time.NewTimer(r.pollWait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			releaseCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), time.Second)
			defer cancel()
			_ = releaseScript.Run(releaseCtx, r.client, []string{redisKey}, token).Err()
		})
	}, nil
}

// HealthCheck pings Redis.
func (r *Redis) HealthCheck(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

// Close releases the client.
func (r *Redis) Close() error {
	return r.client.Close()
}
