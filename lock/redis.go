package lock

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// ErrNotAcquired is returned when the lock could not be taken before the
// wait deadline.
var ErrNotAcquired = errors.New("lock not acquired")

// releaseScript deletes the key only if we still own it.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisConfig tunes the Redis locker.
type RedisConfig struct {
	Prefix  string        // key prefix, default "vacation:lock:"
	TTL     time.Duration // lease length, default 10s
	Retry   time.Duration // poll interval while waiting, default 25ms
	MaxWait time.Duration // give up after, default 5s
}

// Redis is a lease lock (SET NX PX + compare-and-delete) shared by every
// engine replica pointing at the same Redis.
type Redis struct {
	client *redis.Client
	cfg    RedisConfig
	logger *slog.Logger
}

func NewRedis(client *redis.Client, cfg RedisConfig, logger *slog.Logger) *Redis {
	if cfg.Prefix == "" {
		cfg.Prefix = "vacation:lock:"
	}
	if cfg.TTL <= 0 {
		cfg.TTL = 10 * time.Second
	}
	if cfg.Retry <= 0 {
		cfg.Retry = 25 * time.Millisecond
	}
	if cfg.MaxWait <= 0 {
		cfg.MaxWait = 5 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Redis{client: client, cfg: cfg, logger: logger}
}

// Lock polls until the key is acquired, MaxWait elapses or ctx is done.
func (r *Redis) Lock(ctx context.Context, key string) (func(), error) {
	k := r.cfg.Prefix + key
	token := uuid.NewString()
	deadline := time.Now().Add(r.cfg.MaxWait)

	for {
		ok, err := r.client.SetNX(ctx, k, token, r.cfg.TTL).Result()
		if err != nil {
			return nil, fmt.Errorf("redis lock %s: %w", key, err)
		}
		if ok {
			return r.unlockFunc(k, token), nil
		}
		if time.Now().After(deadline) {
			return nil, fmt.Errorf("%w: %s after %s", ErrNotAcquired, key, r.cfg.MaxWait)
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(r.cfg.Retry):
		}
	}
}

func (r *Redis) unlockFunc(k, token string) func() {
	return func() {
		// The caller's context may already be cancelled; release anyway.
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := releaseScript.Run(ctx, r.client, []string{k}, token).Err(); err != nil {
			r.logger.Warn("redis unlock failed", "key", k, "error", err)
		}
	}
}

// Health checks if the Redis connection is healthy.
func (r *Redis) Health(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}
