// Package lock provides a Redis-backed in-flight guard so that several
// console replicas share the same single-slot tokens.
package lock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const releaseTimeout = 2 * time.Second

// DefaultPrefix namespaces the guard keys shared by payoutd and payoutctl.
const DefaultPrefix = "payouts:inflight:"

// ErrEmptyKey is returned when an empty guard key is provided.
var ErrEmptyKey = errors.New("in-flight key cannot be empty")

// releaseScript deletes the key only if it still holds our token, so an
// expired holder can never release a token taken over by someone else.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisGuard implements port.InFlightGuard on top of SET NX PX.
// The TTL bounds how long a crashed holder can block an action.
type RedisGuard struct {
	client redis.UniversalClient
	prefix string
	ttl    time.Duration
	logger *zap.Logger
}

// NewRedisGuard creates a guard storing tokens under prefix.
func NewRedisGuard(client redis.UniversalClient, prefix string, ttl time.Duration, logger *zap.Logger) *RedisGuard {
	if ttl <= 0 {
		ttl = time.Minute
	}
	return &RedisGuard{client: client, prefix: prefix, ttl: ttl, logger: logger}
}

// NewClient parses a redis:// URL and pings the server.
func NewClient(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return client, nil
}

// TryAcquire takes the token for key without waiting.
func (g *RedisGuard) TryAcquire(ctx context.Context, key string) (func(), bool, error) {
	if key == "" {
		return nil, false, ErrEmptyKey
	}
	fullKey := g.prefix + key
	token := uuid.NewString()

	ok, err := g.client.SetNX(ctx, fullKey, token, g.ttl).Result()
	if err != nil {
		return nil, false, fmt.Errorf("acquire in-flight token %q: %w", key, err)
	}
	if !ok {
		return nil, false, nil
	}

	released := make(chan struct{})
	return func() {
		select {
		case <-released:
			return
		default:
			close(released)
		}
		// The caller's context may already be cancelled here.
		rctx, cancel := context.WithTimeout(context.Background(), releaseTimeout)
		defer cancel()
		if err := releaseScript.Run(rctx, g.client, []string{fullKey}, token).Err(); err != nil {
			g.logger.Warn("failed to release in-flight token",
				zap.String("key", key),
				zap.Error(err),
			)
		}
	}, true, nil
}
