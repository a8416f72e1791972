package ratelimit

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisOptions locate the shared limiter store
type RedisOptions struct {
	Addr     string
	Password string
	DB       int
}

// RedisClient wraps the Redis client. A disabled client makes the limiter
// fall back to in-memory buckets.
type RedisClient struct {
	client  *redis.Client
	enabled bool
	addr    string
}

// NewRedisClient connects to Redis. An empty address yields a disabled
// client and no error; an unreachable one yields a disabled client and the
// ping error so callers can log it and continue.
func NewRedisClient(opts RedisOptions) (*RedisClient, error) {
	if opts.Addr == "" {
		slog.Info("Redis address not configured, rate limiting will use in-memory buckets")
		return &RedisClient{}, nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:         opts.Addr,
		Password:     opts.Password,
		DB:           opts.DB,
		MaxRetries:   1,
		DialTimeout:  2 * time.Second,
		ReadTimeout:  500 * time.Millisecond,
		WriteTimeout: 500 * time.Millisecond,
		PoolSize:     10,
		MinIdleConns: 2,
		PoolTimeout:  time.Second,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return &RedisClient{addr: opts.Addr}, fmt.Errorf("redis ping %s failed: %w", opts.Addr, err)
	}

	slog.Info("Redis client connected", "addr", opts.Addr, "db", opts.DB)

	return &RedisClient{client: client, enabled: true, addr: opts.Addr}, nil
}

func (r *RedisClient) Client() *redis.Client {
	return r.client
}

func (r *RedisClient) IsEnabled() bool {
	return r != nil && r.enabled
}

// Status reports the backend for health checks: "disabled", "connected"
// or "unreachable"
func (r *RedisClient) Status(ctx context.Context) string {
	switch {
	case r == nil || r.addr == "":
		return "disabled"
	case !r.enabled:
		return "unreachable"
	case r.client.Ping(ctx).Err() != nil:
		return "unreachable"
	}
	return "connected"
}

func (r *RedisClient) Close() error {
	if r.IsEnabled() && r.client != nil {
		slog.Info("Closing Redis client connection")
		return r.client.Close()
	}
	return nil
}

// PoolStats returns connection pool statistics
func (r *RedisClient) PoolStats() map[string]interface{} {
	if !r.IsEnabled() {
		return map[string]interface{}{"enabled": false}
	}

	stats := r.client.PoolStats()
	return map[string]interface{}{
		"enabled":     true,
		"addr":        r.addr,
		"hits":        stats.Hits,
		"misses":      stats.Misses,
		"timeouts":    stats.Timeouts,
		"total_conns": stats.TotalConns,
		"idle_conns":  stats.IdleConns,
	}
}
