package ratelimit

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ZanzyTHEbar/runway/internal/errors"
	"github.com/ZanzyTHEbar/runway/internal/monitoring"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newFallbackLimiter(t *testing.T, perMinute int) (*RateLimiter, *monitoring.Metrics) {
	t.Helper()
	metrics := monitoring.NewMetrics()
	rl := NewRateLimiter(&RedisClient{enabled: false}, Config{PerMinute: perMinute, IdleTTL: time.Hour}, metrics)
	t.Cleanup(rl.Close)
	return rl, metrics
}

func TestRateLimiterFallbackMode(t *testing.T) {
	rl, metrics := newFallbackLimiter(t, 5)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		result, err := rl.AllowIP(ctx, "10.0.0.1")
		require.NoError(t, err)
		assert.True(t, result.Allowed, "request %d should be allowed", i+1)
		assert.Equal(t, 5, result.Limit)
		assert.Equal(t, 4-i, result.Remaining)
	}

	result, err := rl.AllowIP(ctx, "10.0.0.1")
	require.NoError(t, err)
	assert.False(t, result.Allowed, "6th request should be blocked")
	assert.Equal(t, 0, result.Remaining)
	assert.Greater(t, result.RetryAfter, time.Duration(0))
	assert.LessOrEqual(t, result.RetryAfter, 12*time.Second)

	assert.Equal(t, int64(6), atomic.LoadInt64(&metrics.RateLimitFallbackCount))
}

func TestRateLimiterKeysAreIndependent(t *testing.T) {
	rl, _ := newFallbackLimiter(t, 2)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		r, err := rl.AllowIP(ctx, "a")
		require.NoError(t, err)
		assert.True(t, r.Allowed)
	}
	r, err := rl.AllowIP(ctx, "a")
	require.NoError(t, err)
	assert.False(t, r.Allowed)

	r, err = rl.AllowIP(ctx, "b")
	require.NoError(t, err)
	assert.True(t, r.Allowed)
}

func TestRateLimiterConcurrency(t *testing.T) {
	rl, _ := newFallbackLimiter(t, 50)
	ctx := context.Background()

	var allowed int64
	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			r, err := rl.AllowIP(ctx, "shared")
			if assert.NoError(t, err) && r.Allowed {
				atomic.AddInt64(&allowed, 1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int64(50), allowed)
}

func TestRateLimiterContextCancellation(t *testing.T) {
	rl, _ := newFallbackLimiter(t, 5)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := rl.AllowIP(ctx, "x")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestRateLimiterEviction(t *testing.T) {
	rl, _ := newFallbackLimiter(t, 5)
	ctx := context.Background()

	_, _ = rl.AllowIP(ctx, "old")
	_, _ = rl.AllowIP(ctx, "new")

	assert.Equal(t, 0, rl.evictBefore(time.Now().Add(-time.Minute)))
	assert.Equal(t, 2, rl.evictBefore(time.Now().Add(time.Minute)))
	assert.Equal(t, 0, rl.GetStats()["in_memory_buckets"])
}

func TestRateLimiterDefaults(t *testing.T) {
	rl := NewRateLimiter(&RedisClient{}, Config{}, nil)
	defer rl.Close()
	rl.Close()

	assert.Equal(t, 120, rl.Limit())
	stats := rl.GetStats()
	assert.Equal(t, false, stats["redis_enabled"])
	assert.Equal(t, "memory", rl.backend())
}

func TestRateLimiterBreakerSkipsFailingRedis(t *testing.T) {
	// Nothing listens on port 1, so every Redis call fails fast
	client := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		MaxRetries:  -1,
		DialTimeout: 50 * time.Millisecond,
	})
	t.Cleanup(func() { client.Close() })

	metrics := monitoring.NewMetrics()
	rl := NewRateLimiter(&RedisClient{client: client, enabled: true}, Config{PerMinute: 100, IdleTTL: time.Hour}, metrics)
	t.Cleanup(rl.Close)

	for i := 0; i < 6; i++ {
		result, err := rl.AllowIP(context.Background(), "10.0.0.1")
		require.NoError(t, err)
		assert.True(t, result.Allowed)
	}

	// Three failures open the breaker; later calls go straight to memory
	assert.Equal(t, int64(3), atomic.LoadInt64(&metrics.RateLimitRedisErrors))
	assert.Equal(t, int64(6), atomic.LoadInt64(&metrics.RateLimitFallbackCount))
	assert.Equal(t, "open", rl.GetStats()["redis_breaker"].(map[string]interface{})["state"])
}

func TestRedisClientDisabled(t *testing.T) {
	client, err := NewRedisClient(RedisOptions{})
	require.NoError(t, err)
	assert.False(t, client.IsEnabled())
	assert.Equal(t, "disabled", client.Status(context.Background()))
	assert.NoError(t, client.Close())

	unreachable := &RedisClient{addr: "127.0.0.1:1"}
	assert.Equal(t, "unreachable", unreachable.Status(context.Background()))
}

func TestIPRateLimitMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	rl, metrics := newFallbackLimiter(t, 2)

	r := gin.New()
	r.Use(errors.ErrorHandler())
	r.POST("/predict", rl.IPRateLimitMiddleware(), func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"ok": true})
	})

	do := func() *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/predict", nil)
		req.RemoteAddr = "192.0.2.7:5555"
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		return w
	}

	w := do()
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "2", w.Header().Get("X-RateLimit-Limit"))
	assert.Equal(t, "1", w.Header().Get("X-RateLimit-Remaining"))
	assert.NotEmpty(t, w.Header().Get("X-RateLimit-Reset"))

	assert.Equal(t, http.StatusOK, do().Code)

	w = do()
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	retry, err := strconv.Atoi(w.Header().Get("Retry-After"))
	require.NoError(t, err)
	assert.GreaterOrEqual(t, retry, 1)

	var body errors.Response
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "RATE_LIMIT_EXCEEDED", body.Code)
	assert.Equal(t, errors.CategoryRateLimit, body.Category)

	assert.Equal(t, int64(1), atomic.LoadInt64(&metrics.RateLimitIPBlocks))
}

func TestHandleStatus(t *testing.T) {
	gin.SetMode(gin.TestMode)
	rl, _ := newFallbackLimiter(t, 7)

	r := gin.New()
	r.GET("/ratelimit/status", rl.HandleStatus())

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ratelimit/status", nil))
	require.Equal(t, http.StatusOK, w.Code)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, float64(7), body["per_minute"])
	assert.Equal(t, "memory", body["backend"])
}
