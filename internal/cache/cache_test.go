package cache

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ZanzyTHEbar/runway/internal/monitoring"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKey(t *testing.T) {
	a := Key("POST", "/predict", "", []byte(`{"a":1}`))
	assert.Len(t, a, 32)
	assert.Equal(t, a, Key("POST", "/predict", "", []byte(`{"a":1}`)))
	assert.NotEqual(t, a, Key("POST", "/predict", "detail=true", []byte(`{"a":1}`)))
	assert.NotEqual(t, a, Key("POST", "/predict/profile", "", []byte(`{"a":1}`)))
	assert.NotEqual(t, a, Key("POST", "/predict", "", []byte(`{"a":2}`)))
}

func TestCacheTTL(t *testing.T) {
	c := NewCache(20 * time.Millisecond)
	defer c.Close()

	require.True(t, c.Set("k", []byte("v"), "text/plain"))
	item, ok := c.Get("k")
	require.True(t, ok)
	assert.Equal(t, []byte("v"), item.Data)

	time.Sleep(30 * time.Millisecond)
	_, ok = c.Get("k")
	assert.False(t, ok)
	assert.Equal(t, 1, c.purgeExpired())
	assert.Equal(t, 0, c.Size())
}

func TestCacheCapacity(t *testing.T) {
	c := NewCache(time.Minute)
	defer c.Close()
	c.maxItems = 2

	assert.True(t, c.Set("a", nil, ""))
	assert.True(t, c.Set("b", nil, ""))
	assert.False(t, c.Set("c", nil, ""))
	assert.True(t, c.Set("a", []byte("again"), ""), "overwrite is allowed when full")
	assert.Equal(t, 2, c.Stats()["total_items"])

	c.Clear()
	assert.Equal(t, 0, c.Size())
}

func TestDisabledCache(t *testing.T) {
	c := NewCache(0)
	defer c.Close()

	assert.False(t, c.Enabled())
	assert.False(t, c.Set("k", []byte("v"), ""))
	assert.Equal(t, false, c.Stats()["enabled"])
}

func newRouter(c *Cache, metrics *monitoring.Metrics, calls *int64, status int) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.POST("/predict", c.Middleware(metrics), func(ctx *gin.Context) {
		n := atomic.AddInt64(calls, 1)
		ctx.JSON(status, gin.H{"call": n})
	})
	return r
}

func post(r *gin.Engine, body string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/predict", strings.NewReader(body)))
	return w
}

func TestMiddlewareReplaysSuccess(t *testing.T) {
	c := NewCache(time.Minute)
	defer c.Close()
	metrics := monitoring.NewMetrics()
	var calls int64
	r := newRouter(c, metrics, &calls, http.StatusOK)

	first := post(r, `{"a":1}`)
	assert.Equal(t, "MISS", first.Header().Get(CacheHeader))

	second := post(r, `{"a":1}`)
	assert.Equal(t, "HIT", second.Header().Get(CacheHeader))
	assert.Equal(t, first.Body.String(), second.Body.String())
	assert.Contains(t, second.Header().Get("Content-Type"), "application/json")

	post(r, `{"a":2}`)

	assert.Equal(t, int64(2), calls)
	assert.Equal(t, int64(1), metrics.CacheHits)
	assert.Equal(t, int64(2), metrics.CacheMisses)
}

func TestMiddlewareSkipsErrors(t *testing.T) {
	c := NewCache(time.Minute)
	defer c.Close()
	var calls int64
	r := newRouter(c, nil, &calls, http.StatusBadRequest)

	for i := 0; i < 3; i++ {
		w := post(r, `{"bad":true}`)
		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Equal(t, fmt.Sprintf(`{"call":%d}`, i+1), w.Body.String())
	}
	assert.Equal(t, 0, c.Size())
}

func TestMiddlewareDisabledPassesThrough(t *testing.T) {
	c := NewCache(0)
	var calls int64
	r := newRouter(c, nil, &calls, http.StatusOK)

	post(r, `{}`)
	w := post(r, `{}`)
	assert.Empty(t, w.Header().Get(CacheHeader))
	assert.Equal(t, int64(2), calls)
}
