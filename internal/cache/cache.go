package cache

import (
	"bytes"
	"crypto/md5"
	"encoding/hex"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/ZanzyTHEbar/runway/internal/monitoring"
	"github.com/gin-gonic/gin"
)

// DefaultMaxItems bounds the number of cached responses
const DefaultMaxItems = 10000

// CacheHeader is set on every response that passes through the middleware
const CacheHeader = "X-Cache"

type CacheItem struct {
	Data        []byte
	ContentType string
	ExpiresAt   time.Time
}

func (c *CacheItem) IsExpired(now time.Time) bool {
	return now.After(c.ExpiresAt)
}

// Cache is a thread-safe TTL cache of successful prediction responses. A
// zero TTL disables it.
type Cache struct {
	mu       sync.RWMutex
	items    map[string]*CacheItem
	ttl      time.Duration
	maxItems int

	stop      chan struct{}
	closeOnce sync.Once
}

func NewCache(ttl time.Duration) *Cache {
	c := &Cache{
		items:    make(map[string]*CacheItem),
		ttl:      ttl,
		maxItems: DefaultMaxItems,
		stop:     make(chan struct{}),
	}

	if c.Enabled() {
		go c.cleanup()
	}

	return c
}

func (c *Cache) Enabled() bool { return c.ttl > 0 }

func (c *Cache) cleanup() {
	interval := c.ttl
	if interval > 5*time.Minute {
		interval = 5 * time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.purgeExpired()
		case <-c.stop:
			return
		}
	}
}

func (c *Cache) purgeExpired() int {
	now := time.Now()
	c.mu.Lock()
	defer c.mu.Unlock()

	purged := 0
	for key, item := range c.items {
		if item.IsExpired(now) {
			delete(c.items, key)
			purged++
		}
	}
	return purged
}

// Close stops the cleanup goroutine
func (c *Cache) Close() {
	c.closeOnce.Do(func() { close(c.stop) })
}

// Key derives the cache key of a request from its route and body
func Key(method, path, rawQuery string, body []byte) string {
	h := md5.New()
	io.WriteString(h, method+" "+path+"?"+rawQuery+"\n")
	h.Write(body)
	return hex.EncodeToString(h.Sum(nil))
}

func (c *Cache) Get(key string) (*CacheItem, bool) {
	c.mu.RLock()
	item, exists := c.items[key]
	c.mu.RUnlock()

	if !exists || item.IsExpired(time.Now()) {
		return nil, false
	}
	return item, true
}

// Set stores data. When the cache is full the entry is dropped.
func (c *Cache) Set(key string, data []byte, contentType string) bool {
	if !c.Enabled() {
		return false
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.items[key]; !exists && len(c.items) >= c.maxItems {
		return false
	}

	c.items[key] = &CacheItem{
		Data:        data,
		ContentType: contentType,
		ExpiresAt:   time.Now().Add(c.ttl),
	}
	return true
}

func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.items = make(map[string]*CacheItem)
}

func (c *Cache) Size() int {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return len(c.items)
}

// Stats returns cache statistics
func (c *Cache) Stats() map[string]interface{} {
	now := time.Now()
	c.mu.RLock()
	defer c.mu.RUnlock()

	totalItems := len(c.items)
	expiredItems := 0
	for _, item := range c.items {
		if item.IsExpired(now) {
			expiredItems++
		}
	}

	return map[string]interface{}{
		"enabled":       c.Enabled(),
		"total_items":   totalItems,
		"expired_items": expiredItems,
		"active_items":  totalItems - expiredItems,
		"max_items":     c.maxItems,
		"ttl_seconds":   c.ttl.Seconds(),
	}
}

// Middleware replays cached 200 responses for identical POST bodies.
// Handlers can detect a replay with IsHit; a replay never reaches them.
func (c *Cache) Middleware(metrics *monitoring.Metrics) gin.HandlerFunc {
	return func(ctx *gin.Context) {
		if !c.Enabled() || ctx.Request.Method != http.MethodPost {
			ctx.Next()
			return
		}

		body, err := io.ReadAll(ctx.Request.Body)
		if err != nil {
			// The handler sees the same read error
			ctx.Request.Body = io.NopCloser(io.MultiReader(bytes.NewReader(body), errReader{err}))
			ctx.Next()
			return
		}
		ctx.Request.Body = io.NopCloser(bytes.NewReader(body))

		key := Key(ctx.Request.Method, ctx.Request.URL.Path, ctx.Request.URL.RawQuery, body)

		if item, found := c.Get(key); found {
			slog.Debug("Cache hit", "key", key[:8])
			if metrics != nil {
				metrics.IncrementCacheHit()
			}
			ctx.Header(CacheHeader, "HIT")
			ctx.Data(http.StatusOK, item.ContentType, item.Data)
			ctx.Abort()
			return
		}

		if metrics != nil {
			metrics.IncrementCacheMiss()
		}
		ctx.Header(CacheHeader, "MISS")

		wrapper := &responseWriter{ResponseWriter: ctx.Writer, body: &bytes.Buffer{}}
		ctx.Writer = wrapper
		ctx.Next()

		if wrapper.Status() == http.StatusOK {
			c.Set(key, wrapper.body.Bytes(), wrapper.Header().Get("Content-Type"))
		}
	}
}

// responseWriter captures the response body
type responseWriter struct {
	gin.ResponseWriter
	body *bytes.Buffer
}

func (w *responseWriter) Write(data []byte) (int, error) {
	w.body.Write(data)
	return w.ResponseWriter.Write(data)
}

func (w *responseWriter) WriteString(s string) (int, error) {
	w.body.WriteString(s)
	return w.ResponseWriter.WriteString(s)
}

type errReader struct{ err error }

func (r errReader) Read([]byte) (int, error) { return 0, r.err }
