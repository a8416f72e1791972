package security

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/ZanzyTHEbar/runway/internal/errors"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

type Config struct {
	AllowedOrigins []string
	MaxBodyBytes   int64
	RequestTimeout time.Duration
	EnableHSTS     bool
}

// DefaultConfig allows the local form front ends
func DefaultConfig() Config {
	return Config{
		AllowedOrigins: []string{"http://localhost:8501", "http://127.0.0.1:8501"},
		MaxBodyBytes:   64 << 10,
		RequestTimeout: 10 * time.Second,
	}
}

// Middleware bundles the request hardening applied in front of every route
type Middleware struct {
	config Config
}

func NewMiddleware(config Config) *Middleware {
	defaults := DefaultConfig()
	if config.MaxBodyBytes <= 0 {
		config.MaxBodyBytes = defaults.MaxBodyBytes
	}
	if config.RequestTimeout <= 0 {
		config.RequestTimeout = defaults.RequestTimeout
	}
	return &Middleware{config: config}
}

// BodyLimit caps request bodies. Oversized bodies fail at read time with
// *http.MaxBytesError.
func (sm *Middleware) BodyLimit() gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.ContentLength > sm.config.MaxBodyBytes {
			errors.Respond(c, errors.NewPayloadTooLargeError(sm.config.MaxBodyBytes))
			return
		}
		if c.Request.Body != nil {
			c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, sm.config.MaxBodyBytes)
		}
		c.Next()
	}
}

// RequireJSON rejects request bodies that declare a non-JSON content type
func (sm *Middleware) RequireJSON() gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.Method != http.MethodPost {
			c.Next()
			return
		}

		contentType := strings.ToLower(c.GetHeader("Content-Type"))
		if contentType != "" && !strings.HasPrefix(contentType, "application/json") {
			errors.Respond(c, errors.NewUnsupportedMediaTypeError(contentType))
			return
		}

		c.Next()
	}
}

// RequestTimeout bounds the request context
func (sm *Middleware) RequestTimeout() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), sm.config.RequestTimeout)
		defer cancel()

		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

// CORS allows the configured browser front ends. An origin of "*" allows
// any origin.
func (sm *Middleware) CORS() gin.HandlerFunc {
	cfg := cors.Config{
		AllowMethods:  []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowHeaders:  []string{"Origin", "Content-Type", "Accept", "X-Request-ID"},
		ExposeHeaders: []string{"X-Request-ID", "X-Prediction-ID", "X-RateLimit-Limit", "X-RateLimit-Remaining", "X-RateLimit-Reset", "Retry-After"},
		MaxAge:        12 * time.Hour,
	}

	for _, o := range sm.config.AllowedOrigins {
		if o == "*" {
			cfg.AllowAllOrigins = true
			return cors.New(cfg)
		}
	}
	cfg.AllowOrigins = sm.config.AllowedOrigins
	if len(cfg.AllowOrigins) == 0 {
		cfg.AllowOrigins = DefaultConfig().AllowedOrigins
	}

	return cors.New(cfg)
}
