// Package api is the HTTP transport for the scoring service.
package api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/ZanzyTHEbar/runway/internal/cache"
	"github.com/ZanzyTHEbar/runway/internal/database"
	"github.com/ZanzyTHEbar/runway/internal/errors"
	"github.com/ZanzyTHEbar/runway/internal/middleware"
	"github.com/ZanzyTHEbar/runway/internal/monitoring"
	"github.com/ZanzyTHEbar/runway/internal/privacy"
	"github.com/ZanzyTHEbar/runway/internal/ratelimit"
	"github.com/ZanzyTHEbar/runway/internal/scoring"
	"github.com/ZanzyTHEbar/runway/internal/security"
	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
)

// PredictionIDHeader carries the audit id of a fresh prediction
const PredictionIDHeader = "X-Prediction-ID"

// StatusReporter is implemented by optional backends shown on /health
type StatusReporter interface {
	Status() string
}

// Options wires the router. Audit, Redis and NATS may be nil.
type Options struct {
	Scorer   *scoring.Scorer
	Audit    *database.AuditService
	Privacy  *privacy.Service
	Limiter  *ratelimit.RateLimiter
	Cache    *cache.Cache
	Security *security.Middleware
	Redis    *ratelimit.RedisClient
	NATS     StatusReporter
	Metrics  *monitoring.Metrics
	Logger   *monitoring.Logger
	Version  string
}

type Server struct {
	scorer  *scoring.Scorer
	audit   *database.AuditService
	privacy *privacy.Service
	limiter *ratelimit.RateLimiter
	cache   *cache.Cache
	redis   *ratelimit.RedisClient
	nats    StatusReporter
	metrics *monitoring.Metrics
	logger  *monitoring.Logger
	version string
	started time.Time

	compression *middleware.CompressionMiddleware
}

// NewRouter builds the gin engine with every route and middleware
func NewRouter(opts Options) *gin.Engine {
	s := &Server{
		scorer:  opts.Scorer,
		audit:   opts.Audit,
		privacy: opts.Privacy,
		limiter: opts.Limiter,
		cache:   opts.Cache,
		redis:   opts.Redis,
		nats:    opts.NATS,
		metrics: opts.Metrics,
		logger:  opts.Logger,
		version: opts.Version,
		started: time.Now(),

		compression: middleware.NewCompressionMiddleware(middleware.DefaultCompressionConfig()),
	}
	if s.version == "" {
		s.version = "1.0.0"
	}
	if s.metrics == nil {
		s.metrics = monitoring.NewMetrics()
	}
	if s.logger == nil {
		s.logger = monitoring.NewLogger(slog.LevelInfo)
	}

	sec := opts.Security
	if sec == nil {
		sec = security.NewMiddleware(security.DefaultConfig())
	}

	r := gin.New()

	r.Use(errors.RecoveryHandler())
	r.Use(monitoring.MonitoringMiddleware(s.metrics, s.logger))
	r.Use(monitoring.SecurityMonitoringMiddleware(s.logger))
	r.Use(errors.ErrorHandler())
	r.Use(sec.SecurityHeaders())
	r.Use(sec.RequestTimeout())
	r.Use(sec.BodyLimit())
	r.Use(sec.CORS())

	gz := s.compression.Gzip()

	r.GET("/", s.handleRoot)
	r.GET("/health", s.handleHealth)
	r.GET("/features", gz, s.handleFeatures)
	r.GET("/model", gz, s.handleModel)

	predict := r.Group("/predict")
	predict.Use(sec.RequireJSON())
	if s.limiter != nil {
		predict.Use(s.limiter.IPRateLimitMiddleware())
	}
	if s.cache != nil {
		predict.Use(s.cache.Middleware(s.metrics))
	}
	predict.POST("", s.handlePredict)
	predict.POST("/profile", s.handlePredictProfile)

	r.GET("/predictions", gz, s.handleListPredictions)
	r.GET("/predictions/stats", s.handlePredictionStats)
	r.GET("/predictions/:id", gz, s.handleGetPrediction)

	r.GET("/privacy/policy", s.handlePrivacyPolicy)

	r.GET("/metrics", gz, s.handleMetrics)
	r.GET("/cache/stats", s.handleCacheStats)
	if s.limiter != nil {
		r.GET("/ratelimit/status", s.limiter.HandleStatus())
	}

	r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	r.NoRoute(func(c *gin.Context) {
		errors.Respond(c, errors.NewNotFoundError("route", c.Request.URL.Path))
	})

	return r
}

func (s *Server) handleRoot(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"service": "RunwayAI",
		"message": "Startup failure risk scoring",
		"docs":    "/swagger/index.html",
	})
}

func (s *Server) handleMetrics(c *gin.Context) {
	stats := s.metrics.GetStats()
	stats["compression"] = s.compression.GetStats()
	c.JSON(http.StatusOK, stats)
}

func (s *Server) handleCacheStats(c *gin.Context) {
	if s.cache == nil {
		c.JSON(http.StatusOK, gin.H{"enabled": false})
		return
	}
	c.JSON(http.StatusOK, s.cache.Stats())
}
