package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/ZanzyTHEbar/runway/docs"
	"github.com/ZanzyTHEbar/runway/internal/api"
	"github.com/ZanzyTHEbar/runway/internal/cache"
	"github.com/ZanzyTHEbar/runway/internal/config"
	"github.com/ZanzyTHEbar/runway/internal/database"
	"github.com/ZanzyTHEbar/runway/internal/errors"
	"github.com/ZanzyTHEbar/runway/internal/messaging"
	"github.com/ZanzyTHEbar/runway/internal/model"
	"github.com/ZanzyTHEbar/runway/internal/monitoring"
	"github.com/ZanzyTHEbar/runway/internal/privacy"
	"github.com/ZanzyTHEbar/runway/internal/ratelimit"
	"github.com/ZanzyTHEbar/runway/internal/scoring"
	"github.com/ZanzyTHEbar/runway/internal/security"
	"github.com/gin-gonic/gin"
)

const retentionInterval = 24 * time.Hour

func main() {
	cfg, err := config.Load(os.Getenv("CONFIG_FILE"))
	if err != nil {
		slog.Error("Invalid configuration", "error", err)
		os.Exit(1)
	}

	// Structured logging setup
	appLogger := monitoring.NewLogger(cfg.SlogLevel())
	slog.SetDefault(appLogger.Logger)

	gin.SetMode(cfg.GinMode)

	a, err := newApp(cfg, appLogger)
	if err != nil {
		// A model that cannot be loaded is fatal: never listen without one
		slog.Error("Failed to start service", "error", err)
		os.Exit(1)
	}

	ctx, stop := context.WithCancel(context.Background())
	defer stop()

	sampler := monitoring.NewRuntimeSampler(a.metrics, 15*time.Second)
	sampler.Start(ctx)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           a.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		slog.Info("Starting server", "port", cfg.Port, "model_version", a.scorer.Model().Version())
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("Server failed to start", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	slog.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("Server forced to shutdown", "error", err)
	}

	stop()
	sampler.Stop()
	a.Close()

	slog.Info("Server exited")
}

// app holds the wired service and everything that must be released on
// shutdown
type app struct {
	router  *gin.Engine
	scorer  *scoring.Scorer
	metrics *monitoring.Metrics

	db         *database.DB
	audit      *database.AuditService
	privacy    *privacy.Service
	redis      *ratelimit.RedisClient
	limiter    *ratelimit.RateLimiter
	cache      *cache.Cache
	subscriber *messaging.Subscriber
}

func newApp(cfg *config.Config, logger *monitoring.Logger) (*app, error) {
	m, err := model.Load(model.LoadOptions{
		ArtifactPath: cfg.ModelPath,
		DatasetPath:  cfg.DatasetPath,
		LabelColumn:  cfg.LabelColumn,
	})
	if err != nil {
		return nil, err
	}

	a := &app{
		scorer:  scoring.NewScorer(m),
		metrics: monitoring.NewMetrics(),
	}

	if cfg.AuditEnabled {
		db, err := database.NewDB(cfg.DBPath)
		if err != nil {
			// The audit log is optional; scoring still serves without it
			slog.Error("Failed to initialize audit database, auditing disabled", "path", cfg.DBPath, "error", err)
		} else {
			a.db = db
			repo := database.NewRepository(db)
			a.audit = database.NewAuditService(repo, a.metrics, database.DefaultQueueSize)
			a.privacy = privacy.NewService(repo, cfg.RetentionDays)
			a.privacy.Start(context.Background(), retentionInterval)
		}
	}

	a.redis, err = ratelimit.NewRedisClient(ratelimit.RedisOptions{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	if err != nil {
		slog.Warn("Redis unavailable, rate limiting in memory", "addr", cfg.RedisAddr, "error", err)
	}

	a.limiter = ratelimit.NewRateLimiter(a.redis, ratelimit.Config{PerMinute: cfg.RateLimitPerMin}, a.metrics)
	a.cache = cache.NewCache(cfg.CacheTTL)

	var nats api.StatusReporter
	if cfg.NatsURL != "" {
		var auditor messaging.Auditor
		if a.audit != nil {
			auditor = a.audit
		}
		handler := messaging.NewHandler(a.scorer, auditor, a.metrics, logger)

		sub, err := messaging.NewSubscriber(context.Background(), messaging.Options{
			URL:     cfg.NatsURL,
			Subject: cfg.NatsSubject,
			Queue:   cfg.NatsQueue,
		}, handler)
		if err == nil {
			err = sub.Start()
		}
		if err != nil {
			logger.APIErrorLogger(errors.NewNetworkError("NATS transport unavailable", err), "SUBSCRIBE", cfg.NatsSubject, "", 0)
			if sub != nil {
				sub.Drain()
			}
		} else {
			a.subscriber = sub
			nats = sub
		}
	}

	sec := security.NewMiddleware(security.Config{
		AllowedOrigins: cfg.AllowedOrigins,
		MaxBodyBytes:   cfg.RequestMaxBytes,
		EnableHSTS:     cfg.GinMode == gin.ReleaseMode,
	})

	a.router = api.NewRouter(api.Options{
		Scorer:   a.scorer,
		Audit:    a.audit,
		Privacy:  a.privacy,
		Limiter:  a.limiter,
		Cache:    a.cache,
		Security: sec,
		Redis:    a.redis,
		NATS:     nats,
		Metrics:  a.metrics,
		Logger:   logger,
	})

	return a, nil
}

// Close drains transports first so that in-flight predictions are still
// audited
func (a *app) Close() {
	if a.subscriber != nil {
		if err := a.subscriber.Drain(); err != nil {
			slog.Warn("NATS drain failed", "error", err)
		}
	}
	if a.privacy != nil {
		a.privacy.Stop()
	}
	if a.audit != nil {
		a.audit.Close()
	}
	if a.db != nil {
		errors.SafeClose(a.db, "audit database")
	}
	if a.limiter != nil {
		a.limiter.Close()
	}
	if a.cache != nil {
		a.cache.Close()
	}
	errors.SafeClose(a.redis, "redis")
}
