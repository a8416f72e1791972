package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	// HTTP Configuration
	Port            string        `yaml:"port"`
	GinMode         string        `yaml:"gin_mode"`
	LogLevel        string        `yaml:"log_level"`
	AllowedOrigins  []string      `yaml:"allowed_origins"`
	RequestMaxBytes int64         `yaml:"request_max_bytes"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`

	// Model Configuration
	ModelPath   string `yaml:"model_path"`
	DatasetPath string `yaml:"dataset_path"`
	// LabelColumn overrides the artifact's label; empty falls back to the
	// artifact and then to "failed"
	LabelColumn string `yaml:"label_column"`

	// Audit Configuration
	DataDir      string `yaml:"data_dir"`
	DBPath       string `yaml:"db_path"`
	AuditEnabled bool   `yaml:"audit_enabled"`
	// RetentionDays prunes audited predictions older than this; 0 keeps them
	RetentionDays int `yaml:"retention_days"`

	// Rate limiting and caching
	RedisAddr       string        `yaml:"redis_addr"`
	RedisPassword   string        `yaml:"redis_password"`
	RedisDB         int           `yaml:"redis_db"`
	RateLimitPerMin int           `yaml:"rate_limit_per_min"`
	CacheTTL        time.Duration `yaml:"cache_ttl"`

	// NATS Configuration
	NatsURL     string `yaml:"nats_url"`
	NatsSubject string `yaml:"nats_subject"`
	NatsQueue   string `yaml:"nats_queue"`
}

// Default returns the configuration used when nothing is overridden
func Default() *Config {
	return &Config{
		Port:            "8000",
		GinMode:         "release",
		LogLevel:        "info",
		AllowedOrigins:  []string{"http://localhost:8501", "http://127.0.0.1:8501"},
		RequestMaxBytes: 64 << 10,
		ShutdownTimeout: 30 * time.Second,
		ModelPath:       "data/model/runway_model.json",
		DatasetPath:     "data/processed/startup_processed.csv",
		DataDir:         "./data",
		AuditEnabled:    true,
		RetentionDays:   90,
		RateLimitPerMin: 120,
		CacheTTL:        5 * time.Minute,
		NatsSubject:     "runway.predict",
		NatsQueue:       "runway-scorers",
	}
}

// Load layers defaults, the YAML file at path (if any) and environment
// overrides, then validates the result.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
		slog.Info("Configuration file loaded", "file", path)
	}

	cfg.applyEnv()

	if cfg.DBPath == "" {
		cfg.DBPath = filepath.Join(cfg.DataDir, "runway.db")
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) applyEnv() {
	c.Port = getEnv("PORT", c.Port)
	c.GinMode = getEnv("GIN_MODE", c.GinMode)
	c.LogLevel = getEnv("LOG_LEVEL", c.LogLevel)
	if origins := os.Getenv("ALLOWED_ORIGINS"); origins != "" {
		c.AllowedOrigins = splitList(origins)
	}
	c.RequestMaxBytes = int64(getEnvInt("REQUEST_MAX_BYTES", int(c.RequestMaxBytes)))
	c.ShutdownTimeout = getEnvDuration("SHUTDOWN_TIMEOUT", c.ShutdownTimeout)

	c.ModelPath = getEnv("MODEL_PATH", c.ModelPath)
	c.DatasetPath = getEnv("DATASET_PATH", c.DatasetPath)
	c.LabelColumn = getEnv("LABEL_COLUMN", c.LabelColumn)

	c.DataDir = getEnv("DATA_DIR", c.DataDir)
	c.DBPath = getEnv("DB_PATH", c.DBPath)
	c.AuditEnabled = getEnvBool("AUDIT_ENABLED", c.AuditEnabled)
	c.RetentionDays = getEnvInt("AUDIT_RETENTION_DAYS", c.RetentionDays)

	c.RedisAddr = getEnv("REDIS_ADDR", c.RedisAddr)
	c.RedisPassword = getEnv("REDIS_PASSWORD", c.RedisPassword)
	c.RedisDB = getEnvInt("REDIS_DB", c.RedisDB)
	c.RateLimitPerMin = getEnvInt("RATE_LIMIT_PER_MIN", c.RateLimitPerMin)
	c.CacheTTL = getEnvDuration("CACHE_TTL", c.CacheTTL)

	c.NatsURL = getEnv("NATS_URL", c.NatsURL)
	c.NatsSubject = getEnv("NATS_SUBJECT", c.NatsSubject)
	c.NatsQueue = getEnv("NATS_QUEUE", c.NatsQueue)
}

// Validate rejects configurations the service cannot start with
func (c *Config) Validate() error {
	if c.ModelPath == "" {
		return fmt.Errorf("MODEL_PATH must be set")
	}
	if c.Port == "" {
		return fmt.Errorf("PORT must be set")
	}
	if c.RateLimitPerMin <= 0 {
		return fmt.Errorf("RATE_LIMIT_PER_MIN must be positive, got %d", c.RateLimitPerMin)
	}
	if c.RequestMaxBytes <= 0 {
		return fmt.Errorf("REQUEST_MAX_BYTES must be positive, got %d", c.RequestMaxBytes)
	}
	if c.RetentionDays < 0 {
		return fmt.Errorf("AUDIT_RETENTION_DAYS must not be negative, got %d", c.RetentionDays)
	}
	if c.CacheTTL < 0 {
		return fmt.Errorf("CACHE_TTL must not be negative")
	}
	if c.ShutdownTimeout <= 0 {
		return fmt.Errorf("SHUTDOWN_TIMEOUT must be positive")
	}
	if c.NatsURL != "" && c.NatsSubject == "" {
		return fmt.Errorf("NATS_SUBJECT must be set when NATS_URL is configured")
	}
	if _, err := ParseLevel(c.LogLevel); err != nil {
		return err
	}
	return nil
}

// SlogLevel returns the configured log level
func (c *Config) SlogLevel() slog.Level {
	level, _ := ParseLevel(c.LogLevel)
	return level
}

// ParseLevel maps debug|info|warn|error to a slog level
func ParseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	}
	return slog.LevelInfo, fmt.Errorf("unknown LOG_LEVEL %q", s)
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			return i
		}
		slog.Warn("Ignoring invalid integer setting", "key", key, "value", val)
	}
	return defaultVal
}

func getEnvBool(key string, defaultVal bool) bool {
	if val := os.Getenv(key); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			return b
		}
		slog.Warn("Ignoring invalid boolean setting", "key", key, "value", val)
	}
	return defaultVal
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			return d
		}
		slog.Warn("Ignoring invalid duration setting", "key", key, "value", val)
	}
	return defaultVal
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
