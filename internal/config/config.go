package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"time"
)

type Config struct {
	Port string

	// Auth. Empty disables API authentication.
	APIKey string

	// Docs tree and renderer settings file.
	DocsRoot     string
	SettingsPath string

	// Trust store backend: memory, sqlite or redis.
	TrustBackend  string
	TrustDBPath   string
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	// Render cache
	CacheSize int
	CacheTTL  time.Duration

	// Export worker pool
	ExportWorkerCount    int
	ExportQueueSize      int
	ExportJobTTL         time.Duration
	MaxConcurrentRenders int

	// Upload limits
	MaxUploadBytes int64

	// PDF
	PDFFallbackPdftotext bool

	// Logging
	LogLevel string
}

func Load() Config {
	cfg := Config{
		Port: envOr("PORT", "8090"),

		APIKey: os.Getenv("DOCRENDER_API_KEY"),

		DocsRoot:     envOr("DOCS_ROOT", "./docs"),
		SettingsPath: envOr("SETTINGS_PATH", "docrender.settings.yaml"),

		TrustBackend:  envOr("TRUST_BACKEND", "sqlite"),
		TrustDBPath:   envOr("TRUST_DB_PATH", "docrender.trust.db"),
		RedisAddr:     envOr("REDIS_ADDR", "localhost:6379"),
		RedisPassword: os.Getenv("REDIS_PASSWORD"),
		RedisDB:       envInt("REDIS_DB", 0),

		CacheSize: envInt("CACHE_SIZE", 256),
		CacheTTL:  envDuration("CACHE_TTL", 5*time.Minute),

		ExportWorkerCount:    envInt("EXPORT_WORKER_COUNT", 4),
		ExportQueueSize:      envInt("EXPORT_QUEUE_SIZE", 100),
		ExportJobTTL:         envDuration("EXPORT_JOB_TTL", 1*time.Hour),
		MaxConcurrentRenders: envInt("MAX_CONCURRENT_RENDERS", 4),

		MaxUploadBytes: envInt64("MAX_UPLOAD_BYTES", 52428800), // 50MB

		PDFFallbackPdftotext: envBool("PDF_FALLBACK_PDFTOTEXT", true),

		LogLevel: envOr("LOG_LEVEL", "info"),
	}

	if cfg.CacheSize <= 0 {
		cfg.CacheSize = 256
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = 5 * time.Minute
	}
	if cfg.ExportWorkerCount <= 0 {
		cfg.ExportWorkerCount = 4
	}
	if cfg.ExportQueueSize <= 0 {
		cfg.ExportQueueSize = 100
	}
	if cfg.ExportJobTTL <= 0 {
		cfg.ExportJobTTL = 1 * time.Hour
	}
	if cfg.MaxConcurrentRenders <= 0 {
		cfg.MaxConcurrentRenders = 4
	}
	if cfg.MaxUploadBytes <= 0 {
		cfg.MaxUploadBytes = 52428800
	}

	return cfg
}

func (c Config) Validate() error {
	switch c.TrustBackend {
	case "memory", "sqlite", "redis":
	default:
		return fmt.Errorf("TRUST_BACKEND must be memory, sqlite or redis, got %q", c.TrustBackend)
	}
	if c.TrustBackend == "redis" && c.RedisAddr == "" {
		return fmt.Errorf("REDIS_ADDR is required when TRUST_BACKEND=redis")
	}
	if c.TrustBackend == "sqlite" && c.TrustDBPath == "" {
		return fmt.Errorf("TRUST_DB_PATH is required when TRUST_BACKEND=sqlite")
	}
	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("LOG_LEVEL must be debug, info, warn or error, got %q", c.LogLevel)
	}
	return nil
}

// SlogLevel maps the configured log level onto slog's scale.
func (c Config) SlogLevel() slog.Level {
	switch c.LogLevel {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envInt64(key string, fallback int64) int64 {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			return n
		}
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
