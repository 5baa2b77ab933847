package config

import (
	"fmt"
	"net"
	"path/filepath"
	"strings"
	"time"

	"github.com/ardanlabs/conf/v3"
	"github.com/joho/godotenv"
)

// Environment name constants used in ENVIRONMENT config field.
const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
	EnvTesting     = "testing"
)

const (
	inventoryFileName = "inventory.json"
	photoDirName      = "photos"
)

// Config holds all configuration for the application
type Config struct {
	// Listener
	Host string `conf:"default:0.0.0.0,env:HOST"`
	Port int    `conf:"default:8080,env:PORT"`

	// Storage: the inventory document and the photo directory live here.
	// Only one process may own a cache directory at a time.
	CacheDir      string        `conf:"default:./cache,env:CACHE_DIR"`
	LockTimeout   time.Duration `conf:"default:5s,env:LOCK_TIMEOUT"`
	MaxPhotoBytes int64         `conf:"default:10485760,env:MAX_PHOTO_BYTES"`

	// Application
	LogLevel    string `conf:"default:info,env:LOG_LEVEL"`
	Environment string `conf:"default:development,enum:development|testing|production,env:ENVIRONMENT"`

	// Events: per-subscriber buffer of the in-process event bus
	EventBufferSize int `conf:"default:64,env:EVENT_BUFFER_SIZE"`

	// CORS: comma-separated list of allowed origins; use * to allow all (dev only)
	CORSAllowedOrigins string `conf:"default:*,env:CORS_ALLOWED_ORIGINS"`

	// Per-IP request budget per minute
	RateLimitPerMin int `conf:"default:100,env:RATE_LIMIT_PER_MIN"`

	// Observability
	ServiceName    string `conf:"default:inventorycatalog,env:SERVICE_NAME"`
	ServiceVersion string `conf:"default:dev,env:SERVICE_VERSION"`
	OtelEndpoint   string `conf:"env:OTEL_ENDPOINT"`
	// TraceSampleRatio is the share of root spans recorded, between 0 and 1.
	TraceSampleRatio float64 `conf:"default:1,env:OTEL_TRACE_SAMPLE_RATIO"`
	SentryDSN      string `conf:"env:SENTRY_DSN,noprint"`
}

// Load reads configuration from environment variables with sensible defaults
func Load() (*Config, error) {
	var cfg Config
	_ = godotenv.Load()
	if _, err := conf.Parse("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	return &cfg, nil
}

// Addr returns the host:port the HTTP server listens on.
func (c *Config) Addr() string {
	return net.JoinHostPort(c.Host, fmt.Sprintf("%d", c.Port))
}

// InventoryPath is the location of the catalog JSON document.
func (c *Config) InventoryPath() string {
	return filepath.Join(c.CacheDir, inventoryFileName)
}

// PhotoDir is the flat directory holding stored photo files.
func (c *Config) PhotoDir() string {
	return filepath.Join(c.CacheDir, photoDirName)
}

// ValidateForProduction enforces safety requirements when ENVIRONMENT=production.
// Returns an error if any critical settings are missing or unsafe.
// No-ops for non-production environments.
func ValidateForProduction(cfg *Config) error {
	if cfg.Environment != EnvProduction {
		return nil
	}

	var errs []string

	if strings.TrimSpace(cfg.CacheDir) == "" {
		errs = append(errs, "CACHE_DIR must be set")
	}

	if cfg.LockTimeout <= 0 {
		errs = append(errs, fmt.Sprintf("LOCK_TIMEOUT must be positive (got %s)", cfg.LockTimeout))
	}

	if cfg.RateLimitPerMin <= 0 {
		errs = append(errs, fmt.Sprintf("RATE_LIMIT_PER_MIN must be positive (got %d)", cfg.RateLimitPerMin))
	}

	if cfg.TraceSampleRatio < 0 || cfg.TraceSampleRatio > 1 {
		errs = append(errs, fmt.Sprintf("OTEL_TRACE_SAMPLE_RATIO must be between 0 and 1 (got %v)", cfg.TraceSampleRatio))
	}

	if cfg.LogLevel == "debug" {
		errs = append(errs, "LOG_LEVEL must not be 'debug' in production (may leak sensitive data)")
	}

	if len(errs) == 0 {
		return nil
	}

	return fmt.Errorf("production config validation failed: %s", strings.Join(errs, "; "))
}
