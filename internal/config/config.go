package config

import (
	"fmt"
	"strings"

	"github.com/kelseyhightower/envconfig"
)

// Cache backends accepted by CACHE_BACKEND.
const (
	CacheMemory = "memory"
	CacheRedis  = "redis"
	CacheNone   = "none"
)

// Config captures all runtime configuration derived from environment variables.
type Config struct {
	Port        string `envconfig:"PORT" default:"8080"`
	ServiceName string `envconfig:"SERVICE_NAME" default:"movie-ratings"`
	LogLevel    string `envconfig:"LOG_LEVEL" default:"info"`

	DBURL             string `envconfig:"DB_URL" required:"true"`
	DBMaxConns        int    `envconfig:"DB_MAX_CONNS" default:"20"`
	DBMinConns        int    `envconfig:"DB_MIN_CONNS" default:"2"`
	DBMaxIdleSecs     int    `envconfig:"DB_MAX_CONN_IDLE_SECS" default:"300"`
	DBMaxLifeSecs     int    `envconfig:"DB_MAX_CONN_LIFETIME_SECS" default:"3600"`
	DBConnTimeoutSecs int    `envconfig:"DB_CONN_TIMEOUT_SECS" default:"10"`
	DBStatementCache  int    `envconfig:"DB_STATEMENT_CACHE_CAPACITY" default:"256"`
	DBHealthCheckSecs int    `envconfig:"DB_HEALTH_CHECK_PERIOD_SECS" default:"60"`

	ReadTimeoutSecs  int `envconfig:"SERVER_READ_TIMEOUT" default:"15"`
	WriteTimeoutSecs int `envconfig:"SERVER_WRITE_TIMEOUT" default:"15"`
	IdleTimeoutSecs  int `envconfig:"SERVER_IDLE_TIMEOUT" default:"60"`

	CacheBackend  string `envconfig:"CACHE_BACKEND" default:"memory"`
	CacheTTLSecs  int    `envconfig:"CACHE_TTL_SECS" default:"1800"`
	RedisURL      string `envconfig:"REDIS_URL"`
	NATSURL       string `envconfig:"NATS_URL"`
	NATSSubject   string `envconfig:"NATS_INVALIDATION_SUBJECT" default:"movie_ratings.cache.invalidate"`
	CBMaxFailures uint32 `envconfig:"CACHE_CB_MAX_FAILURES" default:"5"`
	CBOpenSecs    int    `envconfig:"CACHE_CB_OPEN_SECS" default:"30"`

	ContentURL         string `envconfig:"CONTENT_URL"`
	ContentAPIKey      string `envconfig:"CONTENT_API_KEY"`
	ContentTimeoutSecs int    `envconfig:"CONTENT_TIMEOUT_SECS" default:"5"`

	OTLPEndpoint string `envconfig:"OTEL_EXPORTER_OTLP_ENDPOINT"`
}

// Load reads configuration from environment variables, applying defaults and validation.
func Load() (Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return Config{}, fmt.Errorf("process env: %w", err)
	}
	cfg.CacheBackend = strings.ToLower(strings.TrimSpace(cfg.CacheBackend))

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (cfg Config) validate() error {
	if strings.TrimSpace(cfg.DBURL) == "" {
		return fmt.Errorf("DB_URL is required")
	}
	if cfg.DBMaxConns <= 0 {
		return fmt.Errorf("DB_MAX_CONNS must be positive")
	}
	if cfg.DBMinConns < 0 {
		return fmt.Errorf("DB_MIN_CONNS must be non-negative")
	}
	if cfg.DBMinConns > cfg.DBMaxConns {
		return fmt.Errorf("DB_MIN_CONNS cannot exceed DB_MAX_CONNS")
	}
	if cfg.DBHealthCheckSecs < 0 {
		return fmt.Errorf("DB_HEALTH_CHECK_PERIOD_SECS must be non-negative")
	}
	if cfg.DBStatementCache < 0 {
		return fmt.Errorf("DB_STATEMENT_CACHE_CAPACITY must be non-negative")
	}

	switch cfg.CacheBackend {
	case CacheMemory, CacheNone:
	case CacheRedis:
		if cfg.RedisURL == "" {
			return fmt.Errorf("REDIS_URL is required when CACHE_BACKEND=redis")
		}
	default:
		return fmt.Errorf("CACHE_BACKEND must be one of memory, redis, none (got %q)", cfg.CacheBackend)
	}
	if cfg.CacheTTLSecs <= 0 {
		return fmt.Errorf("CACHE_TTL_SECS must be positive")
	}
	if cfg.CBOpenSecs <= 0 {
		return fmt.Errorf("CACHE_CB_OPEN_SECS must be positive")
	}
	if cfg.ContentURL != "" && cfg.ContentTimeoutSecs <= 0 {
		return fmt.Errorf("CONTENT_TIMEOUT_SECS must be positive")
	}
	return nil
}
