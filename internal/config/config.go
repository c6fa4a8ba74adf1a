package config

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Audit backends accepted by AUDIT_BACKEND.
const (
	AuditBackendRedis    = "redis"
	AuditBackendKafka    = "kafka"
	AuditBackendPostgres = "postgres"
)

type Config struct {
	Port            string        `env:"PORT" envDefault:"8080"`
	LogLevel        string        `env:"LOG_LEVEL" envDefault:"info"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"10s"`
	MetricsEnabled  bool          `env:"METRICS_ENABLED" envDefault:"true"`

	// OpenWeather
	OpenWeatherAPIKey  string        `env:"OPENWEATHER_API_KEY,required,notEmpty"`
	OpenWeatherBaseURL string        `env:"OPENWEATHER_BASE_URL" envDefault:"https://api.openweathermap.org"`
	MaxCallsPerMin     int           `env:"MAX_CALLS_PER_MIN" envDefault:"60"`
	UpstreamTimeout    time.Duration `env:"UPSTREAM_TIMEOUT" envDefault:"10s"`

	// Caching
	CacheExpiryMinutes int  `env:"CACHE_EXPIRY_MINUTES" envDefault:"10"`
	DedupeInflight     bool `env:"DEDUPE_INFLIGHT" envDefault:"false"`

	// Object storage
	S3Endpoint     string `env:"S3_ENDPOINT" envDefault:"s3.amazonaws.com"`
	S3UseSSL       bool   `env:"S3_USE_SSL" envDefault:"true"`
	AWSRegion      string `env:"AWS_REGION" envDefault:"us-east-1"`
	AWSAccessKey   string `env:"AWS_ACCESS_KEY_ID,required,notEmpty"`
	AWSSecretKey   string `env:"AWS_SECRET_ACCESS_KEY,required,notEmpty"`
	S3Bucket       string `env:"S3_BUCKET_NAME,required,notEmpty"`
	S3ListPageSize int    `env:"S3_LIST_PAGE_SIZE" envDefault:"1000"`

	// Audit log
	AuditBackend     string   `env:"AUDIT_BACKEND" envDefault:"redis"`
	AuditTable       string   `env:"AUDIT_TABLE" envDefault:"weather_audit"`
	RedisURL         string   `env:"REDIS_URL" envDefault:"redis://localhost:6379"`
	DatabaseURL      string   `env:"DATABASE_URL"`
	KafkaBrokers     []string `env:"KAFKA_BROKERS" envSeparator:"," envDefault:"localhost:9092"`
	AuditSyncEnabled bool     `env:"AUDIT_SYNC_ENABLED" envDefault:"false"`
}

// Load reads an optional .env file and then the process environment.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		slog.Debug(".env not loaded (ok for prod)", "error", err)
	}

	cfg, err := env.ParseAs[Config]()
	if err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks values that the env tags cannot express.
func (c *Config) Validate() error {
	if c.MaxCallsPerMin <= 0 {
		return errors.New("config: MAX_CALLS_PER_MIN must be positive")
	}
	if c.CacheExpiryMinutes <= 0 {
		return errors.New("config: CACHE_EXPIRY_MINUTES must be positive")
	}
	if c.S3ListPageSize <= 0 {
		return errors.New("config: S3_LIST_PAGE_SIZE must be positive")
	}
	if c.AuditTable == "" {
		return errors.New("config: AUDIT_TABLE is required")
	}

	switch c.AuditBackend {
	case AuditBackendRedis:
		if c.RedisURL == "" {
			return errors.New("config: REDIS_URL is required for the redis audit backend")
		}
	case AuditBackendKafka:
		if len(c.KafkaBrokers) == 0 {
			return errors.New("config: KAFKA_BROKERS is required for the kafka audit backend")
		}
	case AuditBackendPostgres:
		if c.DatabaseURL == "" {
			return errors.New("config: DATABASE_URL is required for the postgres audit backend")
		}
	default:
		return fmt.Errorf("config: unknown AUDIT_BACKEND %q", c.AuditBackend)
	}

	if c.AuditSyncEnabled && c.AuditBackend != AuditBackendKafka {
		return errors.New("config: AUDIT_SYNC_ENABLED requires AUDIT_BACKEND=kafka")
	}
	return nil
}

// CacheWindow is the freshness window as a duration.
func (c *Config) CacheWindow() time.Duration {
	return time.Duration(c.CacheExpiryMinutes) * time.Minute
}
