package bootstrap

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/redis/go-redis/v9"

	"weather-cache/internal/api"
	"weather-cache/internal/audit"
	"weather-cache/internal/config"
	"weather-cache/internal/db"
	"weather-cache/internal/handlers"
	"weather-cache/internal/kafka"
	"weather-cache/internal/ratelimit"
	"weather-cache/internal/repositories"
	"weather-cache/internal/services"
	"weather-cache/internal/storage"
	"weather-cache/internal/telemetry"
	"weather-cache/internal/workers"
)

const auditSyncerGroup = "weather-audit-syncer"

// App is everything main needs to serve and later shut down.
type App struct {
	WeatherService *services.WeatherService
	WeatherHandler *handlers.WeatherHandler

	// MetricsHandler is nil when metrics are disabled.
	MetricsHandler http.Handler

	telemetry   *telemetry.Provider
	redis       *redis.Client
	postgres    *sql.DB
	producer    *kafka.Producer
	auditSyncer *kafka.Consumer
	logger      *slog.Logger
}

// InitBootstrap builds the service graph from cfg. On error every client
// created so far is closed.
func InitBootstrap(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	app := &App{logger: logger}
	if err := app.build(ctx, cfg); err != nil {
		if cerr := app.closeClients(); cerr != nil {
			logger.Warn("cleanup after failed bootstrap", "error", cerr)
		}
		return nil, err
	}

	logger.Info("bootstrap complete",
		"audit_backend", cfg.AuditBackend,
		"bucket", cfg.S3Bucket,
		"cache_window", cfg.CacheWindow(),
		"max_calls_per_min", cfg.MaxCallsPerMin,
		"dedupe_inflight", cfg.DedupeInflight,
	)
	return app, nil
}

func (a *App) build(ctx context.Context, cfg *config.Config) error {
	var metrics *telemetry.Metrics
	if cfg.MetricsEnabled {
		provider, err := telemetry.NewPrometheusProvider()
		if err != nil {
			return err
		}
		a.telemetry = provider
		metrics, err = telemetry.NewMetrics(provider.Meter())
		if err != nil {
			return err
		}
		a.MetricsHandler = provider.Handler
	}

	fetcher := api.NewOpenWeatherClient(api.Config{
		APIKey:  cfg.OpenWeatherAPIKey,
		BaseURL: cfg.OpenWeatherBaseURL,
		Timeout: cfg.UpstreamTimeout,
	}, ratelimit.New(cfg.MaxCallsPerMin), metrics, a.logger)

	store, err := storage.NewMinioStore(storage.Config{
		Endpoint:     cfg.S3Endpoint,
		Region:       cfg.AWSRegion,
		Bucket:       cfg.S3Bucket,
		AccessKey:    cfg.AWSAccessKey,
		SecretKey:    cfg.AWSSecretKey,
		UseSSL:       cfg.S3UseSSL,
		ListPageSize: cfg.S3ListPageSize,
	}, a.logger)
	if err != nil {
		return err
	}
	if err := store.EnsureBucket(ctx); err != nil {
		return fmt.Errorf("prepare bucket: %w", err)
	}

	auditLog, err := a.initAuditLog(ctx, cfg)
	if err != nil {
		return err
	}
	if cfg.AuditSyncEnabled {
		if err := a.startAuditSyncer(ctx, cfg); err != nil {
			return err
		}
	}

	a.WeatherService = services.NewWeatherService(services.Config{
		Window:         cfg.CacheWindow(),
		DedupeInflight: cfg.DedupeInflight,
	}, store, auditLog, fetcher, metrics, a.logger)
	a.WeatherHandler = handlers.NewWeatherHandler(a.WeatherService, a.logger)
	return nil
}

// initAuditLog connects the audit backend selected by AUDIT_BACKEND.
func (a *App) initAuditLog(ctx context.Context, cfg *config.Config) (audit.Log, error) {
	switch cfg.AuditBackend {
	case config.AuditBackendRedis:
		client, err := a.redisClient(ctx, cfg)
		if err != nil {
			return nil, err
		}
		return audit.NewRedisLog(client, cfg.AuditTable), nil

	case config.AuditBackendKafka:
		producer, err := kafka.NewProducer(cfg.KafkaBrokers, cfg.AuditTable)
		if err != nil {
			return nil, err
		}
		a.producer = producer
		return audit.NewKafkaLog(producer), nil

	case config.AuditBackendPostgres:
		conn, err := db.ConnectPostgres(ctx, cfg.DatabaseURL, a.logger)
		if err != nil {
			return nil, err
		}
		a.postgres = conn
		repo := repositories.NewAuditRepository(conn, cfg.AuditTable)
		if err := repo.EnsureTable(ctx); err != nil {
			return nil, err
		}
		return repo, nil
	}
	return nil, fmt.Errorf("unknown audit backend %q", cfg.AuditBackend)
}

// startAuditSyncer mirrors the Kafka audit topic into Redis.
func (a *App) startAuditSyncer(ctx context.Context, cfg *config.Config) error {
	client, err := a.redisClient(ctx, cfg)
	if err != nil {
		return err
	}
	consumer, err := kafka.NewConsumer(cfg.KafkaBrokers, cfg.AuditTable, auditSyncerGroup, a.logger)
	if err != nil {
		return err
	}
	a.auditSyncer = consumer

	syncer := workers.NewAuditSyncer(audit.NewRedisLog(client, cfg.AuditTable), a.logger)
	consumer.Start(context.WithoutCancel(ctx), syncer.Handle)
	return nil
}

func (a *App) redisClient(ctx context.Context, cfg *config.Config) (*redis.Client, error) {
	if a.redis != nil {
		return a.redis, nil
	}
	client, err := db.ConnectRedis(ctx, cfg.RedisURL)
	if err != nil {
		return nil, err
	}
	a.redis = client
	return client, nil
}

// closeClients releases the backend clients. Safe to call on a partially
// built App.
func (a *App) closeClients() error {
	var errs []error

	if a.auditSyncer != nil {
		a.auditSyncer.Stop()
	}
	if a.producer != nil {
		a.producer.Close()
	}
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			errs = append(errs, fmt.Errorf("redis close: %w", err))
		}
	}
	if a.postgres != nil {
		if err := a.postgres.Close(); err != nil {
			errs = append(errs, fmt.Errorf("postgres close: %w", err))
		}
	}
	if a.telemetry != nil {
		if err := a.telemetry.Shutdown(context.Background()); err != nil {
			errs = append(errs, fmt.Errorf("metrics shutdown: %w", err))
		}
	}
	return errors.Join(errs...)
}
