package services

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"weather-cache/internal/audit"
	"weather-cache/internal/storage"
	"weather-cache/internal/telemetry"
)

// Config configures a WeatherService.
type Config struct {
	// Window is how long a stored document stays fresh.
	Window time.Duration

	// DedupeInflight collapses concurrent misses for the same key into one
	// upstream fetch. Off by default: every miss fetches and persists.
	DedupeInflight bool

	// Now overrides the clock. Defaults to time.Now.
	Now func() time.Time
}

// WeatherService decides whether a stored document is still fresh and
// otherwise fetches and persists a new one.
//
// Contract:
// - Concurrency: safe for concurrent use. The limiter behind the fetcher is
//   the only shared mutable state.
// - CheckFresh and Persist never return storage or audit failures; they log them.
type WeatherService struct {
	store   storage.ArtifactStore
	audit   audit.Log
	fetcher Fetcher
	window  time.Duration
	now     func() time.Time
	metrics *telemetry.Metrics
	logger  *slog.Logger

	dedupe   bool
	inflight singleflight.Group
	persists sync.WaitGroup
}

// NewWeatherService creates the engine. metrics may be nil.
func NewWeatherService(cfg Config, store storage.ArtifactStore, auditLog audit.Log, fetcher Fetcher, metrics *telemetry.Metrics, logger *slog.Logger) *WeatherService {
	now := cfg.Now
	if now == nil {
		now = time.Now
	}

	logger = logger.With("component", "weather_service")
	if cfg.DedupeInflight {
		logger.Info("concurrent misses for the same city share one upstream fetch")
	}

	return &WeatherService{
		store:   store,
		audit:   auditLog,
		fetcher: fetcher,
		window:  cfg.Window,
		now:     now,
		metrics: metrics,
		logger:  logger,
		dedupe:  cfg.DedupeInflight,
	}
}

// CheckFresh returns the newest stored document for city created within the
// window. Store failures are logged and reported as a miss.
func (s *WeatherService) CheckFresh(ctx context.Context, city string) (json.RawMessage, bool) {
	key := NormalizeCity(city)
	cutoff := s.now().Add(-s.window)

	loc, found, err := s.store.FindLatest(ctx, storage.ArtifactPrefix(key), cutoff)
	if err != nil {
		s.logger.ErrorContext(ctx, "cache lookup failed", "city", key, "error", err)
		s.metrics.CacheLookup(ctx, false)
		return nil, false
	}
	if !found {
		s.logger.InfoContext(ctx, "no fresh cache", "city", key)
		s.metrics.CacheLookup(ctx, false)
		return nil, false
	}

	doc, err := s.store.Get(ctx, loc.Address)
	if err != nil {
		s.logger.ErrorContext(ctx, "cache read failed", "city", key, "address", loc.Address, "error", err)
		s.metrics.CacheLookup(ctx, false)
		return nil, false
	}

	s.logger.InfoContext(ctx, "cache hit", "city", key, "address", loc.Address)
	s.metrics.CacheLookup(ctx, true)
	return doc, true
}

// FetchFresh fetches the current document for city from the provider. The
// provider sees the name as given (trimmed); the normalized key only groups
// concurrent misses when deduplication is on. Provider errors are returned
// unchanged.
func (s *WeatherService) FetchFresh(ctx context.Context, city string) (json.RawMessage, error) {
	key := NormalizeCity(city)
	name := strings.TrimSpace(city)
	s.logger.InfoContext(ctx, "fetching weather from provider", "city", key)

	if !s.dedupe {
		return s.fetcher.GetCityWeather(ctx, name)
	}

	v, err, shared := s.inflight.Do(key, func() (any, error) {
		return s.fetcher.GetCityWeather(ctx, name)
	})
	if shared {
		s.logger.DebugContext(ctx, "joined in-flight fetch", "city", key)
	}
	if err != nil {
		return nil, err
	}
	return v.(json.RawMessage), nil
}

// Persist stores doc as {key}_{unix}.json and appends an audit record that
// points at it. A failed store write skips the audit step. Nothing is
// returned: failures are logged.
func (s *WeatherService) Persist(ctx context.Context, city string, doc json.RawMessage) {
	key := NormalizeCity(city)
	ts := s.now()

	address, err := s.store.Put(ctx, storage.ArtifactKey(key, ts), doc)
	if err != nil {
		s.logger.ErrorContext(ctx, "failed to store weather", "city", key, "error", err)
		s.metrics.Persist(ctx, telemetry.PersistStoreFailed)
		return
	}

	if err := s.audit.Append(ctx, key, ts, address); err != nil {
		s.logger.ErrorContext(ctx, "failed to write audit record", "city", key, "address", address, "error", err)
		s.metrics.Persist(ctx, telemetry.PersistAuditFailed)
		return
	}

	s.logger.InfoContext(ctx, "weather stored", "city", key, "address", address)
	s.metrics.Persist(ctx, telemetry.PersistStored)
}

// PersistAsync runs Persist on its own goroutine. The run keeps ctx values
// but not its cancellation, so a client disconnect does not abort it.
func (s *WeatherService) PersistAsync(ctx context.Context, city string, doc json.RawMessage) {
	ctx = context.WithoutCancel(ctx)

	s.persists.Add(1)
	go func() {
		defer s.persists.Done()
		s.Persist(ctx, city, doc)
	}()
}

// Wait blocks until every persist started by PersistAsync has finished or
// ctx ends, whichever comes first.
func (s *WeatherService) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		s.persists.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close releases the fetcher's network session.
func (s *WeatherService) Close() {
	s.fetcher.Close()
	s.logger.Info("weather service closed")
}
