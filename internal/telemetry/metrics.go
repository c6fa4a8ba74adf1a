// Package telemetry records cache and upstream metrics with OpenTelemetry and
// exposes them in the Prometheus text format.
package telemetry

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel/attribute"
	otelprom "go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

const meterName = "weather-cache"

// Persist outcomes.
const (
	PersistStored      = "stored"
	PersistStoreFailed = "store_failed"
	PersistAuditFailed = "audit_failed"
)

// Metrics holds the instruments used across the service.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	cacheLookups  metric.Int64Counter
	upstreamCalls metric.Int64Counter
	persists      metric.Int64Counter
	limiterWait   metric.Float64Histogram
}

// NewMetrics creates the instruments on meter.
func NewMetrics(meter metric.Meter) (*Metrics, error) {
	cacheLookups, err := meter.Int64Counter("weather.cache.lookups",
		metric.WithDescription("Cache lookups by result (hit or miss)"))
	if err != nil {
		return nil, fmt.Errorf("create cache lookups counter: %w", err)
	}

	upstreamCalls, err := meter.Int64Counter("weather.upstream.calls",
		metric.WithDescription("Calls to the weather provider by endpoint and status"))
	if err != nil {
		return nil, fmt.Errorf("create upstream calls counter: %w", err)
	}

	persists, err := meter.Int64Counter("weather.persist.total",
		metric.WithDescription("Background persist attempts by outcome"))
	if err != nil {
		return nil, fmt.Errorf("create persist counter: %w", err)
	}

	limiterWait, err := meter.Float64Histogram("weather.ratelimit.wait",
		metric.WithDescription("Time spent waiting for a rate limit permit"),
		metric.WithUnit("s"))
	if err != nil {
		return nil, fmt.Errorf("create limiter wait histogram: %w", err)
	}

	return &Metrics{
		cacheLookups:  cacheLookups,
		upstreamCalls: upstreamCalls,
		persists:      persists,
		limiterWait:   limiterWait,
	}, nil
}

// CacheLookup records a hit or a miss.
func (m *Metrics) CacheLookup(ctx context.Context, hit bool) {
	if m == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	m.cacheLookups.Add(ctx, 1, metric.WithAttributes(attribute.String("result", result)))
}

// UpstreamCall records one provider call. status is 0 for transport failures.
func (m *Metrics) UpstreamCall(ctx context.Context, endpoint string, status int) {
	if m == nil {
		return
	}
	m.upstreamCalls.Add(ctx, 1, metric.WithAttributes(
		attribute.String("endpoint", endpoint),
		attribute.String("status", strconv.Itoa(status)),
	))
}

// Persist records the outcome of one persist run.
func (m *Metrics) Persist(ctx context.Context, outcome string) {
	if m == nil {
		return
	}
	m.persists.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
}

// LimiterWait records how long a caller waited for a permit.
func (m *Metrics) LimiterWait(ctx context.Context, d time.Duration) {
	if m == nil {
		return
	}
	m.limiterWait.Record(ctx, d.Seconds())
}

// Provider bundles the meter provider with its scrape handler.
type Provider struct {
	MeterProvider *sdkmetric.MeterProvider
	Handler       http.Handler
}

// NewPrometheusProvider wires an OpenTelemetry meter provider to a private
// Prometheus registry.
func NewPrometheusProvider() (*Provider, error) {
	registry := prometheus.NewRegistry()

	exporter, err := otelprom.New(otelprom.WithRegisterer(registry))
	if err != nil {
		return nil, fmt.Errorf("create prometheus exporter: %w", err)
	}

	return &Provider{
		MeterProvider: sdkmetric.NewMeterProvider(sdkmetric.WithReader(exporter)),
		Handler:       promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
	}, nil
}

// Meter returns the service meter.
func (p *Provider) Meter() metric.Meter {
	return p.MeterProvider.Meter(meterName)
}

// Shutdown flushes and stops the meter provider.
func (p *Provider) Shutdown(ctx context.Context) error {
	return p.MeterProvider.Shutdown(ctx)
}
