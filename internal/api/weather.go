package api

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"weather-cache/internal/models"
	"weather-cache/internal/ratelimit"
	"weather-cache/internal/telemetry"
)

const (
	DefaultBaseURL  = "https://api.openweathermap.org"
	geoEndpoint     = "/geo/1.0/direct"
	weatherEndpoint = "/data/2.5/weather"

	// maxErrorBody caps how much of a failed response body ends up in the log.
	maxErrorBody = 4 << 10
)

// Config configures the OpenWeather client.
type Config struct {
	APIKey  string
	BaseURL string

	// Timeout bounds each HTTP call. Default: 10 seconds.
	Timeout time.Duration
}

// OpenWeatherClient resolves city names and fetches current weather.
// Every HTTP call takes one permit from the limiter.
type OpenWeatherClient struct {
	apiKey  string
	baseURL string
	http    *http.Client
	limiter ratelimit.Limiter
	metrics *telemetry.Metrics
	logger  *slog.Logger
}

// NewOpenWeatherClient creates a client. metrics may be nil.
func NewOpenWeatherClient(cfg Config, limiter ratelimit.Limiter, metrics *telemetry.Metrics, logger *slog.Logger) *OpenWeatherClient {
	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	return &OpenWeatherClient{
		apiKey:  cfg.APIKey,
		baseURL: baseURL,
		http:    &http.Client{Timeout: timeout},
		limiter: limiter,
		metrics: metrics,
		logger:  logger.With("component", "openweather"),
	}
}

// GetCityWeather resolves name and returns the current weather document for
// the first match. A not-found resolve returns before the weather call.
func (c *OpenWeatherClient) GetCityWeather(ctx context.Context, name string) (json.RawMessage, error) {
	coords, err := c.ResolveCity(ctx, name)
	if err != nil {
		return nil, err
	}
	return c.GetWeather(ctx, coords.Lat, coords.Lon)
}

// ResolveCity returns the coordinates of the best match for name.
func (c *OpenWeatherClient) ResolveCity(ctx context.Context, name string) (models.Coordinates, error) {
	params := url.Values{}
	params.Set("q", name)

	body, err := c.query(ctx, "geo", geoEndpoint, params)
	if err != nil {
		return models.Coordinates{}, err
	}

	var matches []models.Coordinates
	if err := json.Unmarshal(body, &matches); err != nil {
		c.logger.ErrorContext(ctx, "OpenWeather geocoding response is not valid JSON", "error", err)
		return models.Coordinates{}, fmt.Errorf("decode geocoding response: %w", ErrUpstreamUnavailable)
	}
	if len(matches) == 0 {
		return models.Coordinates{}, ErrCityNotFound
	}
	return matches[0], nil
}

// GetWeather returns the current weather document for a coordinate pair.
func (c *OpenWeatherClient) GetWeather(ctx context.Context, lat, lon float64) (json.RawMessage, error) {
	params := url.Values{}
	params.Set("lat", strconv.FormatFloat(lat, 'f', -1, 64))
	params.Set("lon", strconv.FormatFloat(lon, 'f', -1, 64))

	body, err := c.query(ctx, "weather", weatherEndpoint, params)
	if err != nil {
		return nil, err
	}
	if !json.Valid(body) {
		c.logger.ErrorContext(ctx, "OpenWeather weather response is not valid JSON")
		return nil, fmt.Errorf("decode weather response: %w", ErrUpstreamUnavailable)
	}
	return json.RawMessage(body), nil
}

// query performs one rate-limited GET and translates the status code.
func (c *OpenWeatherClient) query(ctx context.Context, endpoint, path string, params url.Values) ([]byte, error) {
	waitStart := time.Now()
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("wait for rate limit: %w", err)
	}
	c.metrics.LimiterWait(ctx, time.Since(waitStart))

	params.Set("appid", c.apiKey)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path+"?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("build %s request: %w", endpoint, err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		c.metrics.UpstreamCall(ctx, endpoint, 0)
		// url.Error carries the full URL, which includes the key.
		c.logger.ErrorContext(ctx, "OpenWeather request failed", "endpoint", endpoint, "error", redact(err.Error(), c.apiKey))
		return nil, fmt.Errorf("%s request: %w", endpoint, ErrUpstreamUnavailable)
	}
	defer resp.Body.Close()
	c.metrics.UpstreamCall(ctx, endpoint, resp.StatusCode)

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, ErrCityNotFound
	case isKnownProviderFailure(resp.StatusCode):
		c.logger.ErrorContext(ctx, "OpenWeather API error",
			"endpoint", endpoint, "status", resp.StatusCode, "body", readErrorBody(resp.Body))
		return nil, fmt.Errorf("%s returned %d: %w", endpoint, resp.StatusCode, ErrUpstreamUnavailable)
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		c.logger.ErrorContext(ctx, "OpenWeather API returned unexpected status",
			"endpoint", endpoint, "status", resp.StatusCode, "body", readErrorBody(resp.Body))
		return nil, fmt.Errorf("%s returned %d: %w", endpoint, resp.StatusCode, ErrUpstreamUnavailable)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		c.logger.ErrorContext(ctx, "OpenWeather response read failed", "endpoint", endpoint, "error", err)
		return nil, fmt.Errorf("read %s response: %w", endpoint, ErrUpstreamUnavailable)
	}
	return body, nil
}

// Close releases idle connections held by the client.
func (c *OpenWeatherClient) Close() {
	c.http.CloseIdleConnections()
	c.logger.Info("OpenWeather client closed")
}

func isKnownProviderFailure(status int) bool {
	switch status {
	case http.StatusUnauthorized,
		http.StatusInternalServerError,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout:
		return true
	}
	return false
}

func readErrorBody(r io.Reader) string {
	b, _ := io.ReadAll(io.LimitReader(r, maxErrorBody))
	return string(b)
}

func redact(s, secret string) string {
	if secret == "" {
		return s
	}
	return strings.ReplaceAll(s, secret, "[REDACTED]")
}
