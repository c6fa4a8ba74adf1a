package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"weather-cache/internal/api"
	"weather-cache/internal/logging"
	"weather-cache/internal/services"
)

type WeatherHandler struct {
	weatherService *services.WeatherService
	logger         *slog.Logger
}

func NewWeatherHandler(weatherService *services.WeatherService, logger *slog.Logger) *WeatherHandler {
	return &WeatherHandler{
		weatherService: weatherService,
		logger:         logger.With("component", "weather_handler"),
	}
}

// GetWeather serves GET /weather?city=<name>. A fresh stored document is
// returned as is. Otherwise the provider is asked, the answer is written to
// the client and only then persisted in the background.
func (h *WeatherHandler) GetWeather(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	city := strings.TrimSpace(r.URL.Query().Get("city"))
	if city == "" {
		WriteError(w, http.StatusBadRequest, MsgCityRequired)
		return
	}

	if cached, ok := h.weatherService.CheckFresh(ctx, city); ok {
		writeRaw(w, http.StatusOK, cached)
		return
	}

	weather, err := h.weatherService.FetchFresh(ctx, city)
	if err != nil {
		h.writeFetchError(ctx, w, city, err)
		return
	}

	writeRaw(w, http.StatusOK, weather)
	_ = http.NewResponseController(w).Flush()

	h.weatherService.PersistAsync(ctx, city, weather)
}

func (h *WeatherHandler) writeFetchError(ctx context.Context, w http.ResponseWriter, city string, err error) {
	switch {
	case errors.Is(err, api.ErrCityNotFound):
		h.logger.InfoContext(ctx, "city not found", "city", city)
		WriteError(w, http.StatusNotFound, MsgCityNotFound)
	case errors.Is(err, api.ErrUpstreamUnavailable):
		h.logger.ErrorContext(ctx, "weather provider unavailable", "city", city, "error", err)
		WriteError(w, http.StatusInternalServerError, MsgSomethingWentWrong)
	case errors.Is(err, context.Canceled):
		h.logger.WarnContext(ctx, "request abandoned before the provider answered", "city", city)
		WriteError(w, http.StatusInternalServerError, MsgSomethingWentWrong)
	default:
		logging.Critical(ctx, h.logger, "unhandled error", "city", city, "error", err)
		WriteError(w, http.StatusInternalServerError, MsgServiceUnavailable)
	}
}
