package bootstrap

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"weather-cache/internal/handlers"
	"weather-cache/internal/middleware"
)

// InitRoutes mounts the public API. metricsHandler may be nil.
func InitRoutes(weatherHandler *handlers.WeatherHandler, metricsHandler http.Handler, logger *slog.Logger) chi.Router {
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(middleware.Recoverer(logger))

	r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})

	r.Get("/weather", weatherHandler.GetWeather)

	if metricsHandler != nil {
		r.Method(http.MethodGet, "/metrics", metricsHandler)
	}

	return r
}
