package bootstrap

import (
	"context"
	"errors"
	"net/http"
	"time"
)

// GracefulShutdown stops the server, then gives in-flight persists the rest
// of timeout to finish, then closes the provider session and every backend
// client.
func GracefulShutdown(srv *http.Server, app *App, timeout time.Duration) error {
	logger := app.logger
	logger.Info("shutting down gracefully")

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	var errs []error
	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("server shutdown error", "error", err)
		errs = append(errs, err)
	}

	if err := app.WeatherService.Wait(ctx); err != nil {
		logger.Warn("background persists still running at shutdown", "error", err)
	}
	app.WeatherService.Close()

	if err := app.closeClients(); err != nil {
		logger.Error("client close error", "error", err)
		errs = append(errs, err)
	}

	logger.Info("shutdown complete")
	return errors.Join(errs...)
}
