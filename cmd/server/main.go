package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"weather-cache/internal/bootstrap"
	"weather-cache/internal/config"
	"weather-cache/internal/logging"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := logging.New(cfg.LogLevel)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := bootstrap.InitBootstrap(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to start", "error", err)
		os.Exit(1)
	}

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           bootstrap.InitRoutes(app.WeatherHandler, app.MetricsHandler, logger),
		ReadHeaderTimeout: 10 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("server started", "port", cfg.Port)
		serveErr <- srv.ListenAndServe()
	}()

	exitCode := 0
	select {
	case <-ctx.Done():
	case err := <-serveErr:
		if !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", "error", err)
			exitCode = 1
		}
	}
	stop()

	if err := bootstrap.GracefulShutdown(srv, app, cfg.ShutdownTimeout); err != nil {
		exitCode = 1
	}
	os.Exit(exitCode)
}
