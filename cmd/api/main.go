// Package main - точка входа HTTP API attendance-hub.
//
// API принимает ручную синхронизацию расписания и посещаемости, правки
// занятий, отдаёт статистику по курсам и экспорт календаря.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/alem-hub/attendance-hub/config"
	"github.com/alem-hub/attendance-hub/internal/infrastructure/service"
	httpapi "github.com/alem-hub/attendance-hub/internal/interface/http"
	"github.com/alem-hub/attendance-hub/internal/interface/http/handlers"
	"github.com/alem-hub/attendance-hub/pkg/logger"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "fatal error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	// ─────────────────────────────────────────────────────────────────────────
	// 1. КОНФИГУРАЦИЯ И ЛОГИРОВАНИЕ
	// ─────────────────────────────────────────────────────────────────────────
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	log := newLogger(cfg)
	log.Info("starting attendance-hub API",
		logger.String("env", string(cfg.App.Environment)),
		logger.String("version", cfg.App.Version),
		logger.String("timezone", cfg.App.Timezone),
	)
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 2. ЗАВИСИМОСТИ
	// ─────────────────────────────────────────────────────────────────────────
	container, err := service.Build(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer func() {
		log.Info("closing connections")
		if err := container.Close(); err != nil {
			log.Warn("close failed", logger.Err(err))
		}
	}()

	health := handlers.NewCompositeHealthChecker(cfg.App.Version)
	health.AddCheck("database", handlers.NewPingCheck(container.DB))
	health.AddCheck("school_api", handlers.NewBreakerCheck(container.School))
	if container.Cache != nil {
		health.AddCheck("redis", handlers.NewPingCheck(container.Cache))
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 3. HTTP СЕРВЕР
	// ─────────────────────────────────────────────────────────────────────────
	deps := httpapi.Dependencies{
		Service:       container.Service,
		HealthChecker: health,
		Observer:      container.Metrics,
		Logger:        log,
	}
	if cfg.Observability.MetricsEnabled {
		deps.MetricsHandler = promhttp.HandlerFor(container.Metrics.Registry(), promhttp.HandlerOpts{})
	}

	server := httpapi.NewServer(httpapi.Config{
		Host:         cfg.HTTP.Host,
		Port:         cfg.HTTP.Port,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
		IdleTimeout:  cfg.HTTP.IdleTimeout,
		Version:      cfg.App.Version,
	}, deps)

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start()
	}()

	// ─────────────────────────────────────────────────────────────────────────
	// 4. GRACEFUL SHUTDOWN
	// ─────────────────────────────────────────────────────────────────────────
	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		log.Info("received shutdown signal")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.App.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil && !errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	log.Info("shutdown completed")
	return nil
}

// newLogger настраивает структурированное логирование.
func newLogger(cfg *config.Config) *logger.Logger {
	opts := logger.DefaultOptions()
	opts.Level = logger.ParseLevel(cfg.Observability.LogLevel)
	opts.AddCaller = cfg.IsDevelopment()
	return logger.New(opts).With(logger.String("service", cfg.App.Name))
}
