// Package main - точка входа для фоновых процессов (Worker) attendance-hub.
//
// Worker отвечает за периодические задачи:
// - Автосинхронизация студентов с сохранённым токеном
// - Удаление дубликатов занятий и сводок посещаемости
//
// Несколько экземпляров Worker могут работать одновременно: задача берёт
// блокировку в Redis и пропускается, если её уже выполняет другой процесс.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/alem-hub/attendance-hub/config"
	"github.com/alem-hub/attendance-hub/internal/infrastructure/scheduler"
	"github.com/alem-hub/attendance-hub/internal/infrastructure/scheduler/jobs"
	"github.com/alem-hub/attendance-hub/internal/infrastructure/service"
	"github.com/alem-hub/attendance-hub/internal/interface/http/handlers"
	"github.com/alem-hub/attendance-hub/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// MAIN
// ══════════════════════════════════════════════════════════════════════════════

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)
	defer stop()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "fatal error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	// ─────────────────────────────────────────────────────────────────────────
	// 1. ЗАГРУЗКА КОНФИГУРАЦИИ
	// ─────────────────────────────────────────────────────────────────────────
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 2. НАСТРОЙКА ЛОГИРОВАНИЯ
	// ─────────────────────────────────────────────────────────────────────────
	opts := logger.DefaultOptions()
	opts.Level = logger.ParseLevel(cfg.Observability.LogLevel)
	log := logger.New(opts).With(logger.String("service", cfg.App.Name+"-worker"))

	log.Info("starting attendance-hub worker",
		logger.String("env", string(cfg.App.Environment)),
		logger.String("timezone", cfg.App.Timezone),
	)
	if !cfg.Scheduler.Enabled {
		log.Info("scheduler disabled, nothing to do")
		return nil
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 3. ЗАВИСИМОСТИ (PostgreSQL, Redis, School API)
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

	// ─────────────────────────────────────────────────────────────────────────
	// 4. ПЛАНИРОВЩИК И ЗАДАЧИ
	// ─────────────────────────────────────────────────────────────────────────
	schedCfg := scheduler.Config{
		Logger:     log,
		Location:   cfg.App.Location,
		JobTimeout: cfg.Scheduler.JobTimeout,
		OnJobComplete: func(r scheduler.JobResult) {
			if !r.Skipped {
				container.Metrics.JobRun(r.JobName, r.Error)
			}
		},
	}
	if container.Cache != nil {
		schedCfg.Locker = container.Cache
	} else {
		log.Warn("redis unavailable, jobs are not guarded across workers")
	}
	sched := scheduler.New(schedCfg)

	autoSync := jobs.NewAutoSyncJob(container.Service, log, jobs.AutoSyncConfig{
		Concurrency: cfg.Scheduler.MaxConcurrentSyncs,
	})
	if err := sched.Register(autoSync, cfg.Scheduler.AutoSyncCron); err != nil {
		return err
	}
	if err := sched.Register(jobs.NewDedupeSweepJob(container.Service, log), cfg.Scheduler.DedupeCron); err != nil {
		return err
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 5. МЕТРИКИ И HEALTH
	// ─────────────────────────────────────────────────────────────────────────
	health := handlers.NewCompositeHealthChecker(cfg.App.Version)
	health.AddCheck("database", handlers.NewPingCheck(container.DB))
	health.AddCheck("school_api", handlers.NewBreakerCheck(container.School))

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(container.Metrics.Registry(), promhttp.HandlerOpts{}))
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		if !health.Check(r.Context()).Healthy {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	})
	probe := &http.Server{
		Addr:              cfg.Observability.WorkerMetricsAddr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := probe.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("metrics server failed", logger.Err(err))
		}
	}()

	if err := sched.Start(); err != nil {
		return err
	}
	for _, job := range sched.ListJobs() {
		log.Info("job scheduled",
			logger.String("job", job.Name),
			logger.String("schedule", job.Schedule),
			logger.Time("next_run", job.NextRun),
		)
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 6. GRACEFUL SHUTDOWN
	// ─────────────────────────────────────────────────────────────────────────
	<-ctx.Done()
	log.Info("starting graceful shutdown", logger.Duration("timeout", cfg.App.ShutdownTimeout))

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.App.ShutdownTimeout)
	defer cancel()

	stopped := make(chan struct{})
	go func() {
		_ = sched.Stop()
		close(stopped)
	}()
	select {
	case <-stopped:
	case <-shutdownCtx.Done():
		log.Warn("jobs did not stop before the shutdown timeout")
	}

	if err := probe.Shutdown(shutdownCtx); err != nil {
		log.Warn("metrics server shutdown failed", logger.Err(err))
	}
	log.Info("shutdown completed successfully")
	return nil
}
