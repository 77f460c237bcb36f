// Package service assembles the application facade from configuration: the
// postgres repositories, the optional redis stats cache, the school API client,
// the token sealer and the calendar encoder. Both binaries build on it.
package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/alem-hub/attendance-hub/config"
	"github.com/alem-hub/attendance-hub/internal/application"
	"github.com/alem-hub/attendance-hub/internal/infrastructure/export"
	"github.com/alem-hub/attendance-hub/internal/infrastructure/external/school"
	"github.com/alem-hub/attendance-hub/internal/infrastructure/metrics"
	"github.com/alem-hub/attendance-hub/internal/infrastructure/persistence/postgres"
	"github.com/alem-hub/attendance-hub/internal/infrastructure/persistence/redis"
	"github.com/alem-hub/attendance-hub/internal/infrastructure/security"
	"github.com/alem-hub/attendance-hub/pkg/logger"
)

// Container owns every long-lived dependency of a process.
type Container struct {
	DB      *postgres.Connection
	Cache   *redis.Cache // nil when redis is disabled or unreachable
	School  *school.Client
	Metrics *metrics.Metrics
	Service *application.Service
}

// Build connects to the stores, applies migrations and wires the facade.
// Redis is optional: a failed connection is logged and the stats cache is
// skipped.
func Build(ctx context.Context, cfg *config.Config, log *logger.Logger) (*Container, error) {
	c := &Container{Metrics: metrics.New()}

	// ─────────────────────────────────────────────────────────────────────────
	// PostgreSQL
	// ─────────────────────────────────────────────────────────────────────────
	pool := postgres.DefaultPoolSettings()
	if cfg.Database.MaxOpenConns > 0 {
		pool.MaxConns = int32(cfg.Database.MaxOpenConns)
	}
	if cfg.Database.MaxIdleConns > 0 {
		pool.MinConns = int32(cfg.Database.MaxIdleConns)
	}
	if cfg.Database.ConnMaxLifetime > 0 {
		pool.MaxConnLifetime = cfg.Database.ConnMaxLifetime
	}
	if cfg.Database.ConnMaxIdleTime > 0 {
		pool.MaxConnIdleTime = cfg.Database.ConnMaxIdleTime
	}

	log.Info("connecting to database")
	db, err := postgres.NewConnectionFromURL(ctx, cfg.Database.URL, pool)
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}
	c.DB = db

	if err := postgres.NewMigrator(db).Migrate(ctx); err != nil {
		c.Close()
		return nil, fmt.Errorf("migrate database: %w", err)
	}
	log.Info("database schema is up to date")

	// ─────────────────────────────────────────────────────────────────────────
	// Redis (optional)
	// ─────────────────────────────────────────────────────────────────────────
	var statsCache *redis.StatsCache
	if !cfg.Redis.Disabled {
		cache, err := redis.NewCache(redis.Config{
			URL:          cfg.Redis.URL,
			Host:         cfg.Redis.Host,
			Port:         cfg.Redis.Port,
			Password:     cfg.Redis.Password,
			DB:           cfg.Redis.DB,
			PoolSize:     cfg.Redis.PoolSize,
			MinIdleConns: cfg.Redis.MinIdleConns,
			DialTimeout:  cfg.Redis.DialTimeout,
			ReadTimeout:  cfg.Redis.ReadTimeout,
			WriteTimeout: cfg.Redis.WriteTimeout,
		})
		if err != nil {
			log.Warn("redis unavailable, stats cache disabled", logger.Err(err))
		} else {
			c.Cache = cache
			statsCache = redis.NewStatsCache(cache, cfg.Sync.StatsCacheTTL)
		}
	}

	// ─────────────────────────────────────────────────────────────────────────
	// School API
	// ─────────────────────────────────────────────────────────────────────────
	c.School = school.NewClient(school.ClientConfig{
		BaseURL:              cfg.School.BaseURL,
		Timeout:              cfg.School.RequestTimeout,
		RateLimit:            float64(cfg.School.RateLimit),
		RateBurst:            cfg.School.RateLimitBurst,
		MaxRetries:           cfg.School.MaxRetries,
		BreakerThreshold:     cfg.School.CircuitBreakerThreshold,
		BreakerTimeout:       cfg.School.CircuitBreakerTimeout,
		OnBreakerStateChange: c.Metrics.BreakerStateChanged,
		Logger:               log,
	})

	// ─────────────────────────────────────────────────────────────────────────
	// Facade
	// ─────────────────────────────────────────────────────────────────────────
	deps := application.Deps{
		Events:      postgres.NewEventRepository(db),
		Rollups:     postgres.NewRollupRepository(db),
		Students:    postgres.NewStudentRepository(db),
		Client:      c.School,
		Encoder:     export.NewICSEncoder("-//attendance-hub//schedule export//EN", cfg.App.Timezone),
		Logger:      log,
		Recorder:    c.Metrics,
		Runs:        c.Metrics,
		Concurrency: cfg.Sync.Concurrency,
		Location:    cfg.App.Location,
	}
	if statsCache != nil {
		deps.Cache = statsCache
	}
	if len(cfg.Security.TokenKey) > 0 {
		box, err := security.NewSecretBox(cfg.Security.TokenKey)
		if err != nil {
			c.Close()
			return nil, fmt.Errorf("token sealer: %w", err)
		}
		deps.Sealer = box
	} else {
		log.Warn("SECURITY_TOKEN_KEY unset, tokens will not be stored and autoSync is disabled")
	}

	c.Service = application.NewService(deps)
	return c, nil
}

// Close releases connections. It is safe to call on a partially built container.
func (c *Container) Close() error {
	var errs []error
	if c.Cache != nil {
		errs = append(errs, c.Cache.Close())
	}
	if c.DB != nil {
		c.DB.Close()
	}
	return errors.Join(errs...)
}
