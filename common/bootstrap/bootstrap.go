package bootstrap

import (
	"context"
	"fmt"

	"github.com/healthchain/marketplace/common/cache"
	"github.com/healthchain/marketplace/common/config"
	"github.com/healthchain/marketplace/common/db"
	"github.com/healthchain/marketplace/common/logger"
	"github.com/healthchain/marketplace/common/redis"
	"github.com/healthchain/marketplace/common/telemetry"
)

// Setup initializes the shared infrastructure of a service.
// Domain adapters (ledger, content store, vault) are built by the
// service's own container on top of these components.
func Setup(ctx context.Context, serviceName string, opts ...Option) (*Components, error) {
	options := newSetupOptions(opts)

	components := &Components{}

	// 1. Load configuration
	var err error
	if options.config != nil {
		components.Config = options.config
	} else {
		components.Config, err = config.Load(serviceName)
		if err != nil {
			return nil, fmt.Errorf("failed to load config: %w", err)
		}
	}
	cfg := components.Config

	// 2. Initialize logger
	if options.log != nil {
		components.Logger = options.log
	} else {
		components.Logger = logger.New(cfg.Service.LogLevel, cfg.Service.LogFormat)
	}

	components.Logger.Info("initializing service",
		"service", serviceName,
		"environment", cfg.Service.Environment,
	)

	// 3. Database, only needed for the dataset index
	if cfg.Index.Enabled {
		components.Logger.Info("connecting to database")
		components.DB, err = db.New(ctx, cfg, components.Logger)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to database: %w", err)
		}

		components.AddCleanup(func() error {
			components.DB.Close()
			return nil
		})

		if options.onDBConnected != nil {
			components.Logger.Info("running database init hook")
			if err := options.onDBConnected(components.DB); err != nil {
				components.Shutdown(ctx)
				return nil, fmt.Errorf("database init hook failed: %w", err)
			}
		}
	}

	// 4. Redis backs rate limiting and the shared cache
	if cfg.Redis.Enabled {
		components.Redis, err = redis.New(ctx, cfg, components.Logger)
		if err != nil {
			components.Shutdown(ctx)
			return nil, fmt.Errorf("failed to connect to redis: %w", err)
		}

		components.AddCleanup(func() error {
			components.Logger.Info("closing redis connection")
			return components.Redis.Close()
		})
	}

	// 5. Cache
	if cfg.Cache.Enabled {
		if components.Redis != nil {
			components.Logger.Info("initializing cache", "type", "redis")
			components.Cache = cache.NewRedisCache(components.Redis, serviceName+":cache:")
		} else {
			components.Logger.Info("initializing cache", "type", "memory")
			components.Cache = cache.NewMemoryCache(components.Logger)
		}

		components.AddCleanup(func() error {
			return components.Cache.Close()
		})
	}

	// 6. Telemetry; the caller serves its Handler
	if !options.noTelemetry && cfg.Telemetry.EnableMetrics {
		components.Logger.Info("initializing telemetry", "metrics_port", cfg.Telemetry.MetricsPort)
		components.Telemetry = telemetry.New(
			cfg.Telemetry.MetricsPort,
			cfg.Telemetry.EnablePprof,
			components.Logger,
		)
	}

	components.Logger.Info("service initialization complete",
		"service", serviceName,
		"db", components.DB != nil,
		"redis", components.Redis != nil,
		"cache", components.Cache != nil,
		"telemetry", components.Telemetry != nil,
	)

	return components, nil
}
