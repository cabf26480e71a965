package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/healthchain/marketplace/common/cache"
	"github.com/healthchain/marketplace/common/config"
	"github.com/healthchain/marketplace/common/db"
	"github.com/healthchain/marketplace/common/logger"
	"github.com/healthchain/marketplace/common/redis"
	"github.com/healthchain/marketplace/common/telemetry"
)

// Components is the shared infrastructure of one process.
// DB, Redis, Cache and Telemetry are nil when disabled.
type Components struct {
	Config    *config.Config
	Logger    *logger.Logger
	DB        *db.DB
	Redis     *redis.Client
	Cache     cache.Cache
	Telemetry *telemetry.Telemetry

	mu       sync.Mutex
	cleanups []func() error
}

// AddCleanup registers fn to run on Shutdown. Cleanups run in reverse
// registration order, so the container's vault and ledger close before the
// connections Setup opened.
func (c *Components) AddCleanup(fn func() error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cleanups = append(c.cleanups, fn)
}

// Shutdown releases everything registered with AddCleanup. It is safe to
// call more than once.
func (c *Components) Shutdown(ctx context.Context) error {
	c.mu.Lock()
	pending := c.cleanups
	c.cleanups = nil
	c.mu.Unlock()

	if len(pending) == 0 {
		return nil
	}
	c.Logger.Info("shutting down components", "count", len(pending))

	var errs []error
	for i := len(pending) - 1; i >= 0; i-- {
		if err := pending[i](); err != nil {
			c.Logger.Error("cleanup failed", "error", err)
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("shutdown: %w", errors.Join(errs...))
	}

	c.Logger.Info("shutdown complete")
	return nil
}

// Health pings the infrastructure that can fail at runtime. The map is
// empty when only in-process components are in use.
func (c *Components) Health(ctx context.Context) map[string]bool {
	status := make(map[string]bool)
	if c.DB != nil {
		status["database"] = c.DB.Health(ctx) == nil
	}
	if c.Redis != nil {
		status["redis"] = c.Redis.Health(ctx) == nil
	}
	return status
}
