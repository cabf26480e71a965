package bootstrap

import (
	"github.com/healthchain/marketplace/common/config"
	"github.com/healthchain/marketplace/common/db"
	"github.com/healthchain/marketplace/common/logger"
)

// Option adjusts how Setup builds components. Postgres, Redis and the cache
// are switched by configuration (INDEX_ENABLED, REDIS_ENABLED,
// CACHE_ENABLED), not by options.
type Option func(*setupOptions)

type setupOptions struct {
	config        *config.Config
	log           *logger.Logger
	noTelemetry   bool
	onDBConnected func(*db.DB) error
}

func newSetupOptions(opts []Option) *setupOptions {
	o := &setupOptions{}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// WithCustomConfig skips loading from the environment
func WithCustomConfig(cfg *config.Config) Option {
	return func(o *setupOptions) { o.config = cfg }
}

// WithCustomLogger replaces the logger built from LOG_LEVEL and LOG_FORMAT
func WithCustomLogger(log *logger.Logger) Option {
	return func(o *setupOptions) { o.log = log }
}

// WithoutTelemetry leaves Components.Telemetry nil even when metrics are
// enabled. Tests use it to avoid registering collectors per run.
func WithoutTelemetry() Option {
	return func(o *setupOptions) { o.noTelemetry = true }
}

// WithDBInitHook runs hook once the index database is reachable. The
// marketplace passes repository.EnsureSchema here.
func WithDBInitHook(hook func(*db.DB) error) Option {
	return func(o *setupOptions) { o.onDBConnected = hook }
}
