package config

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all service configuration
type Config struct {
	Service   ServiceConfig
	Database  DatabaseConfig
	Redis     RedisConfig
	Cache     CacheConfig
	RateLimit RateLimitConfig
	CORS      CORSConfig
	Store     StoreConfig
	Ledger    LedgerConfig
	Vault     VaultConfig
	Access    AccessConfig
	Index     IndexConfig
	Telemetry TelemetryConfig
	Upload    UploadConfig
	Admin     AdminConfig

	v *viper.Viper
}

// ServiceConfig holds service-specific settings
type ServiceConfig struct {
	Name        string
	Version     string
	Port        int
	Environment string
	LogLevel    string
	LogFormat   string
}

// DatabaseConfig holds Postgres connection settings
type DatabaseConfig struct {
	Host        string
	Port        int
	Database    string
	User        string
	Password    string
	MaxConns    int
	MinConns    int
	MaxIdleTime time.Duration
	MaxLifetime time.Duration
}

// RedisConfig holds Redis connection settings
type RedisConfig struct {
	Enabled  bool
	Host     string
	Port     int
	Password string
	DB       int
}

// CacheConfig holds dataset-info cache settings
type CacheConfig struct {
	Enabled    bool
	DefaultTTL time.Duration
}

// RateLimitConfig holds the global request budget
type RateLimitConfig struct {
	Enabled     bool
	Window      time.Duration
	MaxRequests int64
}

// CORSConfig lists allowed browser origins
type CORSConfig struct {
	Origins []string
}

// StoreConfig holds content-store (Pinata) settings
type StoreConfig struct {
	Driver       string // "pinata" or "memory"
	PinataJWT    string
	APIURL       string
	GatewayURL   string
	FetchTimeout time.Duration
	PutTimeout   time.Duration
}

// LedgerConfig holds blockchain RPC and contract settings
type LedgerConfig struct {
	Driver             string // "eth" or "memory"
	RPCURL             string
	PrivateKey         string
	DatasetSBTAddress  string
	MarketplaceAddress string
	FinalityTimeout    time.Duration
	PollInterval       time.Duration
	GasLimit           uint64
}

// VaultConfig holds key custody settings
type VaultConfig struct {
	Path             string
	MasterSecret     string
	LegacyInlineKeys bool
}

// AccessConfig holds download behavior toggles
type AccessConfig struct {
	// ServeUndecryptable returns ciphertext when an encrypted record has no key
	ServeUndecryptable bool
}

// IndexConfig toggles the Postgres dataset index
type IndexConfig struct {
	Enabled bool
}

// TelemetryConfig holds observability settings
type TelemetryConfig struct {
	EnableMetrics bool
	MetricsPort   int
	EnablePprof   bool
}

// UploadConfig holds upload spooling limits
type UploadConfig struct {
	Dir               string
	MaxBytes          int64
	AllowedExtensions []string
}

// AdminConfig guards maintenance endpoints. An empty token disables them.
type AdminConfig struct {
	Token string
}

// Load loads configuration from environment variables
func Load(serviceName string) (*Config, error) {
	return LoadFile(serviceName, "")
}

// LoadFile loads configuration from an optional TOML file overlaid by the
// environment. Keys in the file use the lower-cased environment names.
func LoadFile(serviceName, path string) (*Config, error) {
	v := viper.New()
	v.AutomaticEnv()
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config file %s: %w", path, err)
		}
	}

	cfg := fromViper(v, serviceName)
	return cfg, cfg.Validate()
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("port", 3001)
	v.SetDefault("environment", "development")
	v.SetDefault("log_level", "info")
	v.SetDefault("log_format", "text")
	v.SetDefault("service_version", "1.0.0")

	v.SetDefault("postgres_host", "localhost")
	v.SetDefault("postgres_port", 5432)
	v.SetDefault("postgres_db", "marketplace")
	v.SetDefault("postgres_user", "marketplace")
	v.SetDefault("postgres_password", "marketplace")
	v.SetDefault("postgres_max_conns", 10)
	v.SetDefault("postgres_min_conns", 2)
	v.SetDefault("postgres_max_idle_time", 30*time.Minute)
	v.SetDefault("postgres_max_lifetime", time.Hour)

	v.SetDefault("redis_enabled", false)
	v.SetDefault("redis_host", "localhost")
	v.SetDefault("redis_port", 6379)
	v.SetDefault("redis_password", "")
	v.SetDefault("redis_db", 0)

	v.SetDefault("cache_enabled", true)
	v.SetDefault("cache_default_ttl", 30*time.Second)

	v.SetDefault("rate_limit_enabled", true)
	v.SetDefault("rate_limit_window_ms", 15*60*1000)
	v.SetDefault("rate_limit_max_requests", 100)

	v.SetDefault("cors_origins", "http://localhost:3000")

	v.SetDefault("store_driver", "pinata")
	v.SetDefault("pinata_api_url", "https://api.pinata.cloud")
	v.SetDefault("pinata_gateway_url", "https://gateway.pinata.cloud")
	v.SetDefault("store_fetch_timeout", 30*time.Second)
	v.SetDefault("store_put_timeout", 5*time.Minute)

	v.SetDefault("ledger_driver", "eth")
	v.SetDefault("blockchain_rpc_url", "http://localhost:8545")
	v.SetDefault("ledger_finality_timeout", 2*time.Minute)
	v.SetDefault("ledger_poll_interval", time.Second)
	v.SetDefault("ledger_gas_limit", 0)

	v.SetDefault("vault_path", "data/keyvault.db")
	v.SetDefault("vault_inline_keys", false)

	v.SetDefault("access_serve_undecryptable", false)
	v.SetDefault("index_enabled", false)

	v.SetDefault("enable_metrics", true)
	v.SetDefault("metrics_port", 9090)
	v.SetDefault("enable_pprof", false)

	v.SetDefault("upload_dir", "uploads")
	v.SetDefault("upload_max_bytes", 100*1024*1024)
	v.SetDefault("upload_allowed_extensions", ".csv,.json,.xml,.txt,.pdf,.xlsx,.zip")

	// No defaults, but they must show up in AllSettings.
	for _, key := range []string{"private_key", "pinata_jwt", "vault_master_key", "dataset_sbt_address", "marketplace_address", "admin_token"} {
		_ = v.BindEnv(key)
	}
}

func fromViper(v *viper.Viper, serviceName string) *Config {
	return &Config{
		Service: ServiceConfig{
			Name:        serviceName,
			Version:     v.GetString("service_version"),
			Port:        v.GetInt("port"),
			Environment: v.GetString("environment"),
			LogLevel:    v.GetString("log_level"),
			LogFormat:   v.GetString("log_format"),
		},
		Database: DatabaseConfig{
			Host:        v.GetString("postgres_host"),
			Port:        v.GetInt("postgres_port"),
			Database:    v.GetString("postgres_db"),
			User:        v.GetString("postgres_user"),
			Password:    v.GetString("postgres_password"),
			MaxConns:    v.GetInt("postgres_max_conns"),
			MinConns:    v.GetInt("postgres_min_conns"),
			MaxIdleTime: v.GetDuration("postgres_max_idle_time"),
			MaxLifetime: v.GetDuration("postgres_max_lifetime"),
		},
		Redis: RedisConfig{
			Enabled:  v.GetBool("redis_enabled"),
			Host:     v.GetString("redis_host"),
			Port:     v.GetInt("redis_port"),
			Password: v.GetString("redis_password"),
			DB:       v.GetInt("redis_db"),
		},
		Cache: CacheConfig{
			Enabled:    v.GetBool("cache_enabled"),
			DefaultTTL: v.GetDuration("cache_default_ttl"),
		},
		RateLimit: RateLimitConfig{
			Enabled:     v.GetBool("rate_limit_enabled"),
			Window:      time.Duration(v.GetInt64("rate_limit_window_ms")) * time.Millisecond,
			MaxRequests: v.GetInt64("rate_limit_max_requests"),
		},
		CORS: CORSConfig{
			Origins: splitList(v.GetString("cors_origins")),
		},
		Store: StoreConfig{
			Driver:       v.GetString("store_driver"),
			PinataJWT:    v.GetString("pinata_jwt"),
			APIURL:       strings.TrimRight(v.GetString("pinata_api_url"), "/"),
			GatewayURL:   strings.TrimRight(v.GetString("pinata_gateway_url"), "/"),
			FetchTimeout: v.GetDuration("store_fetch_timeout"),
			PutTimeout:   v.GetDuration("store_put_timeout"),
		},
		Ledger: LedgerConfig{
			Driver:             v.GetString("ledger_driver"),
			RPCURL:             v.GetString("blockchain_rpc_url"),
			PrivateKey:         v.GetString("private_key"),
			DatasetSBTAddress:  v.GetString("dataset_sbt_address"),
			MarketplaceAddress: v.GetString("marketplace_address"),
			FinalityTimeout:    v.GetDuration("ledger_finality_timeout"),
			PollInterval:       v.GetDuration("ledger_poll_interval"),
			GasLimit:           v.GetUint64("ledger_gas_limit"),
		},
		Vault: VaultConfig{
			Path:             v.GetString("vault_path"),
			MasterSecret:     v.GetString("vault_master_key"),
			LegacyInlineKeys: v.GetBool("vault_inline_keys"),
		},
		Access: AccessConfig{
			ServeUndecryptable: v.GetBool("access_serve_undecryptable"),
		},
		Index: IndexConfig{
			Enabled: v.GetBool("index_enabled"),
		},
		Telemetry: TelemetryConfig{
			EnableMetrics: v.GetBool("enable_metrics"),
			MetricsPort:   v.GetInt("metrics_port"),
			EnablePprof:   v.GetBool("enable_pprof"),
		},
		Upload: UploadConfig{
			Dir:               v.GetString("upload_dir"),
			MaxBytes:          v.GetInt64("upload_max_bytes"),
			AllowedExtensions: splitList(strings.ToLower(v.GetString("upload_allowed_extensions"))),
		},
		Admin: AdminConfig{
			Token: v.GetString("admin_token"),
		},
		v: v,
	}
}

// Validate checks if configuration is valid
func (c *Config) Validate() error {
	if c.Service.Port < 1 || c.Service.Port > 65535 {
		return fmt.Errorf("invalid port: %d", c.Service.Port)
	}

	if c.Index.Enabled {
		if c.Database.Host == "" {
			return fmt.Errorf("database host is required when the index is enabled")
		}
		if c.Database.MaxConns < c.Database.MinConns {
			return fmt.Errorf("max_conns must be >= min_conns")
		}
	}

	switch c.Ledger.Driver {
	case "eth":
		if c.Ledger.RPCURL == "" {
			return fmt.Errorf("BLOCKCHAIN_RPC_URL is required")
		}
		if c.Ledger.PrivateKey == "" {
			return fmt.Errorf("PRIVATE_KEY is required")
		}
		if c.Ledger.DatasetSBTAddress == "" {
			return fmt.Errorf("DATASET_SBT_ADDRESS is required")
		}
		if c.Ledger.FinalityTimeout <= 0 {
			return fmt.Errorf("ledger finality timeout must be positive")
		}
	case "memory":
	default:
		return fmt.Errorf("unknown ledger driver: %s", c.Ledger.Driver)
	}

	switch c.Store.Driver {
	case "pinata":
		if c.Store.PinataJWT == "" {
			return fmt.Errorf("PINATA_JWT is required")
		}
		if c.Store.GatewayURL == "" {
			return fmt.Errorf("PINATA_GATEWAY_URL is required")
		}
	case "memory":
	default:
		return fmt.Errorf("unknown store driver: %s", c.Store.Driver)
	}

	if !c.Vault.LegacyInlineKeys && len(c.Vault.MasterSecret) < 32 {
		return fmt.Errorf("VAULT_MASTER_KEY must be at least 32 characters")
	}

	if c.Upload.MaxBytes <= 0 {
		return fmt.Errorf("upload max bytes must be positive")
	}

	if c.RateLimit.Enabled && (c.RateLimit.MaxRequests <= 0 || c.RateLimit.Window < time.Second) {
		return fmt.Errorf("rate limit requires max_requests > 0 and a window of at least 1s")
	}

	return nil
}

// IsProduction reports whether internal error details must be hidden
func (c *Config) IsProduction() bool {
	return strings.EqualFold(c.Service.Environment, "production")
}

// DatabaseURL returns the PostgreSQL connection string
func (c *Config) DatabaseURL() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=disable",
		c.Database.User,
		c.Database.Password,
		c.Database.Host,
		c.Database.Port,
		c.Database.Database,
	)
}

// RedisAddr returns host:port for the Redis client
func (c *Config) RedisAddr() string {
	return fmt.Sprintf("%s:%d", c.Redis.Host, c.Redis.Port)
}

var secretKeys = map[string]bool{
	"private_key":       true,
	"pinata_jwt":        true,
	"vault_master_key":  true,
	"postgres_password": true,
	"redis_password":    true,
	"admin_token":       true,
}

// String renders the effective settings with secrets redacted
func (c *Config) String() string {
	if c.v == nil {
		return "{}"
	}
	settings := c.v.AllSettings()
	for k := range settings {
		if secretKeys[k] && settings[k] != "" {
			settings[k] = "********"
		}
	}
	blob, err := json.MarshalIndent(settings, "", "  ")
	if err != nil {
		return err.Error()
	}
	return string(blob)
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
