package main

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// =============================================================================
// Config Types
// =============================================================================

// Config holds all application configuration.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Log       LogConfig       `mapstructure:"log"`
	Exchange  ExchangeConfig  `mapstructure:"exchange"`
	Workers   WorkersConfig   `mapstructure:"workers"`
	Inventory InventoryConfig `mapstructure:"inventory"`
	Snapshot  SnapshotConfig  `mapstructure:"snapshot"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// Address returns the server address in host:port format.
func (c ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// DatabaseConfig holds database configuration.
type DatabaseConfig struct {
	DSN string `mapstructure:"dsn"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// ExchangeConfig holds exchange rate provider configuration.
type ExchangeConfig struct {
	// APIURL is the live CNY rate endpoint.
	APIURL string `mapstructure:"api_url"`

	// CacheDir is where per-month rate cache files live.
	CacheDir string `mapstructure:"cache_dir"`

	// Timeout bounds a single live fetch.
	Timeout time.Duration `mapstructure:"timeout"`

	// CurrentMonthTTL is how long a cached current-month rate stays fresh.
	CurrentMonthTTL time.Duration `mapstructure:"current_month_ttl"`
}

// WorkersConfig holds background worker configuration.
type WorkersConfig struct {
	// PriceRefreshInterval is how often cached per-server charges are
	// recomputed for the active billing period.
	PriceRefreshInterval time.Duration `mapstructure:"price_refresh_interval"`

	// InventorySyncInterval is how often provider inventories are
	// reconciled against fleet records.
	InventorySyncInterval time.Duration `mapstructure:"inventory_sync_interval"`
}

// InventoryConfig holds cloud provider inventory configuration.
type InventoryConfig struct {
	// Enabled determines if inventory reconciliation runs at all.
	// When false, servers are managed purely through the API.
	Enabled bool `mapstructure:"enabled"`

	Hetzner      HetznerConfig      `mapstructure:"hetzner"`
	DigitalOcean DigitalOceanConfig `mapstructure:"digitalocean"`
	AWS          AWSConfig          `mapstructure:"aws"`
}

// HetznerConfig holds Hetzner Cloud credentials.
type HetznerConfig struct {
	// APIToken enables the Hetzner source when non-empty.
	// Set via VPSFLEET_INVENTORY_HETZNER_API_TOKEN.
	APIToken string `mapstructure:"api_token"`
}

// DigitalOceanConfig holds DigitalOcean credentials.
type DigitalOceanConfig struct {
	// APIToken enables the DigitalOcean source when non-empty.
	// Set via VPSFLEET_INVENTORY_DIGITALOCEAN_API_TOKEN.
	APIToken string `mapstructure:"api_token"`
}

// AWSConfig holds AWS EC2 credentials.
type AWSConfig struct {
	// AccessKeyID and SecretAccessKey enable the EC2 source when both
	// are non-empty.
	AccessKeyID     string `mapstructure:"access_key_id"`
	SecretAccessKey string `mapstructure:"secret_access_key"`
	Region          string `mapstructure:"region"`
}

// SnapshotConfig holds YAML fleet file configuration.
type SnapshotConfig struct {
	// BootstrapPath is a legacy fleet file imported on startup when the
	// database holds no servers yet. A missing file is not an error.
	BootstrapPath string `mapstructure:"bootstrap_path"`

	// ExportPath, when set, is where the fleet is written on graceful
	// shutdown.
	ExportPath string `mapstructure:"export_path"`
}

// =============================================================================
// Config Loading
// =============================================================================

// LoadConfig loads configuration from file and environment.
func LoadConfig(configPath string) (*Config, error) {
	v := viper.New()

	// Set defaults
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.write_timeout", "60s")
	v.SetDefault("server.shutdown_timeout", "30s")
	v.SetDefault("database.dsn", "./data/vpsfleet.db")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	// Exchange rate defaults
	v.SetDefault("exchange.api_url", "https://api.exchangerate-api.com/v4/latest/CNY")
	v.SetDefault("exchange.cache_dir", "./data/exchange_rates")
	v.SetDefault("exchange.timeout", "10s")
	v.SetDefault("exchange.current_month_ttl", "24h")

	// Worker defaults
	v.SetDefault("workers.price_refresh_interval", "1h")
	v.SetDefault("workers.inventory_sync_interval", "15m")

	// Inventory defaults (disabled; all records come through the API)
	v.SetDefault("inventory.enabled", false)
	v.SetDefault("inventory.hetzner.api_token", "")
	v.SetDefault("inventory.digitalocean.api_token", "")
	v.SetDefault("inventory.aws.access_key_id", "")
	v.SetDefault("inventory.aws.secret_access_key", "")
	v.SetDefault("inventory.aws.region", "us-east-1")

	// Snapshot defaults (no file-based import/export)
	v.SetDefault("snapshot.bootstrap_path", "")
	v.SetDefault("snapshot.export_path", "")

	// Load from file if provided
	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			// Only return error if file was explicitly specified and is invalid
			if _, ok := err.(viper.ConfigParseError); ok {
				return nil, fmt.Errorf("failed to parse config file: %w", err)
			}
			// File not found is OK, we'll use defaults
		}
	}

	// Enable environment variable overrides
	v.SetEnvPrefix("VPSFLEET")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Unmarshal config
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &cfg, nil
}

// =============================================================================
// Logger Setup
// =============================================================================

// SetupLogger creates a logger with the configured level and format.
func SetupLogger(cfg *Config) *slog.Logger {
	var level slog.Level
	switch strings.ToLower(cfg.Log.Level) {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn", "warning":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{
		Level: level,
	}

	var handler slog.Handler
	if strings.ToLower(cfg.Log.Format) == "text" {
		handler = slog.NewTextHandler(os.Stdout, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}

	return slog.New(handler)
}
