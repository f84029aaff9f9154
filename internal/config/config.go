// Package config provides configuration management for the vault scanner
// application. It loads configuration from environment variables and .env
// files, plus a JSON vault registry file.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all application configuration
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Chain    ChainConfig
	Oracle   OracleConfig
	Cron     CronConfig
	Backfill BackfillConfig
	Snapshot SnapshotConfig
	Metrics  MetricsConfig
	Vaults   VaultsConfig
	Logging  LoggingConfig
}

// ServerConfig holds server configuration
type ServerConfig struct {
	Port            string
	Host            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Postgres PostgresConfig
	Redis    RedisConfig
}

// PostgresConfig holds Postgres configuration
type PostgresConfig struct {
	Host           string
	Port           string
	Database       string
	User           string
	Password       string
	MaxConnections int
}

// RedisConfig holds Redis configuration
type RedisConfig struct {
	Host           string
	Port           string
	Password       string
	DB             int
	MaxConnections int
}

// ChainConfig holds the program gateway configuration. The gateway is the
// service wrapping the on-chain program SDK; everything here talks to it
// over HTTP.
type ChainConfig struct {
	GatewayBaseURL string
	RequestTimeout time.Duration
}

// OracleConfig holds the historical price oracle API configuration
type OracleConfig struct {
	BaseURL           string
	RequestsPerSecond int
	RequestTimeout    time.Duration
}

// CronConfig holds configuration for the scheduled trigger endpoints
type CronConfig struct {
	// Secret is the bearer token shared with the external scheduler.
	Secret string
}

// BackfillConfig holds depositor record backfill configuration
type BackfillConfig struct {
	// MaxTxnsPerPage is the upstream log source page size.
	MaxTxnsPerPage int
	// TxnsPageBuffer tolerates intermittent short pages from the upstream
	// source when deciding whether pagination has reached the end.
	TxnsPageBuffer int
	// MaxPages bounds the pagination loop.
	MaxPages int
	// InsertBatchSize is the number of rows per bulk insert.
	InsertBatchSize int
}

// SnapshotConfig holds vault snapshot capture configuration
type SnapshotConfig struct {
	MaxAttempts int
	RetryDelay  time.Duration
}

// MetricsConfig holds metrics aggregation configuration
type MetricsConfig struct {
	// MinVaultsForCacheWrite guards against a partial upstream run silently
	// wiping good cached data: a cycle producing fewer results is not written.
	MinVaultsForCacheWrite int
}

// VaultsConfig holds the vault registry location
type VaultsConfig struct {
	RegistryPath string
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string
	Format string
}

// LoadConfig loads configuration from .env file and environment variables
func LoadConfig() (*Config, error) {
	// Load .env file (optional in production)
	if err := godotenv.Load(); err != nil {
		// .env file is optional - environment variables can be set directly
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("error loading .env file: %w", err)
		}
	}

	config := &Config{
		Server: ServerConfig{
			Port:            getEnv("SERVER_PORT", "8080"),
			Host:            getEnv("SERVER_HOST", "0.0.0.0"),
			ReadTimeout:     getEnvAsDuration("SERVER_READ_TIMEOUT", 15*time.Second),
			WriteTimeout:    getEnvAsDuration("SERVER_WRITE_TIMEOUT", 60*time.Second),
			IdleTimeout:     getEnvAsDuration("SERVER_IDLE_TIMEOUT", 120*time.Second),
			ShutdownTimeout: getEnvAsDuration("SERVER_SHUTDOWN_TIMEOUT", 30*time.Second),
		},
		Database: DatabaseConfig{
			Postgres: PostgresConfig{
				Host:           getEnv("POSTGRES_HOST", "localhost"),
				Port:           getEnv("POSTGRES_PORT", "5432"),
				Database:       getEnv("POSTGRES_DB", "vault_scanner"),
				User:           getEnv("POSTGRES_USER", "scanner"),
				Password:       getEnv("POSTGRES_PASSWORD", ""),
				MaxConnections: getEnvAsInt("POSTGRES_MAX_CONNECTIONS", 100),
			},
			Redis: RedisConfig{
				Host:           getEnv("REDIS_HOST", "localhost"),
				Port:           getEnv("REDIS_PORT", "6379"),
				Password:       getEnv("REDIS_PASSWORD", ""),
				DB:             getEnvAsInt("REDIS_DB", 0),
				MaxConnections: getEnvAsInt("REDIS_MAX_CONNECTIONS", 50),
			},
		},
		Chain: ChainConfig{
			GatewayBaseURL: getEnv("CHAIN_GATEWAY_URL", "http://localhost:9090"),
			RequestTimeout: getEnvAsDuration("CHAIN_GATEWAY_TIMEOUT", 30*time.Second),
		},
		Oracle: OracleConfig{
			BaseURL:           getEnv("ORACLE_BASE_URL", "https://benchmarks.pyth.network"),
			RequestsPerSecond: getEnvAsInt("ORACLE_REQUESTS_PER_SECOND", 5),
			RequestTimeout:    getEnvAsDuration("ORACLE_REQUEST_TIMEOUT", 10*time.Second),
		},
		Cron: CronConfig{
			Secret: getEnv("CRON_SECRET", ""),
		},
		Backfill: BackfillConfig{
			MaxTxnsPerPage:  getEnvAsInt("BACKFILL_MAX_TXNS_PER_PAGE", 1000),
			TxnsPageBuffer:  getEnvAsInt("BACKFILL_TXNS_PAGE_BUFFER", 200),
			MaxPages:        getEnvAsInt("BACKFILL_MAX_PAGES", 500),
			InsertBatchSize: getEnvAsInt("BACKFILL_INSERT_BATCH_SIZE", 1000),
		},
		Snapshot: SnapshotConfig{
			MaxAttempts: getEnvAsInt("SNAPSHOT_MAX_ATTEMPTS", 3),
			RetryDelay:  getEnvAsDuration("SNAPSHOT_RETRY_DELAY", 5*time.Second),
		},
		Metrics: MetricsConfig{
			MinVaultsForCacheWrite: getEnvAsInt("METRICS_MIN_VAULTS_FOR_CACHE_WRITE", 2),
		},
		Vaults: VaultsConfig{
			RegistryPath: getEnv("VAULT_REGISTRY_PATH", "vaults.json"),
		},
		Logging: LoggingConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "json"),
		},
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

// Validate checks configuration invariants that would otherwise surface as
// runtime failures deep inside a job.
func (c *Config) Validate() error {
	if c.Backfill.MaxTxnsPerPage <= 0 {
		return fmt.Errorf("BACKFILL_MAX_TXNS_PER_PAGE must be positive, got %d", c.Backfill.MaxTxnsPerPage)
	}
	if c.Backfill.TxnsPageBuffer < 0 || c.Backfill.TxnsPageBuffer >= c.Backfill.MaxTxnsPerPage {
		return fmt.Errorf("BACKFILL_TXNS_PAGE_BUFFER must be in [0, %d), got %d", c.Backfill.MaxTxnsPerPage, c.Backfill.TxnsPageBuffer)
	}
	if c.Backfill.MaxPages <= 0 {
		return fmt.Errorf("BACKFILL_MAX_PAGES must be positive, got %d", c.Backfill.MaxPages)
	}
	if c.Backfill.InsertBatchSize <= 0 {
		return fmt.Errorf("BACKFILL_INSERT_BATCH_SIZE must be positive, got %d", c.Backfill.InsertBatchSize)
	}
	if c.Snapshot.MaxAttempts <= 0 {
		return fmt.Errorf("SNAPSHOT_MAX_ATTEMPTS must be positive, got %d", c.Snapshot.MaxAttempts)
	}
	return nil
}

// getEnv gets an environment variable with a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsInt gets an environment variable as an integer with a default value
func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

// getEnvAsDuration gets an environment variable as a duration with a default value
func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}

	value, err := time.ParseDuration(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}
