// Package config provides configuration management for the transaction ledger.
// It loads configuration from environment variables and .env files.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/tx-ledger/internal/types"
)

// Config holds all application configuration
type Config struct {
	Server    ServerConfig
	Storage   StorageConfig
	Database  DatabaseConfig
	Chains    ChainsConfig
	Reconcile ReconcileConfig
	Session   SessionConfig
	Pricing   PricingConfig
	Logging   LoggingConfig
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port              string
	Host              string
	ReadTimeout       time.Duration
	WriteTimeout      time.Duration
	IdleTimeout       time.Duration
	ShutdownTimeout   time.Duration
	RequestsPerSecond float64 // Per client IP
	RateLimitBurst    int
}

// StorageConfig selects and sizes the ledger's slot backend
type StorageConfig struct {
	Backend        string // memory, file, redis, postgres
	FileDir        string
	Slot           string
	LegacySlot     string
	MaxRecords     int
	ArchiveEvicted bool // Copy evicted records to ClickHouse
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Postgres   PostgresConfig
	ClickHouse ClickHouseConfig
	Redis      RedisConfig
}

// PostgresConfig holds Postgres configuration
type PostgresConfig struct {
	Host           string
	Port           string
	Database       string
	User           string
	Password       string
	MaxConnections int
	MigrationsPath string
}

// URL returns the connection URL understood by golang-migrate
func (c PostgresConfig) URL() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=disable",
		c.User, c.Password, c.Host, c.Port, c.Database)
}

// ClickHouseConfig holds ClickHouse configuration
type ClickHouseConfig struct {
	Host           string
	Port           string
	Database       string
	User           string
	Password       string
	MigrationsPath string
}

// RedisConfig holds Redis configuration
type RedisConfig struct {
	Host           string
	Port           string
	Password       string
	DB             int
	MaxConnections int
	KeyPrefix      string
}

// ChainsConfig holds chain configuration
type ChainsConfig struct {
	Enabled []types.ChainID
	Chains  map[types.ChainID]ChainConfig
}

// ChainConfig holds configuration for a specific chain
type ChainConfig struct {
	RPCURL    string
	Contracts []string      // Protocol contracts scanned during discovery
	Tokens    []TokenConfig // ERC-20 tokens whose transfers can be decoded
}

// TokenConfig describes a known ERC-20 token
type TokenConfig struct {
	Address  string
	Symbol   string
	Decimals int
}

// ReconcileConfig holds refresh, discovery and RPC protection settings
type ReconcileConfig struct {
	RefreshInterval      time.Duration
	DiscoveryBlockWindow uint64
	RPCRequestsPerSecond float64
	RPCBurst             int
	RetryAttempts        int
	RetryInitialDelay    time.Duration
	BreakerMaxFailures   int
	BreakerTimeout       time.Duration
}

// SessionConfig seeds the account context when the service starts
type SessionConfig struct {
	UserAddress string
	ChainID     types.ChainID
}

// PricingConfig holds the static USD price table, keyed by token symbol
type PricingConfig struct {
	Prices map[string]string
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string
	Format string
}

// LoadConfig loads configuration from .env file and environment variables
func LoadConfig() (*Config, error) {
	// .env is optional, environment variables can be set directly
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("error loading .env file: %w", err)
	}

	sessionChain, _ := types.ParseChainID(getEnv("SESSION_CHAIN_ID", "1"))

	cfg := &Config{
		Server: ServerConfig{
			Port:              getEnv("SERVER_PORT", "8080"),
			Host:              getEnv("SERVER_HOST", "0.0.0.0"),
			ReadTimeout:       getEnvAsDuration("SERVER_READ_TIMEOUT", 15*time.Second),
			WriteTimeout:      getEnvAsDuration("SERVER_WRITE_TIMEOUT", 60*time.Second),
			IdleTimeout:       getEnvAsDuration("SERVER_IDLE_TIMEOUT", 60*time.Second),
			ShutdownTimeout:   getEnvAsDuration("SERVER_SHUTDOWN_TIMEOUT", 15*time.Second),
			RequestsPerSecond: getEnvAsFloat("SERVER_REQUESTS_PER_SECOND", 20),
			RateLimitBurst:    getEnvAsInt("SERVER_RATE_LIMIT_BURST", 40),
		},
		Storage: StorageConfig{
			Backend:        strings.ToLower(getEnv("STORAGE_BACKEND", "file")),
			FileDir:        getEnv("STORAGE_FILE_DIR", "./data"),
			Slot:           getEnv("STORAGE_SLOT", "ledger.transactions.v2"),
			LegacySlot:     getEnv("STORAGE_LEGACY_SLOT", "ledger.transactions"),
			MaxRecords:     getEnvAsInt("STORAGE_MAX_RECORDS", 1000),
			ArchiveEvicted: getEnvAsBool("STORAGE_ARCHIVE_EVICTED", false),
		},
		Database: DatabaseConfig{
			Postgres: PostgresConfig{
				Host:           getEnv("POSTGRES_HOST", "localhost"),
				Port:           getEnv("POSTGRES_PORT", "5432"),
				Database:       getEnv("POSTGRES_DB", "tx_ledger"),
				User:           getEnv("POSTGRES_USER", "ledger"),
				Password:       getEnv("POSTGRES_PASSWORD", ""),
				MaxConnections: getEnvAsInt("POSTGRES_MAX_CONNECTIONS", 10),
				MigrationsPath: getEnv("POSTGRES_MIGRATIONS_PATH", "migrations/postgres"),
			},
			ClickHouse: ClickHouseConfig{
				Host:           getEnv("CLICKHOUSE_HOST", "localhost"),
				Port:           getEnv("CLICKHOUSE_PORT", "9000"),
				Database:       getEnv("CLICKHOUSE_DB", "tx_ledger"),
				User:           getEnv("CLICKHOUSE_USER", "default"),
				Password:       getEnv("CLICKHOUSE_PASSWORD", ""),
				MigrationsPath: getEnv("CLICKHOUSE_MIGRATIONS_PATH", "migrations/clickhouse"),
			},
			Redis: RedisConfig{
				Host:           getEnv("REDIS_HOST", "localhost"),
				Port:           getEnv("REDIS_PORT", "6379"),
				Password:       getEnv("REDIS_PASSWORD", ""),
				DB:             getEnvAsInt("REDIS_DB", 0),
				MaxConnections: getEnvAsInt("REDIS_MAX_CONNECTIONS", 10),
				KeyPrefix:      getEnv("REDIS_KEY_PREFIX", "txledger:"),
			},
		},
		Reconcile: ReconcileConfig{
			RefreshInterval:      getEnvAsDuration("REFRESH_INTERVAL", 30*time.Second),
			DiscoveryBlockWindow: uint64(getEnvAsInt("DISCOVERY_BLOCK_WINDOW", 5000)),
			RPCRequestsPerSecond: getEnvAsFloat("RPC_REQUESTS_PER_SECOND", 10),
			RPCBurst:             getEnvAsInt("RPC_BURST", 5),
			RetryAttempts:        getEnvAsInt("RPC_RETRY_ATTEMPTS", 3),
			RetryInitialDelay:    getEnvAsDuration("RPC_RETRY_INITIAL_DELAY", 500*time.Millisecond),
			BreakerMaxFailures:   getEnvAsInt("RPC_BREAKER_MAX_FAILURES", 5),
			BreakerTimeout:       getEnvAsDuration("RPC_BREAKER_TIMEOUT", 30*time.Second),
		},
		Session: SessionConfig{
			UserAddress: getEnv("SESSION_USER_ADDRESS", ""),
			ChainID:     sessionChain,
		},
		Pricing: PricingConfig{
			Prices: getEnvAsPairs("PRICE_TABLE_USD"),
		},
		Logging: LoggingConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "json"),
		},
	}

	chains, err := loadChainConfigs()
	if err != nil {
		return nil, err
	}
	cfg.Chains = chains

	return cfg, nil
}

// loadChainConfigs loads chain-specific configurations.
// Per-chain variables are prefixed with the upper-cased network name, e.g. BASE_RPC_URL.
func loadChainConfigs() (ChainsConfig, error) {
	result := ChainsConfig{Chains: make(map[types.ChainID]ChainConfig)}

	for _, raw := range getEnvAsList("ENABLED_CHAINS", "ethereum") {
		chainID, ok := types.ParseChainID(raw)
		if !ok {
			return ChainsConfig{}, fmt.Errorf("unknown chain in ENABLED_CHAINS: %q", raw)
		}

		prefix := chainEnvPrefix(chainID)
		tokens, err := parseTokens(getEnv(prefix+"_TOKENS", ""))
		if err != nil {
			return ChainsConfig{}, fmt.Errorf("%s_TOKENS: %w", prefix, err)
		}

		result.Enabled = append(result.Enabled, chainID)
		result.Chains[chainID] = ChainConfig{
			RPCURL:    getEnv(prefix+"_RPC_URL", ""),
			Contracts: getEnvAsList(prefix+"_CONTRACTS", ""),
			Tokens:    tokens,
		}
	}

	return result, nil
}

func chainEnvPrefix(chainID types.ChainID) string {
	name := chainID.Name()
	if name == chainID.String() {
		return "CHAIN_" + name
	}
	return strings.ToUpper(name)
}

// parseTokens parses "address:SYMBOL:decimals" entries separated by commas
func parseTokens(value string) ([]TokenConfig, error) {
	var tokens []TokenConfig
	for _, entry := range splitList(value) {
		parts := strings.Split(entry, ":")
		if len(parts) != 3 {
			return nil, fmt.Errorf("token entry %q must be address:symbol:decimals", entry)
		}
		decimals, err := strconv.Atoi(parts[2])
		if err != nil || decimals < 0 {
			return nil, fmt.Errorf("token entry %q has invalid decimals", entry)
		}
		tokens = append(tokens, TokenConfig{
			Address:  strings.TrimSpace(parts[0]),
			Symbol:   strings.TrimSpace(parts[1]),
			Decimals: decimals,
		})
	}
	return tokens, nil
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
	value, err := strconv.Atoi(getEnv(key, ""))
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	value, err := strconv.ParseFloat(getEnv(key, ""), 64)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsBool(key string, defaultValue bool) bool {
	value, err := strconv.ParseBool(getEnv(key, ""))
	if err != nil {
		return defaultValue
	}
	return value
}

// getEnvAsDuration gets an environment variable as a duration with a default value
func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	value, err := time.ParseDuration(getEnv(key, ""))
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsList(key, defaultValue string) []string {
	return splitList(getEnv(key, defaultValue))
}

// getEnvAsPairs parses "K=V,K2=V2"
func getEnvAsPairs(key string) map[string]string {
	pairs := make(map[string]string)
	for _, entry := range splitList(getEnv(key, "")) {
		k, v, ok := strings.Cut(entry, "=")
		if !ok {
			continue
		}
		pairs[strings.ToUpper(strings.TrimSpace(k))] = strings.TrimSpace(v)
	}
	return pairs
}

func splitList(value string) []string {
	var out []string
	for _, item := range strings.Split(value, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
