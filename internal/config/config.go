package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
)

// Config holds all configuration for the server and CLI
type Config struct {
	Server    ServerConfig
	Proxy     ProxyConfig
	Chain     ChainConfig
	Storage   StorageConfig
	Logging   LoggingConfig
	Metrics   MetricsConfig
	RateLimit RateLimitConfig
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port           int
	Host           string
	ReadTimeout    int // seconds
	WriteTimeout   int // seconds
	IdleTimeout    int // seconds
	RequestTimeout int // seconds
}

// ProxyConfig controls whether forwarded client addresses are trusted
type ProxyConfig struct {
	// TrustProxy honors X-Forwarded-For and X-Real-IP. Enable only behind a
	// reverse proxy that sets them.
	TrustProxy bool
}

// ChainConfig describes the endpoint the server binds to and how local
// test chains are recognized.
type ChainConfig struct {
	RPCURL                string
	ChainID               int64  // 0 means unset
	MockChains            string // "id=url,id=url"
	LocalClients          []string
	StrictRelayerMetadata bool
}

// StorageConfig holds key cache storage configuration
type StorageConfig struct {
	Type     string // "memory", "sqlite", "postgres" or "leveldb"
	Memory   MemoryConfig
	Postgres PostgresConfig
	SQLite   SQLiteConfig
	LevelDB  LevelDBConfig
}

// MemoryConfig holds in-memory cache settings
type MemoryConfig struct {
	Size int
}

// PostgresConfig holds Postgres connection settings
type PostgresConfig struct {
	URL string
}

// SQLiteConfig holds SQLite settings
type SQLiteConfig struct {
	Path string
}

// LevelDBConfig holds LevelDB settings
type LevelDBConfig struct {
	Path string
}

// LoggingConfig holds logging settings
type LoggingConfig struct {
	Level  string
	Format string // "text" or "json"
}

// MetricsConfig holds Prometheus settings
type MetricsConfig struct {
	Enabled bool
}

// RateLimitConfig holds rate limiting settings
type RateLimitConfig struct {
	Enabled        bool
	RequestsPerMin int
	BurstSize      int
	CleanupMinutes int
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Port:           getEnvInt("PORT", 8080),
			Host:           getEnv("HOST", "0.0.0.0"),
			ReadTimeout:    getEnvInt("SERVER_READ_TIMEOUT", 30),
			WriteTimeout:   getEnvInt("SERVER_WRITE_TIMEOUT", 60),
			IdleTimeout:    getEnvInt("SERVER_IDLE_TIMEOUT", 120),
			RequestTimeout: getEnvInt("SERVER_REQUEST_TIMEOUT", 30),
		},
		Proxy: ProxyConfig{
			TrustProxy: getEnvBool("TRUST_PROXY", false),
		},
		Chain: ChainConfig{
			RPCURL:                getEnv("RPC_URL", ""),
			ChainID:               getEnvInt64("CHAIN_ID", 0),
			MockChains:            getEnv("MOCK_CHAINS", ""),
			LocalClients:          getEnvStringSlice("LOCAL_CLIENTS", []string{"hardhat"}),
			StrictRelayerMetadata: getEnvBool("STRICT_RELAYER_METADATA", false),
		},
		Storage: StorageConfig{
			Type: getEnv("KEY_CACHE_TYPE", "memory"),
			Memory: MemoryConfig{
				Size: getEnvInt("KEY_CACHE_SIZE", 128),
			},
			Postgres: PostgresConfig{
				URL: getEnv("DATABASE_URL", ""),
			},
			SQLite: SQLiteConfig{
				Path: getEnv("SQLITE_PATH", "./data/fhevmkit.db"),
			},
			LevelDB: LevelDBConfig{
				Path: getEnv("LEVELDB_PATH", "./data/keycache"),
			},
		},
		Logging: LoggingConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "json"),
		},
		Metrics: MetricsConfig{
			Enabled: getEnvBool("METRICS_ENABLED", true),
		},
		RateLimit: RateLimitConfig{
			Enabled:        getEnvBool("RATE_LIMIT_ENABLED", true),
			RequestsPerMin: getEnvInt("RATE_LIMIT_RPM", 60),
			BurstSize:      getEnvInt("RATE_LIMIT_BURST", 10),
			CleanupMinutes: getEnvInt("RATE_LIMIT_CLEANUP_MINUTES", 10),
		},
	}

	// If DATABASE_URL is set, default to postgres
	if cfg.Storage.Postgres.URL != "" && os.Getenv("KEY_CACHE_TYPE") == "" {
		cfg.Storage.Type = "postgres"
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate reports every invalid setting at once.
func (c *Config) Validate() error {
	var errs []error

	switch c.Storage.Type {
	case "memory", "sqlite", "leveldb":
	case "postgres":
		if c.Storage.Postgres.URL == "" {
			errs = append(errs, errors.New("DATABASE_URL is required for the postgres key cache"))
		}
	default:
		errs = append(errs, fmt.Errorf("KEY_CACHE_TYPE: unknown key cache %q", c.Storage.Type))
	}
	if c.Storage.Type == "memory" && c.Storage.Memory.Size <= 0 {
		errs = append(errs, fmt.Errorf("KEY_CACHE_SIZE must be positive, got %d", c.Storage.Memory.Size))
	}
	if c.Chain.ChainID < 0 {
		errs = append(errs, fmt.Errorf("CHAIN_ID must be positive, got %d", c.Chain.ChainID))
	}
	if c.Logging.Format != "json" && c.Logging.Format != "text" {
		errs = append(errs, fmt.Errorf("LOG_FORMAT must be json or text, got %q", c.Logging.Format))
	}
	if c.RateLimit.Enabled && (c.RateLimit.RequestsPerMin <= 0 || c.RateLimit.BurstSize <= 0) {
		errs = append(errs, errors.New("RATE_LIMIT_RPM and RATE_LIMIT_BURST must be positive when rate limiting is enabled"))
	}

	return errors.Join(errs...)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.ParseInt(value, 10, 64); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return strings.ToLower(value) == "true" || value == "1"
	}
	return defaultValue
}

func getEnvStringSlice(key string, defaultValue []string) []string {
	if value := os.Getenv(key); value != "" {
		parts := strings.Split(value, ",")
		result := make([]string, 0, len(parts))
		for _, p := range parts {
			if trimmed := strings.TrimSpace(p); trimmed != "" {
				result = append(result, trimmed)
			}
		}
		if len(result) > 0 {
			return result
		}
	}
	return defaultValue
}
