package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Config holds all configuration for the sentinel node, assembled once at
// startup into an immutable container.
type Config struct {
	Server        ServerConfig
	Chain         ChainConfig
	Wallet        WalletConfig
	Database      DatabaseConfig
	Redis         RedisConfig
	Risk          RiskConfig
	Swarm         SwarmConfig
	Node          NodeConfig
	Observability ObservabilityConfig
	RateLimit     RateLimitConfig
}

type ServerConfig struct {
	Host                string
	Port                int
	RequestTimeout      time.Duration
	MaxBodyBytes        int64
	ReadTimeout         time.Duration
	WriteTimeout        time.Duration
}

type ChainConfig struct {
	RPCURL           string
	WSURL            string
	LaunchpadProgram string
}

type WalletConfig struct {
	PrivateKey  string
	KeypairPath string
}

type DatabaseConfig struct {
	URL             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

type RedisConfig struct {
	URL          string
	PoolSize     int
	MinIdleConns int
}

// RiskConfig carries the process-wide immutable risk parameter defaults
// (§3 RiskParameters). They never change after startup.
type RiskConfig struct {
	MaxPositionSizeBase  uint64
	MaxSlippageBps       int
	MaxPriorityFeeBase   uint64
	ExecutionCooldownMs  int64
}

type SwarmConfig struct {
	Enabled     bool
	LLMProvider string
	LLMAPIKey   string
	LLMModel    string
	LLMMaxTokens int
}

type NodeConfig struct {
	ID                  string
	IntelChannelPrefix  string
	Env                 string
}

type ObservabilityConfig struct {
	ServiceName    string
	LogLevel       string
	LogFormat      string
	JaegerEndpoint string
	MetricsPort    int
}

type RateLimitConfig struct {
	RequestsPerMinute int
	Burst             int
}

const lamportsPerSOL = 1_000_000_000

// Load reads and validates configuration from the process environment.
func Load() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Host:           getEnv("API_HOST", "0.0.0.0"),
			Port:           getIntEnv("API_PORT", 3100),
			RequestTimeout: getDurationEnv("HTTP_REQUEST_TIMEOUT", 30*time.Second),
			MaxBodyBytes:   int64(getIntEnv("HTTP_MAX_BODY_BYTES", 1<<20)),
			ReadTimeout:    getDurationEnv("HTTP_READ_TIMEOUT", 15*time.Second),
			WriteTimeout:   getDurationEnv("HTTP_WRITE_TIMEOUT", 30*time.Second),
		},
		Chain: ChainConfig{
			RPCURL:           getEnv("SOLANA_RPC_URL", ""),
			WSURL:            getEnv("SOLANA_WS_URL", ""),
			LaunchpadProgram: getEnv("LAUNCHPAD_PROGRAM_ID", ""),
		},
		Wallet: WalletConfig{
			PrivateKey:  getEnv("WALLET_PRIVATE_KEY", ""),
			KeypairPath: getEnv("WALLET_KEYPAIR_PATH", ""),
		},
		Database: DatabaseConfig{
			URL:             getEnv("DATABASE_URL", ""),
			MaxOpenConns:    getIntEnv("DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns:    getIntEnv("DB_MAX_IDLE_CONNS", 10),
			ConnMaxLifetime: getDurationEnv("DB_CONN_MAX_LIFETIME", 5*time.Minute),
		},
		Redis: RedisConfig{
			URL:          getEnv("REDIS_URL", ""),
			PoolSize:     getIntEnv("REDIS_POOL_SIZE", 20),
			MinIdleConns: getIntEnv("REDIS_MIN_IDLE_CONNS", 5),
		},
		Risk: RiskConfig{
			MaxPositionSizeBase: uint64(getFloatEnv("MAX_POSITION_SIZE_SOL", 1.0) * lamportsPerSOL),
			MaxSlippageBps:      getIntEnv("MAX_SLIPPAGE_BPS", 500),
			MaxPriorityFeeBase:  uint64(getIntEnv("MAX_PRIORITY_FEE_LAMPORTS", 100_000)),
			ExecutionCooldownMs: int64(getIntEnv("EXECUTION_COOLDOWN_MS", 5000)),
		},
		Swarm: SwarmConfig{
			Enabled:      getBoolEnv("SWARM_ENABLED", false),
			LLMProvider:  getEnv("LLM_PROVIDER", "anthropic"),
			LLMAPIKey:    getEnv("LLM_API_KEY", ""),
			LLMModel:     getEnv("LLM_MODEL", ""),
			LLMMaxTokens: getIntEnv("LLM_MAX_TOKENS", 1024),
		},
		Node: NodeConfig{
			ID:                 getEnv("NODE_ID", uuid.NewString()),
			IntelChannelPrefix: getEnv("INTEL_CHANNEL_PREFIX", "sentinel"),
			Env:                getEnv("NODE_ENV", "development"),
		},
		Observability: ObservabilityConfig{
			ServiceName:    getEnv("OTEL_SERVICE_NAME", "curvesentinel"),
			LogLevel:       getEnv("LOG_LEVEL", "info"),
			LogFormat:      getEnv("LOG_FORMAT", "json"),
			JaegerEndpoint: getEnv("JAEGER_ENDPOINT", ""),
			MetricsPort:    getIntEnv("METRICS_PORT", 9090),
		},
		RateLimit: RateLimitConfig{
			RequestsPerMinute: getIntEnv("RATE_LIMIT_RPM", 100),
			Burst:             getIntEnv("RATE_LIMIT_BURST", 20),
		},
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

func (c *Config) validate() error {
	if c.Chain.RPCURL == "" {
		return fmt.Errorf("SOLANA_RPC_URL is required")
	}
	if c.Chain.WSURL == "" {
		return fmt.Errorf("SOLANA_WS_URL is required")
	}
	if c.Chain.LaunchpadProgram == "" {
		return fmt.Errorf("LAUNCHPAD_PROGRAM_ID is required")
	}
	if c.Wallet.PrivateKey == "" && c.Wallet.KeypairPath == "" {
		return fmt.Errorf("exactly one of WALLET_PRIVATE_KEY or WALLET_KEYPAIR_PATH is required")
	}
	if c.Wallet.PrivateKey != "" && c.Wallet.KeypairPath != "" {
		return fmt.Errorf("only one of WALLET_PRIVATE_KEY or WALLET_KEYPAIR_PATH may be set")
	}
	if c.Database.URL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}
	if c.Redis.URL == "" {
		return fmt.Errorf("REDIS_URL is required")
	}
	if c.Risk.MaxSlippageBps < 1 || c.Risk.MaxSlippageBps > 10000 {
		return fmt.Errorf("MAX_SLIPPAGE_BPS must be in [1,10000]")
	}
	if c.Swarm.Enabled && c.Swarm.LLMAPIKey == "" {
		return fmt.Errorf("LLM_API_KEY is required when SWARM_ENABLED=true")
	}
	return nil
}

// Helper functions for environment variable parsing, in the shape used
// throughout this codebase's config loaders.

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getBoolEnv(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

func getFloatEnv(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}

func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

func getSliceEnv(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	parts := strings.Split(value, ",")
	result := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			result = append(result, trimmed)
		}
	}
	if len(result) == 0 {
		return defaultValue
	}
	return result
}
