package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Config holds configuration for the gateway.
type Config struct {
	HTTPPort    string        `toml:"http_port"`
	ReadTimeout time.Duration `toml:"read_timeout"`
	IdleTimeout time.Duration `toml:"idle_timeout"`

	Vault    VaultConfig    `toml:"vault"`
	Provider ProviderConfig `toml:"provider"`
	Chat     ChatConfig     `toml:"chat"`
	Database DatabaseConfig `toml:"database"`
	Redis    RedisConfig    `toml:"redis"`
	Logging  LoggingConfig  `toml:"logging"`
}

// VaultConfig holds the shared secret used for API key material.
type VaultConfig struct {
	Secret string `toml:"secret"`
}

// ProviderConfig holds upstream provider settings
type ProviderConfig struct {
	GeminiAPIKey        string        `toml:"gemini_api_key"` // server-side default key, google only
	HTTPSProxy          string        `toml:"https_proxy"`
	RequestTimeout      time.Duration `toml:"request_timeout"` // 0 leaves timeouts to the transport
	AnthropicMaxTokens  int           `toml:"anthropic_max_tokens"`
	StrictModelValidate bool          `toml:"strict_models"`
}

// ChatConfig holds generation loop settings
type ChatConfig struct {
	MaxToolSteps int  `toml:"max_tool_steps"`
	EnableTools  bool `toml:"enable_tools"`
}

// DatabaseConfig holds database connection settings
type DatabaseConfig struct {
	Driver          string        `toml:"driver"`
	URL             string        `toml:"url"`
	MaxOpenConns    int           `toml:"max_open_conns"`
	MaxIdleConns    int           `toml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `toml:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `toml:"conn_max_idle_time"`
	CacheSize       int           `toml:"cache_size"`
	CacheTTL        time.Duration `toml:"cache_ttl"`
}

// RedisConfig holds Redis connection settings
type RedisConfig struct {
	Address      string        `toml:"address"`
	Password     string        `toml:"password"`
	DB           int           `toml:"db"`
	PoolSize     int           `toml:"pool_size"`
	MinIdleConns int           `toml:"min_idle_conns"`
	DialTimeout  time.Duration `toml:"dial_timeout"`
	ReadTimeout  time.Duration `toml:"read_timeout"`
	WriteTimeout time.Duration `toml:"write_timeout"`
}

// LoggingConfig holds log level and chat record sink settings
type LoggingConfig struct {
	Level         string `toml:"level"`
	ChatLogKey    string `toml:"chat_log_key"`
	ChatLogMaxLen int64  `toml:"chat_log_max_entries"`
}

// Enabled reports whether a database has been configured.
func (c DatabaseConfig) Enabled() bool {
	return c.URL != ""
}

// Enabled reports whether Redis has been configured.
func (c RedisConfig) Enabled() bool {
	return c.Address != ""
}

// Defaults returns the built-in configuration used before any file or
// environment overrides are applied.
func Defaults() *Config {
	return &Config{
		HTTPPort:    "8080",
		ReadTimeout: 30 * time.Second,
		IdleTimeout: 120 * time.Second,
		Vault: VaultConfig{
			Secret: "client-secret",
		},
		Provider: ProviderConfig{
			AnthropicMaxTokens: 4096,
		},
		Chat: ChatConfig{
			MaxToolSteps: 5,
			EnableTools:  true,
		},
		Database: DatabaseConfig{
			Driver:          "postgres",
			MaxOpenConns:    25,
			MaxIdleConns:    5,
			ConnMaxLifetime: 5 * time.Minute,
			ConnMaxIdleTime: 1 * time.Minute,
			CacheSize:       500,
			CacheTTL:        5 * time.Minute,
		},
		Redis: RedisConfig{
			PoolSize:     10,
			MinIdleConns: 2,
			DialTimeout:  5 * time.Second,
			ReadTimeout:  3 * time.Second,
			WriteTimeout: 3 * time.Second,
		},
		Logging: LoggingConfig{
			Level:         "info",
			ChatLogKey:    "chat_gateway:chat_records",
			ChatLogMaxLen: 10000,
		},
	}
}

func getEnvInt(key string, defaultValue int) int {
	val := os.Getenv(key)
	if val == "" {
		return defaultValue
	}

	intVal, err := strconv.Atoi(val)
	if err != nil {
		return defaultValue
	}

	return intVal
}

func getEnvInt64(key string, defaultValue int64) int64 {
	val := os.Getenv(key)
	if val == "" {
		return defaultValue
	}
	intVal, err := strconv.ParseInt(val, 10, 64)
	if err != nil {
		return defaultValue
	}
	return intVal
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	val := os.Getenv(key)
	if val == "" {
		return defaultValue
	}

	duration, err := time.ParseDuration(val)
	if err != nil {
		return defaultValue
	}

	return duration
}

func getEnvString(key string, defaultValue string) string {
	val := os.Getenv(key)
	if val == "" {
		return defaultValue
	}
	return val
}

func getEnvBool(key string, defaultValue bool) bool {
	val := os.Getenv(key)
	if val == "" {
		return defaultValue
	}
	b, err := strconv.ParseBool(strings.TrimSpace(val))
	if err != nil {
		return defaultValue
	}
	return b
}

// Load reads configuration from a .env file (if present), an optional TOML
// file named by CONFIG_FILE, and finally environment variables.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	cfg := Defaults()

	if path := os.Getenv("CONFIG_FILE"); path != "" {
		if err := LoadFile(path, cfg); err != nil {
			return nil, err
		}
	}

	applyEnv(cfg)

	if cfg.Chat.MaxToolSteps < 1 {
		return nil, fmt.Errorf("MAX_TOOL_STEPS must be at least 1, got %d", cfg.Chat.MaxToolSteps)
	}
	switch cfg.Database.Driver {
	case "postgres", "sqlite":
	default:
		return nil, fmt.Errorf("unsupported DATABASE_DRIVER: %s", cfg.Database.Driver)
	}

	return cfg, nil
}

// LoadFile decodes a TOML file on top of cfg.
func LoadFile(path string, cfg *Config) error {
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return fmt.Errorf("failed to decode config file %s: %w", path, err)
	}
	return nil
}

func applyEnv(cfg *Config) {
	cfg.HTTPPort = getEnvString("HTTP_PORT", cfg.HTTPPort)
	cfg.ReadTimeout = getEnvDuration("HTTP_READ_TIMEOUT", cfg.ReadTimeout)
	cfg.IdleTimeout = getEnvDuration("HTTP_IDLE_TIMEOUT", cfg.IdleTimeout)

	cfg.Vault.Secret = getEnvString("VAULT_SECRET", cfg.Vault.Secret)

	cfg.Provider.GeminiAPIKey = getEnvString("GEMINI_API_KEY", cfg.Provider.GeminiAPIKey)
	cfg.Provider.HTTPSProxy = getEnvString("HTTPS_PROXY", cfg.Provider.HTTPSProxy)
	cfg.Provider.RequestTimeout = getEnvDuration("UPSTREAM_TIMEOUT", cfg.Provider.RequestTimeout)
	cfg.Provider.AnthropicMaxTokens = getEnvInt("ANTHROPIC_MAX_TOKENS", cfg.Provider.AnthropicMaxTokens)
	cfg.Provider.StrictModelValidate = getEnvBool("STRICT_MODELS", cfg.Provider.StrictModelValidate)

	cfg.Chat.MaxToolSteps = getEnvInt("MAX_TOOL_STEPS", cfg.Chat.MaxToolSteps)
	cfg.Chat.EnableTools = getEnvBool("ENABLE_TOOLS", cfg.Chat.EnableTools)

	cfg.Database.Driver = getEnvString("DATABASE_DRIVER", cfg.Database.Driver)
	cfg.Database.URL = getEnvString("DATABASE_URL", cfg.Database.URL)
	cfg.Database.MaxOpenConns = getEnvInt("DB_MAX_OPEN_CONNS", cfg.Database.MaxOpenConns)
	cfg.Database.MaxIdleConns = getEnvInt("DB_MAX_IDLE_CONNS", cfg.Database.MaxIdleConns)
	cfg.Database.ConnMaxLifetime = getEnvDuration("DB_CONN_MAX_LIFETIME", cfg.Database.ConnMaxLifetime)
	cfg.Database.ConnMaxIdleTime = getEnvDuration("DB_CONN_MAX_IDLE_TIME", cfg.Database.ConnMaxIdleTime)
	cfg.Database.CacheSize = getEnvInt("CACHE_CONVERSATION_SIZE", cfg.Database.CacheSize)
	cfg.Database.CacheTTL = getEnvDuration("CACHE_CONVERSATION_TTL", cfg.Database.CacheTTL)

	cfg.Redis.Address = getEnvString("REDIS_ADDR", cfg.Redis.Address)
	cfg.Redis.Password = getEnvString("REDIS_PASSWORD", cfg.Redis.Password)
	cfg.Redis.DB = getEnvInt("REDIS_DB", cfg.Redis.DB)
	cfg.Redis.PoolSize = getEnvInt("REDIS_POOL_SIZE", cfg.Redis.PoolSize)
	cfg.Redis.MinIdleConns = getEnvInt("REDIS_MIN_IDLE_CONNS", cfg.Redis.MinIdleConns)
	cfg.Redis.DialTimeout = getEnvDuration("REDIS_DIAL_TIMEOUT", cfg.Redis.DialTimeout)
	cfg.Redis.ReadTimeout = getEnvDuration("REDIS_READ_TIMEOUT", cfg.Redis.ReadTimeout)
	cfg.Redis.WriteTimeout = getEnvDuration("REDIS_WRITE_TIMEOUT", cfg.Redis.WriteTimeout)

	cfg.Logging.Level = getEnvString("LOG_LEVEL", cfg.Logging.Level)
	cfg.Logging.ChatLogKey = getEnvString("CHAT_LOG_KEY", cfg.Logging.ChatLogKey)
	cfg.Logging.ChatLogMaxLen = getEnvInt64("CHAT_LOG_MAX_ENTRIES", cfg.Logging.ChatLogMaxLen)
}
