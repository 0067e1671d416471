package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"time"
)

type Config struct {
	HyperliquidConfig HyperliquidConfig `json:"hyperliquid"`
	TradingConfig     TradingConfig     `json:"trading"`
	RiskConfig        RiskConfig        `json:"risk"`
	LoggingConfig     LoggingConfig     `json:"logging"`
	AIConfig          AIConfig          `json:"ai"`
	ServerConfig      ServerConfig      `json:"server"`
	AuthConfig        AuthConfig        `json:"auth"`
	VaultConfig       VaultConfig       `json:"vault"`
	RedisConfig       RedisConfig       `json:"redis"`
	StorageConfig     StorageConfig     `json:"storage"`
	DatabaseConfig    DatabaseConfig    `json:"database"`
}

// HyperliquidConfig holds venue connectivity configuration
type HyperliquidConfig struct {
	InfoURL            string `json:"info_url"`      // HTTP info endpoint (single POST URL)
	WebsocketURL       string `json:"websocket_url"` // Push API
	Network            string `json:"network"`       // "mainnet" or "testnet"
	SignerMode         string `json:"signer_mode"`   // "native" or "subprocess"
	SignerBinary       string `json:"signer_binary"` // Path to signer CLI when subprocess mode
	RequestTimeoutSecs int    `json:"request_timeout_secs"`
}

// TradingConfig holds engine-wide trading configuration
type TradingConfig struct {
	LiveTradingEnabled  bool   `json:"live_trading_enabled"` // Hard gate for arming live modes
	DefaultMode         string `json:"default_mode"`         // "aggressive", "moderate", "conservative"
	MonitorIntervalSecs int    `json:"monitor_interval_secs"`
	LiquidationFeed     bool   `json:"liquidation_feed"` // Consume liquidation channel when available
}

// RiskConfig holds safety/control-plane configuration
type RiskConfig struct {
	DailyLossLimitPct  float64 `json:"daily_loss_limit_pct"`  // Daily loss % that trips the kill switch
	MaxDrawdownPct     float64 `json:"max_drawdown_pct"`      // Drawdown % that pauses new entries
	CooldownMinutes    int     `json:"cooldown_minutes"`      // Per-asset cooldown between trades
	PauseAfterLossMins int     `json:"pause_after_loss_mins"` // Pause length after consecutive losses
}

type LoggingConfig struct {
	Level      string `json:"level"`       // DEBUG, INFO, WARN, ERROR
	Output     string `json:"output"`      // stdout, stderr, or file path
	JSONFormat bool   `json:"json_format"` // Output as JSON
}

// AIConfig holds LLM sentiment configuration
type AIConfig struct {
	Enabled     bool    `json:"enabled"`
	APIKey      string  `json:"api_key"`
	BaseURL     string  `json:"base_url"` // OpenAI-compatible chat completions URL
	Model       string  `json:"model"`
	MaxTokens   int     `json:"max_tokens"`
	Temperature float64 `json:"temperature"`
	TimeoutSecs int     `json:"timeout_secs"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port            int    `json:"port"`
	Host            string `json:"host"`
	AllowedOrigins  string `json:"allowed_origins"` // CORS allowed origins
	ReadTimeout     int    `json:"read_timeout"`    // Seconds
	WriteTimeout    int    `json:"write_timeout"`   // Seconds
	ShutdownTimeout int    `json:"shutdown_timeout"`
}

// AuthConfig holds API authentication configuration
type AuthConfig struct {
	Enabled             bool          `json:"enabled"`
	JWTSecret           string        `json:"jwt_secret"`
	AccessTokenDuration time.Duration `json:"access_token_duration"`
}

// VaultConfig holds HashiCorp Vault configuration for agent credentials
type VaultConfig struct {
	Enabled    bool   `json:"enabled"`
	Address    string `json:"address"`
	Token      string `json:"token"`
	MountPath  string `json:"mount_path"`  // KV secrets engine mount path
	SecretPath string `json:"secret_path"` // Path prefix for agent keys
	TLSEnabled bool   `json:"tls_enabled"`
	CACert     string `json:"ca_cert"`
}

// RedisConfig holds Redis configuration for trailing-state persistence
type RedisConfig struct {
	Enabled  bool   `json:"enabled"`
	Address  string `json:"address"`
	Password string `json:"password"`
	DB       int    `json:"db"`
	PoolSize int    `json:"pool_size"`
}

// StorageConfig holds JSON file storage configuration
type StorageConfig struct {
	DataDir          string `json:"data_dir"`          // Directory for bot-settings/trades/agents files
	EncryptionSecret string `json:"encryption_secret"` // Secret for agents.json at-rest encryption
}

// DatabaseConfig holds optional Postgres configuration; when a DSN is set the
// trade and settings stores use Postgres instead of the JSON files.
type DatabaseConfig struct {
	DSN string `json:"dsn"`
}

func Load() (*Config, error) {
	// First try to load base config from file
	cfg, err := loadFromFile("config.json")
	if err != nil {
		// If no config file, start with empty config
		cfg = &Config{}
	}

	// Apply environment variable overrides (these take precedence)
	applyEnvOverrides(cfg)

	return cfg, nil
}

// applyEnvOverrides applies environment variable overrides to the config.
// Agent private keys are never read from environment; they are registered at
// runtime and stored encrypted (or in Vault).
func applyEnvOverrides(cfg *Config) {
	// Venue config
	cfg.HyperliquidConfig.InfoURL = getEnvOrDefault("HYPERLIQUID_INFO_URL", cfg.HyperliquidConfig.InfoURL)
	if cfg.HyperliquidConfig.InfoURL == "" {
		cfg.HyperliquidConfig.InfoURL = "https://api.hyperliquid.xyz/info"
	}
	cfg.HyperliquidConfig.WebsocketURL = getEnvOrDefault("HYPERLIQUID_WS_URL", cfg.HyperliquidConfig.WebsocketURL)
	if cfg.HyperliquidConfig.WebsocketURL == "" {
		cfg.HyperliquidConfig.WebsocketURL = "wss://api.hyperliquid.xyz/ws"
	}
	cfg.HyperliquidConfig.Network = getEnvOrDefault("HYPERLIQUID_NETWORK", "testnet")
	cfg.HyperliquidConfig.SignerMode = getEnvOrDefault("HYPERLIQUID_SIGNER_MODE", "native")
	cfg.HyperliquidConfig.SignerBinary = getEnvOrDefault("HYPERLIQUID_SIGNER_BINARY", cfg.HyperliquidConfig.SignerBinary)
	cfg.HyperliquidConfig.RequestTimeoutSecs = getEnvIntOrDefault("HYPERLIQUID_REQUEST_TIMEOUT", 30)

	// Trading config
	cfg.TradingConfig.LiveTradingEnabled = getEnvOrDefault("LIVE_TRADING_ENABLED", "false") == "true"
	cfg.TradingConfig.DefaultMode = getEnvOrDefault("TRADING_DEFAULT_MODE", "moderate")
	cfg.TradingConfig.MonitorIntervalSecs = getEnvIntOrDefault("TRADING_MONITOR_INTERVAL", 10)
	cfg.TradingConfig.LiquidationFeed = getEnvOrDefault("TRADING_LIQUIDATION_FEED", "false") == "true"

	// Risk config
	cfg.RiskConfig.DailyLossLimitPct = getEnvFloatOrDefault("RISK_DAILY_LOSS_LIMIT", 5.0)
	cfg.RiskConfig.MaxDrawdownPct = getEnvFloatOrDefault("RISK_MAX_DRAWDOWN", 10.0)
	cfg.RiskConfig.CooldownMinutes = getEnvIntOrDefault("RISK_COOLDOWN_MINUTES", 5)
	cfg.RiskConfig.PauseAfterLossMins = getEnvIntOrDefault("RISK_PAUSE_AFTER_LOSS_MINS", 60)

	// Logging config
	cfg.LoggingConfig.Level = getEnvOrDefault("LOG_LEVEL", "INFO")
	cfg.LoggingConfig.Output = getEnvOrDefault("LOG_OUTPUT", "stdout")
	cfg.LoggingConfig.JSONFormat = getEnvOrDefault("LOG_JSON", "true") == "true"

	// AI config
	cfg.AIConfig.Enabled = getEnvOrDefault("AI_ENABLED", "false") == "true"
	cfg.AIConfig.APIKey = getEnvOrDefault("AI_API_KEY", cfg.AIConfig.APIKey)
	cfg.AIConfig.BaseURL = getEnvOrDefault("AI_BASE_URL", "https://api.x.ai/v1/chat/completions")
	cfg.AIConfig.Model = getEnvOrDefault("AI_MODEL", "grok-3-mini")
	cfg.AIConfig.MaxTokens = getEnvIntOrDefault("AI_MAX_TOKENS", 1024)
	cfg.AIConfig.Temperature = getEnvFloatOrDefault("AI_TEMPERATURE", 0.2)
	cfg.AIConfig.TimeoutSecs = getEnvIntOrDefault("AI_TIMEOUT", 30)

	// Server config
	cfg.ServerConfig.Port = getEnvIntOrDefault("WEB_PORT", 8080)
	cfg.ServerConfig.Host = getEnvOrDefault("WEB_HOST", "0.0.0.0")
	cfg.ServerConfig.AllowedOrigins = getEnvOrDefault("SERVER_ALLOWED_ORIGINS", "*")
	cfg.ServerConfig.ReadTimeout = getEnvIntOrDefault("SERVER_READ_TIMEOUT", 30)
	cfg.ServerConfig.WriteTimeout = getEnvIntOrDefault("SERVER_WRITE_TIMEOUT", 30)
	cfg.ServerConfig.ShutdownTimeout = getEnvIntOrDefault("SERVER_SHUTDOWN_TIMEOUT", 10)

	// Auth config
	cfg.AuthConfig.Enabled = getEnvOrDefault("AUTH_ENABLED", "false") == "true"
	cfg.AuthConfig.JWTSecret = getEnvOrDefault("AUTH_JWT_SECRET", cfg.AuthConfig.JWTSecret)
	cfg.AuthConfig.AccessTokenDuration = getEnvDurationOrDefault("AUTH_ACCESS_TOKEN_DURATION", 24*time.Hour)

	// Vault config
	cfg.VaultConfig.Enabled = getEnvOrDefault("VAULT_ENABLED", "false") == "true"
	cfg.VaultConfig.Address = getEnvOrDefault("VAULT_ADDR", "http://localhost:8200")
	cfg.VaultConfig.Token = getEnvOrDefault("VAULT_TOKEN", cfg.VaultConfig.Token)
	cfg.VaultConfig.MountPath = getEnvOrDefault("VAULT_MOUNT_PATH", "secret")
	cfg.VaultConfig.SecretPath = getEnvOrDefault("VAULT_SECRET_PATH", "trading-engine/agents")
	cfg.VaultConfig.TLSEnabled = getEnvOrDefault("VAULT_TLS_ENABLED", "false") == "true"

	// Redis config
	cfg.RedisConfig.Enabled = getEnvOrDefault("REDIS_ENABLED", "false") == "true"
	cfg.RedisConfig.Address = getEnvOrDefault("REDIS_ADDRESS", "localhost:6379")
	cfg.RedisConfig.Password = getEnvOrDefault("REDIS_PASSWORD", cfg.RedisConfig.Password)
	cfg.RedisConfig.DB = getEnvIntOrDefault("REDIS_DB", 0)
	cfg.RedisConfig.PoolSize = getEnvIntOrDefault("REDIS_POOL_SIZE", 10)

	// Storage config
	cfg.StorageConfig.DataDir = getEnvOrDefault("DATA_DIR", "data")
	cfg.StorageConfig.EncryptionSecret = getEnvOrDefault("AGENT_ENCRYPTION_SECRET", cfg.StorageConfig.EncryptionSecret)

	// Database config
	cfg.DatabaseConfig.DSN = getEnvOrDefault("DATABASE_DSN", cfg.DatabaseConfig.DSN)
}

func loadFromFile(filename string) (*Config, error) {
	file, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	var config Config
	if err := json.Unmarshal(file, &config); err != nil {
		return nil, fmt.Errorf("error parsing config file: %w", err)
	}

	return &config, nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvIntOrDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvFloatOrDefault(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatVal, err := strconv.ParseFloat(value, 64); err == nil {
			return floatVal
		}
	}
	return defaultValue
}

func getEnvDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
