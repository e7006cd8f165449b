package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	ServerConfig         ServerConfig         `json:"server"`
	DatabaseConfig       DatabaseConfig       `json:"database"`
	RedisConfig          RedisConfig          `json:"redis"`
	VaultConfig          VaultConfig          `json:"vault"`
	MetaAPIConfig        MetaAPIConfig        `json:"metaapi"`
	MarketConfig         MarketConfig         `json:"market"`
	NewsConfig           NewsConfig           `json:"news"`
	AIConfig             AIConfig             `json:"ai"`
	LoggingConfig        LoggingConfig        `json:"logging"`
	BotConfig            BotConfig            `json:"bot"`
	CircuitBreakerConfig CircuitBreakerConfig `json:"circuit_breaker"`
	AuthConfig           AuthConfig           `json:"auth"`
}

type LoggingConfig struct {
	Level       string `json:"level"`        // DEBUG, INFO, WARN, ERROR
	Output      string `json:"output"`       // stdout, stderr, or file path
	JSONFormat  bool   `json:"json_format"`  // Output as JSON
	IncludeFile bool   `json:"include_file"` // Include file and line number
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port            int    `json:"port"`
	Host            string `json:"host"`
	AllowedOrigins  string `json:"allowed_origins"` // Comma separated, "*" for any
	ProductionMode  bool   `json:"production_mode"`
	ReadTimeout     int    `json:"read_timeout"`     // Seconds
	WriteTimeout    int    `json:"write_timeout"`    // Seconds
	ShutdownTimeout int    `json:"shutdown_timeout"` // Seconds
}

// DatabaseConfig holds PostgreSQL configuration. When disabled the bot keeps
// trades in memory, which is only suitable for demo accounts.
type DatabaseConfig struct {
	Enabled  bool   `json:"enabled"`
	Host     string `json:"host"`
	Port     int    `json:"port"`
	User     string `json:"user"`
	Password string `json:"password"`
	Database string `json:"database"`
	SSLMode  string `json:"ssl_mode"`
}

// RedisConfig holds Redis configuration for the market cache and analysis timers
type RedisConfig struct {
	Enabled  bool   `json:"enabled"`
	Address  string `json:"address"`
	Password string `json:"password"`
	DB       int    `json:"db"`
	PoolSize int    `json:"pool_size"`
}

// VaultConfig holds HashiCorp Vault configuration
type VaultConfig struct {
	Enabled    bool   `json:"enabled"`
	Address    string `json:"address"`
	Token      string `json:"token"`
	MountPath  string `json:"mount_path"`  // KV secrets engine mount path
	SecretPath string `json:"secret_path"` // Path prefix for broker credentials
	TLSEnabled bool   `json:"tls_enabled"`
	CACert     string `json:"ca_cert"`
}

// MetaAPIConfig describes the MetaAPI connection and the MT5 accounts behind it
type MetaAPIConfig struct {
	Token          string            `json:"token"`
	Region         string            `json:"region"` // london, new-york, singapore
	BaseURL        string            `json:"base_url"`
	RequestTimeout int               `json:"request_timeout"`  // Seconds
	RequestsPerSec float64           `json:"requests_per_sec"` // Client side pacing
	Accounts       []PlatformAccount `json:"accounts"`
}

// PlatformAccount maps a platform name used in settings to a MetaAPI account
type PlatformAccount struct {
	Name      string `json:"name"`       // e.g. MT5_LIBERTEX_DEMO
	AccountID string `json:"account_id"` // MetaAPI account id
	Broker    string `json:"broker"`     // LIBERTEX or ICMARKETS, selects symbol mapping
	Region    string `json:"region"`     // Overrides MetaAPIConfig.Region
}

// MarketConfig controls the price history feed
type MarketConfig struct {
	Interval        string `json:"interval"`         // Yahoo chart interval, e.g. 15m, 1h, 1d
	LookbackDays    int    `json:"lookback_days"`    // History window per refresh
	PersistHistory  bool   `json:"persist_history"`  // Write snapshots to market_data_history
	SnapshotTTLMins int    `json:"snapshot_ttl_mins"` // Market cache TTL
}

// NewsConfig controls news sentiment lookups
type NewsConfig struct {
	Enabled bool   `json:"enabled"`
	APIKey  string `json:"api_key"`
	BaseURL string `json:"base_url"`
}

// AIConfig holds LLM configuration for the trade confirmation step
type AIConfig struct {
	Enabled        bool   `json:"enabled"`
	LLMProvider    string `json:"llm_provider"` // "claude", "openai", or "deepseek"
	ClaudeAPIKey   string `json:"claude_api_key"`
	OpenAIAPIKey   string `json:"openai_api_key"`
	DeepSeekAPIKey string `json:"deepseek_api_key"`
	LLMModel       string `json:"llm_model"`
	TimeoutSeconds int    `json:"timeout_seconds"`
}

// BotConfig holds loop timing and order sizing constants
type BotConfig struct {
	TickIntervalSecs     int     `json:"tick_interval_secs"`     // Sleep between iterations
	DisabledIntervalSecs int     `json:"disabled_interval_secs"` // Re-check delay while auto trading is off
	ErrorBackoffSecs     int     `json:"error_backoff_secs"`     // Sleep after a failed iteration
	ContractFactor       float64 `json:"contract_factor"`        // Units per lot used in sizing
	MinLot               float64 `json:"min_lot"`
	MaxLot               float64 `json:"max_lot"`
	AutoStart            bool    `json:"auto_start"`
}

// CircuitBreakerConfig holds circuit breaker configuration
type CircuitBreakerConfig struct {
	Enabled              bool    `json:"enabled"`
	MaxLossPerHour       float64 `json:"max_loss_per_hour"`      // Max loss % per hour
	MaxConsecutiveLosses int     `json:"max_consecutive_losses"` // Max losing trades in a row
	CooldownMinutes      int     `json:"cooldown_minutes"`       // Cooldown after trip
	MaxDailyLoss         float64 `json:"max_daily_loss"`         // Max daily loss %
	MaxDailyTrades       int     `json:"max_daily_trades"`       // Max trades per day
}

// AuthConfig holds operator authentication for the control API
type AuthConfig struct {
	Enabled             bool          `json:"enabled"`
	JWTSecret           string        `json:"jwt_secret"`
	OperatorUser        string        `json:"operator_user"`
	OperatorPassHash    string        `json:"operator_pass_hash"` // bcrypt hash
	AccessTokenDuration time.Duration `json:"access_token_duration"`
}

// TickInterval returns the sleep between loop iterations
func (b BotConfig) TickInterval() time.Duration {
	return time.Duration(b.TickIntervalSecs) * time.Second
}

// DisabledInterval returns the re-check delay while auto trading is disabled
func (b BotConfig) DisabledInterval() time.Duration {
	return time.Duration(b.DisabledIntervalSecs) * time.Second
}

// ErrorBackoff returns the sleep after a failed iteration
func (b BotConfig) ErrorBackoff() time.Duration {
	return time.Duration(b.ErrorBackoffSecs) * time.Second
}

func Load() (*Config, error) {
	return LoadFile("config.json")
}

// Defaults returns a config with every default applied and no environment overrides
func Defaults() *Config {
	cfg := &Config{}
	applyDefaults(cfg)
	return cfg
}

// LoadFile reads filename if present and applies environment overrides on top
func LoadFile(filename string) (*Config, error) {
	cfg, err := loadFromFile(filename)
	if err != nil {
		if !os.IsNotExist(unwrapPathError(err)) {
			return nil, err
		}
		cfg = &Config{}
	}

	applyDefaults(cfg)
	applyEnvOverrides(cfg)

	return cfg, nil
}

func unwrapPathError(err error) error {
	if pe, ok := err.(*loadError); ok {
		return pe.err
	}
	return err
}

type loadError struct {
	msg string
	err error
}

func (e *loadError) Error() string { return e.msg + ": " + e.err.Error() }
func (e *loadError) Unwrap() error { return e.err }

// applyDefaults fills zero values so a missing config file still yields a runnable setup
func applyDefaults(cfg *Config) {
	if cfg.ServerConfig.Port == 0 {
		cfg.ServerConfig.Port = 8080
	}
	if cfg.ServerConfig.Host == "" {
		cfg.ServerConfig.Host = "0.0.0.0"
	}
	if cfg.ServerConfig.AllowedOrigins == "" {
		cfg.ServerConfig.AllowedOrigins = "*"
	}
	if cfg.ServerConfig.ReadTimeout == 0 {
		cfg.ServerConfig.ReadTimeout = 15
	}
	if cfg.ServerConfig.WriteTimeout == 0 {
		cfg.ServerConfig.WriteTimeout = 15
	}
	if cfg.ServerConfig.ShutdownTimeout == 0 {
		cfg.ServerConfig.ShutdownTimeout = 10
	}

	if cfg.DatabaseConfig.Host == "" {
		cfg.DatabaseConfig.Host = "localhost"
	}
	if cfg.DatabaseConfig.Port == 0 {
		cfg.DatabaseConfig.Port = 5432
	}
	if cfg.DatabaseConfig.SSLMode == "" {
		cfg.DatabaseConfig.SSLMode = "disable"
	}

	if cfg.RedisConfig.Address == "" {
		cfg.RedisConfig.Address = "localhost:6379"
	}
	if cfg.RedisConfig.PoolSize == 0 {
		cfg.RedisConfig.PoolSize = 10
	}

	if cfg.MetaAPIConfig.Region == "" {
		cfg.MetaAPIConfig.Region = "london"
	}
	if cfg.MetaAPIConfig.RequestTimeout == 0 {
		cfg.MetaAPIConfig.RequestTimeout = 30
	}
	if cfg.MetaAPIConfig.RequestsPerSec == 0 {
		cfg.MetaAPIConfig.RequestsPerSec = 5
	}

	if cfg.MarketConfig.Interval == "" {
		cfg.MarketConfig.Interval = "1h"
	}
	if cfg.MarketConfig.LookbackDays == 0 {
		cfg.MarketConfig.LookbackDays = 30
	}
	if cfg.MarketConfig.SnapshotTTLMins == 0 {
		cfg.MarketConfig.SnapshotTTLMins = 15
	}

	if cfg.NewsConfig.BaseURL == "" {
		cfg.NewsConfig.BaseURL = "https://newsapi.org"
	}

	if cfg.AIConfig.TimeoutSeconds == 0 {
		cfg.AIConfig.TimeoutSeconds = 30
	}

	if cfg.BotConfig.TickIntervalSecs == 0 {
		cfg.BotConfig.TickIntervalSecs = 10
	}
	if cfg.BotConfig.DisabledIntervalSecs == 0 {
		cfg.BotConfig.DisabledIntervalSecs = 30
	}
	if cfg.BotConfig.ErrorBackoffSecs == 0 {
		cfg.BotConfig.ErrorBackoffSecs = 30
	}
	if cfg.BotConfig.ContractFactor == 0 {
		cfg.BotConfig.ContractFactor = 100
	}
	if cfg.BotConfig.MinLot == 0 {
		cfg.BotConfig.MinLot = 0.01
	}
	if cfg.BotConfig.MaxLot == 0 {
		cfg.BotConfig.MaxLot = 0.01
	}

	if cfg.CircuitBreakerConfig.MaxLossPerHour == 0 {
		cfg.CircuitBreakerConfig.MaxLossPerHour = 3.0
	}
	if cfg.CircuitBreakerConfig.MaxConsecutiveLosses == 0 {
		cfg.CircuitBreakerConfig.MaxConsecutiveLosses = 5
	}
	if cfg.CircuitBreakerConfig.CooldownMinutes == 0 {
		cfg.CircuitBreakerConfig.CooldownMinutes = 30
	}
	if cfg.CircuitBreakerConfig.MaxDailyLoss == 0 {
		cfg.CircuitBreakerConfig.MaxDailyLoss = 5.0
	}
	if cfg.CircuitBreakerConfig.MaxDailyTrades == 0 {
		cfg.CircuitBreakerConfig.MaxDailyTrades = 100
	}

	if cfg.AuthConfig.AccessTokenDuration == 0 {
		cfg.AuthConfig.AccessTokenDuration = 12 * time.Hour
	}
	if cfg.AuthConfig.OperatorUser == "" {
		cfg.AuthConfig.OperatorUser = "admin"
	}
}

// applyEnvOverrides applies environment variable overrides to the config.
// Broker credentials come from Vault when it is enabled; the env token is the
// fallback for local runs.
func applyEnvOverrides(cfg *Config) {
	// Logging config
	cfg.LoggingConfig.Level = getEnvOrDefault("LOG_LEVEL", orDefault(cfg.LoggingConfig.Level, "INFO"))
	cfg.LoggingConfig.Output = getEnvOrDefault("LOG_OUTPUT", orDefault(cfg.LoggingConfig.Output, "stdout"))
	cfg.LoggingConfig.JSONFormat = getEnvBoolOrDefault("LOG_JSON", cfg.LoggingConfig.JSONFormat || cfg.LoggingConfig.Level == "")
	cfg.LoggingConfig.IncludeFile = getEnvBoolOrDefault("LOG_INCLUDE_FILE", cfg.LoggingConfig.IncludeFile)

	// Server config
	cfg.ServerConfig.Port = getEnvIntOrDefault("WEB_PORT", cfg.ServerConfig.Port)
	cfg.ServerConfig.Host = getEnvOrDefault("WEB_HOST", cfg.ServerConfig.Host)
	cfg.ServerConfig.AllowedOrigins = getEnvOrDefault("SERVER_ALLOWED_ORIGINS", cfg.ServerConfig.AllowedOrigins)
	cfg.ServerConfig.ProductionMode = getEnvBoolOrDefault("SERVER_PRODUCTION", cfg.ServerConfig.ProductionMode)

	// Database config
	cfg.DatabaseConfig.Enabled = getEnvBoolOrDefault("DB_ENABLED", cfg.DatabaseConfig.Enabled)
	cfg.DatabaseConfig.Host = getEnvOrDefault("DB_HOST", cfg.DatabaseConfig.Host)
	cfg.DatabaseConfig.Port = getEnvIntOrDefault("DB_PORT", cfg.DatabaseConfig.Port)
	cfg.DatabaseConfig.User = getEnvOrDefault("DB_USER", orDefault(cfg.DatabaseConfig.User, "trading_bot"))
	cfg.DatabaseConfig.Password = getEnvOrDefault("DB_PASSWORD", cfg.DatabaseConfig.Password)
	cfg.DatabaseConfig.Database = getEnvOrDefault("DB_NAME", orDefault(cfg.DatabaseConfig.Database, "trading_bot"))
	cfg.DatabaseConfig.SSLMode = getEnvOrDefault("DB_SSLMODE", cfg.DatabaseConfig.SSLMode)

	// Redis config
	cfg.RedisConfig.Enabled = getEnvBoolOrDefault("REDIS_ENABLED", cfg.RedisConfig.Enabled)
	cfg.RedisConfig.Address = getEnvOrDefault("REDIS_ADDR", cfg.RedisConfig.Address)
	cfg.RedisConfig.Password = getEnvOrDefault("REDIS_PASSWORD", cfg.RedisConfig.Password)
	cfg.RedisConfig.DB = getEnvIntOrDefault("REDIS_DB", cfg.RedisConfig.DB)

	// Vault config
	cfg.VaultConfig.Enabled = getEnvBoolOrDefault("VAULT_ENABLED", cfg.VaultConfig.Enabled)
	cfg.VaultConfig.Address = getEnvOrDefault("VAULT_ADDR", orDefault(cfg.VaultConfig.Address, "http://localhost:8200"))
	cfg.VaultConfig.Token = getEnvOrDefault("VAULT_TOKEN", cfg.VaultConfig.Token)
	cfg.VaultConfig.MountPath = getEnvOrDefault("VAULT_MOUNT_PATH", orDefault(cfg.VaultConfig.MountPath, "secret"))
	cfg.VaultConfig.SecretPath = getEnvOrDefault("VAULT_SECRET_PATH", orDefault(cfg.VaultConfig.SecretPath, "trading-bot"))
	cfg.VaultConfig.TLSEnabled = getEnvBoolOrDefault("VAULT_TLS_ENABLED", cfg.VaultConfig.TLSEnabled)

	// MetaAPI config
	cfg.MetaAPIConfig.Token = getEnvOrDefault("METAAPI_TOKEN", cfg.MetaAPIConfig.Token)
	cfg.MetaAPIConfig.Region = getEnvOrDefault("METAAPI_REGION", cfg.MetaAPIConfig.Region)
	cfg.MetaAPIConfig.BaseURL = getEnvOrDefault("METAAPI_BASE_URL", cfg.MetaAPIConfig.BaseURL)
	applyAccountEnv(cfg, "MT5_LIBERTEX_DEMO", "METAAPI_ACCOUNT_ID", "LIBERTEX")
	applyAccountEnv(cfg, "MT5_ICMARKETS_DEMO", "METAAPI_ICMARKETS_ACCOUNT_ID", "ICMARKETS")
	applyAccountEnv(cfg, "MT5_LIBERTEX_REAL", "METAAPI_LIBERTEX_REAL_ACCOUNT_ID", "LIBERTEX")

	// Market and news config
	cfg.MarketConfig.Interval = getEnvOrDefault("MARKET_INTERVAL", cfg.MarketConfig.Interval)
	cfg.MarketConfig.LookbackDays = getEnvIntOrDefault("MARKET_LOOKBACK_DAYS", cfg.MarketConfig.LookbackDays)
	cfg.MarketConfig.PersistHistory = getEnvBoolOrDefault("MARKET_PERSIST_HISTORY", cfg.MarketConfig.PersistHistory)
	cfg.NewsConfig.APIKey = getEnvOrDefault("NEWS_API_KEY", cfg.NewsConfig.APIKey)
	cfg.NewsConfig.Enabled = getEnvBoolOrDefault("NEWS_ENABLED", cfg.NewsConfig.Enabled || cfg.NewsConfig.APIKey != "")

	// AI config
	cfg.AIConfig.Enabled = getEnvBoolOrDefault("AI_ENABLED", cfg.AIConfig.Enabled)
	cfg.AIConfig.LLMProvider = getEnvOrDefault("AI_LLM_PROVIDER", orDefault(cfg.AIConfig.LLMProvider, "claude"))
	cfg.AIConfig.ClaudeAPIKey = getEnvOrDefault("AI_CLAUDE_API_KEY", cfg.AIConfig.ClaudeAPIKey)
	cfg.AIConfig.OpenAIAPIKey = getEnvOrDefault("AI_OPENAI_API_KEY", cfg.AIConfig.OpenAIAPIKey)
	cfg.AIConfig.DeepSeekAPIKey = getEnvOrDefault("AI_DEEPSEEK_API_KEY", cfg.AIConfig.DeepSeekAPIKey)
	cfg.AIConfig.LLMModel = getEnvOrDefault("AI_LLM_MODEL", orDefault(cfg.AIConfig.LLMModel, "claude-3-haiku-20240307"))

	// Bot config
	cfg.BotConfig.TickIntervalSecs = getEnvIntOrDefault("BOT_TICK_INTERVAL", cfg.BotConfig.TickIntervalSecs)
	cfg.BotConfig.DisabledIntervalSecs = getEnvIntOrDefault("BOT_DISABLED_INTERVAL", cfg.BotConfig.DisabledIntervalSecs)
	cfg.BotConfig.ErrorBackoffSecs = getEnvIntOrDefault("BOT_ERROR_BACKOFF", cfg.BotConfig.ErrorBackoffSecs)
	cfg.BotConfig.ContractFactor = getEnvFloatOrDefault("BOT_CONTRACT_FACTOR", cfg.BotConfig.ContractFactor)
	cfg.BotConfig.MinLot = getEnvFloatOrDefault("BOT_MIN_LOT", cfg.BotConfig.MinLot)
	cfg.BotConfig.MaxLot = getEnvFloatOrDefault("BOT_MAX_LOT", cfg.BotConfig.MaxLot)
	cfg.BotConfig.AutoStart = getEnvBoolOrDefault("BOT_AUTO_START", cfg.BotConfig.AutoStart)

	// Circuit breaker config
	cfg.CircuitBreakerConfig.Enabled = getEnvBoolOrDefault("CIRCUIT_BREAKER_ENABLED", cfg.CircuitBreakerConfig.Enabled)
	cfg.CircuitBreakerConfig.MaxLossPerHour = getEnvFloatOrDefault("CIRCUIT_MAX_LOSS_PER_HOUR", cfg.CircuitBreakerConfig.MaxLossPerHour)
	cfg.CircuitBreakerConfig.MaxConsecutiveLosses = getEnvIntOrDefault("CIRCUIT_MAX_CONSECUTIVE_LOSSES", cfg.CircuitBreakerConfig.MaxConsecutiveLosses)
	cfg.CircuitBreakerConfig.CooldownMinutes = getEnvIntOrDefault("CIRCUIT_COOLDOWN_MINUTES", cfg.CircuitBreakerConfig.CooldownMinutes)

	// Auth config
	cfg.AuthConfig.Enabled = getEnvBoolOrDefault("AUTH_ENABLED", cfg.AuthConfig.Enabled)
	cfg.AuthConfig.JWTSecret = getEnvOrDefault("AUTH_JWT_SECRET", cfg.AuthConfig.JWTSecret)
	cfg.AuthConfig.OperatorUser = getEnvOrDefault("AUTH_OPERATOR_USER", cfg.AuthConfig.OperatorUser)
	cfg.AuthConfig.OperatorPassHash = getEnvOrDefault("AUTH_OPERATOR_PASS_HASH", cfg.AuthConfig.OperatorPassHash)
	cfg.AuthConfig.AccessTokenDuration = getEnvDurationOrDefault("AUTH_ACCESS_TOKEN_DURATION", cfg.AuthConfig.AccessTokenDuration)
}

// applyAccountEnv registers or updates a platform account from an env variable
func applyAccountEnv(cfg *Config, name, envKey, broker string) {
	accountID := os.Getenv(envKey)
	if accountID == "" {
		return
	}
	for i := range cfg.MetaAPIConfig.Accounts {
		if cfg.MetaAPIConfig.Accounts[i].Name == name {
			cfg.MetaAPIConfig.Accounts[i].AccountID = accountID
			return
		}
	}
	cfg.MetaAPIConfig.Accounts = append(cfg.MetaAPIConfig.Accounts, PlatformAccount{
		Name:      name,
		AccountID: accountID,
		Broker:    broker,
	})
}

// AllowedOriginList splits the configured CORS origins
func (s ServerConfig) AllowedOriginList() []string {
	var origins []string
	for _, o := range strings.Split(s.AllowedOrigins, ",") {
		if o = strings.TrimSpace(o); o != "" {
			origins = append(origins, o)
		}
	}
	return origins
}

func loadFromFile(filename string) (*Config, error) {
	file, err := os.ReadFile(filename)
	if err != nil {
		return nil, &loadError{msg: "error reading config file", err: err}
	}

	var config Config
	if err := json.Unmarshal(file, &config); err != nil {
		return nil, fmt.Errorf("error parsing config file: %w", err)
	}

	return &config, nil
}

func orDefault(value, fallback string) string {
	if value == "" {
		return fallback
	}
	return value
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvBoolOrDefault(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return value == "true" || value == "1"
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

// GenerateSampleConfig creates a sample configuration file
func GenerateSampleConfig(filename string) error {
	config := Config{
		ServerConfig: ServerConfig{
			Port:           8080,
			Host:           "0.0.0.0",
			AllowedOrigins: "http://localhost:3000",
		},
		DatabaseConfig: DatabaseConfig{
			Enabled:  true,
			Host:     "localhost",
			Port:     5432,
			User:     "trading_bot",
			Password: "change_me",
			Database: "trading_bot",
			SSLMode:  "disable",
		},
		RedisConfig: RedisConfig{
			Enabled:  true,
			Address:  "localhost:6379",
			PoolSize: 10,
		},
		MetaAPIConfig: MetaAPIConfig{
			Region:         "london",
			RequestTimeout: 30,
			RequestsPerSec: 5,
			Accounts: []PlatformAccount{
				{Name: "MT5_LIBERTEX_DEMO", AccountID: "your-libertex-account-id", Broker: "LIBERTEX"},
				{Name: "MT5_ICMARKETS_DEMO", AccountID: "your-icmarkets-account-id", Broker: "ICMARKETS"},
			},
		},
		MarketConfig: MarketConfig{
			Interval:        "1h",
			LookbackDays:    30,
			PersistHistory:  true,
			SnapshotTTLMins: 15,
		},
		BotConfig: BotConfig{
			TickIntervalSecs:     10,
			DisabledIntervalSecs: 30,
			ErrorBackoffSecs:     30,
			ContractFactor:       100,
			MinLot:               0.01,
			MaxLot:               0.01,
		},
		CircuitBreakerConfig: CircuitBreakerConfig{
			Enabled:              true,
			MaxLossPerHour:       3.0,
			MaxConsecutiveLosses: 5,
			CooldownMinutes:      30,
			MaxDailyLoss:         5.0,
			MaxDailyTrades:       100,
		},
		LoggingConfig: LoggingConfig{
			Level:      "INFO",
			Output:     "stdout",
			JSONFormat: true,
		},
	}

	data, err := json.MarshalIndent(config, "", "  ")
	if err != nil {
		return err
	}

	return os.WriteFile(filename, data, 0644)
}
