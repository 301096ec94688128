package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	ServerConfig     ServerConfig     `json:"server"`
	MarketDataConfig MarketDataConfig `json:"market_data"`
	DatabaseConfig   DatabaseConfig   `json:"database"`
	RedisConfig      RedisConfig      `json:"redis"`
	AuthConfig       AuthConfig       `json:"auth"`
	AssistantConfig  AssistantConfig  `json:"assistant"`
	PredictionConfig PredictionConfig `json:"prediction"`
	LoggingConfig    LoggingConfig    `json:"logging"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port            int    `json:"port"`
	Host            string `json:"host"`
	AllowedOrigins  string `json:"allowed_origins"` // CORS allowed origins, comma separated
	ProductionMode  bool   `json:"production_mode"`
	ReadTimeout     int    `json:"read_timeout"`     // Seconds
	WriteTimeout    int    `json:"write_timeout"`    // Seconds
	ShutdownTimeout int    `json:"shutdown_timeout"` // Seconds
}

// MarketDataConfig holds the price source configuration
type MarketDataConfig struct {
	BaseURL        string `json:"base_url"`        // Chart API endpoint
	RequestTimeout int    `json:"request_timeout"` // Seconds
	DefaultPeriod  string `json:"default_period"`  // e.g. "1y"
}

// DatabaseConfig holds PostgreSQL configuration. The same database carries
// the user store and the conversation store.
type DatabaseConfig struct {
	Enabled  bool   `json:"enabled"`
	URI      string `json:"uri"` // Full DSN; overrides host/port fields when set
	Host     string `json:"host"`
	Port     int    `json:"port"`
	User     string `json:"user"`
	Password string `json:"password"`
	Database string `json:"database"`
	SSLMode  string `json:"ssl_mode"`
}

// RedisConfig holds Redis configuration for the forecast cache
type RedisConfig struct {
	Enabled  bool   `json:"enabled"`
	Address  string `json:"address"`
	Password string `json:"password"`
	DB       int    `json:"db"`
	PoolSize int    `json:"pool_size"`
	CacheTTL int    `json:"cache_ttl"` // Seconds; forecast/strategy cache TTL
}

// AuthConfig holds authentication configuration
type AuthConfig struct {
	Enabled              bool          `json:"enabled"`
	JWTSecret            string        `json:"jwt_secret"`
	AccessTokenDuration  time.Duration `json:"access_token_duration"`
	RefreshTokenDuration time.Duration `json:"refresh_token_duration"`
	MinPasswordLength    int           `json:"min_password_length"`
}

// AssistantConfig holds the assistant surface configuration.
// Any missing key degrades the corresponding capability; none of these
// affect the prediction core.
type AssistantConfig struct {
	Enabled        bool   `json:"enabled"`
	ChatAPIKey     string `json:"chat_api_key"`
	ChatModel      string `json:"chat_model"`
	ChatBaseURL    string `json:"chat_base_url"`
	NewsAPIKey     string `json:"news_api_key"`
	WeatherAPIKey  string `json:"weather_api_key"` // Recognised but no surface consumes it
	MaxTokens      int    `json:"max_tokens"`
	RequestTimeout int    `json:"request_timeout"` // Seconds
}

// PredictionConfig holds forecast defaults
type PredictionConfig struct {
	Horizon       int `json:"horizon"`         // Forecast days ahead
	MaxTestWindow int `json:"max_test_window"` // Walk-forward windows surfaced for auditing
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level      string `json:"level"`       // debug, info, warn, error
	JSONFormat bool   `json:"json_format"` // JSON output instead of console
}

// Load reads config.json when present, then applies environment overrides.
// A .env file in the working directory is loaded first so that local
// development matches the deployed environment-variable contract.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg, err := loadFromFile("config.json")
	if err != nil {
		cfg = &Config{}
	}

	applyDefaults(cfg)
	applyEnvOverrides(cfg)

	return cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.ServerConfig.Port == 0 {
		cfg.ServerConfig.Port = 8000
	}
	if cfg.ServerConfig.Host == "" {
		cfg.ServerConfig.Host = "0.0.0.0"
	}
	if cfg.ServerConfig.ReadTimeout == 0 {
		cfg.ServerConfig.ReadTimeout = 120
	}
	if cfg.ServerConfig.WriteTimeout == 0 {
		// Model fitting is CPU bound; recurrent model requests can run for minutes.
		cfg.ServerConfig.WriteTimeout = 300
	}
	if cfg.ServerConfig.ShutdownTimeout == 0 {
		cfg.ServerConfig.ShutdownTimeout = 15
	}
	if cfg.MarketDataConfig.BaseURL == "" {
		cfg.MarketDataConfig.BaseURL = "https://query1.finance.yahoo.com"
	}
	if cfg.MarketDataConfig.RequestTimeout == 0 {
		cfg.MarketDataConfig.RequestTimeout = 30
	}
	if cfg.MarketDataConfig.DefaultPeriod == "" {
		cfg.MarketDataConfig.DefaultPeriod = "1y"
	}
	if cfg.AuthConfig.AccessTokenDuration == 0 {
		cfg.AuthConfig.AccessTokenDuration = 24 * time.Hour
	}
	if cfg.AuthConfig.RefreshTokenDuration == 0 {
		cfg.AuthConfig.RefreshTokenDuration = 7 * 24 * time.Hour
	}
	if cfg.AuthConfig.MinPasswordLength == 0 {
		cfg.AuthConfig.MinPasswordLength = 8
	}
	if cfg.AssistantConfig.ChatModel == "" {
		cfg.AssistantConfig.ChatModel = "gpt-4o-mini"
	}
	if cfg.AssistantConfig.MaxTokens == 0 {
		cfg.AssistantConfig.MaxTokens = 1024
	}
	if cfg.AssistantConfig.RequestTimeout == 0 {
		cfg.AssistantConfig.RequestTimeout = 30
	}
	if cfg.PredictionConfig.Horizon == 0 {
		cfg.PredictionConfig.Horizon = 7
	}
	if cfg.PredictionConfig.MaxTestWindow == 0 {
		cfg.PredictionConfig.MaxTestWindow = 10
	}
	if cfg.RedisConfig.PoolSize == 0 {
		cfg.RedisConfig.PoolSize = 10
	}
	if cfg.RedisConfig.CacheTTL == 0 {
		cfg.RedisConfig.CacheTTL = 900
	}
	if cfg.LoggingConfig.Level == "" {
		cfg.LoggingConfig.Level = "info"
	}
}

// applyEnvOverrides applies environment variable overrides to the config.
// Environment values take precedence over config.json.
func applyEnvOverrides(cfg *Config) {
	cfg.ServerConfig.Port = getEnvIntOrDefault("SERVER_PORT", cfg.ServerConfig.Port)
	cfg.ServerConfig.Host = getEnvOrDefault("SERVER_HOST", cfg.ServerConfig.Host)
	cfg.ServerConfig.AllowedOrigins = getEnvOrDefault("ALLOWED_ORIGINS", cfg.ServerConfig.AllowedOrigins)
	if os.Getenv("PRODUCTION_MODE") == "true" {
		cfg.ServerConfig.ProductionMode = true
	}

	cfg.MarketDataConfig.BaseURL = getEnvOrDefault("MARKET_DATA_BASE_URL", cfg.MarketDataConfig.BaseURL)

	// Conversation/user store. MONGODB_URI is accepted as a legacy alias for
	// the conversation store URI; DATABASE_URI takes precedence.
	if uri := getEnvOrDefault("DATABASE_URI", getEnvOrDefault("MONGODB_URI", cfg.DatabaseConfig.URI)); uri != "" {
		cfg.DatabaseConfig.URI = uri
		cfg.DatabaseConfig.Enabled = true
	}
	cfg.DatabaseConfig.Host = getEnvOrDefault("DB_HOST", cfg.DatabaseConfig.Host)
	cfg.DatabaseConfig.Port = getEnvIntOrDefault("DB_PORT", cfg.DatabaseConfig.Port)
	cfg.DatabaseConfig.User = getEnvOrDefault("DB_USER", cfg.DatabaseConfig.User)
	cfg.DatabaseConfig.Password = getEnvOrDefault("DB_PASSWORD", cfg.DatabaseConfig.Password)
	cfg.DatabaseConfig.Database = getEnvOrDefault("DB_NAME", cfg.DatabaseConfig.Database)
	cfg.DatabaseConfig.SSLMode = getEnvOrDefault("DB_SSLMODE", cfg.DatabaseConfig.SSLMode)
	if cfg.DatabaseConfig.Host != "" {
		cfg.DatabaseConfig.Enabled = true
	}

	cfg.RedisConfig.Address = getEnvOrDefault("REDIS_ADDRESS", cfg.RedisConfig.Address)
	cfg.RedisConfig.Password = getEnvOrDefault("REDIS_PASSWORD", cfg.RedisConfig.Password)
	cfg.RedisConfig.DB = getEnvIntOrDefault("REDIS_DB", cfg.RedisConfig.DB)
	if cfg.RedisConfig.Address != "" {
		cfg.RedisConfig.Enabled = true
	}

	cfg.AuthConfig.JWTSecret = getEnvOrDefault("JWT_SECRET", cfg.AuthConfig.JWTSecret)
	if cfg.AuthConfig.JWTSecret != "" {
		cfg.AuthConfig.Enabled = true
	}
	cfg.AuthConfig.AccessTokenDuration = getEnvDurationOrDefault("ACCESS_TOKEN_DURATION", cfg.AuthConfig.AccessTokenDuration)
	cfg.AuthConfig.RefreshTokenDuration = getEnvDurationOrDefault("REFRESH_TOKEN_DURATION", cfg.AuthConfig.RefreshTokenDuration)

	cfg.AssistantConfig.ChatAPIKey = getEnvOrDefault("CHAT_API_KEY", getEnvOrDefault("OPENAI_API_KEY", cfg.AssistantConfig.ChatAPIKey))
	cfg.AssistantConfig.ChatModel = getEnvOrDefault("CHAT_MODEL", cfg.AssistantConfig.ChatModel)
	cfg.AssistantConfig.ChatBaseURL = getEnvOrDefault("CHAT_BASE_URL", cfg.AssistantConfig.ChatBaseURL)
	cfg.AssistantConfig.NewsAPIKey = getEnvOrDefault("NEWS_API_KEY", cfg.AssistantConfig.NewsAPIKey)
	cfg.AssistantConfig.WeatherAPIKey = getEnvOrDefault("WEATHER_API_KEY", cfg.AssistantConfig.WeatherAPIKey)
	cfg.AssistantConfig.Enabled = true

	cfg.PredictionConfig.Horizon = getEnvIntOrDefault("FORECAST_HORIZON", cfg.PredictionConfig.Horizon)

	cfg.LoggingConfig.Level = getEnvOrDefault("LOG_LEVEL", cfg.LoggingConfig.Level)
	if os.Getenv("LOG_JSON") == "true" {
		cfg.LoggingConfig.JSONFormat = true
	}
}

func loadFromFile(filename string) (*Config, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	if err := json.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	return &config, nil
}

// DSN returns the PostgreSQL connection string.
func (c DatabaseConfig) DSN() string {
	if c.URI != "" {
		return c.URI
	}
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode,
	)
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

func getEnvDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
