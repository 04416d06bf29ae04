// Package config loads service configuration from config files and
// environment variables, with environment variables taking precedence.
package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// Config is the root configuration tree for the chat API service.
type Config struct {
	Environment string          `mapstructure:"environment"`
	LogLevel    string          `mapstructure:"log_level"`
	Server      ServerConfig    `mapstructure:"server"`
	Database    DatabaseConfig  `mapstructure:"database"`
	Redis       RedisConfig     `mapstructure:"redis"`
	AI          AIConfig        `mapstructure:"ai"`
	Auth        AuthConfig      `mapstructure:"auth"`
	Sentry      SentryConfig    `mapstructure:"sentry"`
	Chat        ChatConfig      `mapstructure:"chat"`
	Risk        RiskConfig      `mapstructure:"risk"`
	RateLimit   RateLimitConfig `mapstructure:"rate_limit"`
}

// ServerConfig holds the HTTP listener settings.
type ServerConfig struct {
	Port           int      `mapstructure:"port"`
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

// DatabaseConfig holds the Postgres connection settings. DatabaseURL wins
// over the discrete fields when set.
type DatabaseConfig struct {
	Host            string `mapstructure:"host"`
	Port            int    `mapstructure:"port"`
	User            string `mapstructure:"user"`
	Password        string `mapstructure:"password"`
	DBName          string `mapstructure:"dbname"`
	SSLMode         string `mapstructure:"sslmode"`
	DatabaseURL     string `mapstructure:"database_url"`
	MaxOpenConns    int    `mapstructure:"max_open_conns"`
	MinIdleConns    int    `mapstructure:"min_idle_conns"`
	ConnMaxLifetime string `mapstructure:"conn_max_lifetime"`
	ConnMaxIdleTime string `mapstructure:"conn_max_idle_time"`
}

// ConnString builds a pgx-compatible connection string.
func (d DatabaseConfig) ConnString() string {
	if d.DatabaseURL != "" {
		return d.DatabaseURL
	}
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		d.User, d.Password, d.Host, d.Port, d.DBName, d.SSLMode)
}

// RedisConfig holds the Redis connection settings.
type RedisConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// Addr returns the host:port address for the Redis client.
func (r RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", r.Host, r.Port)
}

// AIConfig holds the LLM provider settings.
type AIConfig struct {
	Provider         string `mapstructure:"provider"`
	Model            string `mapstructure:"model"`
	AnthropicAPIKey  string `mapstructure:"anthropic_api_key"`
	AnthropicBaseURL string `mapstructure:"anthropic_base_url"`
	OpenAIAPIKey     string `mapstructure:"openai_api_key"`
	OpenAIBaseURL    string `mapstructure:"openai_base_url"`
	MaxTokens        int    `mapstructure:"max_tokens"`
	TimeoutSeconds   int    `mapstructure:"timeout_seconds"`
}

// AuthConfig holds the JWT settings guarding strategy finalization.
type AuthConfig struct {
	JWTSecret        string `mapstructure:"jwt_secret"`
	TokenExpiryHours int    `mapstructure:"token_expiry_hours"`
}

// SentryConfig holds the error reporting settings. An empty DSN disables
// reporting.
type SentryConfig struct {
	DSN              string  `mapstructure:"dsn"`
	TracesSampleRate float64 `mapstructure:"traces_sample_rate"`
}

// ChatConfig holds the conversation tunables.
type ChatConfig struct {
	// ClarifyThreshold is the fraction of expected fields required after the
	// first assistant turn before auto-defaulting kicks in.
	ClarifyThreshold float64 `mapstructure:"clarify_threshold"`
	// SessionTTLHours bounds how long an idle draft survives in Redis.
	SessionTTLHours int `mapstructure:"session_ttl_hours"`
	// MaxTurns caps the stored message history per session.
	MaxTurns int `mapstructure:"max_turns"`
}

// RiskConfig holds the risk validation thresholds.
type RiskConfig struct {
	MaxRiskPercent       float64 `mapstructure:"max_risk_percent"`
	WarnRiskPercent      float64 `mapstructure:"warn_risk_percent"`
	MinRiskReward        float64 `mapstructure:"min_risk_reward"`
	MaxContracts         int64   `mapstructure:"max_contracts"`
	ErrorTradesRemaining int64   `mapstructure:"error_trades_remaining"`
	WarnTradesRemaining  int64   `mapstructure:"warn_trades_remaining"`
}

// RateLimitConfig holds the per-client request throttle settings.
type RateLimitConfig struct {
	Enabled           bool `mapstructure:"enabled"`
	RequestsPerMinute int  `mapstructure:"requests_per_minute"`
	Burst             int  `mapstructure:"burst"`
}

// Load reads configuration from config.yaml (searched in the working
// directory and /etc/stratagem) and the environment. Environment variables
// use the STRATAGEM_ prefix with underscores, e.g. STRATAGEM_SERVER_PORT.
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("/etc/stratagem")

	v.SetEnvPrefix("STRATAGEM")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		// A missing config file is fine; defaults plus environment carry it.
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects configurations that cannot produce a working service.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}
	if c.Chat.ClarifyThreshold < 0 || c.Chat.ClarifyThreshold > 1 {
		return fmt.Errorf("clarify threshold must be in [0, 1], got %g", c.Chat.ClarifyThreshold)
	}
	if c.Environment == "production" && c.Auth.JWTSecret == "" {
		return fmt.Errorf("auth.jwt_secret is required in production")
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("environment", "development")
	v.SetDefault("log_level", "info")

	v.SetDefault("server.port", 8080)
	v.SetDefault("server.allowed_origins", []string{"http://localhost:3000"})

	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "postgres")
	v.SetDefault("database.dbname", "stratagem")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.max_open_conns", 25)
	v.SetDefault("database.min_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", "300s")
	v.SetDefault("database.conn_max_idle_time", "60s")

	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.db", 0)

	v.SetDefault("ai.provider", "anthropic")
	v.SetDefault("ai.model", "claude-sonnet-4-20250514")
	v.SetDefault("ai.max_tokens", 4096)
	v.SetDefault("ai.timeout_seconds", 60)

	v.SetDefault("auth.token_expiry_hours", 24)

	v.SetDefault("sentry.traces_sample_rate", 0.1)

	v.SetDefault("chat.clarify_threshold", 0.30)
	v.SetDefault("chat.session_ttl_hours", 72)
	v.SetDefault("chat.max_turns", 200)

	v.SetDefault("risk.max_risk_percent", 5)
	v.SetDefault("risk.warn_risk_percent", 2)
	v.SetDefault("risk.min_risk_reward", 1.5)
	v.SetDefault("risk.max_contracts", 100)
	v.SetDefault("risk.error_trades_remaining", 3)
	v.SetDefault("risk.warn_trades_remaining", 5)

	v.SetDefault("rate_limit.enabled", true)
	v.SetDefault("rate_limit.requests_per_minute", 60)
	v.SetDefault("rate_limit.burst", 10)
}
