package config

import "time"

// AppName is the binary, config directory and data directory name.
const AppName = "dmbot"

// EnvPrefix prefixes every environment override (DMBOT_SERVER_PORT, ...).
const EnvPrefix = "DMBOT"

// Config represents the complete application configuration.
// Values come from defaults, then the config file, then DMBOT_* environment
// variables, then runtime overrides (CLI flags).
type Config struct {
	Server     ServerConfig    `mapstructure:"server"`
	State      StateConfig     `mapstructure:"state"`
	Reddit     RedditConfig    `mapstructure:"reddit"`
	AI         AIConfig        `mapstructure:"ai"`
	Bot        BotConfig       `mapstructure:"bot"`
	RateLimits RateLimitConfig `mapstructure:"rate_limits"`
	Secrets    SecretsConfig   `mapstructure:"secrets"`
	Logging    LoggingConfig   `mapstructure:"logging"`
	Metrics    MetricsConfig   `mapstructure:"metrics"`
	Health     HealthConfig    `mapstructure:"health"`

	// Source is the config file that was read, empty when none was found.
	Source string `mapstructure:"-"`
}

// ServerConfig contains HTTP server configuration
type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	IdleTimeout     time.Duration `mapstructure:"idle_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	// AdminToken enables the /admin/signal endpoint when set.
	AdminToken string `mapstructure:"admin_token"`
}

// StateConfig selects where bot state is persisted.
//
// Driver is one of "libsql" (default), "file" or "redis".
type StateConfig struct {
	Driver         string      `mapstructure:"driver"`
	Path           string      `mapstructure:"path"`
	URL            string      `mapstructure:"url"`
	AuthToken      string      `mapstructure:"auth_token"`
	ResetOnCorrupt bool        `mapstructure:"reset_on_corrupt"`
	Redis          RedisConfig `mapstructure:"redis"`
}

// RedisConfig configures the redis state driver.
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	Key      string `mapstructure:"key"`
}

// RedditConfig holds API credentials and client pacing.
type RedditConfig struct {
	Username          string        `mapstructure:"username"`
	Password          string        `mapstructure:"password"`
	ClientID          string        `mapstructure:"client_id"`
	ClientSecret      string        `mapstructure:"client_secret"`
	UserAgent         string        `mapstructure:"user_agent"`
	AuthURL           string        `mapstructure:"auth_url"`
	APIURL            string        `mapstructure:"api_url"`
	Timeout           time.Duration `mapstructure:"timeout"`
	RequestsPerMinute int           `mapstructure:"requests_per_minute"`
	MessageSubject    string        `mapstructure:"message_subject"`
}

// HasCredentials reports whether every credential field is set.
func (r RedditConfig) HasCredentials() bool {
	return r.Username != "" && r.Password != "" && r.ClientID != "" && r.ClientSecret != ""
}

// AIConfig configures AI-generated replies.
type AIConfig struct {
	Enabled     bool          `mapstructure:"enabled"`
	Provider    string        `mapstructure:"provider"`
	BaseURL     string        `mapstructure:"base_url"`
	APIKey      string        `mapstructure:"api_key"`
	Model       string        `mapstructure:"model"`
	Timeout     time.Duration `mapstructure:"timeout"`
	MaxTokens   int           `mapstructure:"max_tokens"`
	Temperature float64       `mapstructure:"temperature"`

	// BreakerFailures consecutive provider failures open the AI breaker for
	// BreakerTimeout; replies fall back to templates meanwhile.
	BreakerFailures uint          `mapstructure:"breaker_failures"`
	BreakerTimeout  time.Duration `mapstructure:"breaker_timeout"`
}

// BotConfig controls the monitoring loop.
type BotConfig struct {
	Subreddit       string        `mapstructure:"subreddit"`
	ProtectedUsers  []string      `mapstructure:"protected_users"`
	ResponseStyle   string        `mapstructure:"response_style"`
	BatchSize       int           `mapstructure:"batch_size"`
	PollInterval    time.Duration `mapstructure:"poll_interval"`
	IdleInterval    time.Duration `mapstructure:"idle_interval"`
	ErrorBackoff    time.Duration `mapstructure:"error_backoff"`
	HealthBackoff   time.Duration `mapstructure:"health_backoff"`
	ActivityLogSize int           `mapstructure:"activity_log_size"`
	AutoStart       bool          `mapstructure:"auto_start"`
}

// RateLimitConfig configures admission and retry behaviour of the send pipeline.
type RateLimitConfig struct {
	MessagesPerHour    uint          `mapstructure:"messages_per_hour"`
	MessagesPerDay     uint          `mapstructure:"messages_per_day"`
	MinDelay           time.Duration `mapstructure:"min_delay"`
	Jitter             time.Duration `mapstructure:"jitter"`
	MaxPerUser         uint          `mapstructure:"max_per_user"`
	MaxUserBackoff     time.Duration `mapstructure:"max_user_backoff"`
	MaxRetries         int           `mapstructure:"max_retries"`
	RetryDelay         time.Duration `mapstructure:"retry_delay"`
	TypingDelayMin     time.Duration `mapstructure:"typing_delay_min"`
	TypingDelayMax     time.Duration `mapstructure:"typing_delay_max"`
	BreakerThreshold   uint          `mapstructure:"breaker_threshold"`
	BreakerResetWindow time.Duration `mapstructure:"breaker_reset_window"`
}

// SecretsConfig controls decryption of sealed ("enc:") config values.
type SecretsConfig struct {
	// Key is a base64 32-byte key; DMBOT_SECRET_KEY is also honoured.
	Key string `mapstructure:"key"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	// Level controls the minimum log level
	// Valid values: trace, debug, info, warn, error
	Level string `mapstructure:"level"`

	// Profile selects the server logger output: SIMPLE or STRUCTURED.
	Profile string `mapstructure:"profile"`
}

// MetricsConfig contains Prometheus metrics configuration
type MetricsConfig struct {
	Enabled bool `mapstructure:"enabled"`
	// Port is the dedicated exporter port for HTTP telemetry.
	Port int `mapstructure:"port"`
}

// HealthConfig contains health check configuration
type HealthConfig struct {
	Enabled bool `mapstructure:"enabled"`
}
