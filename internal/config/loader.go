// Package config provides centralized configuration management for dmbot.
// Values are layered as defaults, then the user config file (XDG path,
// ./config or an explicit --config), then DMBOT_* environment variables,
// then runtime overrides.
package config

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"time"

	gfconfig "github.com/fulmenhq/gofulmen/config"
	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"

	"github.com/dmbot/dmbot/internal/core"
	"github.com/dmbot/dmbot/internal/secrets"
)

var (
	// appConfig holds the current application configuration
	appConfig *Config
	configMu  sync.RWMutex
)

// Load loads configuration from the default search paths.
//
// This function is safe to call multiple times (e.g., for config reload)
func Load(ctx context.Context, runtimeOverrides ...map[string]any) (*Config, error) {
	return LoadFile(ctx, "", runtimeOverrides...)
}

// LoadFile loads configuration using path as the config file. An empty path
// searches the XDG config dir and ./config for config.yaml; a missing file
// there is not an error, a missing explicit path is.
func LoadFile(ctx context.Context, path string, runtimeOverrides ...map[string]any) (*Config, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	v := viper.New()
	SetDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	bindEnvAliases(v)

	if strings.TrimSpace(path) != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		for _, dir := range searchDirs() {
			v.AddConfigPath(dir)
		}
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("failed to read config: %w", err)
			}
		}
	}

	for _, overrides := range runtimeOverrides {
		applyOverrides(v, "", overrides)
	}

	cfg := &Config{}
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           cfg,
		WeaklyTypedInput: true,
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
			mapstructure.StringToFloat64HookFunc(),
		),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create decoder: %w", err)
	}

	if err := decoder.Decode(v.AllSettings()); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	cfg.Source = v.ConfigFileUsed()

	applyDerivedDefaults(cfg)

	if err := resolveSecrets(cfg); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	setConfig(cfg)

	return cfg, nil
}

// SetDefaults registers every key with its default value. Registering all keys
// also makes them visible to AutomaticEnv during decoding.
func SetDefaults(v *viper.Viper) {
	// Server
	v.SetDefault("server.host", "localhost")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", 30*time.Second)
	v.SetDefault("server.write_timeout", 30*time.Second)
	v.SetDefault("server.idle_timeout", 120*time.Second)
	v.SetDefault("server.shutdown_timeout", 10*time.Second)
	v.SetDefault("server.admin_token", "")

	// State
	v.SetDefault("state.driver", "libsql")
	v.SetDefault("state.path", "")
	v.SetDefault("state.url", "")
	v.SetDefault("state.auth_token", "")
	v.SetDefault("state.reset_on_corrupt", false)
	v.SetDefault("state.redis.addr", "localhost:6379")
	v.SetDefault("state.redis.password", "")
	v.SetDefault("state.redis.db", 0)
	v.SetDefault("state.redis.key", "dmbot:state")

	// Reddit
	v.SetDefault("reddit.username", "")
	v.SetDefault("reddit.password", "")
	v.SetDefault("reddit.client_id", "")
	v.SetDefault("reddit.client_secret", "")
	v.SetDefault("reddit.user_agent", "dmbot/1.0")
	v.SetDefault("reddit.auth_url", "https://www.reddit.com")
	v.SetDefault("reddit.api_url", "https://oauth.reddit.com")
	v.SetDefault("reddit.timeout", 30*time.Second)
	v.SetDefault("reddit.requests_per_minute", 60)
	v.SetDefault("reddit.message_subject", "Hello!")

	// AI
	v.SetDefault("ai.enabled", false)
	v.SetDefault("ai.provider", "openai")
	v.SetDefault("ai.base_url", "https://api.openai.com/v1")
	v.SetDefault("ai.api_key", "")
	v.SetDefault("ai.model", "gpt-3.5-turbo")
	v.SetDefault("ai.timeout", 30*time.Second)
	v.SetDefault("ai.max_tokens", 150)
	v.SetDefault("ai.temperature", 0.7)
	v.SetDefault("ai.breaker_failures", 3)
	v.SetDefault("ai.breaker_timeout", 5*time.Minute)

	// Bot
	v.SetDefault("bot.subreddit", "")
	v.SetDefault("bot.protected_users", []string{})
	v.SetDefault("bot.response_style", "friendly")
	v.SetDefault("bot.batch_size", 5)
	v.SetDefault("bot.poll_interval", 60*time.Second)
	v.SetDefault("bot.idle_interval", 5*time.Second)
	v.SetDefault("bot.error_backoff", 5*time.Minute)
	v.SetDefault("bot.health_backoff", 5*time.Minute)
	v.SetDefault("bot.activity_log_size", 1000)
	v.SetDefault("bot.auto_start", false)

	// Rate limits
	v.SetDefault("rate_limits.messages_per_hour", 30)
	v.SetDefault("rate_limits.messages_per_day", 100)
	v.SetDefault("rate_limits.min_delay", 60*time.Second)
	v.SetDefault("rate_limits.jitter", 5*time.Second)
	v.SetDefault("rate_limits.max_per_user", 3)
	v.SetDefault("rate_limits.max_user_backoff", 300*time.Second)
	v.SetDefault("rate_limits.max_retries", 3)
	v.SetDefault("rate_limits.retry_delay", 5*time.Second)
	v.SetDefault("rate_limits.typing_delay_min", 500*time.Millisecond)
	v.SetDefault("rate_limits.typing_delay_max", 2*time.Second)
	v.SetDefault("rate_limits.breaker_threshold", 5)
	v.SetDefault("rate_limits.breaker_reset_window", 300*time.Second)

	v.SetDefault("secrets.key", "")

	// Logging
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.profile", "SIMPLE")

	// Metrics
	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.port", 9090)

	// Health
	v.SetDefault("health.enabled", true)
}

// bindEnvAliases keeps the short operator-facing names working alongside the
// DMBOT_<SECTION>_<KEY> form.
func bindEnvAliases(v *viper.Viper) {
	aliases := map[string][]string{
		"server.host":          {"DMBOT_SERVER_HOST", "DMBOT_HOST"},
		"server.port":          {"DMBOT_SERVER_PORT", "DMBOT_PORT"},
		"logging.level":        {"DMBOT_LOGGING_LEVEL", "DMBOT_LOG_LEVEL"},
		"state.path":           {"DMBOT_STATE_PATH", "DMBOT_DB_PATH"},
		"state.url":            {"DMBOT_STATE_URL", "DMBOT_DB_URL"},
		"state.auth_token":     {"DMBOT_STATE_AUTH_TOKEN", "DMBOT_DB_AUTH_TOKEN"},
		"secrets.key":          {"DMBOT_SECRETS_KEY", secrets.KeyEnv},
		"reddit.client_id":     {"DMBOT_REDDIT_CLIENT_ID", "REDDIT_CLIENT_ID"},
		"reddit.client_secret": {"DMBOT_REDDIT_CLIENT_SECRET", "REDDIT_CLIENT_SECRET"},
		"ai.api_key":           {"DMBOT_AI_API_KEY", "OPENAI_API_KEY"},
	}
	for key, names := range aliases {
		_ = v.BindEnv(append([]string{key}, names...)...)
	}
}

// applyOverrides flattens nested override maps into dotted viper keys.
func applyOverrides(v *viper.Viper, prefix string, overrides map[string]any) {
	for key, value := range overrides {
		full := key
		if prefix != "" {
			full = prefix + "." + key
		}
		if nested, ok := value.(map[string]any); ok {
			applyOverrides(v, full, nested)
			continue
		}
		v.Set(full, value)
	}
}

func applyDerivedDefaults(cfg *Config) {
	switch strings.ToLower(strings.TrimSpace(cfg.State.Driver)) {
	case "file":
		if strings.TrimSpace(cfg.State.Path) == "" {
			cfg.State.Path = DefaultSnapshotPath()
		}
	case "", "libsql":
		if strings.TrimSpace(cfg.State.URL) == "" && strings.TrimSpace(cfg.State.Path) == "" {
			cfg.State.Path = DefaultStorePath()
		}
	}
	cfg.Bot.ProtectedUsers = core.NormalizeUsers(cfg.Bot.ProtectedUsers)
}

// resolveSecrets opens every sealed credential in place.
func resolveSecrets(cfg *Config) error {
	fields := []*string{
		&cfg.Reddit.Password,
		&cfg.Reddit.ClientSecret,
		&cfg.AI.APIKey,
		&cfg.State.AuthToken,
		&cfg.State.Redis.Password,
		&cfg.Server.AdminToken,
	}

	var key []byte
	for _, field := range fields {
		if !secrets.IsSealed(*field) {
			continue
		}
		if key == nil {
			k, err := secrets.KeyFromEnv(cfg.Secrets.Key)
			if err != nil {
				return fmt.Errorf("sealed config value found: %w", err)
			}
			key = k
		}
		plain, err := secrets.Open(key, *field)
		if err != nil {
			return fmt.Errorf("failed to open sealed config value: %w", err)
		}
		*field = plain
	}
	return nil
}

// GetConfig returns the current application configuration (thread-safe)
func GetConfig() *Config {
	configMu.RLock()
	defer configMu.RUnlock()
	return appConfig
}

// setConfig updates the current configuration (thread-safe)
func setConfig(cfg *Config) {
	configMu.Lock()
	defer configMu.Unlock()
	appConfig = cfg
}

func searchDirs() []string {
	dirs := []string{}
	if dir := strings.TrimSpace(gfconfig.GetAppConfigDir(AppName)); dir != "" {
		dirs = append(dirs, dir)
	}
	return append(dirs, "./config", ".")
}

// DefaultConfigPath returns the XDG-compliant path to the user config file.
func DefaultConfigPath() string {
	configDir := gfconfig.GetAppConfigDir(AppName)
	if strings.TrimSpace(configDir) == "" {
		return ""
	}
	return filepath.Join(configDir, "config.yaml")
}

// DefaultDataDir returns the XDG-compliant data directory for the app.
func DefaultDataDir() string {
	return gfconfig.GetAppDataDir(AppName)
}

// DefaultStorePath returns the XDG-compliant path to the libsql database file.
func DefaultStorePath() string {
	dataDir := DefaultDataDir()
	if strings.TrimSpace(dataDir) == "" {
		return "./" + AppName + ".db"
	}
	return filepath.Join(dataDir, AppName+".db")
}

// DefaultSnapshotPath returns the path of the CBOR snapshot used by the file driver.
func DefaultSnapshotPath() string {
	dataDir := DefaultDataDir()
	if strings.TrimSpace(dataDir) == "" {
		return "./state.cbor"
	}
	return filepath.Join(dataDir, "state.cbor")
}
