package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/dmbot/dmbot/internal/core"
)

// ResponseStyles lists the supported reply personalities.
var ResponseStyles = []string{"friendly", "professional", "casual"}

var logLevels = []string{"trace", "debug", "info", "warn", "error"}

// Validate checks the loaded configuration once. All problems are reported
// together.
func (c *Config) Validate() error {
	var errs []error
	add := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf(format, args...))
	}

	if c.Server.Port < 1 || c.Server.Port > 65535 {
		add("server.port must be between 1 and 65535, got %d", c.Server.Port)
	}
	if c.Server.ShutdownTimeout <= 0 {
		add("server.shutdown_timeout must be positive")
	}

	switch strings.ToLower(strings.TrimSpace(c.State.Driver)) {
	case "libsql":
		if strings.TrimSpace(c.State.URL) == "" && strings.TrimSpace(c.State.Path) == "" {
			add("state.path or state.url is required for the libsql driver")
		}
	case "file":
		if strings.TrimSpace(c.State.Path) == "" {
			add("state.path is required for the file driver")
		}
	case "redis":
		if strings.TrimSpace(c.State.Redis.Addr) == "" {
			add("state.redis.addr is required for the redis driver")
		}
		if strings.TrimSpace(c.State.Redis.Key) == "" {
			add("state.redis.key is required for the redis driver")
		}
	default:
		add("state.driver must be one of libsql, file, redis; got %q", c.State.Driver)
	}

	r := c.RateLimits
	if r.MessagesPerHour == 0 {
		add("rate_limits.messages_per_hour must be positive")
	}
	if r.MessagesPerDay == 0 {
		add("rate_limits.messages_per_day must be positive")
	}
	if r.MinDelay < 0 || r.Jitter < 0 {
		add("rate_limits.min_delay and rate_limits.jitter must not be negative")
	}
	if r.MaxPerUser == 0 {
		add("rate_limits.max_per_user must be positive")
	}
	if r.MaxUserBackoff < 0 {
		add("rate_limits.max_user_backoff must not be negative")
	}
	if r.MaxRetries < 1 {
		add("rate_limits.max_retries must be at least 1, got %d", r.MaxRetries)
	}
	if r.RetryDelay < 0 {
		add("rate_limits.retry_delay must not be negative")
	}
	if r.TypingDelayMin < 0 || r.TypingDelayMax < r.TypingDelayMin {
		add("rate_limits.typing_delay_min must be >= 0 and <= typing_delay_max")
	}
	if r.BreakerThreshold == 0 {
		add("rate_limits.breaker_threshold must be positive")
	}
	if r.BreakerResetWindow <= 0 {
		add("rate_limits.breaker_reset_window must be positive")
	}

	if c.Bot.BatchSize < 1 {
		add("bot.batch_size must be at least 1")
	}
	if c.Bot.PollInterval <= 0 {
		add("bot.poll_interval must be positive")
	}
	if c.Bot.ActivityLogSize < 1 {
		add("bot.activity_log_size must be at least 1")
	}
	if !contains(ResponseStyles, strings.ToLower(c.Bot.ResponseStyle)) {
		add("bot.response_style must be one of %s", strings.Join(ResponseStyles, ", "))
	}
	if strings.TrimSpace(c.Bot.Subreddit) != "" {
		name, err := core.NormalizeSubreddit(c.Bot.Subreddit)
		if err != nil {
			add("bot.subreddit: %v", err)
		} else {
			c.Bot.Subreddit = name
		}
	}

	if c.Reddit.RequestsPerMinute < 1 {
		add("reddit.requests_per_minute must be at least 1")
	}

	if c.AI.Enabled {
		if strings.TrimSpace(c.AI.Model) == "" {
			add("ai.model is required when ai.enabled is true")
		}
		if strings.TrimSpace(c.AI.BaseURL) == "" {
			add("ai.base_url is required when ai.enabled is true")
		}
		if c.AI.Temperature < 0 || c.AI.Temperature > 2 {
			add("ai.temperature must be between 0 and 2")
		}
	}

	if !contains(logLevels, strings.ToLower(c.Logging.Level)) {
		add("logging.level must be one of %s", strings.Join(logLevels, ", "))
	}

	if len(errs) == 0 {
		return nil
	}
	return fmt.Errorf("invalid configuration: %w", errors.Join(errs...))
}

func contains(values []string, want string) bool {
	for _, v := range values {
		if v == want {
			return true
		}
	}
	return false
}
