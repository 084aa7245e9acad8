package cmd

import (
	"fmt"
	"runtime"
	"strings"

	"github.com/fulmenhq/gofulmen/crucible"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/dmbot/dmbot/internal/config"
	"github.com/dmbot/dmbot/internal/observability"
)

var envInfoCmd = &cobra.Command{
	Use:   "envinfo",
	Short: "Display environment information",
	Long:  "Display environment, configuration and version information. Secrets are never printed.",
	Run: func(cmd *cobra.Command, args []string) {
		log := observability.CLILogger
		deps := crucible.GetVersion()

		log.Info("=== " + config.AppName + " environment ===")
		log.Info("")
		log.Info("Application:")
		log.Info("  Version:    " + versionInfo.Version)
		log.Info("  Commit:     " + versionInfo.Commit)
		log.Info("  Built:      " + versionInfo.BuildDate)
		log.Info("  Gofulmen:   "+deps.Gofulmen, zap.String("gofulmen_version", deps.Gofulmen))
		log.Info("  Crucible:   "+deps.Crucible, zap.String("crucible_version", deps.Crucible))
		log.Info("")

		log.Info("Runtime:")
		log.Info("  Go Version: "+runtime.Version(), zap.String("go_version", runtime.Version()))
		log.Info("  GOOS/ARCH:  " + runtime.GOOS + "/" + runtime.GOARCH)
		log.Info("")

		cfg, err := loadConfig(cmd.Context())
		if err != nil {
			log.Warn("Config load failed", zap.Error(err))
			return
		}

		log.Info("Configuration:")
		log.Info("  Config File:    " + orDefaultSource(cfg.Source))
		log.Info(fmt.Sprintf("  Server:         %s:%d", cfg.Server.Host, cfg.Server.Port))
		log.Info(fmt.Sprintf("  Admin Token:    %s", setOrNot(cfg.Server.AdminToken)))
		log.Info("  Log Level:      " + cfg.Logging.Level)
		log.Info(fmt.Sprintf("  Metrics:        %t (port %d)", cfg.Metrics.Enabled, cfg.Metrics.Port))
		log.Info("")

		log.Info("State:")
		log.Info("  Driver:         " + cfg.State.Driver)
		switch cfg.State.Driver {
		case "redis":
			log.Info("  Redis Addr:     " + cfg.State.Redis.Addr)
			log.Info("  Redis Key:      " + cfg.State.Redis.Key)
		default:
			if strings.TrimSpace(cfg.State.URL) != "" {
				log.Info("  URL:            " + cfg.State.URL)
			} else {
				log.Info("  Path:           " + cfg.State.Path)
			}
		}
		log.Info(fmt.Sprintf("  Reset Corrupt:  %t", cfg.State.ResetOnCorrupt))
		log.Info("")

		log.Info("Bot:")
		log.Info("  Subreddit:      " + orUnset(cfg.Bot.Subreddit))
		log.Info("  Style:          " + cfg.Bot.ResponseStyle)
		log.Info(fmt.Sprintf("  Batch/Poll:     %d every %s", cfg.Bot.BatchSize, cfg.Bot.PollInterval))
		log.Info(fmt.Sprintf("  Protected:      %d users", len(cfg.Bot.ProtectedUsers)))
		log.Info(fmt.Sprintf("  Credentials:    %s", map[bool]string{true: "(set)", false: "(not set)"}[cfg.Reddit.HasCredentials()]))
		log.Info("")

		rl := cfg.RateLimits
		log.Info("Rate Limits:")
		log.Info(fmt.Sprintf("  Per Hour/Day:   %d / %d", rl.MessagesPerHour, rl.MessagesPerDay))
		log.Info(fmt.Sprintf("  Min Delay:      %s ± %s", rl.MinDelay, rl.Jitter))
		log.Info(fmt.Sprintf("  Per Recipient:  %d/day", rl.MaxPerUser))
		log.Info(fmt.Sprintf("  Retries:        %d (base %s)", rl.MaxRetries, rl.RetryDelay))
		log.Info(fmt.Sprintf("  Breaker:        %d failures, %s window", rl.BreakerThreshold, rl.BreakerResetWindow))
		log.Info("")

		log.Info("AI:")
		log.Info(fmt.Sprintf("  Enabled:        %t", cfg.AI.Enabled))
		if cfg.AI.Enabled {
			log.Info("  Provider:       " + cfg.AI.Provider)
			log.Info("  Model:          " + cfg.AI.Model)
			log.Info("  API Key:        " + setOrNot(cfg.AI.APIKey))
		}
	},
}

func setOrNot(v string) string {
	if strings.TrimSpace(v) == "" {
		return "(not set)"
	}
	return "(set)"
}

func orUnset(v string) string {
	if strings.TrimSpace(v) == "" {
		return "(unset)"
	}
	return v
}

func init() {
	rootCmd.AddCommand(envInfoCmd)
}
