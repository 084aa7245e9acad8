package cmd

import (
	"context"
	"errors"
	"sync"

	"github.com/fulmenhq/gofulmen/foundry"
	"github.com/fulmenhq/gofulmen/telemetry"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/dmbot/dmbot/internal/config"
	"github.com/dmbot/dmbot/internal/core"
	"github.com/dmbot/dmbot/internal/observability"
	"github.com/dmbot/dmbot/internal/reddit"
)

var (
	cfgFile string
	verbose bool

	versionInfo struct {
		Version   string
		Commit    string
		BuildDate string
	}

	loadedConfig struct {
		once sync.Once
		cfg  *config.Config
		err  error
	}
)

// SetVersionInfo is called by main with the ldflags build metadata.
func SetVersionInfo(version, commit, buildDate string) {
	versionInfo.Version = version
	versionInfo.Commit = commit
	versionInfo.BuildDate = buildDate
}

var rootCmd = &cobra.Command{
	Use:   config.AppName,
	Short: "Rate-limited Reddit direct message bot",
	Long: `dmbot watches a subreddit and sends direct messages to new posters,
within hourly, daily and per-recipient limits and behind a circuit breaker.

Run "dmbot serve" for the bot and its dashboard API.`,
	SilenceUsage: true,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	// Config loading must not emit metrics to stdout; serve installs the
	// real telemetry system later.
	if sys, err := telemetry.NewSystem(&telemetry.Config{Enabled: false}); err == nil {
		telemetry.SetGlobalSystem(sys)
	}

	cobra.OnInitialize(initLogging)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default $XDG_CONFIG_HOME/dmbot/config.yaml or ./config/config.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output (sets log level to debug)")
}

func initLogging() {
	observability.InitCLILogger(verbose)
}

// loadConfig reads and validates configuration once per process.
func loadConfig(ctx context.Context) (*config.Config, error) {
	loadedConfig.once.Do(func() {
		loadedConfig.cfg, loadedConfig.err = config.LoadFile(ctx, cfgFile)
		if loadedConfig.err == nil && loadedConfig.cfg.Source != "" {
			observability.Logger().Debug("Using config file", zap.String("path", loadedConfig.cfg.Source))
		}
	})
	return loadedConfig.cfg, loadedConfig.err
}

// mustLoadConfig exits with the config-invalid code when loading fails.
func mustLoadConfig(ctx context.Context) *config.Config {
	cfg, err := loadConfig(ctx)
	if err != nil {
		ExitWithCode(observability.Logger(), foundry.ExitConfigInvalid, "Failed to load configuration", err)
	}
	return cfg
}

// exitCodeFor maps a non-nil command error onto a foundry exit code.
func exitCodeFor(err error) foundry.ExitCode {
	var apiErr *reddit.APIError
	switch {
	case errors.Is(err, core.ErrStateCorrupt):
		return foundry.ExitConfigInvalid
	case errors.As(err, &apiErr):
		return foundry.ExitExternalServiceUnavailable
	default:
		return foundry.ExitFailure
	}
}

// ExitCodeFor is exitCodeFor for main.
func ExitCodeFor(err error) foundry.ExitCode {
	return exitCodeFor(err)
}
