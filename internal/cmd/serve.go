package cmd

import (
	"context"
	"errors"
	"time"

	"github.com/fulmenhq/gofulmen/foundry"
	"github.com/fulmenhq/gofulmen/signals"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/dmbot/dmbot/internal/bot"
	"github.com/dmbot/dmbot/internal/config"
	"github.com/dmbot/dmbot/internal/core"
	"github.com/dmbot/dmbot/internal/core/engine"
	errwrap "github.com/dmbot/dmbot/internal/errors"
	"github.com/dmbot/dmbot/internal/metrics"
	"github.com/dmbot/dmbot/internal/observability"
	"github.com/dmbot/dmbot/internal/server"
	"github.com/dmbot/dmbot/internal/server/handlers"
)

var (
	serverPort int
	serverHost string
)

type telemetryHealthChecker struct{}

func (telemetryHealthChecker) CheckHealth(context.Context) error {
	if observability.TelemetrySystem == nil || observability.PrometheusExporter == nil {
		return errwrap.NewInternalError("telemetry system not initialized")
	}
	return nil
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the bot and its dashboard API",
	Long: `Run the bot worker and the dashboard HTTP API.

Persisted state is restored before the server starts; corrupt state aborts
startup unless state.reset_on_corrupt is set.

Signal Handling:
  • Ctrl+C (SIGINT) or SIGTERM: stop the bot, persist state, shut down
  • Ctrl+C twice within 2s: force quit
  • SIGHUP: reload the config file (target subreddit and protected users)`,
	RunE: runServe,
}

func runServe(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	cfg := mustLoadConfig(ctx)
	if cmd.Flags().Changed("host") {
		cfg.Server.Host = serverHost
	}
	if cmd.Flags().Changed("port") {
		cfg.Server.Port = serverPort
	}

	observability.InitServerLogger(cfg.Logging)
	logger := observability.ServerLogger

	if err := observability.InitMetrics(cfg.Metrics); err != nil {
		logger.Error("Failed to initialize metrics", zap.Error(err))
		return errwrap.WrapInternal(ctx, err, "metrics initialization failed")
	}
	metrics.SetServerStartTime(time.Now())

	hub := handlers.NewEventHub()
	rt, err := buildRuntime(ctx, cfg, logger, hub)
	if err != nil {
		ExitWithCode(logger, foundry.ExitConfigInvalid, "Failed to initialize bot", err)
	}
	if err := rt.bot.Restore(ctx); err != nil {
		code := exitCodeFor(err)
		if errors.Is(err, core.ErrStateCorrupt) {
			logger.Error("Persisted state is corrupt; set state.reset_on_corrupt to discard it")
		}
		_ = rt.Close()
		ExitWithCode(logger, code, "Failed to restore state", err)
	}

	logger.Info("Initializing dmbot",
		zap.String("version", versionInfo.Version),
		zap.String("state_driver", rt.store.Driver()),
		zap.String("target_subreddit", rt.bot.Target()),
		zap.String("host", cfg.Server.Host),
		zap.Int("port", cfg.Server.Port),
		zap.Bool("metrics_enabled", cfg.Metrics.Enabled))

	health := handlers.NewHealthManager(versionInfo.Version)
	if cfg.Health.Enabled {
		health.RegisterChecker("state", handlers.HealthCheckerFunc(rt.store.Ping))
		health.RegisterChecker("bot", rt.bot)
		if cfg.Metrics.Enabled {
			health.RegisterChecker("telemetry", telemetryHealthChecker{})
		}
	}

	lifetime, cancelLifetime := context.WithCancel(context.WithoutCancel(ctx))
	defer cancelLifetime()

	srv := server.New(cfg.Server, server.Deps{
		API:         handlers.NewAPI(lifetime, rt.bot),
		Events:      hub,
		Health:      health,
		BotMetrics:  rt.metrics,
		MetricsPort: cfg.Metrics.Port,
	})

	shutdownTimeout := cfg.Server.ShutdownTimeout
	if shutdownTimeout <= 0 {
		shutdownTimeout = 10 * time.Second
	}
	shutdownDone := make(chan struct{})

	// Shutdown handlers run last registered first.
	signals.OnShutdown(func(ctx context.Context) error {
		defer close(shutdownDone)
		if err := logger.Sync(); err != nil {
			logger.Warn("Logger sync returned error (may be benign)", zap.Error(err))
		}
		return nil
	})
	signals.OnShutdown(func(ctx context.Context) error {
		if err := rt.Close(); err != nil {
			logger.Warn("Failed to close state store", zap.Error(err))
		}
		return nil
	})
	signals.OnShutdown(func(ctx context.Context) error {
		logger.Info("Shutting down HTTP server...")
		shutdownCtx, cancel := context.WithTimeout(ctx, shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return errwrap.WrapInternal(ctx, err, "server shutdown failed")
		}
		logger.Info("HTTP server stopped gracefully")
		return nil
	})
	signals.OnShutdown(func(ctx context.Context) error {
		stopCtx, cancel := context.WithTimeout(ctx, shutdownTimeout)
		defer cancel()
		return stopBot(stopCtx, rt.bot, cancelLifetime, logger)
	})

	signals.OnReload(func(ctx context.Context) error {
		logger.Info("Received SIGHUP: reloading configuration")
		fresh, err := config.LoadFile(ctx, cfgFile)
		if err != nil {
			logger.Error("Failed to reload config", zap.Error(err))
			return errwrap.WrapConfigInvalid(ctx, err, "config reload failed")
		}
		applyReload(rt.bot, fresh, logger)
		return nil
	})

	if err := signals.EnableDoubleTap(signals.DoubleTapConfig{
		Window:  2 * time.Second,
		Message: "Press Ctrl+C again within 2 seconds to force quit",
	}); err != nil {
		logger.Warn("Failed to enable double-tap force quit", zap.Error(err))
	}

	if cfg.Bot.AutoStart {
		autoStart(ctx, lifetime, rt, logger)
	}

	errChan := make(chan error, 2)
	go func() {
		if err := srv.Start(); err != nil {
			errChan <- err
		}
	}()
	go func() {
		if err := signals.Listen(ctx); err != nil {
			logger.Error("Signal handler error", zap.Error(err))
			errChan <- err
		}
	}()

	select {
	case err := <-errChan:
		stopCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		_ = stopBot(stopCtx, rt.bot, cancelLifetime, logger)
		_ = rt.Close()
		return errwrap.WrapInternal(ctx, err, "server error")
	case <-shutdownDone:
		return nil
	}
}

// stopBot stops a running worker, or persists state directly when idle.
func stopBot(ctx context.Context, b *bot.Bot, cancelLifetime context.CancelFunc, logger engine.Logger) error {
	defer cancelLifetime()

	var err error
	if b.IsRunning() {
		logger.Info("Stopping bot worker...")
		err = b.Stop(ctx)
		if errors.Is(err, bot.ErrNotRunning) {
			err = b.Persist(ctx)
		}
	} else {
		err = b.Persist(ctx)
	}
	if err != nil {
		logger.Error("Failed to persist state on shutdown", zap.Error(err))
		return errwrap.WrapStateError(ctx, err, "persist state on shutdown failed")
	}
	logger.Info("State persisted")
	return nil
}

func autoStart(ctx, lifetime context.Context, rt *botRuntime, logger engine.Logger) {
	if !rt.client.HasCredentials() {
		logger.Warn("bot.auto_start set but Reddit credentials are incomplete; waiting for /api/authenticate")
		return
	}
	username, err := rt.bot.Authenticate(ctx, nil)
	if err != nil {
		logger.Warn("Auto-start authentication failed", zap.Error(err))
		return
	}
	if err := rt.bot.Start(lifetime); err != nil {
		logger.Warn("Auto-start failed", zap.Error(err))
		return
	}
	logger.Info("Bot auto-started", zap.String("username", username))
}

// applyReload pushes the runtime-adjustable settings of a reloaded config
// into the bot. Limits and backends need a restart.
func applyReload(b *bot.Bot, cfg *config.Config, logger engine.Logger) {
	if cfg.Bot.Subreddit != "" {
		name, err := b.SetTarget(cfg.Bot.Subreddit)
		if err != nil {
			logger.Warn("Ignoring invalid subreddit in reloaded config", zap.Error(err))
		} else {
			logger.Info("Target subreddit reloaded", zap.String("subreddit", name))
		}
	}
	if cfg.Bot.ProtectedUsers != nil {
		users := b.UpdateProtectedUsers(cfg.Bot.ProtectedUsers)
		logger.Info("Protected users reloaded", zap.Int("count", len(users)))
	}
	logger.Info("Configuration reloaded", zap.String("file", cfg.Source))
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringVar(&serverHost, "host", "localhost", "server host (overrides server.host)")
	serveCmd.Flags().IntVarP(&serverPort, "port", "p", 8080, "server port (overrides server.port)")
}
