package cmd

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/fulmenhq/gofulmen/foundry"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	errwrap "github.com/dmbot/dmbot/internal/errors"
	"github.com/dmbot/dmbot/internal/observability"
)

var (
	healthURL     string
	healthTimeout time.Duration
)

var healthCmd = &cobra.Command{
	Use:   "health",
	Short: "Run self-health check",
	Long: `Verify that the configuration loads and the state store is reachable.

With --url, also query the /health endpoint of a running server.`,
	Run: func(cmd *cobra.Command, args []string) {
		log := observability.CLILogger
		ctx, cancel := context.WithTimeout(cmd.Context(), healthTimeout)
		defer cancel()

		cfg := mustLoadConfig(ctx)
		log.Info("✅ Configuration loaded", zap.String("source", orDefaultSource(cfg.Source)))

		st, err := openStateStore(ctx, cfg)
		if err != nil {
			ExitWithCode(log, foundry.ExitExternalServiceUnavailable, "State store unavailable", err)
			return
		}
		defer func() { _ = st.Close() }()
		if err := st.Ping(ctx); err != nil {
			ExitWithCode(log, foundry.ExitExternalServiceUnavailable, "State store ping failed", err)
			return
		}
		log.Info("✅ State store reachable", zap.String("driver", st.Driver()))

		if !cfg.Reddit.HasCredentials() {
			log.Warn("⚠️  Reddit credentials not configured; authenticate through the API before starting")
		}

		if strings.TrimSpace(healthURL) != "" {
			status, err := probeServer(ctx, healthURL)
			if err != nil {
				ExitWithCode(log, foundry.ExitExternalServiceUnavailable, "Server health check failed", err)
				return
			}
			log.Info("✅ Server healthy", zap.String("url", healthURL), zap.Int("status", status))
		}

		log.Info("✅ All health checks passed")
	},
}

// probeServer requests base/health and fails on any non-2xx response.
func probeServer(ctx context.Context, base string) (int, error) {
	url := strings.TrimRight(base, "/") + "/health"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return 0, errwrap.WrapInvalidInput(ctx, err, "invalid --url")
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return 0, err
	}
	defer func() { _ = resp.Body.Close() }()
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return resp.StatusCode, fmt.Errorf("%s returned %d: %s", url, resp.StatusCode, strings.TrimSpace(string(body)))
	}
	return resp.StatusCode, nil
}

func orDefaultSource(source string) string {
	if source == "" {
		return "defaults"
	}
	return source
}

func init() {
	healthCmd.Flags().StringVar(&healthURL, "url", "", "Base URL of a running server to probe (e.g. http://localhost:8080)")
	healthCmd.Flags().DurationVar(&healthTimeout, "timeout", 10*time.Second, "Overall timeout for the checks")
	rootCmd.AddCommand(healthCmd)
}
