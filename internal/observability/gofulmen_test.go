package observability

import (
	"testing"

	"github.com/fulmenhq/gofulmen/crucible"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/dmbot/dmbot/internal/config"
)

func TestInitCLILogger(t *testing.T) {
	prev := CLILogger
	t.Cleanup(func() { CLILogger = prev })

	InitCLILogger(true)
	require.NotNil(t, CLILogger)
	CLILogger.Debug("verbose cli logger", zap.String("test", "value"))
}

func TestNewServerLoggerProfiles(t *testing.T) {
	for _, profile := range []string{"SIMPLE", "STRUCTURED", "structured", ""} {
		t.Run(profile, func(t *testing.T) {
			logger, err := NewServerLogger(config.LoggingConfig{Level: "debug", Profile: profile})
			require.NoError(t, err)
			require.NotNil(t, logger)
			logger.Info("server logger ready",
				zap.String("profile", profile),
				zap.Int("hourly_cap", 30))
		})
	}
}

func TestLoggerPrefersServerLogger(t *testing.T) {
	prevCLI, prevServer := CLILogger, ServerLogger
	t.Cleanup(func() {
		CLILogger = prevCLI
		ServerLogger = prevServer
	})

	ServerLogger = nil
	CLILogger = nil
	require.NotNil(t, Logger())
	assert.Same(t, CLILogger, Logger())

	InitServerLogger(config.LoggingConfig{Level: "info", Profile: "SIMPLE"})
	assert.Same(t, ServerLogger, Logger())
}

func TestParseLogLevel(t *testing.T) {
	cases := map[string]string{
		"trace":   "TRACE",
		"debug":   "DEBUG",
		"info":    "INFO",
		"WARN":    "WARN",
		"warning": "WARN",
		"error":   "ERROR",
		"bogus":   "INFO",
		"":        "INFO",
	}
	for in, want := range cases {
		assert.Equal(t, want, parseLogLevel(in), in)
	}
}

func TestMetricsDisabled(t *testing.T) {
	prev := TelemetrySystem
	t.Cleanup(func() { TelemetrySystem = prev })

	TelemetrySystem = nil
	require.NoError(t, InitMetrics(config.MetricsConfig{Enabled: false}))
	assert.Nil(t, TelemetrySystem)
}

func TestEmbeddedCrucibleVersion(t *testing.T) {
	version := crucible.GetVersion()
	assert.NotEmpty(t, version.Gofulmen)
	assert.NotEmpty(t, version.Crucible)
	assert.NotEmpty(t, crucible.GetVersionString())
}

func TestResolvePort(t *testing.T) {
	port, err := resolvePort("[::]:9191")
	require.NoError(t, err)
	assert.Equal(t, 9191, port)

	_, err = resolvePort("no-port")
	assert.Error(t, err)
}
