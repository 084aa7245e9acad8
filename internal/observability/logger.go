package observability

import (
	"fmt"
	"os"
	"strings"

	"github.com/fulmenhq/gofulmen/foundry"
	"github.com/fulmenhq/gofulmen/logging"

	"github.com/dmbot/dmbot/internal/config"
)

var (
	// CLILogger serves one-shot commands (SIMPLE profile).
	CLILogger *logging.Logger

	// ServerLogger serves the long-running bot and dashboard.
	ServerLogger *logging.Logger
)

// InitCLILogger initializes the CLI logger. verbose lowers the level to DEBUG.
func InitCLILogger(verbose bool) {
	logger, err := logging.NewCLI(config.AppName)
	if err != nil {
		exitWithCodeStderr(foundry.ExitConfigInvalid, "Failed to initialize CLI logger", err)
	}
	if verbose {
		logger.SetLevel(logging.DEBUG)
	}
	CLILogger = logger
}

// InitServerLogger builds the server logger from the logging section.
// STRUCTURED emits JSON with correlation middleware; anything else uses the
// console format.
func InitServerLogger(cfg config.LoggingConfig) {
	logger, err := NewServerLogger(cfg)
	if err != nil {
		exitWithCodeStderr(foundry.ExitConfigInvalid, "Failed to initialize server logger", err)
	}
	ServerLogger = logger
}

// NewServerLogger returns a logger without installing it globally.
func NewServerLogger(cfg config.LoggingConfig) (*logging.Logger, error) {
	structured := strings.EqualFold(cfg.Profile, "STRUCTURED")

	lc := &logging.LoggerConfig{
		Profile:      logging.ProfileSimple,
		DefaultLevel: parseLogLevel(cfg.Level),
		Service:      config.AppName,
		Environment:  "production",
		Sinks: []logging.SinkConfig{
			{
				Type:   "console",
				Format: "console",
				Console: &logging.ConsoleSinkConfig{
					Stream:   "stderr",
					Colorize: false,
				},
			},
		},
		EnableCaller: true,
	}

	if structured {
		lc.Profile = logging.ProfileStructured
		lc.StaticFields = map[string]any{"component": "bot"}
		lc.Sinks[0].Format = "json"
		lc.Middleware = []logging.MiddlewareConfig{
			{
				Name:    "correlation",
				Enabled: true,
				Order:   100,
				Config:  make(map[string]any),
			},
		}
		lc.EnableStacktrace = true
	}

	return logging.New(lc)
}

// Logger returns the most specific initialized logger, creating a CLI logger
// on first use.
func Logger() *logging.Logger {
	if ServerLogger != nil {
		return ServerLogger
	}
	if CLILogger == nil {
		InitCLILogger(false)
	}
	return CLILogger
}

func parseLogLevel(levelStr string) string {
	switch strings.ToLower(strings.TrimSpace(levelStr)) {
	case "trace":
		return "TRACE"
	case "debug":
		return "DEBUG"
	case "warn", "warning":
		return "WARN"
	case "error":
		return "ERROR"
	default:
		return "INFO"
	}
}

// exitWithCodeStderr is used before any logger exists.
func exitWithCodeStderr(exitCode foundry.ExitCode, msg string, err error) {
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: %s: %v\n", msg, err)
	} else {
		fmt.Fprintf(os.Stderr, "FATAL: %s\n", msg)
	}

	if info, ok := foundry.GetExitCodeInfo(exitCode); ok {
		fmt.Fprintf(os.Stderr, "Exit Code: %d (%s) - %s\n", info.Code, info.Name, info.Description)
		os.Exit(info.Code)
	}
	os.Exit(int(exitCode))
}
