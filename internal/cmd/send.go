package cmd

import (
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/dmbot/dmbot/internal/core"
	"github.com/dmbot/dmbot/internal/observability"
	"github.com/dmbot/dmbot/internal/output"
)

var (
	sendSubreddit string
	sendTitle     string
	sendBody      string
	sendDryRun    bool
)

var sendCmd = &cobra.Command{
	Use:   "send <username>",
	Short: "Send one direct message through the rate limiter",
	Long: `Send a single direct message using the same limiter, circuit breaker,
retry policy and persisted state as the running bot.

The message text is generated from --title/--body the way the bot replies to
a new submission. Use --dry-run to only evaluate the rate limits.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		recipient := strings.TrimPrefix(strings.TrimSpace(args[0]), "u/")
		if recipient == "" {
			return fmt.Errorf("recipient is required")
		}
		format, err := resolveOutputFormat(cmd)
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		cfg := mustLoadConfig(ctx)
		logger := observability.Logger()

		rt, err := buildRuntime(ctx, cfg, logger, nil)
		if err != nil {
			return err
		}
		defer func() { _ = rt.Close() }()

		if err := rt.bot.Restore(ctx); err != nil {
			return err
		}

		if sendDryRun {
			rendered, err := output.FormatDecision(format, recipient, rt.limiter.Check(recipient))
			if err != nil {
				return err
			}
			return writeRendered("", rendered)
		}

		if _, err := rt.bot.Authenticate(ctx, nil); err != nil {
			return fmt.Errorf("authenticate: %w", err)
		}

		subreddit := sendSubreddit
		if subreddit == "" {
			subreddit = rt.bot.Target()
		}
		result := rt.bot.Send(ctx, recipient, core.MessageContext{
			Recipient: recipient,
			Subreddit: subreddit,
			Title:     sendTitle,
			Body:      sendBody,
			Style:     cfg.Bot.ResponseStyle,
		})

		if err := rt.bot.Persist(ctx); err != nil {
			logger.Warn("Failed to persist state after send", zap.Error(err))
		}

		rendered, err := output.FormatSendResult(format, result)
		if err != nil {
			return err
		}
		if err := writeRendered("", rendered); err != nil {
			return err
		}

		switch result.Outcome {
		case core.OutcomeDenied:
			return fmt.Errorf("send denied: %s", result.Reason)
		case core.OutcomeFailed:
			return fmt.Errorf("send failed after %d attempt(s): %w", result.Attempts, result.Err)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(sendCmd)
	sendCmd.Flags().StringVar(&sendSubreddit, "subreddit", "", "subreddit to mention (default: configured target)")
	sendCmd.Flags().StringVar(&sendTitle, "title", "", "submission title to reply to")
	sendCmd.Flags().StringVar(&sendBody, "body", "", "submission body to reply to")
	sendCmd.Flags().BoolVar(&sendDryRun, "dry-run", false, "check the rate limits without sending")
	addOutputFlags(sendCmd, false)
}
