package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/dmbot/dmbot/internal/config"
	"github.com/dmbot/dmbot/internal/core"
	"github.com/dmbot/dmbot/internal/core/engine"
	"github.com/dmbot/dmbot/internal/core/store"
	"github.com/dmbot/dmbot/internal/output"
)

var stateCmd = &cobra.Command{
	Use:   "state",
	Short: "Inspect or reset persisted bot state",
}

var stateShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show persisted counters, breaker and metrics",
	RunE: func(cmd *cobra.Command, args []string) error {
		format, err := resolveOutputFormat(cmd)
		if err != nil {
			return err
		}
		path, err := resolveOutputPath(cmd, format, "state")
		if err != nil {
			return err
		}

		ctx := cmd.Context()
		cfg := mustLoadConfig(ctx)
		st, err := openStateStore(ctx, cfg)
		if err != nil {
			return err
		}
		defer func() { _ = st.Close() }()

		snap, err := st.LoadState(ctx)
		if err != nil {
			return err
		}
		view := output.NewStateView(st.Driver(), snap, engine.LimitsFromConfig(cfg.RateLimits), time.Now())
		rendered, err := output.FormatState(format, view)
		if err != nil {
			return err
		}
		return writeRendered(path, rendered)
	},
}

// stateResetOptions selects what state reset clears.
type stateResetOptions struct {
	All        bool
	Breaker    bool
	Recipients []string
}

func (o stateResetOptions) validate() error {
	if !o.All && !o.Breaker && len(o.Recipients) == 0 {
		return errors.New("nothing to reset: pass --all, --breaker or --recipient")
	}
	if o.All && (o.Breaker || len(o.Recipients) > 0) {
		return errors.New("--all cannot be combined with --breaker or --recipient")
	}
	return nil
}

// stateResetResult reports what a reset changed (or would change).
type stateResetResult struct {
	Driver            string   `json:"driver"`
	DryRun            bool     `json:"dry_run"`
	All               bool     `json:"all,omitempty"`
	BreakerCleared    bool     `json:"breaker_cleared,omitempty"`
	RecipientsCleared []string `json:"recipients_cleared,omitempty"`
	RecipientsMissing []string `json:"recipients_missing,omitempty"`
}

// applyStateReset clears the selected parts of snap in place. It never
// touches the hourly and daily buckets; only --all does.
func applyStateReset(snap *core.Snapshot, opts stateResetOptions) stateResetResult {
	var res stateResetResult
	if opts.Breaker && snap.Breaker.Failures > 0 {
		snap.Breaker = core.BreakerState{}
		res.BreakerCleared = true
	}
	for _, name := range core.NormalizeUsers(opts.Recipients) {
		if _, ok := snap.History.PerUser[name]; ok {
			delete(snap.History.PerUser, name)
			res.RecipientsCleared = append(res.RecipientsCleared, name)
		} else {
			res.RecipientsMissing = append(res.RecipientsMissing, name)
		}
	}
	sort.Strings(res.RecipientsCleared)
	sort.Strings(res.RecipientsMissing)
	return res
}

var (
	stateResetAll        bool
	stateResetBreaker    bool
	stateResetRecipients []string
	stateResetYes        bool
	stateResetDryRun     bool
)

var stateResetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Reset persisted state",
	Long: `Reset persisted state. Stop the bot first: a running bot overwrites the
store on its next save.

  --all             remove everything (requires --yes)
  --breaker         clear circuit breaker failures
  --recipient NAME  forget a recipient's daily count and failures (repeatable)`,
	RunE: func(cmd *cobra.Command, args []string) error {
		opts := stateResetOptions{All: stateResetAll, Breaker: stateResetBreaker, Recipients: stateResetRecipients}
		if err := opts.validate(); err != nil {
			return err
		}
		if opts.All && !stateResetYes && !stateResetDryRun {
			return errors.New("--all requires --yes (or use --dry-run)")
		}
		format, err := resolveOutputFormat(cmd)
		if err != nil {
			return err
		}

		ctx := cmd.Context()
		cfg := mustLoadConfig(ctx)
		st, err := openStateStore(ctx, cfg)
		if err != nil {
			return err
		}
		defer func() { _ = st.Close() }()

		res, err := resetState(ctx, st, opts, stateResetDryRun)
		if err != nil {
			return err
		}
		return writeStateResetResult(format, res)
	},
}

func resetState(ctx context.Context, st store.StateStore, opts stateResetOptions, dryRun bool) (stateResetResult, error) {
	if opts.All {
		res := stateResetResult{Driver: st.Driver(), DryRun: dryRun, All: true}
		if dryRun {
			return res, nil
		}
		return res, st.ResetState(ctx)
	}

	snap, err := st.LoadState(ctx)
	if err != nil {
		return stateResetResult{}, err
	}
	if snap == nil {
		snap = core.NewSnapshot()
	}
	snap.Normalize()

	res := applyStateReset(snap, opts)
	res.Driver = st.Driver()
	res.DryRun = dryRun
	if dryRun || (!res.BreakerCleared && len(res.RecipientsCleared) == 0) {
		return res, nil
	}
	snap.SavedAt = time.Now().UTC()
	return res, st.SaveState(ctx, snap)
}

func writeStateResetResult(format output.Format, res stateResetResult) error {
	if format == output.FormatJSON {
		payload, err := json.MarshalIndent(res, "", "  ")
		if err != nil {
			return err
		}
		return writeRendered("", string(payload))
	}

	verb := "Reset"
	if res.DryRun {
		verb = "Would reset"
	}
	var lines []string
	switch {
	case res.All:
		lines = append(lines, fmt.Sprintf("%s all %s state", verb, res.Driver))
	default:
		if res.BreakerCleared {
			lines = append(lines, verb+" circuit breaker")
		}
		if len(res.RecipientsCleared) > 0 {
			lines = append(lines, fmt.Sprintf("%s %d recipient(s): %s", verb, len(res.RecipientsCleared), strings.Join(res.RecipientsCleared, ", ")))
		}
		if len(res.RecipientsMissing) > 0 {
			lines = append(lines, "No state for: "+strings.Join(res.RecipientsMissing, ", "))
		}
		if len(lines) == 0 {
			lines = append(lines, "Nothing to reset")
		}
	}
	return writeRendered("", strings.Join(lines, "\n"))
}

func openStateStore(ctx context.Context, cfg *config.Config) (store.StateStore, error) {
	st, err := store.OpenState(ctx, cfg.State)
	if err != nil {
		return nil, fmt.Errorf("open %s state store: %w", cfg.State.Driver, err)
	}
	return st, nil
}

func init() {
	addOutputFlags(stateShowCmd, true)

	stateResetCmd.Flags().BoolVar(&stateResetAll, "all", false, "Remove all persisted state")
	stateResetCmd.Flags().BoolVar(&stateResetBreaker, "breaker", false, "Clear circuit breaker failures")
	stateResetCmd.Flags().StringSliceVar(&stateResetRecipients, "recipient", nil, "Forget a recipient (repeatable)")
	stateResetCmd.Flags().BoolVar(&stateResetYes, "yes", false, "Confirm destructive reset")
	stateResetCmd.Flags().BoolVar(&stateResetDryRun, "dry-run", false, "Show what would be reset")
	stateResetCmd.Flags().StringP("output-format", "o", string(output.FormatTable), "Output format: table|json")

	stateCmd.AddCommand(stateShowCmd, stateResetCmd)
	rootCmd.AddCommand(stateCmd)
}
