package cmd

import (
	"context"

	"github.com/fulmenhq/gofulmen/logging"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/dmbot/dmbot/internal/bot"
	"github.com/dmbot/dmbot/internal/config"
	"github.com/dmbot/dmbot/internal/core/engine"
	"github.com/dmbot/dmbot/internal/core/store"
	"github.com/dmbot/dmbot/internal/metrics"
	"github.com/dmbot/dmbot/internal/reddit"
	"github.com/dmbot/dmbot/internal/responder"
)

// botRuntime is a fully wired bot and the resources it owns.
type botRuntime struct {
	cfg     *config.Config
	store   store.StateStore
	client  *reddit.Client
	limiter *engine.RateLimiter
	bot     *bot.Bot
	metrics *metrics.Bot
}

func (r *botRuntime) Close() error {
	if r.store == nil {
		return nil
	}
	return r.store.Close()
}

// buildRuntime opens the state backend and wires the bot. The caller must
// Close the runtime. Restore is left to the caller so it can choose how to
// treat corrupt state.
func buildRuntime(ctx context.Context, cfg *config.Config, logger *logging.Logger, events bot.Publisher) (*botRuntime, error) {
	st, err := openStateStore(ctx, cfg)
	if err != nil {
		return nil, err
	}

	client := reddit.NewClient(cfg.Reddit)
	limiter := engine.NewRateLimiter(engine.LimitsFromConfig(cfg.RateLimits))
	generator := responder.FromConfig(cfg.AI, cfg.Bot.ResponseStyle, cfg.Reddit.UserAgent, logger)
	botMetrics := metrics.NewBot(prometheus.NewRegistry())

	pipeline := engine.NewSendPipeline(limiter, generator, client, cfg.RateLimits, logger)
	pipeline.Observer = botMetrics

	b, err := bot.New(bot.Options{
		Config:         cfg.Bot,
		ResetOnCorrupt: cfg.State.ResetOnCorrupt,
		API:            client,
		Limiter:        limiter,
		Pipeline:       pipeline,
		Store:          st,
		Logger:         logger,
		Metrics:        botMetrics,
		Events:         events,
	})
	if err != nil {
		_ = st.Close()
		return nil, err
	}

	return &botRuntime{
		cfg:     cfg,
		store:   st,
		client:  client,
		limiter: limiter,
		bot:     b,
		metrics: botMetrics,
	}, nil
}
