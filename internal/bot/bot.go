// Package bot owns the monitoring loop and the control surface used by the
// dashboard API and the CLI.
package bot

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/dmbot/dmbot/internal/config"
	"github.com/dmbot/dmbot/internal/core"
	"github.com/dmbot/dmbot/internal/core/engine"
	"github.com/dmbot/dmbot/internal/core/store"
	"github.com/dmbot/dmbot/internal/metrics"
	"github.com/dmbot/dmbot/internal/reddit"
)

var (
	ErrNotAuthenticated = errors.New("bot is not authenticated")
	ErrAlreadyRunning   = errors.New("bot is already running")
	ErrNotRunning       = errors.New("bot is not running")
)

// RedditAPI is the slice of the Reddit client the bot drives.
type RedditAPI interface {
	engine.Messenger
	SetCredentials(creds reddit.Credentials)
	HasCredentials() bool
	Authenticate(ctx context.Context) (string, error)
	NewSubmissions(ctx context.Context, subreddit string, limit int) ([]reddit.Submission, error)
}

// Publisher receives dashboard events.
type Publisher interface {
	Publish(evt core.Event)
}

// Options wires a Bot.
type Options struct {
	Config         config.BotConfig
	ResetOnCorrupt bool

	API      RedditAPI
	Limiter  *engine.RateLimiter
	Pipeline *engine.SendPipeline
	// Store may be nil, which disables persistence.
	Store   store.StateStore
	Logger  engine.Logger
	Metrics *metrics.Bot
	Events  Publisher
}

// Status is the dashboard view of the bot.
type Status struct {
	Authenticated          bool       `json:"authenticated"`
	Username               string     `json:"username,omitempty"`
	Running                bool       `json:"running"`
	TargetSubreddit        string     `json:"target_subreddit"`
	MessagesSent           uint64     `json:"messages_sent"`
	MessagesFailed         uint64     `json:"messages_failed"`
	AIResponses            uint64     `json:"ai_responses"`
	TemplateResponses      uint64     `json:"template_responses"`
	SuccessRate            float64    `json:"success_rate"`
	ErrorRate              float64    `json:"error_rate"`
	HealthStatus           string     `json:"health_status"`
	CircuitBreakerFailures uint       `json:"circuit_breaker_failures"`
	CircuitBreakerOpen     bool       `json:"circuit_breaker_open"`
	HourlyCount            uint       `json:"hourly_count"`
	DailyCount             uint       `json:"daily_count"`
	LastSendTime           *time.Time `json:"last_send_time,omitempty"`
	LastHealthCheck        *time.Time `json:"last_health_check,omitempty"`
	ProtectedUsers         []string   `json:"protected_users"`
}

// Bot is the single owner of runtime state. Control methods are safe for
// concurrent use; only the worker goroutine sends messages.
type Bot struct {
	cfg            config.BotConfig
	resetOnCorrupt bool

	api      RedditAPI
	limiter  *engine.RateLimiter
	pipeline *engine.SendPipeline
	store    store.StateStore
	logger   engine.Logger
	metrics  *metrics.Bot
	events   Publisher
	activity *ActivityLog

	Clock func() time.Time
	Sleep func(ctx context.Context, d time.Duration) error

	mu            sync.RWMutex
	authenticated bool
	username      string
	running       bool
	cancel        context.CancelFunc
	done          chan struct{}
	target        string
	protected     []string
	seen          map[string]struct{}
	stats         core.Metrics
}

// New builds a bot. Limiter and Pipeline are required.
func New(opts Options) (*Bot, error) {
	if opts.Limiter == nil || opts.Pipeline == nil {
		return nil, errors.New("bot requires a rate limiter and send pipeline")
	}
	if opts.API == nil {
		return nil, errors.New("bot requires a reddit client")
	}

	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	target := ""
	if opts.Config.Subreddit != "" {
		normalized, err := core.NormalizeSubreddit(opts.Config.Subreddit)
		if err != nil {
			return nil, err
		}
		target = normalized
	}

	b := &Bot{
		cfg:            opts.Config,
		resetOnCorrupt: opts.ResetOnCorrupt,
		api:            opts.API,
		limiter:        opts.Limiter,
		pipeline:       opts.Pipeline,
		store:          opts.Store,
		logger:         logger,
		metrics:        opts.Metrics,
		events:         opts.Events,
		activity:       NewActivityLog(opts.Config.ActivityLogSize),
		target:         target,
		protected:      core.NormalizeUsers(opts.Config.ProtectedUsers),
		seen:           make(map[string]struct{}),
		stats:          core.Metrics{HealthStatus: core.HealthUnknown},
	}
	if b.protected == nil {
		b.protected = []string{}
	}
	return b, nil
}

// Authenticate verifies credentials against Reddit. A nil creds reuses the
// configured ones.
func (b *Bot) Authenticate(ctx context.Context, creds *reddit.Credentials) (string, error) {
	if creds != nil {
		if !creds.Complete() {
			return "", fmt.Errorf("%w: username, password, client_id and client_secret are required", reddit.ErrNoCredentials)
		}
		b.api.SetCredentials(*creds)
	}

	username, err := b.api.Authenticate(ctx)
	if err != nil {
		b.mu.Lock()
		b.authenticated = false
		b.mu.Unlock()
		b.record(LevelError, "Authentication failed: "+err.Error())
		return "", err
	}

	b.mu.Lock()
	b.authenticated = true
	b.username = username
	b.mu.Unlock()

	b.record(LevelInfo, "Authenticated as u/"+username)
	b.publish(core.EventAuthSuccess, map[string]any{"username": username})
	return username, nil
}

// IsAuthenticated reports whether Authenticate has succeeded.
func (b *Bot) IsAuthenticated() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.authenticated
}

// Start launches the worker goroutine. The worker runs until Stop or until
// ctx is cancelled.
func (b *Bot) Start(ctx context.Context) error {
	b.mu.Lock()
	if !b.authenticated {
		b.mu.Unlock()
		return ErrNotAuthenticated
	}
	if b.running {
		b.mu.Unlock()
		return ErrAlreadyRunning
	}

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	done := make(chan struct{})
	b.running = true
	b.cancel = cancel
	b.done = done
	target := b.target
	b.mu.Unlock()

	if b.metrics != nil {
		b.metrics.SetRunning(true)
	}
	b.record(LevelInfo, "Bot started")
	b.publish(core.EventBotStarted, map[string]any{"target_subreddit": target})

	go b.run(runCtx, done)
	return nil
}

// Stop cancels the worker, waits for it to exit and persists state.
func (b *Bot) Stop(ctx context.Context) error {
	b.mu.Lock()
	if !b.running {
		b.mu.Unlock()
		return ErrNotRunning
	}
	cancel, done := b.cancel, b.done
	b.mu.Unlock()

	cancel()
	select {
	case <-done:
	case <-ctx.Done():
		return ctx.Err()
	}

	return b.Persist(ctx)
}

// IsRunning reports whether the worker is active.
func (b *Bot) IsRunning() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.running
}

// Target returns the monitored subreddit, empty when unset.
func (b *Bot) Target() string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.target
}

// SetTarget validates and switches the monitored subreddit.
func (b *Bot) SetTarget(raw string) (string, error) {
	name, err := core.NormalizeSubreddit(raw)
	if err != nil {
		return "", err
	}

	b.mu.Lock()
	b.target = name
	b.mu.Unlock()

	b.record(LevelInfo, "Target subreddit set to r/"+name)
	b.publish(core.EventTargetSet, map[string]any{"subreddit": name})
	return name, nil
}

// UpdateProtectedUsers replaces the do-not-disturb list.
func (b *Bot) UpdateProtectedUsers(users []string) []string {
	normalized := core.NormalizeUsers(users)
	if normalized == nil {
		normalized = []string{}
	}

	b.mu.Lock()
	b.protected = normalized
	b.mu.Unlock()

	b.record(LevelInfo, fmt.Sprintf("Protected users updated (%d)", len(normalized)))
	b.publish(core.EventDNDUpdated, map[string]any{"protected_users": normalized})
	return append([]string(nil), normalized...)
}

// ProtectedUsers returns a copy of the do-not-disturb list.
func (b *Bot) ProtectedUsers() []string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return append([]string{}, b.protected...)
}

// Status returns a consistent view for the dashboard.
func (b *Bot) Status() Status {
	usage := b.limiter.Usage()

	b.mu.RLock()
	defer b.mu.RUnlock()

	st := Status{
		Authenticated:          b.authenticated,
		Username:               b.username,
		Running:                b.running,
		TargetSubreddit:        b.target,
		MessagesSent:           b.stats.SuccessfulMessages,
		MessagesFailed:         b.stats.FailedMessages,
		AIResponses:            b.stats.AIResponses,
		TemplateResponses:      b.stats.TemplateResponses,
		SuccessRate:            b.stats.SuccessRate(),
		ErrorRate:              b.activity.ErrorRate(healthWindow),
		HealthStatus:           b.stats.HealthStatus,
		CircuitBreakerFailures: usage.BreakerFailures,
		CircuitBreakerOpen:     usage.BreakerOpen,
		HourlyCount:            usage.HourCount,
		DailyCount:             usage.DayCount,
		LastHealthCheck:        b.stats.LastHealthCheck,
		ProtectedUsers:         append([]string{}, b.protected...),
	}
	if !usage.LastSendTime.IsZero() {
		last := usage.LastSendTime
		st.LastSendTime = &last
	}
	return st
}

// Metrics returns a copy of the message counters.
func (b *Bot) Metrics() core.Metrics {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.stats
}

// Activity returns up to limit recent entries, oldest first.
func (b *Bot) Activity(limit int) []core.ActivityEntry {
	return b.activity.Recent(limit)
}

// Send delivers one message outside the monitoring loop.
func (b *Bot) Send(ctx context.Context, recipient string, msg core.MessageContext) core.SendResult {
	if msg.Style == "" {
		msg.Style = b.cfg.ResponseStyle
	}
	if msg.Recipient == "" {
		msg.Recipient = recipient
	}

	result := b.pipeline.Send(ctx, recipient, msg)
	b.observe(result)
	return result
}

// observe folds a send result into counters, activity and events.
func (b *Bot) observe(result core.SendResult) {
	switch result.Outcome {
	case core.OutcomeSuccess:
		b.mu.Lock()
		b.stats.TotalMessages++
		b.stats.SuccessfulMessages++
		if result.Source == core.SourceAI {
			b.stats.AIResponses++
		} else {
			b.stats.TemplateResponses++
		}
		b.mu.Unlock()
		b.record(LevelInfo, "Sent message to u/"+result.Recipient)
		b.publish(core.EventMessageSent, map[string]any{
			"recipient": result.Recipient,
			"source":    string(result.Source),
			"attempts":  result.Attempts,
		})
	case core.OutcomeFailed:
		b.mu.Lock()
		b.stats.TotalMessages++
		b.stats.FailedMessages++
		b.mu.Unlock()
		b.record(LevelError, fmt.Sprintf("Failed to message u/%s: %s", result.Recipient, result.Error()))
		b.publish(core.EventMessageFailed, map[string]any{
			"recipient": result.Recipient,
			"error":     result.Error(),
			"attempts":  result.Attempts,
		})
	case core.OutcomeDenied:
		if result.Reason == core.ReasonCancelled {
			b.record(LevelInfo, "Send to u/"+result.Recipient+" cancelled")
			break
		}
		b.record(LevelWarning, fmt.Sprintf("Skipped u/%s: %s", result.Recipient, result.Reason))
	}

	if b.metrics != nil {
		b.metrics.ObserveUsage(b.limiter.Usage())
	}
}

func (b *Bot) record(level, message string) {
	b.activity.Add(b.now(), level, message)
}

func (b *Bot) publish(eventType string, data map[string]any) {
	if b.events == nil {
		return
	}
	b.events.Publish(core.Event{Type: eventType, Data: data, Time: b.now()})
}

func (b *Bot) now() time.Time {
	if b.Clock != nil {
		return b.Clock().UTC()
	}
	return core.Now()
}

func (b *Bot) sleep(ctx context.Context, d time.Duration) error {
	if b.Sleep != nil {
		return b.Sleep(ctx, d)
	}
	return core.Sleep(ctx, d)
}
