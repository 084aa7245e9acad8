package bot

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/dmbot/dmbot/internal/config"
	"github.com/dmbot/dmbot/internal/core"
	"github.com/dmbot/dmbot/internal/core/engine"
	"github.com/dmbot/dmbot/internal/core/store"
	"github.com/dmbot/dmbot/internal/reddit"
	"github.com/dmbot/dmbot/internal/responder"
)

var testStart = time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Sleep(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if d > 0 {
		c.now = c.now.Add(d)
	}
	return nil
}

type fakeAPI struct {
	mu       sync.Mutex
	username string
	authErr  error
	sendErr  error
	fetchErr error
	subs     []reddit.Submission
	creds    reddit.Credentials
	sent     []string
}

func (f *fakeAPI) SendDirectMessage(ctx context.Context, recipient, body string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sendErr != nil {
		return f.sendErr
	}
	f.sent = append(f.sent, recipient)
	return nil
}

func (f *fakeAPI) SetCredentials(creds reddit.Credentials) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.creds = creds
}

func (f *fakeAPI) HasCredentials() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.creds.Complete()
}

func (f *fakeAPI) Authenticate(ctx context.Context) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.authErr != nil {
		return "", f.authErr
	}
	return f.username, nil
}

func (f *fakeAPI) NewSubmissions(ctx context.Context, subreddit string, limit int) ([]reddit.Submission, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fetchErr != nil {
		return nil, f.fetchErr
	}
	if limit < len(f.subs) {
		return append([]reddit.Submission(nil), f.subs[:limit]...), nil
	}
	return append([]reddit.Submission(nil), f.subs...), nil
}

func (f *fakeAPI) Sent() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.sent...)
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []core.Event
}

func (p *recordingPublisher) Publish(evt core.Event) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, evt)
}

func (p *recordingPublisher) Types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.events))
	for _, e := range p.events {
		out = append(out, e.Type)
	}
	return out
}

type harness struct {
	bot     *Bot
	api     *fakeAPI
	clock   *fakeClock
	limiter *engine.RateLimiter
	events  *recordingPublisher
}

type harnessOption func(*Options, *engine.Limits)

func withStore(st store.StateStore) harnessOption {
	return func(o *Options, _ *engine.Limits) { o.Store = st }
}

func withLimits(fn func(*engine.Limits)) harnessOption {
	return func(_ *Options, l *engine.Limits) { fn(l) }
}

func withBotConfig(fn func(*config.BotConfig)) harnessOption {
	return func(o *Options, _ *engine.Limits) { fn(&o.Config) }
}

func newHarness(t *testing.T, opts ...harnessOption) *harness {
	t.Helper()

	clock := &fakeClock{now: testStart}
	api := &fakeAPI{username: "dmbot_account"}
	events := &recordingPublisher{}

	limits := engine.DefaultLimits()
	limits.MinDelay = 0
	limits.Jitter = 0

	o := Options{
		Config: config.BotConfig{
			ResponseStyle: "friendly",
			BatchSize:     5,
			PollInterval:  time.Minute,
			IdleInterval:  time.Second,
			ErrorBackoff:  5 * time.Minute,
			HealthBackoff: 5 * time.Minute,
		},
		API:    api,
		Events: events,
	}
	for _, opt := range opts {
		opt(&o, &limits)
	}

	limiter := engine.NewRateLimiter(limits)
	limiter.Clock = clock.Now
	limiter.Sleep = clock.Sleep
	limiter.Rand = func() float64 { return 0.5 }

	o.Limiter = limiter
	o.Pipeline = &engine.SendPipeline{
		Limiter:    limiter,
		Responder:  &responder.TemplateResponder{Style: "friendly", Intn: func(int) int { return 0 }},
		Messenger:  api,
		MaxRetries: 3,
		Backoff:    engine.ExponentialBackoff(time.Second),
		Sleep:      clock.Sleep,
		Clock:      clock.Now,
	}

	b, err := New(o)
	require.NoError(t, err)
	b.Clock = clock.Now

	return &harness{bot: b, api: api, clock: clock, limiter: limiter, events: events}
}

func (h *harness) authenticate(t *testing.T) {
	t.Helper()
	_, err := h.bot.Authenticate(context.Background(), nil)
	require.NoError(t, err)
}

func submission(id, author string) reddit.Submission {
	return reddit.Submission{ID: id, Name: "t3_" + id, Author: author, Title: "Post " + id, SelfText: strings.Repeat("x", 3)}
}

var errSend = errors.New("reddit unavailable")
