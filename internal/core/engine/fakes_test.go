package engine

import (
	"context"
	"sync"
	"time"

	"github.com/dmbot/dmbot/internal/core"
)

// fakeClock advances only when Sleep is called.
type fakeClock struct {
	mu     sync.Mutex
	now    time.Time
	sleeps []time.Duration
}

func newFakeClock(start time.Time) *fakeClock {
	return &fakeClock{now: start}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func (c *fakeClock) Sleep(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sleeps = append(c.sleeps, d)
	if d > 0 {
		c.now = c.now.Add(d)
	}
	return nil
}

func (c *fakeClock) Sleeps() []time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]time.Duration(nil), c.sleeps...)
}

func newTestLimiter(clock *fakeClock, limits Limits) *RateLimiter {
	l := NewRateLimiter(limits)
	l.Clock = clock.Now
	l.Sleep = clock.Sleep
	l.Rand = func() float64 { return 0.5 }
	return l
}

// noDelayLimits disables the minimum delay so tests exercise the caps alone.
func noDelayLimits() Limits {
	limits := DefaultLimits()
	limits.MinDelay = 0
	limits.Jitter = 0
	return limits
}

type fakeMessenger struct {
	mu    sync.Mutex
	calls []string
	errs  []error
}

func (m *fakeMessenger) SendDirectMessage(ctx context.Context, recipient, body string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, recipient+":"+body)
	if len(m.errs) == 0 {
		return nil
	}
	err := m.errs[0]
	m.errs = m.errs[1:]
	return err
}

func (m *fakeMessenger) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.calls)
}

type staticResponder struct {
	reply core.Reply
}

func (s staticResponder) Generate(ctx context.Context, msg core.MessageContext) core.Reply {
	return s.reply
}

type panicResponder struct{}

func (panicResponder) Generate(ctx context.Context, msg core.MessageContext) core.Reply {
	panic("boom")
}

type recordingObserver struct {
	results []core.SendResult
	retries int
}

func (o *recordingObserver) ObserveSend(result core.SendResult, elapsed time.Duration) {
	o.results = append(o.results, result)
}

func (o *recordingObserver) ObserveRetry(recipient string, attempt int, err error) {
	o.retries++
}
