package bot

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/dmbot/dmbot/internal/core"
	"github.com/dmbot/dmbot/internal/metrics"
)

const (
	// healthWindow is how many activity entries the error rate covers.
	healthWindow = 100

	warningErrorRate  = 0.1
	criticalErrorRate = 0.2

	// pressureThreshold pauses the loop when either cap is nearly used up.
	pressureThreshold = 0.9

	// maxSeen bounds the processed-submission set.
	maxSeen = 10000
)

// Skip reasons reported per batch.
const (
	skipNoAuthor  = "no_author"
	skipProtected = "protected"
	skipSeen      = "seen"
	skipSelf      = "self"
)

func (b *Bot) run(ctx context.Context, done chan struct{}) {
	defer func() {
		b.mu.Lock()
		b.running = false
		b.cancel = nil
		b.mu.Unlock()
		if b.metrics != nil {
			b.metrics.SetRunning(false)
		}
		b.record(LevelInfo, "Bot stopped")
		b.publish(core.EventBotStopped, nil)
		close(done)
	}()

	for ctx.Err() == nil {
		wait := b.cycle(ctx)
		if err := b.sleep(ctx, wait); err != nil {
			return
		}
	}
}

// cycle runs one loop iteration and returns how long to wait before the next.
func (b *Bot) cycle(ctx context.Context) (wait time.Duration) {
	defer func() {
		if rec := recover(); rec != nil {
			b.logger.Error("Monitoring loop panic", zap.Any("panic", rec))
			b.record(LevelError, fmt.Sprintf("Monitoring loop error: %v", rec))
			wait = b.cfg.ErrorBackoff
		}
	}()

	target := b.Target()
	if target == "" {
		return b.cfg.IdleInterval
	}

	if !b.ReadyToSend() {
		return b.cfg.HealthBackoff
	}

	if err := b.processBatch(ctx, target); err != nil {
		if ctx.Err() != nil {
			return 0
		}
		b.logger.Error("Failed to process submissions",
			zap.String("subreddit", target),
			zap.Error(err))
		b.record(LevelError, "Failed to fetch r/"+target+": "+err.Error())
		return b.cfg.ErrorBackoff
	}

	b.limiter.Prune()
	if err := b.Persist(ctx); err != nil {
		b.logger.Warn("Failed to persist state", zap.Error(err))
	}
	return b.cfg.PollInterval
}

// ReadyToSend refreshes the health status and reports whether the loop
// should keep sending. Critical health or a nearly exhausted cap pauses it.
func (b *Bot) ReadyToSend() bool {
	status := b.MonitorHealth()
	if status == core.HealthCritical {
		b.logger.Warn("Health critical; pausing",
			zap.Float64("error_rate", b.activity.ErrorRate(healthWindow)))
		b.record(LevelWarning, "Health critical, pausing message sending")
		return false
	}

	usage := b.limiter.Usage()
	if b.metrics != nil {
		b.metrics.ObserveUsage(usage)
	}
	if usage.HourlyPressure() > pressureThreshold || usage.DailyPressure() > pressureThreshold {
		b.logger.Warn("Approaching rate limits; pausing",
			zap.Uint("hourly", usage.HourCount),
			zap.Uint("daily", usage.DayCount))
		b.record(LevelWarning, fmt.Sprintf("Approaching rate limits (%d/%d hourly, %d/%d daily)",
			usage.HourCount, usage.MaxPerHour, usage.DayCount, usage.MaxPerDay))
		return false
	}
	return true
}

// MonitorHealth recomputes the health status from recent activity.
func (b *Bot) MonitorHealth() string {
	errorRate := b.activity.ErrorRate(healthWindow)

	status := core.HealthHealthy
	switch {
	case errorRate > criticalErrorRate:
		status = core.HealthCritical
	case errorRate > warningErrorRate:
		status = core.HealthWarning
	}

	now := b.now()
	b.mu.Lock()
	b.stats.HealthStatus = status
	b.stats.LastHealthCheck = &now
	b.mu.Unlock()
	return status
}

func (b *Bot) processBatch(ctx context.Context, target string) error {
	subs, err := b.api.NewSubmissions(ctx, target, b.cfg.BatchSize)
	if err != nil {
		return err
	}

	skipped := map[string]int{}
	defer func() { metrics.RecordSubmissions(len(subs), skipped) }()

	for _, sub := range subs {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		if reason := b.claim(sub.ID, sub.Author, sub.HasAuthor()); reason != "" {
			skipped[reason]++
			continue
		}

		result := b.Send(ctx, sub.Author, core.MessageContext{
			Recipient:    sub.Author,
			Subreddit:    target,
			SubmissionID: sub.ID,
			Title:        sub.Title,
			Body:         sub.SelfText,
		})
		if result.Outcome == core.OutcomeDenied && stopsBatch(result.Reason) {
			b.logger.Info("Send window closed; ending batch early",
				zap.String("reason", string(result.Reason)))
			break
		}
	}
	return nil
}

// claim marks a submission as processed and returns a skip reason when the
// author must not be messaged.
func (b *Bot) claim(id, author string, hasAuthor bool) string {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !hasAuthor {
		return skipNoAuthor
	}
	if _, ok := b.seen[id]; ok {
		return skipSeen
	}
	if len(b.seen) >= maxSeen {
		b.seen = make(map[string]struct{})
	}
	b.seen[id] = struct{}{}

	name := strings.ToLower(author)
	if b.username != "" && strings.EqualFold(name, b.username) {
		return skipSelf
	}
	for _, p := range b.protected {
		if p == name {
			return skipProtected
		}
	}
	return ""
}

// stopsBatch reports denials that will hold for every remaining recipient.
func stopsBatch(reason core.DenyReason) bool {
	switch reason {
	case core.ReasonCircuitOpen, core.ReasonHourlyLimit, core.ReasonDailyLimit, core.ReasonCancelled:
		return true
	default:
		return false
	}
}
