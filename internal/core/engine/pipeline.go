package engine

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/dmbot/dmbot/internal/config"
	"github.com/dmbot/dmbot/internal/core"
)

// ErrNoMessenger is returned when the pipeline has nothing to send through.
var ErrNoMessenger = errors.New("no messenger configured")

// Messenger delivers a direct message.
type Messenger interface {
	SendDirectMessage(ctx context.Context, recipient, body string) error
}

// Responder produces message text. It never fails; implementations fall
// back to core.FallbackReply.
type Responder interface {
	Generate(ctx context.Context, msg core.MessageContext) core.Reply
}

// Logger is the logging surface the pipeline needs. Both gofulmen's
// *logging.Logger and *zap.Logger satisfy it.
type Logger interface {
	Debug(msg string, fields ...zap.Field)
	Info(msg string, fields ...zap.Field)
	Warn(msg string, fields ...zap.Field)
	Error(msg string, fields ...zap.Field)
}

// Observer receives per-send measurements.
type Observer interface {
	ObserveSend(result core.SendResult, elapsed time.Duration)
	ObserveRetry(recipient string, attempt int, err error)
}

// SendPipeline runs admit, generate, typing delay, send with retries, record.
type SendPipeline struct {
	Limiter   *RateLimiter
	Responder Responder
	Messenger Messenger

	Backoff        BackoffPolicy
	MaxRetries     int
	TypingDelayMin time.Duration
	TypingDelayMax time.Duration

	Sleep    func(ctx context.Context, d time.Duration) error
	Rand     func() float64
	Clock    func() time.Time
	Logger   Logger
	Observer Observer
}

// NewSendPipeline wires a pipeline from the rate_limits config section.
func NewSendPipeline(limiter *RateLimiter, responder Responder, messenger Messenger, cfg config.RateLimitConfig, logger Logger) *SendPipeline {
	return &SendPipeline{
		Limiter:        limiter,
		Responder:      responder,
		Messenger:      messenger,
		Backoff:        ExponentialBackoff(cfg.RetryDelay),
		MaxRetries:     cfg.MaxRetries,
		TypingDelayMin: cfg.TypingDelayMin,
		TypingDelayMax: cfg.TypingDelayMax,
		Logger:         logger,
	}
}

// Send delivers one message to recipient. It never panics; every outcome is
// reported in the returned SendResult.
func (p *SendPipeline) Send(ctx context.Context, recipient string, msg core.MessageContext) (result core.SendResult) {
	start := p.now()
	result = core.SendResult{Recipient: recipient}
	log := p.logger()

	defer func() {
		if rec := recover(); rec != nil {
			result.Outcome = core.OutcomeFailed
			result.Err = fmt.Errorf("send pipeline panic: %v", rec)
			log.Error("Send pipeline panic recovered",
				zap.String("recipient", recipient),
				zap.Any("panic", rec))
		}
		if p.Observer != nil {
			p.Observer.ObserveSend(result, p.now().Sub(start))
		}
	}()

	decision := p.Limiter.Admit(ctx, recipient)
	if !decision.Allowed() {
		result.Outcome = core.OutcomeDenied
		result.Reason = decision.Reason
		log.Info("Message denied",
			zap.String("recipient", recipient),
			zap.String("reason", string(decision.Reason)))
		return result
	}

	if msg.Recipient == "" {
		msg.Recipient = recipient
	}
	reply := p.generate(ctx, msg)
	result.Source = reply.Source

	if err := p.sleep(ctx, p.typingDelay()); err != nil {
		return cancelled(result, err)
	}

	if p.Messenger == nil {
		result.Outcome = core.OutcomeFailed
		result.Err = ErrNoMessenger
		return result
	}

	attempts := p.MaxRetries
	if attempts < 1 {
		attempts = 1
	}

	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		result.Attempts = attempt + 1

		err := p.Messenger.SendDirectMessage(ctx, recipient, reply.Text)
		if err == nil {
			p.Limiter.RecordSend(recipient)
			result.Outcome = core.OutcomeSuccess
			log.Info("Message sent",
				zap.String("recipient", recipient),
				zap.String("source", string(reply.Source)),
				zap.Int("attempts", result.Attempts))
			return result
		}
		lastErr = err

		if ctx.Err() != nil {
			return cancelled(result, ctx.Err())
		}

		if attempt < attempts-1 {
			log.Warn("Send attempt failed, retrying",
				zap.String("recipient", recipient),
				zap.Int("attempt", attempt+1),
				zap.Error(err))
			if p.Observer != nil {
				p.Observer.ObserveRetry(recipient, attempt+1, err)
			}
			if err := p.sleep(ctx, p.backoff(attempt)); err != nil {
				return cancelled(result, err)
			}
		}
	}

	p.Limiter.RecordFailure(recipient)
	result.Outcome = core.OutcomeFailed
	result.Err = lastErr
	log.Error("Message send failed",
		zap.String("recipient", recipient),
		zap.Int("attempts", result.Attempts),
		zap.Error(lastErr))
	return result
}

// cancelled reports a send abandoned because ctx ended. Like a cancelled
// Admit it is a denial, not a delivery failure.
func cancelled(result core.SendResult, err error) core.SendResult {
	result.Outcome = core.OutcomeDenied
	result.Reason = core.ReasonCancelled
	result.Err = err
	return result
}

func (p *SendPipeline) generate(ctx context.Context, msg core.MessageContext) core.Reply {
	if p.Responder == nil {
		return core.Reply{Text: core.FallbackReply, Source: core.SourceFallback}
	}
	reply := p.Responder.Generate(ctx, msg)
	if strings.TrimSpace(reply.Text) == "" {
		return core.Reply{Text: core.FallbackReply, Source: core.SourceFallback}
	}
	return reply
}

// typingDelay is uniform in [TypingDelayMin, TypingDelayMax].
func (p *SendPipeline) typingDelay() time.Duration {
	span := p.TypingDelayMax - p.TypingDelayMin
	if span <= 0 {
		return p.TypingDelayMin
	}
	f := rand.Float64
	if p.Rand != nil {
		f = p.Rand
	}
	return p.TypingDelayMin + time.Duration(f()*float64(span))
}

func (p *SendPipeline) backoff(attempt int) time.Duration {
	if p.Backoff == nil {
		return 0
	}
	return p.Backoff(attempt)
}

func (p *SendPipeline) sleep(ctx context.Context, d time.Duration) error {
	if p.Sleep != nil {
		return p.Sleep(ctx, d)
	}
	return core.Sleep(ctx, d)
}

func (p *SendPipeline) now() time.Time {
	if p.Clock != nil {
		return p.Clock()
	}
	return core.Now()
}

func (p *SendPipeline) logger() Logger {
	if p.Logger != nil {
		return p.Logger
	}
	return zap.NewNop()
}
