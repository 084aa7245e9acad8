package responder

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	"github.com/dmbot/dmbot/internal/ailink/content"
	"github.com/dmbot/dmbot/internal/ailink/driver"
	"github.com/dmbot/dmbot/internal/core"
)

// SystemPrompts is the fixed system prompt per response style.
var SystemPrompts = map[string]string{
	"friendly":     "You are a friendly and approachable Reddit user. Keep responses casual and engaging.",
	"professional": "You are a professional and courteous Reddit user. Keep responses formal and helpful.",
	"casual":       "You are a casual and laid-back Reddit user. Keep responses informal and fun.",
}

var errEmptyCompletion = errors.New("provider returned empty text")

// Logger is the subset of gofulmen/zap logging used here.
type Logger interface {
	Warn(msg string, fields ...zap.Field)
	Info(msg string, fields ...zap.Field)
}

// AIOptions configures an AIResponder.
type AIOptions struct {
	Model       string
	Style       string
	MaxTokens   int
	Temperature float64
	// BreakerFailures consecutive provider failures open the breaker for
	// BreakerTimeout.
	BreakerFailures uint32
	BreakerTimeout  time.Duration
}

// AIResponder asks a completion driver for the reply and falls back when the
// provider fails or its breaker is open.
type AIResponder struct {
	driver   driver.Driver
	opts     AIOptions
	fallback *TemplateResponder
	breaker  *gobreaker.CircuitBreaker
	logger   Logger
}

// NewAIResponder wraps d with a provider breaker.
func NewAIResponder(d driver.Driver, opts AIOptions, fallback *TemplateResponder, logger Logger) *AIResponder {
	if opts.BreakerFailures == 0 {
		opts.BreakerFailures = 3
	}
	if opts.BreakerTimeout <= 0 {
		opts.BreakerTimeout = 5 * time.Minute
	}
	if fallback == nil {
		fallback = &TemplateResponder{Style: opts.Style}
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	r := &AIResponder{driver: d, opts: opts, fallback: fallback, logger: logger}
	threshold := opts.BreakerFailures
	r.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    "ai-" + d.Name(),
		Timeout: opts.BreakerTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("AI provider breaker state changed",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()))
		},
	})
	return r
}

// Generate returns AI text, or template text when the provider is unavailable.
func (r *AIResponder) Generate(ctx context.Context, msg core.MessageContext) core.Reply {
	text, err := r.complete(ctx, msg)
	if err != nil {
		r.logger.Warn("AI response failed, falling back to template",
			zap.String("recipient", msg.Recipient),
			zap.Error(err))
		return r.fallback.Generate(ctx, msg)
	}
	return core.Reply{Text: text, Source: core.SourceAI}
}

// BreakerState reports the provider breaker state ("closed", "open", "half-open").
func (r *AIResponder) BreakerState() string {
	return r.breaker.State().String()
}

func (r *AIResponder) complete(ctx context.Context, msg core.MessageContext) (string, error) {
	style := msg.Style
	if style == "" {
		style = r.opts.Style
	}
	style = NormalizeStyle(style)

	maxTokens := r.opts.MaxTokens
	temperature := r.opts.Temperature
	req := &driver.Request{
		Model: r.opts.Model,
		Messages: []content.Message{
			content.TextMessage(content.RoleSystem, SystemPrompts[style]),
			content.TextMessage(content.RoleUser, "Respond to this Reddit message: "+msg.Text()),
		},
		MaxTokens:   &maxTokens,
		Temperature: &temperature,
	}

	out, err := r.breaker.Execute(func() (interface{}, error) {
		resp, err := r.driver.Complete(ctx, req)
		if err != nil {
			return nil, err
		}
		text := resp.Text()
		if text == "" {
			return nil, errEmptyCompletion
		}
		return text, nil
	})
	if err != nil {
		return "", fmt.Errorf("%s completion: %w", r.driver.Name(), err)
	}
	return out.(string), nil
}
