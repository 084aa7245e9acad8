package responder

import (
	"context"
	"net/http"

	"github.com/dmbot/dmbot/internal/ailink/driver/openai"
	"github.com/dmbot/dmbot/internal/config"
	"github.com/dmbot/dmbot/internal/core"
)

// Generator produces reply text and never fails.
type Generator interface {
	Generate(ctx context.Context, msg core.MessageContext) core.Reply
}

// FromConfig returns an AI-backed generator when ai.enabled is set and an
// API key is available, otherwise the template generator.
func FromConfig(ai config.AIConfig, style, userAgent string, logger Logger) Generator {
	templates := &TemplateResponder{Style: NormalizeStyle(style)}
	if !ai.Enabled || ai.APIKey == "" {
		return templates
	}

	client := openai.NewClient(ai.BaseURL, ai.APIKey)
	client.Timeout = ai.Timeout
	client.UserAgent = userAgent
	client.HTTPClient = &http.Client{}

	return NewAIResponder(client, AIOptions{
		Model:           ai.Model,
		Style:           templates.Style,
		MaxTokens:       ai.MaxTokens,
		Temperature:     ai.Temperature,
		BreakerFailures: uint32(ai.BreakerFailures),
		BreakerTimeout:  ai.BreakerTimeout,
	}, templates, logger)
}
