// Package responder produces direct message text from fixed personality
// templates or an AI provider.
package responder

import (
	"context"
	"math/rand/v2"
	"strings"

	"github.com/dmbot/dmbot/internal/core"
)

// DefaultStyle is used for unknown or empty styles.
const DefaultStyle = "friendly"

// Personality is the phrase set for one response style.
type Personality struct {
	Greetings   []string
	Transitions []string
	Closings    []string
}

// Personalities maps response styles to their phrase sets.
var Personalities = map[string]Personality{
	"friendly": {
		Greetings:   []string{"Hey there!", "Hi!", "Hello!", "Hey!"},
		Transitions: []string{"Thanks for reaching out!", "I appreciate your message!", "Thanks for sharing!"},
		Closings:    []string{"Have a great day!", "Take care!", "Cheers!", "Best regards!"},
	},
	"professional": {
		Greetings:   []string{"Hello", "Good day", "Greetings"},
		Transitions: []string{"Thank you for your message.", "I appreciate your communication.", "Thank you for reaching out."},
		Closings:    []string{"Best regards", "Sincerely", "Thank you for your time"},
	},
	"casual": {
		Greetings:   []string{"Yo!", "Hey!", "Hi there!", "Hey hey!"},
		Transitions: []string{"Thanks for the message!", "Got your message!", "Thanks for reaching out!"},
		Closings:    []string{"Later!", "See ya!", "Take it easy!", "Peace!"},
	},
}

// NormalizeStyle lowercases style and maps unknown values to DefaultStyle.
func NormalizeStyle(style string) string {
	style = strings.ToLower(strings.TrimSpace(style))
	if _, ok := Personalities[style]; ok {
		return style
	}
	return DefaultStyle
}

// TemplateResponder composes greeting, transition and closing phrases.
type TemplateResponder struct {
	Style string
	// Intn picks an index in [0,n); defaults to math/rand/v2.
	Intn func(n int) int
}

// Generate never fails.
func (t *TemplateResponder) Generate(ctx context.Context, msg core.MessageContext) core.Reply {
	style := msg.Style
	if style == "" {
		style = t.Style
	}
	p := Personalities[NormalizeStyle(style)]

	text := strings.Join([]string{
		t.pick(p.Greetings),
		t.pick(p.Transitions),
		t.pick(p.Closings),
	}, " ")
	return core.Reply{Text: text, Source: core.SourceTemplate}
}

func (t *TemplateResponder) pick(options []string) string {
	if len(options) == 0 {
		return ""
	}
	intn := rand.IntN
	if t.Intn != nil {
		intn = t.Intn
	}
	return options[intn(len(options))]
}
