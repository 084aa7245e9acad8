package core

import (
	"errors"
	"fmt"
	"time"
)

// DecisionKind classifies an admission decision.
type DecisionKind int

const (
	DecisionAllow DecisionKind = iota
	DecisionDeny
	DecisionDelay
)

func (k DecisionKind) String() string {
	switch k {
	case DecisionAllow:
		return "allow"
	case DecisionDeny:
		return "deny"
	case DecisionDelay:
		return "delay"
	default:
		return "unknown"
	}
}

// DenyReason identifies which admission check rejected a send.
type DenyReason string

const (
	ReasonNone        DenyReason = ""
	ReasonCircuitOpen DenyReason = "circuit_open"
	ReasonHourlyLimit DenyReason = "hourly_limit"
	ReasonDailyLimit  DenyReason = "daily_limit"
	ReasonUserLimit   DenyReason = "user_limit"
	ReasonCancelled   DenyReason = "cancelled"
)

// Decision is the result of an admission check.
type Decision struct {
	Kind   DecisionKind  `json:"kind"`
	Reason DenyReason    `json:"reason,omitempty"`
	Wait   time.Duration `json:"wait,omitempty"`
}

// Allow admits the send.
func Allow() Decision { return Decision{Kind: DecisionAllow} }

// Deny rejects the send for reason.
func Deny(reason DenyReason) Decision { return Decision{Kind: DecisionDeny, Reason: reason} }

// Delay asks the caller to wait before proceeding.
func Delay(wait time.Duration) Decision { return Decision{Kind: DecisionDelay, Wait: wait} }

// Allowed reports whether the decision admits the send.
func (d Decision) Allowed() bool { return d.Kind == DecisionAllow }

func (d Decision) String() string {
	switch d.Kind {
	case DecisionDeny:
		return fmt.Sprintf("deny(%s)", d.Reason)
	case DecisionDelay:
		return fmt.Sprintf("delay(%s)", d.Wait)
	default:
		return d.Kind.String()
	}
}

// SendOutcome classifies the result of a pipeline send.
type SendOutcome string

const (
	OutcomeSuccess SendOutcome = "success"
	OutcomeDenied  SendOutcome = "denied"
	OutcomeFailed  SendOutcome = "failed"
)

// ReplySource records how the message text was produced.
type ReplySource string

const (
	SourceAI       ReplySource = "ai"
	SourceTemplate ReplySource = "template"
	SourceFallback ReplySource = "fallback"
)

// FallbackReply is used whenever response generation cannot produce text.
const FallbackReply = "Hey! Thanks for your message. I'll get back to you soon!"

// Reply is generated message text.
type Reply struct {
	Text   string      `json:"text"`
	Source ReplySource `json:"source"`
}

// MessageContext carries what the responder needs to write a message.
type MessageContext struct {
	Recipient    string `json:"recipient"`
	Subreddit    string `json:"subreddit,omitempty"`
	SubmissionID string `json:"submission_id,omitempty"`
	Title        string `json:"title,omitempty"`
	Body         string `json:"body,omitempty"`
	Style        string `json:"style,omitempty"`
}

// Text returns the content the responder should reply to.
func (m MessageContext) Text() string {
	switch {
	case m.Title != "" && m.Body != "":
		return m.Title + "\n\n" + m.Body
	case m.Title != "":
		return m.Title
	default:
		return m.Body
	}
}

// SendResult is the structured outcome of a pipeline send.
type SendResult struct {
	Recipient string      `json:"recipient"`
	Outcome   SendOutcome `json:"outcome"`
	Reason    DenyReason  `json:"reason,omitempty"`
	Source    ReplySource `json:"source,omitempty"`
	Attempts  int         `json:"attempts"`
	Err       error       `json:"-"`
}

// Succeeded reports whether the message was delivered.
func (r SendResult) Succeeded() bool { return r.Outcome == OutcomeSuccess }

// Error returns the last error message, if any.
func (r SendResult) Error() string {
	if r.Err == nil {
		return ""
	}
	return r.Err.Error()
}

// ErrStateCorrupt marks persisted state that cannot be decoded.
var ErrStateCorrupt = errors.New("persisted state is corrupt")
