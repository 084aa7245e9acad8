package core

import "time"

// Health status values reported by the bot.
const (
	HealthUnknown  = "unknown"
	HealthHealthy  = "healthy"
	HealthWarning  = "warning"
	HealthCritical = "critical"
)

// Metrics are the bot's persisted message counters.
type Metrics struct {
	TotalMessages      uint64     `json:"total_messages" cbor:"1,keyasint"`
	SuccessfulMessages uint64     `json:"successful_messages" cbor:"2,keyasint"`
	FailedMessages     uint64     `json:"failed_messages" cbor:"3,keyasint"`
	AIResponses        uint64     `json:"ai_responses" cbor:"4,keyasint"`
	TemplateResponses  uint64     `json:"template_responses" cbor:"5,keyasint"`
	LastHealthCheck    *time.Time `json:"last_health_check,omitempty" cbor:"6,keyasint,omitempty"`
	HealthStatus       string     `json:"health_status" cbor:"7,keyasint"`
}

// SuccessRate is successful/max(1,total).
func (m Metrics) SuccessRate() float64 {
	total := m.TotalMessages
	if total == 0 {
		total = 1
	}
	return float64(m.SuccessfulMessages) / float64(total)
}

// Snapshot is everything persisted for crash recovery.
type Snapshot struct {
	History          *RateLimitState `json:"message_history" cbor:"1,keyasint"`
	Breaker          BreakerState    `json:"circuit_breaker" cbor:"2,keyasint"`
	Metrics          Metrics         `json:"metrics" cbor:"3,keyasint"`
	CurrentSubreddit string          `json:"current_subreddit,omitempty" cbor:"4,keyasint,omitempty"`
	ProtectedUsers   []string        `json:"protected_users,omitempty" cbor:"5,keyasint,omitempty"`
	SavedAt          time.Time       `json:"saved_at" cbor:"6,keyasint"`
}

// NewSnapshot returns an empty snapshot.
func NewSnapshot() *Snapshot {
	return &Snapshot{
		History: NewRateLimitState(),
		Metrics: Metrics{HealthStatus: HealthUnknown},
	}
}

// Normalize fills missing parts so a decoded snapshot is safe to use.
func (s *Snapshot) Normalize() {
	if s.History == nil {
		s.History = NewRateLimitState()
	}
	s.History.Normalize()
	if s.Metrics.HealthStatus == "" {
		s.Metrics.HealthStatus = HealthUnknown
	}
}

// ActivityEntry is one line of the bot's activity log.
type ActivityEntry struct {
	Timestamp time.Time `json:"timestamp"`
	Level     string    `json:"level"`
	Message   string    `json:"message"`
}

// Event is pushed to dashboard subscribers.
type Event struct {
	Type string         `json:"type"`
	Data map[string]any `json:"data,omitempty"`
	Time time.Time      `json:"time"`
}

// Dashboard event types.
const (
	EventAuthSuccess   = "auth_success"
	EventBotStarted    = "bot_started"
	EventBotStopped    = "bot_stopped"
	EventTargetSet     = "target_set"
	EventDNDUpdated    = "dnd_updated"
	EventMessageSent   = "message_sent"
	EventMessageFailed = "message_failed"
)
