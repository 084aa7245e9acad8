package output

import (
	"sort"
	"time"

	"github.com/dmbot/dmbot/internal/core"
	"github.com/dmbot/dmbot/internal/core/engine"
)

// StateView is the persisted state as seen at a point in time.
type StateView struct {
	Driver           string          `json:"driver" yaml:"driver"`
	SavedAt          *time.Time      `json:"saved_at,omitempty" yaml:"saved_at,omitempty"`
	CurrentSubreddit string          `json:"current_subreddit,omitempty" yaml:"current_subreddit,omitempty"`
	ProtectedUsers   []string        `json:"protected_users" yaml:"protected_users"`
	Usage            UsageView       `json:"usage" yaml:"usage"`
	Breaker          BreakerView     `json:"circuit_breaker" yaml:"circuit_breaker"`
	Metrics          MetricsView     `json:"metrics" yaml:"metrics"`
	Recipients       []RecipientView `json:"recipients" yaml:"recipients"`
}

type UsageView struct {
	HourCount    uint       `json:"hour_count" yaml:"hour_count"`
	MaxPerHour   uint       `json:"max_per_hour" yaml:"max_per_hour"`
	DayCount     uint       `json:"day_count" yaml:"day_count"`
	MaxPerDay    uint       `json:"max_per_day" yaml:"max_per_day"`
	LastSendTime *time.Time `json:"last_send_time,omitempty" yaml:"last_send_time,omitempty"`
}

type BreakerView struct {
	Failures    uint          `json:"failures" yaml:"failures"`
	Threshold   uint          `json:"threshold" yaml:"threshold"`
	Open        bool          `json:"open" yaml:"open"`
	LastFailure *time.Time    `json:"last_failure,omitempty" yaml:"last_failure,omitempty"`
	Remaining   time.Duration `json:"remaining_ns,omitempty" yaml:"remaining,omitempty"`
}

type MetricsView struct {
	Total       uint64  `json:"total_messages" yaml:"total_messages"`
	Successful  uint64  `json:"successful_messages" yaml:"successful_messages"`
	Failed      uint64  `json:"failed_messages" yaml:"failed_messages"`
	AI          uint64  `json:"ai_responses" yaml:"ai_responses"`
	Template    uint64  `json:"template_responses" yaml:"template_responses"`
	SuccessRate float64 `json:"success_rate" yaml:"success_rate"`
	Health      string  `json:"health_status" yaml:"health_status"`
}

type RecipientView struct {
	Username            string `json:"username" yaml:"username"`
	CountToday          uint   `json:"count_today" yaml:"count_today"`
	LastResetDay        string `json:"last_reset_day" yaml:"last_reset_day"`
	ConsecutiveFailures uint   `json:"consecutive_failures" yaml:"consecutive_failures"`
}

// NewStateView evaluates snap against limits at now. Per-recipient records
// from earlier days are shown with a zero count.
func NewStateView(driver string, snap *core.Snapshot, limits engine.Limits, now time.Time) StateView {
	if snap == nil {
		snap = core.NewSnapshot()
	}
	snap.Normalize()
	now = now.UTC()

	view := StateView{
		Driver:           driver,
		CurrentSubreddit: snap.CurrentSubreddit,
		ProtectedUsers:   append([]string{}, snap.ProtectedUsers...),
		Usage: UsageView{
			HourCount:  snap.History.Hourly[core.HourKey(now)],
			MaxPerHour: limits.MaxPerHour,
			DayCount:   snap.History.Daily[core.DayKey(now)],
			MaxPerDay:  limits.MaxPerDay,
		},
		Metrics: MetricsView{
			Total:       snap.Metrics.TotalMessages,
			Successful:  snap.Metrics.SuccessfulMessages,
			Failed:      snap.Metrics.FailedMessages,
			AI:          snap.Metrics.AIResponses,
			Template:    snap.Metrics.TemplateResponses,
			SuccessRate: snap.Metrics.SuccessRate(),
			Health:      snap.Metrics.HealthStatus,
		},
		Recipients: []RecipientView{},
	}
	if !snap.SavedAt.IsZero() {
		at := snap.SavedAt.UTC()
		view.SavedAt = &at
	}
	if !snap.History.LastSendTime.IsZero() {
		at := snap.History.LastSendTime.UTC()
		view.Usage.LastSendTime = &at
	}

	breaker := engine.NewCircuitBreaker(limits.BreakerThreshold, limits.BreakerResetWindow)
	breaker.Restore(snap.Breaker)
	view.Breaker = BreakerView{
		Failures:    snap.Breaker.Failures,
		Threshold:   limits.BreakerThreshold,
		Open:        breaker.IsOpen(now),
		LastFailure: snap.Breaker.LastFailure,
		Remaining:   breaker.Remaining(now),
	}

	today := core.DayKey(now)
	for name, rec := range snap.History.PerUser {
		if rec == nil {
			continue
		}
		rv := RecipientView{
			Username:            name,
			CountToday:          rec.Count,
			LastResetDay:        rec.LastResetDay,
			ConsecutiveFailures: rec.ConsecutiveFailures,
		}
		if rec.LastResetDay != today {
			rv.CountToday = 0
		}
		view.Recipients = append(view.Recipients, rv)
	}
	sort.Slice(view.Recipients, func(i, j int) bool {
		return view.Recipients[i].Username < view.Recipients[j].Username
	})
	return view
}

// FormatState renders view in format.
func FormatState(format Format, view StateView) (string, error) {
	if out, ok, err := encode(format, view); ok {
		return out, err
	}
	return renderStateTables(view, format == FormatMarkdown), nil
}
