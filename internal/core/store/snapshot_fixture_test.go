package store

import (
	"time"

	"github.com/dmbot/dmbot/internal/core"
)

func sampleSnapshot() *core.Snapshot {
	lastFailure := time.Date(2024, 1, 1, 9, 58, 0, 0, time.UTC)
	checked := time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC)

	snap := core.NewSnapshot()
	snap.History.Hourly["2024-01-01-09"] = 4
	snap.History.Hourly["2024-01-01-10"] = 2
	snap.History.Daily["2024-01-01"] = 6
	snap.History.PerUser["alice"] = &core.UserRecord{Count: 2, LastResetDay: "2024-01-01", ConsecutiveFailures: 1}
	snap.History.PerUser["bob"] = &core.UserRecord{Count: 1, LastResetDay: "2024-01-01"}
	snap.History.LastSendTime = time.Date(2024, 1, 1, 10, 15, 30, 123456789, time.UTC)
	snap.Breaker = core.BreakerState{Failures: 2, LastFailure: &lastFailure}
	snap.Metrics = core.Metrics{
		TotalMessages:      9,
		SuccessfulMessages: 6,
		FailedMessages:     3,
		AIResponses:        4,
		TemplateResponses:  5,
		LastHealthCheck:    &checked,
		HealthStatus:       core.HealthWarning,
	}
	snap.CurrentSubreddit = "golang"
	snap.ProtectedUsers = []string{"mod1", "mod2"}
	snap.SavedAt = time.Date(2024, 1, 1, 10, 16, 0, 0, time.UTC)
	return snap
}
