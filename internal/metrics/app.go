package metrics

import (
	"time"

	"github.com/dmbot/dmbot/internal/observability"
)

const (
	HealthCheckTotal    = "app_health_check_total"
	HealthCheckDuration = "app_health_check_duration_ms"
	ServerStartTime     = "app_server_start_time_seconds"

	StatePersistTotal    = "state_persist_total"
	StatePersistDuration = "state_persist_duration_ms"
	SubmissionsFetched   = "submissions_fetched_total"
	SubmissionsSkipped   = "submissions_skipped_total"
)

// RecordHealthCheck records one health checker execution.
func RecordHealthCheck(checkName string, healthy bool, duration time.Duration) {
	status := "healthy"
	if !healthy {
		status = "unhealthy"
	}
	counter(HealthCheckTotal, map[string]string{"check": checkName, "status": status})
	histogram(HealthCheckDuration, duration, map[string]string{"check": checkName})
}

// SetServerStartTime records the server start time as a Unix timestamp.
func SetServerStartTime(t time.Time) {
	if observability.TelemetrySystem == nil {
		return
	}
	_ = observability.TelemetrySystem.Gauge(ServerStartTime, float64(t.Unix()), nil)
}

// RecordStatePersist records a state save against the named backend.
func RecordStatePersist(driver string, ok bool, duration time.Duration) {
	status := "success"
	if !ok {
		status = "failure"
	}
	counter(StatePersistTotal, map[string]string{"driver": driver, "status": status})
	histogram(StatePersistDuration, duration, map[string]string{"driver": driver})
}

// RecordSubmissions counts fetched submissions and those skipped, by reason.
func RecordSubmissions(fetched int, skipped map[string]int) {
	if observability.TelemetrySystem == nil {
		return
	}
	_ = observability.TelemetrySystem.Counter(SubmissionsFetched, float64(fetched), nil)
	for reason, n := range skipped {
		if n == 0 {
			continue
		}
		_ = observability.TelemetrySystem.Counter(SubmissionsSkipped, float64(n), map[string]string{"reason": reason})
	}
}

func histogram(name string, d time.Duration, labels map[string]string) {
	if observability.TelemetrySystem == nil {
		return
	}
	_ = observability.TelemetrySystem.Histogram(name, d, labels)
}
