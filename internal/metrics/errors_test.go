package metrics

import (
	"testing"
	"time"

	"github.com/fulmenhq/gofulmen/telemetry"
	telemetrytesting "github.com/fulmenhq/gofulmen/telemetry/testing"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmbot/dmbot/internal/observability"
)

func setupTelemetry(t *testing.T) *telemetrytesting.FakeCollector {
	t.Helper()

	collector := telemetrytesting.NewFakeCollector()
	sys, err := telemetry.NewSystem(&telemetry.Config{Enabled: true, Emitter: collector})
	require.NoError(t, err)

	prev := observability.TelemetrySystem
	observability.TelemetrySystem = sys
	t.Cleanup(func() { observability.TelemetrySystem = prev })
	return collector
}

func TestErrorCounters(t *testing.T) {
	collector := setupTelemetry(t)

	RecordError("RATE_LIMITED", 429)
	RecordErrorByEndpoint("/api/start", "CONFLICT")
	RecordPanic()

	assert.Greater(t, collector.CountMetricsByName(ErrorsTotalName), 0)
	assert.Greater(t, collector.CountMetricsByName(ErrorsByEndpointName), 0)
	assert.Greater(t, collector.CountMetricsByName(PanicsTotalName), 0)
}

func TestAppCounters(t *testing.T) {
	collector := setupTelemetry(t)

	RecordHealthCheck("state_store", true, 3*time.Millisecond)
	RecordStatePersist("file", false, 10*time.Millisecond)
	RecordSubmissions(5, map[string]int{"protected": 1, "seen": 0})
	SetServerStartTime(time.Now())

	assert.Greater(t, collector.CountMetricsByName(HealthCheckTotal), 0)
	assert.Greater(t, collector.CountMetricsByName(HealthCheckDuration), 0)
	assert.Greater(t, collector.CountMetricsByName(StatePersistTotal), 0)
	assert.Greater(t, collector.CountMetricsByName(SubmissionsFetched), 0)
	assert.Greater(t, collector.CountMetricsByName(SubmissionsSkipped), 0)
	assert.Greater(t, collector.CountMetricsByName(ServerStartTime), 0)
}

func TestCountersNoopWithoutTelemetry(t *testing.T) {
	prev := observability.TelemetrySystem
	observability.TelemetrySystem = nil
	t.Cleanup(func() { observability.TelemetrySystem = prev })

	RecordError("INTERNAL_ERROR", 500)
	RecordStatePersist("libsql", true, time.Millisecond)
	RecordSubmissions(1, nil)
}
