package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/dmbot/dmbot/internal/core"
	"github.com/dmbot/dmbot/internal/core/engine"
)

// Bot holds the bot-domain collectors. It satisfies engine.Observer.
type Bot struct {
	Sent            *prometheus.CounterVec
	Denied          *prometheus.CounterVec
	Failed          prometheus.Counter
	Retries         prometheus.Counter
	SendDuration    prometheus.Histogram
	BreakerFailures prometheus.Gauge
	BreakerOpen     prometheus.Gauge
	HourlyUsage     prometheus.Gauge
	DailyUsage      prometheus.Gauge
	Running         prometheus.Gauge

	gatherer prometheus.Gatherer
}

var _ engine.Observer = (*Bot)(nil)

// NewBot registers the collectors on reg. A nil reg uses a private registry.
func NewBot(reg *prometheus.Registry) *Bot {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}

	m := &Bot{
		Sent: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "dmbot_messages_sent_total",
				Help: "Direct messages delivered, by reply source",
			},
			[]string{"source"},
		),
		Denied: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "dmbot_messages_denied_total",
				Help: "Sends rejected by the rate limiter, by reason",
			},
			[]string{"reason"},
		),
		Failed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "dmbot_messages_failed_total",
			Help: "Sends that exhausted every retry",
		}),
		Retries: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "dmbot_send_retries_total",
			Help: "Send attempts retried after a failure",
		}),
		SendDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "dmbot_send_duration_seconds",
			Help:    "Time spent in the send pipeline including waits",
			Buckets: []float64{0.5, 1, 2, 5, 15, 30, 60, 120, 300},
		}),
		BreakerFailures: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "dmbot_circuit_breaker_failures",
			Help: "Consecutive exhausted sends counted by the circuit breaker",
		}),
		BreakerOpen: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "dmbot_circuit_breaker_open",
			Help: "1 while the circuit breaker rejects sends",
		}),
		HourlyUsage: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "dmbot_hourly_usage_ratio",
			Help: "Messages sent this hour divided by the hourly cap",
		}),
		DailyUsage: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "dmbot_daily_usage_ratio",
			Help: "Messages sent today divided by the daily cap",
		}),
		Running: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "dmbot_running",
			Help: "1 while the monitoring loop is active",
		}),
		gatherer: reg,
	}

	reg.MustRegister(
		m.Sent, m.Denied, m.Failed, m.Retries, m.SendDuration,
		m.BreakerFailures, m.BreakerOpen, m.HourlyUsage, m.DailyUsage, m.Running,
	)
	return m
}

// ObserveSend records the outcome of one pipeline send.
func (m *Bot) ObserveSend(result core.SendResult, elapsed time.Duration) {
	switch result.Outcome {
	case core.OutcomeSuccess:
		m.Sent.WithLabelValues(string(result.Source)).Inc()
	case core.OutcomeDenied:
		m.Denied.WithLabelValues(string(result.Reason)).Inc()
	case core.OutcomeFailed:
		m.Failed.Inc()
	}
	if result.Outcome != core.OutcomeDenied {
		m.SendDuration.Observe(elapsed.Seconds())
	}
}

// ObserveRetry counts a retried attempt.
func (m *Bot) ObserveRetry(string, int, error) {
	m.Retries.Inc()
}

// ObserveUsage publishes limiter gauges.
func (m *Bot) ObserveUsage(u engine.Usage) {
	m.BreakerFailures.Set(float64(u.BreakerFailures))
	if u.BreakerOpen {
		m.BreakerOpen.Set(1)
	} else {
		m.BreakerOpen.Set(0)
	}
	m.HourlyUsage.Set(u.HourlyPressure())
	m.DailyUsage.Set(u.DailyPressure())
}

// SetRunning flips the running gauge.
func (m *Bot) SetRunning(running bool) {
	if running {
		m.Running.Set(1)
		return
	}
	m.Running.Set(0)
}

// Handler serves the registry in the Prometheus text format.
func (m *Bot) Handler() http.Handler {
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}
