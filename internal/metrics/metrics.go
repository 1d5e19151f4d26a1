package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	agentRunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rugpt_agent_runs_total",
			Help: "Total number of agent executions",
		},
		[]string{"agent_kind", "finish_reason"},
	)

	llmTokensTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rugpt_llm_tokens_total",
			Help: "Total number of LLM tokens consumed",
		},
		[]string{"model"},
	)

	eventsTriggeredTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rugpt_calendar_events_triggered_total",
			Help: "Total number of calendar events triggered by the scheduler",
		},
		[]string{"kind"},
	)

	schedulerCycleDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "rugpt_scheduler_cycle_duration_seconds",
			Help:    "Scheduler poll cycle duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	notificationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rugpt_notifications_total",
			Help: "Total number of notification delivery attempts",
		},
		[]string{"channel", "status"},
	)
)

func RecordAgentRun(agentKind, finishReason string) {
	agentRunsTotal.WithLabelValues(agentKind, finishReason).Inc()
}

func RecordLLMTokens(model string, tokens int) {
	if tokens > 0 {
		llmTokensTotal.WithLabelValues(model).Add(float64(tokens))
	}
}

func RecordEventTriggered(kind string) {
	eventsTriggeredTotal.WithLabelValues(kind).Inc()
}

func RecordSchedulerCycle(seconds float64) {
	schedulerCycleDuration.Observe(seconds)
}

func RecordNotification(channel, status string) {
	notificationsTotal.WithLabelValues(channel, status).Inc()
}

// Handler exposes the default registry for the /metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}
