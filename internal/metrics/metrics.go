// Package metrics provides Prometheus instrumentation for chillbot. It
// exposes counters for message throughput and moderation outcomes, a
// histogram for completion latency, and gauges for in-flight work.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// MessagesTotal counts inbound and outbound messages, labeled by type:
	// "received", "deleted", "replied".
	MessagesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "chillbot_messages_total",
		Help: "Total number of messages processed",
	}, []string{"type"})

	// ModerationDecisions counts moderation outcomes by decision and reason.
	ModerationDecisions = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "chillbot_moderation_decisions_total",
		Help: "Moderation decisions by outcome",
	}, []string{"decision", "reason"})

	// WarningsIssued counts warning-ledger increments.
	WarningsIssued = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "chillbot_warnings_issued_total",
		Help: "Total number of warnings issued",
	})

	// RateSignals counts messages that pushed a user over the burst limit
	// of the recent-message window.
	RateSignals = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "chillbot_rate_signals_total",
		Help: "Messages sent above the per-user burst limit",
	})

	// CompletionLatency records completion API round-trip time in seconds.
	CompletionLatency = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "chillbot_completion_latency_seconds",
		Help:    "Completion API latency in seconds",
		Buckets: []float64{.25, .5, 1, 2, 4, 8, 15, 30, 60},
	})

	// CompletionErrors counts completion calls that fell back to the
	// apology reply.
	CompletionErrors = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "chillbot_completion_errors_total",
		Help: "Completion API calls that failed",
	})

	// CompletionsInFlight tracks completion calls currently awaiting a reply.
	CompletionsInFlight = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "chillbot_completions_inflight",
		Help: "Completion API calls in flight",
	})

	// PlatformErrors counts failed platform operations by operation name.
	PlatformErrors = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "chillbot_platform_errors_total",
		Help: "Failed chat-platform operations",
	}, []string{"op"})

	// GatewayConnected is 1 while the gateway session is established.
	GatewayConnected = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "chillbot_gateway_connected",
		Help: "Whether the gateway connection is up",
	})

	// IncidentsArchived counts incidents written by the auditor.
	IncidentsArchived = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "chillbot_incidents_archived_total",
		Help: "Moderation incidents archived by the auditor",
	}, []string{"result"}) // result = "ok", "duplicate", "error"
)

func init() {
	prometheus.MustRegister(
		MessagesTotal,
		ModerationDecisions,
		WarningsIssued,
		RateSignals,
		CompletionLatency,
		CompletionErrors,
		CompletionsInFlight,
		PlatformErrors,
		GatewayConnected,
		IncidentsArchived,
	)
}

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}
