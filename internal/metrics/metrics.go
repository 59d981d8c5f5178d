// Package metrics exposes Prometheus metrics for the bot.
//
//   - pacifica_bot_flows_total{flow,outcome}      flows started, submitted or cancelled
//   - pacifica_bot_validation_errors_total{field}  rejected inputs
//   - pacifica_bot_actions_total{action,result}    signed submissions by outcome
//   - pacifica_bot_api_request_seconds{endpoint}   exchange call latency
//   - pacifica_bot_active_sessions                 sessions held in memory
//   - pacifica_bot_worker_queue_depth              jobs waiting for a worker
//   - pacifica_bot_worker_rejected_total           jobs refused on a full queue
//
// Metrics are registered in init() and served at /metrics.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	Flows = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pacifica_bot_flows_total",
			Help: "Conversational flows by outcome",
		},
		[]string{"flow", "outcome"},
	)

	ValidationErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pacifica_bot_validation_errors_total",
			Help: "User inputs rejected by a flow step",
		},
		[]string{"field"},
	)

	Actions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pacifica_bot_actions_total",
			Help: "Signed actions sent to the exchange by result",
		},
		[]string{"action", "result"},
	)

	APILatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "pacifica_bot_api_request_seconds",
			Help:    "Latency of Pacifica API requests",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"endpoint"},
	)

	ActiveSessions = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "pacifica_bot_active_sessions",
			Help: "Users with an unfinished flow",
		},
	)

	WorkerQueueDepth = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "pacifica_bot_worker_queue_depth",
			Help: "Jobs waiting for a worker",
		},
	)

	WorkerRejected = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "pacifica_bot_worker_rejected_total",
			Help: "Jobs refused because the queue was full",
		},
	)
)

func init() {
	prometheus.MustRegister(
		Flows,
		ValidationErrors,
		Actions,
		APILatency,
		ActiveSessions,
		WorkerQueueDepth,
		WorkerRejected,
	)
}

// Handler serves the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
