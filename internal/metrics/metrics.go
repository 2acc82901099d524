// Package metrics provides Prometheus instrumentation for the duochat
// coordination server. It exposes gauges for connection, presence, and chat
// counts, counters for event and message throughput, and a histogram for
// dispatch latency.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// ConnectionsTotal tracks the current number of active WebSocket connections.
	ConnectionsTotal = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "duochat_connections_total",
		Help: "Current number of active WebSocket connections",
	})

	// OnlineUsers tracks the current number of registered users.
	OnlineUsers = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "duochat_online_users",
		Help: "Current number of registered users",
	})

	// ActiveChats tracks the current number of active chat sessions.
	ActiveChats = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "duochat_active_chats",
		Help: "Current number of active chat sessions",
	})

	// EventsTotal counts dispatched client events, labeled by event type.
	EventsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "duochat_events_total",
		Help: "Total number of client events dispatched",
	}, []string{"type"})

	// MessagesTotal counts chat messages processed, labeled by outcome:
	// "relayed", "rejected", or "undeliverable".
	MessagesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "duochat_messages_total",
		Help: "Total number of chat messages processed",
	}, []string{"type"}) // type = "relayed", "rejected", "undeliverable"

	// ChatRequestsTotal counts pairing requests forwarded to targets.
	ChatRequestsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "duochat_chat_requests_total",
		Help: "Total number of chat requests forwarded",
	})

	// ErrorsTotal counts error events sent back to clients.
	ErrorsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "duochat_errors_total",
		Help: "Total number of error events sent to clients",
	})

	// DispatchLatency records event dispatch latency in seconds.
	DispatchLatency = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "duochat_dispatch_latency_seconds",
		Help:    "Event dispatch latency in seconds",
		Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
	})
)

func init() {
	prometheus.MustRegister(
		ConnectionsTotal,
		OnlineUsers,
		ActiveChats,
		EventsTotal,
		MessagesTotal,
		ChatRequestsTotal,
		ErrorsTotal,
		DispatchLatency,
	)
}

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}
