package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTP
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pshare_http_requests_total",
			Help: "Total HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "pshare_http_request_duration_seconds",
			Help:    "HTTP request duration",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
		},
		[]string{"method", "path"},
	)

	// Gateway
	Connections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "pshare_ws_connections",
			Help: "Live websocket connections on this node",
		},
	)

	InboundEvents = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pshare_ws_inbound_events_total",
			Help: "Client events handled, by event and outcome",
		},
		[]string{"event", "outcome"}, // outcome: ok | error
	)

	SendQueueDrops = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "pshare_ws_send_queue_drops_total",
			Help: "Frames dropped because a connection's send queue was full",
		},
	)

	// Business
	MessagesAppended = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "pshare_messages_appended_total",
			Help: "Messages accepted by the store",
		},
	)

	Notifications = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pshare_notifications_total",
			Help: "Per user notifications, by result",
		},
		[]string{"event", "result"}, // result: delivered | offline | disabled
	)

	EventSinkErrors = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "pshare_event_sink_errors_total",
			Help: "Message events the event sink failed to publish",
		},
	)
)
