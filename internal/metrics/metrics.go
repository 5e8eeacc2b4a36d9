package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Engine operations

	OperationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cardfund_operations_total",
			Help: "Total number of engine operations by outcome",
		},
		[]string{"operation", "outcome"},
	)

	OperationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "cardfund_operation_duration_seconds",
			Help:    "Engine operation duration in seconds, including ledger calls",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation"},
	)

	ActiveCardFunds = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "cardfund_active_card_funds",
		Help: "Number of open card funds",
	})

	ActiveChannels = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "cardfund_active_channels",
		Help: "Number of open partner channels",
	})

	Paused = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "cardfund_paused",
		Help: "Emergency pause state (1=paused, 0=running)",
	})

	// Event bus

	EventsPublished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cardfund_events_published_total",
			Help: "Total number of events handed to the event bus",
		},
		[]string{"kind", "outcome"},
	)

	NATSConnectionStatus = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "cardfund_nats_connection_status",
		Help: "NATS connection status (1=connected, 0=disconnected)",
	})

	// HTTP

	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cardfund_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "route", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "cardfund_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)

	IdempotentReplays = promauto.NewCounter(prometheus.CounterOpts{
		Name: "cardfund_idempotent_replays_total",
		Help: "Total number of responses replayed from the idempotency cache",
	})

	AuthFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cardfund_auth_failures_total",
			Help: "Total number of rejected request signatures by reason",
		},
		[]string{"reason"},
	)

	AuthBlocked = promauto.NewCounter(prometheus.CounterOpts{
		Name: "cardfund_auth_blocked_clients_total",
		Help: "Total number of times a client was blocked after repeated signature failures",
	})
)
