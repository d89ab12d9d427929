package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Provisioning, device binding and node service metrics.

var (
	// Wallet provisioning
	WalletsCreated = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "sabi",
		Subsystem: "wallet",
		Name:      "create_total",
		Help:      "Wallet creation attempts by outcome",
	}, []string{"outcome"})

	FirstChannelOpens = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "sabi",
		Subsystem: "wallet",
		Name:      "first_channel_open_total",
		Help:      "Initial channel open attempts by result (failures are tolerated)",
	}, []string{"result"})

	ProvisionedUnbound = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "sabi",
		Subsystem: "wallet",
		Name:      "provisioned_unbound_total",
		Help:      "Nodes provisioned remotely whose wallet lost the device binding race",
	})

	// Device binding
	BindingViolations = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "sabi",
		Subsystem: "binding",
		Name:      "violations_total",
		Help:      "Status reads rejected because the requesting device is not bound to the wallet",
	})

	LastSeenTouchErrors = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "sabi",
		Subsystem: "binding",
		Name:      "last_seen_touch_errors_total",
		Help:      "Failed last_seen_at updates during authorized status reads",
	})

	// Node service
	NodeRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "sabi",
		Subsystem: "node",
		Name:      "requests_total",
		Help:      "Calls to the node provisioning service by operation and status",
	}, []string{"operation", "status"})

	NodeRequestLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "sabi",
		Subsystem: "node",
		Name:      "request_duration_seconds",
		Help:      "Node provisioning service call duration",
		Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
	}, []string{"operation"})

	NodeStatusFallbacks = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "sabi",
		Subsystem: "node",
		Name:      "status_fallbacks_total",
		Help:      "Wallet status reads served with default values because the node service failed",
	})

	NodeBreakerState = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "sabi",
		Subsystem: "node",
		Name:      "status_breaker_state",
		Help:      "Status circuit breaker state (0=closed, 1=open, 2=half-open)",
	})

	// HTTP
	HTTPRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "sabi",
		Subsystem: "http",
		Name:      "requests_total",
		Help:      "HTTP requests by method, route and status",
	}, []string{"method", "route", "status"})

	HTTPLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "sabi",
		Subsystem: "http",
		Name:      "request_duration_seconds",
		Help:      "HTTP request duration",
		Buckets:   []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
	}, []string{"method", "route"})
)
