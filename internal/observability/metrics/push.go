package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	PushDispatchTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "push_dispatch_total",
			Help: "Total number of push dispatches by outcome",
		},
		[]string{"outcome"},
	)

	PushDeliveriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "push_deliveries_total",
			Help: "Total number of web push delivery attempts by result",
		},
		[]string{"result"},
	)

	PushDeliveryDurationSeconds = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "push_delivery_duration_seconds",
			Help:    "Duration of web push delivery attempts in seconds",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		},
	)

	PushDeliveriesInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "push_deliveries_in_flight",
			Help: "Number of web push deliveries currently running",
		},
	)

	PushSubscriptionsPruned = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "push_subscriptions_pruned_total",
			Help: "Total number of sessions unregistered after a permanent delivery failure",
		},
	)

	PushSubscriptionsRegistered = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "push_subscriptions_registered_total",
			Help: "Total number of push subscriptions registered",
		},
	)

	PushAlertsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "push_alerts_total",
			Help: "Total number of forwarded alerts by result",
		},
		[]string{"result"},
	)

	PresenceConnectionsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "push_presence_connections_active",
			Help: "Number of attached presence websocket connections",
		},
	)

	PresenceConnectionsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "push_presence_connections_total",
			Help: "Total number of presence websocket connections established",
		},
	)
)
