// Package metrics holds the Prometheus collectors for the sync and write paths.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Subscription kinds used as label values.
const (
	KindUsers        = "users"
	KindGroups       = "groups"
	KindTransactions = "transactions"
)

var (
	// OpenSubscriptions counts live store streams by kind.
	OpenSubscriptions = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "splitledger_open_subscriptions",
			Help: "Number of open store subscriptions",
		},
		[]string{"kind"},
	)

	// SubscribeFailures counts failed stream acquisitions by kind.
	SubscribeFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "splitledger_subscribe_failures_total",
			Help: "Total number of failed store subscriptions",
		},
		[]string{"kind"},
	)

	// SnapshotsReceived counts snapshots handed to the coordinator.
	SnapshotsReceived = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "splitledger_snapshots_received_total",
			Help: "Total number of snapshots received",
		},
		[]string{"kind"},
	)

	// StaleEventsDropped counts transaction snapshots from released subscriptions.
	StaleEventsDropped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "splitledger_stale_events_dropped_total",
			Help: "Total number of snapshots dropped because their subscription was released",
		},
	)

	// TransactionsClassified counts transactions by freshness class.
	TransactionsClassified = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "splitledger_transactions_classified_total",
			Help: "Total number of newly observed transactions by class",
		},
		[]string{"class"},
	)

	// Notifications counts policy decisions on fresh transactions.
	Notifications = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "splitledger_notifications_total",
			Help: "Total number of notification decisions",
		},
		[]string{"kind", "outcome"},
	)

	// Writes counts write requests sent to the store.
	Writes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "splitledger_write_requests_total",
			Help: "Total number of store write requests",
		},
		[]string{"op", "status"},
	)

	// ActiveSessions is the number of live user sessions.
	ActiveSessions = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "splitledger_active_sessions",
			Help: "Number of live user sessions",
		},
	)
)

// ObserveWrite records the outcome of one write request.
func ObserveWrite(op string, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	Writes.WithLabelValues(op, status).Inc()
}
