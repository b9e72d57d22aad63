// Package services – Prometheus instrumentation of the engine.
//
// Label sets are closed enumerations (route, outcome, result) plus the
// notifier id, which is bounded by the catalog. Chat ids are never labels.
package services

import "github.com/prometheus/client_golang/prometheus"

// Dispatch routes.
const (
	routeCallback = "callback"
	routeCommand  = "command"
	routeState    = "state"
	routeNone     = "none"
)

// Dispatch outcomes.
const (
	outcomeHandled      = "handled"
	outcomeIgnored      = "ignored"
	outcomeUnknown      = "unknown_command"
	outcomeDenied       = "permission_denied"
	outcomeHandlerError = "handler_error"
	outcomeStoreError   = "store_error"
)

var (
	// updatesTotal counts dispatched updates by resolution route and outcome.
	updatesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chatdispatch_updates_total",
			Help: "Updates processed by the command dispatcher.",
		},
		[]string{"route", "outcome"},
	)

	// dispatchDuration records the time spent inside ProcessUpdate, lock wait
	// included.
	dispatchDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "chatdispatch_dispatch_duration_seconds",
			Help:    "Duration of a single update dispatch in seconds.",
			Buckets: prometheus.DefBuckets,
		},
	)

	// notificationsSent counts per-subscriber sends by notifier and result.
	notificationsSent = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chatdispatch_notifications_sent_total",
			Help: "Notification messages sent to subscribers.",
		},
		[]string{"notifier", "result"},
	)

	// pollBatches counts poll cycles by result (ok, empty, fetch_error, ack_error).
	pollBatches = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chatdispatch_poll_batches_total",
			Help: "Long-poll cycles by result.",
		},
		[]string{"result"},
	)
)

func init() {
	prometheus.MustRegister(updatesTotal, dispatchDuration, notificationsSent, pollBatches)
}
