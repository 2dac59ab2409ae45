// Package metrics exposes the daemon's prometheus instrumentation.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// PaymentsObserved counts incoming transfers detected by the listener.
	PaymentsObserved = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "goldstory",
		Name:      "payments_observed_total",
		Help:      "Incoming settlement-asset payments detected by the listener.",
	})

	// CasesStarted counts payment cases handed to the engine.
	CasesStarted = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "goldstory",
		Name:      "cases_started_total",
		Help:      "Payment cases the distribution engine started processing.",
	})

	// CasesCompleted counts cases by terminal state.
	CasesCompleted = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "goldstory",
		Name:      "cases_completed_total",
		Help:      "Payment cases by terminal state.",
	}, []string{"state"})

	// NotificationFailures counts undeliverable operator notifications.
	NotificationFailures = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "goldstory",
		Name:      "notification_failures_total",
		Help:      "Notifications that could not be delivered.",
	})

	// RPCErrors counts failed ledger RPC calls by operation, across all
	// endpoints in the failover pool.
	RPCErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "goldstory",
		Name:      "rpc_errors_total",
		Help:      "Failed ledger RPC calls by operation.",
	}, []string{"operation"})

	// ReconcilerResolutions counts timed-out transactions the reconciler
	// later resolved, by final status.
	ReconcilerResolutions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "goldstory",
		Name:      "reconciler_resolutions_total",
		Help:      "Out-of-band transaction resolutions by final status.",
	}, []string{"status"})
)
