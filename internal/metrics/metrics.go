// README: Prometheus metrics for polling health and custody activity.
package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	PollTicksTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "mediroute_poll_ticks_total",
			Help: "Total number of tracking poll ticks",
		},
	)

	FetchFailuresTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "mediroute_fetch_failures_total",
			Help: "Total number of failed snapshot fetches",
		},
	)

	SnapshotsAppliedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "mediroute_snapshots_applied_total",
			Help: "Total number of snapshots reconciled into order state",
		},
	)

	TransitionsRejectedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "mediroute_transitions_rejected_total",
			Help: "Total number of status transitions rejected as illegal",
		},
	)

	ScansAcceptedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "mediroute_scans_accepted_total",
			Help: "Total number of custody scans accepted",
		},
	)

	ScansRejectedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "mediroute_scans_rejected_total",
			Help: "Total number of custody scans rejected (out of sequence or duplicate)",
		},
	)

	ActiveSubscriptions = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "mediroute_active_subscriptions",
			Help: "Number of order poll loops currently running",
		},
	)
)

// Register wires all collectors into the default registry. Call once at
// startup.
func Register() {
	prometheus.MustRegister(
		PollTicksTotal,
		FetchFailuresTotal,
		SnapshotsAppliedTotal,
		TransitionsRejectedTotal,
		ScansAcceptedTotal,
		ScansRejectedTotal,
		ActiveSubscriptions,
	)
}
