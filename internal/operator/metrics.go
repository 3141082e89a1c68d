package operator

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// KillsTotal tracks emergency kill requests.
	KillsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "kalshi_mm_operator_kills_total",
		Help: "Total number of emergency kill requests",
	})

	// PushClients tracks connected dashboard clients.
	PushClients = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "kalshi_mm_operator_push_clients",
		Help: "Number of connected dashboard push clients",
	})

	// PushClientsDroppedTotal tracks clients dropped for slow consumption.
	PushClientsDroppedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "kalshi_mm_operator_push_clients_dropped_total",
		Help: "Total number of push clients dropped for slow consumption",
	})

	// SnapshotsPushedTotal tracks state snapshots broadcast to dashboards.
	SnapshotsPushedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "kalshi_mm_operator_snapshots_pushed_total",
		Help: "Total number of state snapshots broadcast",
	})
)
