package reconciler

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// OrdersPlacedTotal tracks orders placed on the exchange.
	OrdersPlacedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "kalshi_mm_reconciler_orders_placed_total",
		Help: "Total number of orders placed",
	})

	// OrdersCancelledTotal tracks cancellations by reason.
	OrdersCancelledTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kalshi_mm_reconciler_orders_cancelled_total",
			Help: "Total number of orders cancelled",
		},
		[]string{"reason"},
	)

	// OrdersRejectedTotal tracks logical rejects from the exchange.
	OrdersRejectedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "kalshi_mm_reconciler_orders_rejected_total",
		Help: "Total number of orders rejected by the exchange",
	})

	// RestingOrders tracks the number of orders we believe are resting.
	RestingOrders = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "kalshi_mm_reconciler_resting_orders",
		Help: "Number of locally tracked resting orders",
	})

	// EmergencyCancelsTotal counts orders cancelled by the kill switch.
	EmergencyCancelsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "kalshi_mm_reconciler_emergency_cancels_total",
		Help: "Total number of orders cancelled by emergency cancel",
	})
)
