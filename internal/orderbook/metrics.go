package orderbook

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// UpdatesTotal tracks book updates by event type.
	UpdatesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kalshi_mm_orderbook_updates_total",
			Help: "Total number of orderbook updates applied",
		},
		[]string{"event_type"},
	)

	// UpdatesDroppedTotal tracks update notifications dropped by reason.
	UpdatesDroppedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kalshi_mm_orderbook_updates_dropped_total",
			Help: "Total number of orderbook update notifications dropped",
		},
		[]string{"reason"},
	)

	// BooksTracked tracks the number of ticker books in memory.
	BooksTracked = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "kalshi_mm_orderbook_books_tracked",
		Help: "Number of ticker orderbooks tracked in memory",
	})
)
