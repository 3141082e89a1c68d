package odds

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RequestsTotal tracks odds provider requests by outcome.
	RequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kalshi_mm_odds_requests_total",
			Help: "Total number of odds provider requests",
		},
		[]string{"status"},
	)

	// RefreshesTotal tracks successful odds refreshes per match.
	RefreshesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "kalshi_mm_odds_refreshes_total",
		Help: "Total number of successful odds refreshes",
	})
)
