package circuitbreaker

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// BreakerEnabled is 1 while quoting is allowed to place orders.
	BreakerEnabled = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "kalshi_mm_circuitbreaker_enabled",
		Help: "Whether the balance breaker allows order placement (1=enabled, 0=tripped)",
	})

	// BreakerBalance tracks the last polled account balance.
	BreakerBalance = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "kalshi_mm_circuitbreaker_balance_cents",
		Help: "Last polled account balance in cents",
	})

	// BreakerDisableThreshold tracks the balance below which quoting halts.
	BreakerDisableThreshold = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "kalshi_mm_circuitbreaker_disable_threshold_cents",
		Help: "Balance threshold below which quoting halts",
	})

	// BreakerEnableThreshold tracks the balance at which quoting resumes.
	BreakerEnableThreshold = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "kalshi_mm_circuitbreaker_enable_threshold_cents",
		Help: "Balance threshold at which quoting resumes",
	})

	// BreakerAvgNotional tracks the rolling average fill notional.
	BreakerAvgNotional = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "kalshi_mm_circuitbreaker_avg_fill_notional_cents",
		Help: "Rolling average fill notional used to size the thresholds",
	})

	// BreakerStateChanges counts trips and resets.
	BreakerStateChanges = promauto.NewCounter(prometheus.CounterOpts{
		Name: "kalshi_mm_circuitbreaker_state_changes_total",
		Help: "Total breaker state transitions",
	})

	// BreakerCheckDuration observes balance poll latency.
	BreakerCheckDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "kalshi_mm_circuitbreaker_check_duration_seconds",
		Help:    "Time taken to poll the account balance",
		Buckets: prometheus.DefBuckets,
	})
)
