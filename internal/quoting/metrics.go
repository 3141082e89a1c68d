package quoting

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// EvaluationsTotal tracks per-match evaluations by trigger.
	EvaluationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kalshi_mm_quoting_evaluations_total",
			Help: "Total number of match evaluations",
		},
		[]string{"trigger"},
	)

	// ActiveMatches tracks the number of actively quoted matches.
	ActiveMatches = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "kalshi_mm_quoting_active_matches",
		Help: "Number of actively quoted matches",
	})

	// LegDecisionsTotal tracks pricing decisions by outcome.
	LegDecisionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kalshi_mm_quoting_leg_decisions_total",
			Help: "Total number of per-leg pricing decisions",
		},
		[]string{"decision"},
	)

	// CutoffsTotal tracks matches deactivated at event time.
	CutoffsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "kalshi_mm_quoting_event_cutoffs_total",
		Help: "Total number of matches deactivated at event time",
	})

	// FillsTotal tracks fills processed by the engine.
	FillsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "kalshi_mm_quoting_fills_total",
		Help: "Total number of fills processed",
	})
)
