package journal

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// JournalWritesTotal tracks successful journal writes by operation.
	JournalWritesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kalshi_mm_journal_writes_total",
			Help: "Total number of successful journal writes",
		},
		[]string{"operation"},
	)

	// JournalErrorsTotal tracks failed journal writes by operation.
	JournalErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kalshi_mm_journal_errors_total",
			Help: "Total number of failed journal writes",
		},
		[]string{"operation"},
	)
)
