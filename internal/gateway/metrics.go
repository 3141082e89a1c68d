package gateway

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RequestsTotal tracks REST requests by endpoint and outcome.
	RequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kalshi_mm_gateway_requests_total",
			Help: "Total number of exchange REST requests",
		},
		[]string{"endpoint", "status"},
	)

	// RequestDuration tracks REST request latency by endpoint.
	RequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "kalshi_mm_gateway_request_duration_seconds",
			Help:    "Exchange REST request duration",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"endpoint"},
	)
)
