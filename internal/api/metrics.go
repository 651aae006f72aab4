package api

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	httpRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ledger_http_requests_total",
		Help: "Total HTTP requests processed, labeled by status code",
	}, []string{"method", "endpoint", "status"})

	httpRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "ledger_http_request_duration_seconds",
		Help:    "Latency distribution of HTTP requests",
		Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
	}, []string{"method", "endpoint"})

	signupsRegistered = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ledger_signups_registered_total",
		Help: "Signups recorded, labeled by source and whether a promo code was attached",
	}, []string{"source", "attributed"})

	attributionMoves = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ledger_attribution_moves_total",
		Help: "Signup attribution changes requested by admins",
	})
)
