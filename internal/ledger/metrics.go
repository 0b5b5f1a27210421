package ledger

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	submitAttempts = promauto.NewCounter(prometheus.CounterOpts{
		Name: "veritas_ledger_submit_attempts_total",
		Help: "Total submission attempts including retries",
	})
	submitRetries = promauto.NewCounter(prometheus.CounterOpts{
		Name: "veritas_ledger_submit_retries_total",
		Help: "Submission attempts beyond the first",
	})
	submitFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "veritas_ledger_submit_failures_total",
		Help: "Terminal submission failures by cause",
	}, []string{"cause"})
	submitDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "veritas_ledger_submit_duration_seconds",
		Help:    "End-to-end submission latency including inclusion wait",
		Buckets: []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
	})
)
