package attestation

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	issuanceDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "veritas",
		Subsystem: "attestation",
		Name:      "issuance_duration_seconds",
		Help:      "End-to-end duration of single attestation issuance.",
		Buckets:   prometheus.ExponentialBuckets(0.05, 2, 12),
	})

	issuances = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "veritas",
		Subsystem: "attestation",
		Name:      "issuances_total",
		Help:      "Issuance outcomes.",
	}, []string{"outcome"})

	verifications = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "veritas",
		Subsystem: "attestation",
		Name:      "verifications_total",
		Help:      "Verification outcomes.",
	}, []string{"outcome"})

	revocations = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "veritas",
		Subsystem: "attestation",
		Name:      "revocations_total",
		Help:      "Successful revocations.",
	})

	batchItems = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "veritas",
		Subsystem: "attestation",
		Name:      "batch_items",
		Help:      "Items per batch issuance request.",
		Buckets:   []float64{1, 2, 5, 10, 20, 50, 100},
	})

	persistenceGaps = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "veritas",
		Subsystem: "attestation",
		Name:      "persistence_gaps_total",
		Help:      "Attestations confirmed on-chain but not persisted locally.",
	})
)
