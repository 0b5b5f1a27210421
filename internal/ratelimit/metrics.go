package ratelimit

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	reservations = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "veritas",
		Subsystem: "ratelimit",
		Name:      "reservations_total",
		Help:      "Issuance slots successfully reserved.",
	})

	denials = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "veritas",
		Subsystem: "ratelimit",
		Name:      "denials_total",
		Help:      "Reservations denied, by exhausted window.",
	}, []string{"period"})
)
