package schema

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	registrations = promauto.NewCounter(prometheus.CounterOpts{
		Name: "veritas_schema_registrations_total",
		Help: "Schemas successfully registered",
	})
	cacheLookups = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "veritas_schema_cache_lookups_total",
		Help: "Schema cache lookups by outcome",
	}, []string{"outcome"})
)
