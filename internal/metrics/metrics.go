package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	PWSAPICallsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wandistats_pws_api_calls_total",
			Help: "Total Weather Underground PWS history calls",
		},
		[]string{"station", "status"},
	)

	PWSAPILatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "wandistats_pws_api_latency_seconds",
			Help:    "PWS history call latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"station"},
	)

	PWSBreakerState = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "wandistats_pws_breaker_state",
			Help: "PWS circuit breaker state (0 closed, 1 half-open, 2 open)",
		},
	)

	SummariesIngested = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wandistats_summaries_ingested_total",
			Help: "Total daily summaries stored",
		},
		[]string{"station"},
	)

	IngestFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wandistats_ingest_failures_total",
			Help: "Station-days that failed to ingest",
		},
		[]string{"station"},
	)

	StatsDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "wandistats_stats_duration_seconds",
			Help:    "Time spent loading and aggregating a statistics request",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5},
		},
		[]string{"interval"},
	)
)
