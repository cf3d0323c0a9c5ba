// Package metrics provides Prometheus instrumentation for the matching
// service. It exposes counters for match creation and expiry, a histogram
// for batch pass duration, and gauges for the eligible pool.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// PassesTotal counts completed batch matching passes.
	PassesTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "matcher_passes_total",
		Help: "Total number of completed batch matching passes",
	})

	// PassDuration records how long one batch pass takes.
	PassDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "matcher_pass_duration_seconds",
		Help:    "Duration of one batch matching pass in seconds",
		Buckets: []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60},
	})

	// MatchesCreatedTotal counts created matches, labeled by decision.
	MatchesCreatedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "matcher_matches_created_total",
		Help: "Total number of matches created",
	}, []string{"decision"})

	// MatchesExpiredTotal counts pending matches claimed by the expiry sweep.
	MatchesExpiredTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "matcher_matches_expired_total",
		Help: "Total number of matches expired by the sweep",
	})

	// EligibleParticipants tracks the pool size seen by the latest pass.
	EligibleParticipants = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "matcher_eligible_participants",
		Help: "Number of eligible participants in the latest batch pass",
	})

	// PassErrorsTotal counts isolated per-participant failures inside passes.
	PassErrorsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "matcher_pass_errors_total",
		Help: "Total number of per-participant errors isolated during passes",
	})
)

func init() {
	prometheus.MustRegister(
		PassesTotal,
		PassDuration,
		MatchesCreatedTotal,
		MatchesExpiredTotal,
		EligibleParticipants,
		PassErrorsTotal,
	)
}

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}
