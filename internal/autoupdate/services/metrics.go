package services

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// triggerTotal counts trigger attempts by outcome
	triggerTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "intuneget_autoupdate_trigger_total",
		Help: "Auto-update trigger attempts by outcome (success, skipped, config_error, failed)",
	}, []string{"outcome"})

	// gateBlockedTotal counts safety gate refusals by the check that refused
	gateBlockedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "intuneget_autoupdate_gate_blocked_total",
		Help: "Safety gate refusals by check",
	}, []string{"check"})

	circuitBreakerTrips = promauto.NewCounter(prometheus.CounterOpts{
		Name: "intuneget_autoupdate_circuit_breaker_trips_total",
		Help: "Policies disabled after reaching the consecutive failure limit",
	})

	historyTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "intuneget_autoupdate_history_transitions_total",
		Help: "History records finished by the packaging pipeline by status",
	}, []string{"status"})

	sweepDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "intuneget_autoupdate_sweep_duration_seconds",
		Help:    "Duration of update checker sweeps",
		Buckets: prometheus.ExponentialBuckets(0.5, 2, 10),
	})

	sweepPolicies = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "intuneget_autoupdate_sweep_policies_total",
		Help: "Policies processed by sweeps by result",
	}, []string{"result"})
)
