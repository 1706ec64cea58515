package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTPRequestDuration measures request latency per route and status.
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 12),
		},
		[]string{"method", "path", "status"},
	)

	// RiskAssessments counts delivery risk assessments by outcome.
	RiskAssessments = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "risk_assessments_total",
			Help: "Total delivery risk assessments",
		},
		[]string{"outcome"}, // assessed, already_assessed, error
	)

	// StageTransitions counts kanban card moves by destination stage.
	StageTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "stage_transitions_total",
			Help: "Total kanban stage transitions recorded",
		},
		[]string{"to_stage"},
	)

	// StageMoveRejections counts moves stopped by a guard gate.
	StageMoveRejections = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "stage_move_rejections_total",
			Help: "Total kanban moves rejected by a transition gate",
		},
		[]string{"gate"}, // skips_test, missing_error_data, needs_confirmation
	)

	// BudgetUpdates counts delivery spend roll-ups.
	BudgetUpdates = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "budget_updates_total",
			Help: "Total delivery budget-spent updates rolled up to projects",
		},
	)
)
