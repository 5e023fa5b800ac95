// Copyright (c) 2026 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// AdBreakTransitions counts ad-break lifecycle transitions.
	AdBreakTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cuepoint_adbreak_transitions_total",
		Help: "Ad-break lifecycle transitions by target status",
	}, []string{"status"})

	// MarkersEmitted counts cue markers persisted, by direction and kind.
	MarkersEmitted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cuepoint_markers_emitted_total",
		Help: "Cue markers emitted",
	}, []string{"direction", "kind", "crash_out"})

	// PendingTimers tracks armed ad-break timers by phase.
	PendingTimers = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "cuepoint_adbreak_pending_timers",
		Help: "Armed ad-break timers",
	}, []string{"phase"})

	// TriggerLateness observes how late a timer fired relative to its due time.
	TriggerLateness = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "cuepoint_adbreak_fire_lateness_seconds",
		Help:    "Delay between due time and actual cue emission",
		Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5, 30, 300},
	}, []string{"phase"})

	// SchedulerErrors counts failed scheduler operations.
	SchedulerErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cuepoint_adbreak_errors_total",
		Help: "Failed ad-break operations by operation",
	}, []string{"op"})
)

// Timer phases.
const (
	PhaseTrigger = "trigger"
	PhaseReturn  = "return"
)
