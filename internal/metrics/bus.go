// Copyright (c) 2026 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	BroadcastPublishedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cuepoint_broadcast_published_total",
		Help: "Total number of state-change notifications delivered, by topic",
	}, []string{"topic"})

	BroadcastDroppedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cuepoint_broadcast_dropped_total",
		Help: "Total number of state-change notifications dropped, by topic and reason",
	}, []string{"topic", "reason"})
)

// IncBroadcastDrop records a dropped notification with a concrete reason.
func IncBroadcastDrop(topic, reason string) {
	if topic == "" {
		topic = "unknown"
	}
	if reason == "" {
		reason = "unknown"
	}
	BroadcastDroppedTotal.WithLabelValues(topic, reason).Inc()
}

// IncBroadcastPublished records a delivered notification.
func IncBroadcastPublished(topic string) {
	BroadcastPublishedTotal.WithLabelValues(topic).Inc()
}

var (
	CircuitBreakerOpen = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "cuepoint_circuit_breaker_open",
		Help: "1 while the named circuit breaker rejects calls",
	}, []string{"name"})

	CircuitBreakerTrips = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cuepoint_circuit_breaker_trips_total",
		Help: "Total number of circuit breaker trips, by name and reason",
	}, []string{"name", "reason"})
)

// SetCircuitBreakerOpen records whether breaker name is open.
func SetCircuitBreakerOpen(name string, open bool) {
	v := 0.0
	if open {
		v = 1
	}
	CircuitBreakerOpen.WithLabelValues(name).Set(v)
}
