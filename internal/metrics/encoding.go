// Copyright (c) 2026 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	SessionStarts = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cuepoint_encoder_start_total",
		Help: "Encoder start attempts by result",
	}, []string{"result"}) // ok, conflict, spawn_error, error

	SessionExits = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cuepoint_encoder_exit_total",
		Help: "Encoder session terminal outcomes",
	}, []string{"status", "reason"})

	SessionExitRetries = promauto.NewCounter(prometheus.CounterOpts{
		Name: "cuepoint_encoder_exit_persist_retries_total",
		Help: "Retried writes of encoder session terminal status",
	})

	ActiveSessions = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "cuepoint_encoder_active_sessions",
		Help: "Encoder sessions currently tracked",
	})

	ProcessSignals = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cuepoint_encoder_signals_total",
		Help: "Signals delivered to encoder processes",
	}, []string{"signal", "result"})

	EncoderOutputBytes = promauto.NewCounter(prometheus.CounterOpts{
		Name: "cuepoint_encoder_output_bytes_total",
		Help: "Bytes written by encoder processes, as reported by progress output",
	})
)
