// Copyright (c) 2026 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func getCounterValue(t *testing.T, counter prometheus.Counter) float64 {
	t.Helper()
	metric := &dto.Metric{}
	require.NoError(t, counter.Write(metric))
	return metric.GetCounter().GetValue()
}

func getGaugeValue(t *testing.T, gauge prometheus.Gauge) float64 {
	t.Helper()
	metric := &dto.Metric{}
	require.NoError(t, gauge.Write(metric))
	return metric.GetGauge().GetValue()
}

func TestIncBroadcastDropFillsEmptyLabels(t *testing.T) {
	before := getCounterValue(t, BroadcastDroppedTotal.WithLabelValues("unknown", "unknown"))
	IncBroadcastDrop("", "")
	assert.Equal(t, before+1, getCounterValue(t, BroadcastDroppedTotal.WithLabelValues("unknown", "unknown")))
}

func TestIncBroadcastPublished(t *testing.T) {
	c := BroadcastPublishedTotal.WithLabelValues("marker.emitted")
	before := getCounterValue(t, c)
	IncBroadcastPublished("marker.emitted")
	assert.Equal(t, before+1, getCounterValue(t, c))
}

func TestPendingTimerGaugesArePerPhase(t *testing.T) {
	PendingTimers.WithLabelValues(PhaseTrigger).Set(3)
	PendingTimers.WithLabelValues(PhaseReturn).Set(1)
	assert.Equal(t, 3.0, getGaugeValue(t, PendingTimers.WithLabelValues(PhaseTrigger)))
	assert.Equal(t, 1.0, getGaugeValue(t, PendingTimers.WithLabelValues(PhaseReturn)))
}

func TestCollectorsAreRegistered(t *testing.T) {
	ActiveSessions.Set(0)
	EventStreamClients.Set(0)
	families, err := prometheus.DefaultGatherer.Gather()
	require.NoError(t, err)
	names := map[string]bool{}
	for _, mf := range families {
		names[mf.GetName()] = true
	}
	assert.True(t, names["cuepoint_encoder_active_sessions"])
	assert.True(t, names["cuepoint_event_stream_clients"])
}
