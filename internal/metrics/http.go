// Copyright (c) 2026 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "cuepoint_http_request_duration_seconds",
		Help:    "Admin API request latency by method, route and status",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "route", "status"})

	HTTPRequestsInFlight = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "cuepoint_http_requests_in_flight",
		Help: "Admin API requests being served",
	})

	HTTPRateLimited = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cuepoint_http_rate_limited_total",
		Help: "Requests rejected by the rate limiter, by route",
	}, []string{"route"})

	// EventStreamClients counts open server-sent event connections.
	EventStreamClients = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "cuepoint_event_stream_clients",
		Help: "Connected server-sent event clients",
	})
)
