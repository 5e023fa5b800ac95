// Copyright (c) 2026 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	StoreOps = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cuepoint_store_ops_total",
		Help: "Total store operations",
	}, []string{"backend", "op", "result"}) // result=success/error

	StoreLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "cuepoint_store_op_seconds",
		Help:    "Store operation latency",
		Buckets: prometheus.DefBuckets,
	}, []string{"backend", "op"})

	StoreRetries = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cuepoint_store_retries_total",
		Help: "Store operations retried after a transient failure",
	}, []string{"op"})
)
