package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Dispatch metrics, labelled by op code name.
	DispatchTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gpubridge_dispatch_total",
		Help: "The total number of calls sent to the native channel",
	}, []string{"op", "outcome"})

	DispatchDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "gpubridge_dispatch_duration_seconds",
		Help:    "Time spent inside the native channel per call",
		Buckets: prometheus.ExponentialBuckets(0.00001, 4, 12), // 10µs to ~42s
	}, []string{"op"})

	// Memory accounting, per device ordinal.
	MemoryAccountedBytes = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "gpubridge_memory_accounted_bytes",
		Help: "Client-side estimate of live memory blocks in bytes",
	}, []string{"device", "mode"})

	GhostBlocks = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "gpubridge_ghost_blocks",
		Help: "Number of live simulated memory blocks",
	}, []string{"device"})

	AllocationFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gpubridge_allocation_failures_total",
		Help: "The total number of rejected native allocations",
	}, []string{"device"})

	ScrapeResponses = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gpubridge_metrics_responses_total",
		Help: "The total number of metrics endpoint responses",
	}, []string{"status_code"})
)
