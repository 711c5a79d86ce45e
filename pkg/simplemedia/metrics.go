package simplemedia

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	uploadsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "simplemedia_uploads_total",
			Help: "Uploads by profile and outcome",
		},
		[]string{"type", "result"},
	)

	processingFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "simplemedia_processing_failures_total",
			Help: "Image operations that aborted an upload or crop",
		},
		[]string{"operation"},
	)

	gcRunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "simplemedia_gc_runs_total",
			Help: "Garbage collection batches by profile and outcome",
		},
		[]string{"type", "result"},
	)

	gcCollectedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "simplemedia_gc_collected_total",
			Help: "Assets permanently removed by garbage collection",
		},
		[]string{"type"},
	)
)
