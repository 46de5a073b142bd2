package checkpoint

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// checkpointSaves tracks successful saves by backend
	checkpointSaves = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "batchfetch_checkpoint_saves_total",
			Help: "Total number of checkpoint saves",
		},
		[]string{"backend"}, // "file", "redis"
	)

	// checkpointErrors tracks failed checkpoint operations
	checkpointErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "batchfetch_checkpoint_errors_total",
			Help: "Total number of checkpoint operation errors",
		},
		[]string{"backend", "operation"}, // "load", "save", "reset"
	)

	// checkpointBytes tracks the size of the last saved checkpoint
	checkpointBytes = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "batchfetch_checkpoint_size_bytes",
			Help: "Size of the last saved checkpoint in bytes",
		},
		[]string{"backend"},
	)
)
