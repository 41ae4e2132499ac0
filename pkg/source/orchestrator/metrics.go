package orchestrator

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var SyncDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
	Namespace: "mspbyte",
	Subsystem: "sync",
	Name:      "duration_seconds",
	Help:      "Duration of source syncs",
	Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 600},
}, []string{"source_id", "status"})

var SyncsCount = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "mspbyte",
	Subsystem: "sync",
	Name:      "syncs_total",
	Help:      "Count of source syncs",
}, []string{"source_id", "status"})
