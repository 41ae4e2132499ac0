package runner

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var JobsCount = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "mspbyte",
	Subsystem: "runner",
	Name:      "jobs_total",
	Help:      "Count of processed sync jobs",
}, []string{"source_id", "status"})

var JobDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
	Namespace: "mspbyte",
	Subsystem: "runner",
	Name:      "job_duration_seconds",
	Help:      "Duration of sync jobs in seconds",
	Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 600, 1800},
}, []string{"source_id", "status"})

var RequeuedCount = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: "mspbyte",
	Subsystem: "runner",
	Name:      "requeued_total",
	Help:      "Count of failed sync jobs returned to pending",
})
