package reconcile

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var RowsCount = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "mspbyte",
	Subsystem: "reconciler",
	Name:      "rows_total",
	Help:      "Count of reconciled rows by entity, operation and outcome",
}, []string{"entity", "operation", "status"})

var RunsCount = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "mspbyte",
	Subsystem: "reconciler",
	Name:      "runs_total",
	Help:      "Count of reconcile runs",
}, []string{"entity", "status"})
