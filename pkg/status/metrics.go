package status

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// StatusWrites tracks status mirror writes by result
	StatusWrites = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "promptgrid_status_writes_total",
			Help: "Total number of run status writes to Redis",
		},
		[]string{"result"}, // "ok", "error"
	)
)
