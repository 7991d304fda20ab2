package collector

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	probeDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "hostpulse_probe_duration_seconds",
		Help:    "Time spent running each metric probe.",
		Buckets: []float64{0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
	}, []string{"probe"})

	probeFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "hostpulse_probe_failures_total",
		Help: "Metric probe failures by reason (error or timeout).",
	}, []string{"probe", "reason"})
)
