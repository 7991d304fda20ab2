package snapshot

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	reportsAssembled = promauto.NewCounter(prometheus.CounterOpts{
		Name: "hostpulse_reports_assembled_total",
		Help: "Machine reports assembled by the aggregator.",
	})

	degradedSections = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "hostpulse_report_degraded_sections_total",
		Help: "Report sections replaced by sentinel values after a probe failure.",
	}, []string{"section"})
)
