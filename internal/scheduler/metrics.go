package scheduler

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	reportsSent = promauto.NewCounter(prometheus.CounterOpts{
		Name: "hostpulse_reports_sent_total",
		Help: "Reports delivered to the collector.",
	})

	reportsDropped = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "hostpulse_reports_dropped_total",
		Help: "Reports discarded before delivery, by reason.",
	}, []string{"reason"})

	queueLength = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "hostpulse_report_queue_length",
		Help: "Reports waiting for delivery.",
	})
)
