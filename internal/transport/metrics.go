package transport

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	connectAttempts = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "hostpulse_transport_connect_attempts_total",
		Help: "Connection attempts by outcome (success or failure class).",
	}, []string{"class"})

	connectionState = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "hostpulse_transport_state",
		Help: "Current transport state: 0 disconnected, 1 connecting, 2 connected.",
	})

	messagesSent = promauto.NewCounter(prometheus.CounterOpts{
		Name: "hostpulse_transport_messages_sent_total",
		Help: "Reports written to the collector connection.",
	})

	bytesSent = promauto.NewCounter(prometheus.CounterOpts{
		Name: "hostpulse_transport_bytes_sent_total",
		Help: "Encoded report bytes written to the collector connection.",
	})

	sendFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "hostpulse_transport_send_failures_total",
		Help: "Failed sends by reason.",
	}, []string{"reason"})
)
