// Package metrics registers the service's prometheus collectors. Served
// from /metrics via promhttp.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// MarksTotal counts attendance records written, by status and method.
	MarksTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "smartattend_marks_total",
		Help: "Attendance records written, by status and method.",
	}, []string{"status", "method"})

	// SessionsStartedTotal counts QR sessions opened.
	SessionsStartedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "smartattend_sessions_started_total",
		Help: "QR attendance sessions started.",
	})

	// SessionsEndedTotal counts explicit session deactivations.
	SessionsEndedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "smartattend_sessions_ended_total",
		Help: "QR attendance sessions ended by their owner.",
	})

	// SessionsSweptTotal counts sessions deactivated by the expiry sweep.
	SessionsSweptTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "smartattend_sessions_swept_total",
		Help: "Expired QR attendance sessions deactivated by the sweeper.",
	})

	// BroadcastEventsTotal counts events published to live viewers.
	BroadcastEventsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "smartattend_broadcast_events_total",
		Help: "Attendance events published to class channels.",
	})

	// WSConnections gauges currently connected live-view sockets.
	WSConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "smartattend_ws_connections",
		Help: "Open live-view websocket connections.",
	})
)
