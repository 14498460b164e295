package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	ActiveMeetings = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "classroom_active_meetings",
		Help: "Number of meetings currently open",
	})

	AttendeesJoinedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "classroom_attendees_joined_total",
		Help: "Total number of attendees created by /join",
	})

	ActiveConnections = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "classroom_active_connections",
		Help: "Number of open sockets by channel",
	}, []string{"channel"})

	ConnectionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "classroom_connections_total",
		Help: "Total number of accepted sockets by channel",
	}, []string{"channel"})

	FramesRelayedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "classroom_frames_relayed_total",
		Help: "Total number of frames delivered to sockets by channel",
	}, []string{"channel"})

	FramesDroppedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "classroom_frames_dropped_total",
		Help: "Total number of frames dropped under backpressure by channel",
	}, []string{"channel"})

	RequestErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "classroom_request_errors_total",
		Help: "Total number of rejected REST requests by endpoint",
	}, []string{"endpoint"})
)
