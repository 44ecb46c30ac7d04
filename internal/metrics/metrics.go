package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	ConnectedSockets = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "coroom_connected_sockets",
			Help: "Number of open signal connections",
		},
	)

	LiveRooms = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "coroom_live_rooms",
			Help: "Number of rooms with at least one member",
		},
	)

	EventsRelayed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "coroom_events_relayed_total",
			Help: "Frames delivered to room members, by event type",
		},
		[]string{"event"},
	)

	DroppedFrames = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "coroom_dropped_frames_total",
			Help: "Frames not queued because the recipient was backed up",
		},
		[]string{"event"},
	)

	ExecutionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "coroom_executions_total",
			Help: "Total number of code executions",
		},
		[]string{"language", "outcome"}, // outcome: "ok", "exit_nonzero", "timeout", "spawn_error", "provision_error"
	)

	ExecutionDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "coroom_execution_duration_ms",
			Help:    "Execution duration in milliseconds",
			Buckets: []float64{50, 100, 250, 500, 1000, 2500, 5000, 10000},
		},
		[]string{"language", "phase"}, // phase: "compile", "run", "total"
	)

	ActiveExecutions = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "coroom_active_executions",
			Help: "Number of executions currently holding a slot",
		},
	)

	RateLimitHits = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "coroom_rate_limit_hits_total",
			Help: "Total number of requests rejected by rate limiter",
		},
	)
)
