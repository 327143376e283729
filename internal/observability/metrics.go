package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	SessionsStarted = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "thorvision",
		Name:      "sessions_started_total",
		Help:      "Total number of stream sessions started successfully",
	})

	SessionStartFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "thorvision",
		Name:      "session_start_failures_total",
		Help:      "Total number of failed session start sequences",
	}, []string{"stage"}) // server | recorder | rollback

	SessionsStopped = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "thorvision",
		Name:      "sessions_stopped_total",
		Help:      "Total number of stream sessions stopped",
	})

	RecorderCrashes = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "thorvision",
		Name:      "recorder_crashes_total",
		Help:      "Total number of recorder processes that exited unexpectedly",
	})

	ActiveSessions = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "thorvision",
		Name:      "active_sessions",
		Help:      "Number of currently registered stream sessions",
	})
)
