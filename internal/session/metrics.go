package session

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	registerOnce sync.Once

	requestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "tauri_mcp",
			Subsystem: "session",
			Name:      "requests_total",
			Help:      "Commands sent by the client, by outcome.",
		},
		[]string{"command", "outcome"},
	)
	requestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "tauri_mcp",
			Subsystem: "session",
			Name:      "request_duration_seconds",
			Help:      "Time from send to terminal event.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"command", "outcome"},
	)
	reconnectsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "tauri_mcp",
			Subsystem: "session",
			Name:      "reconnects_total",
			Help:      "Automatic reconnection attempts, by result.",
		},
		[]string{"result"},
	)
	pendingRequests = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "tauri_mcp",
			Subsystem: "session",
			Name:      "pending_requests",
			Help:      "Requests awaiting a terminal event.",
		},
	)
	lateResponses = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "tauri_mcp",
			Subsystem: "session",
			Name:      "late_responses_total",
			Help:      "Responses discarded because no request was pending for their id.",
		},
	)
)

// RegisterMetrics registers the session collectors with the default registry.
func RegisterMetrics() {
	registerOnce.Do(func() {
		prometheus.MustRegister(requestsTotal, requestDuration, reconnectsTotal, pendingRequests, lateResponses)
	})
}

func recordRequest(command, outcome string, d time.Duration) {
	RegisterMetrics()
	requestsTotal.WithLabelValues(command, outcome).Inc()
	requestDuration.WithLabelValues(command, outcome).Observe(d.Seconds())
}

func recordReconnect(result string) {
	RegisterMetrics()
	reconnectsTotal.WithLabelValues(result).Inc()
}

func recordLateResponse() {
	RegisterMetrics()
	lateResponses.Inc()
}

func trackPending(delta float64) {
	RegisterMetrics()
	pendingRequests.Add(delta)
}
