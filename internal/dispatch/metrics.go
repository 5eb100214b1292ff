package dispatch

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	registerOnce sync.Once

	dispatchTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "tauri_mcp",
			Subsystem: "host",
			Name:      "dispatch_total",
			Help:      "Requests dispatched by the host, by outcome.",
		},
		[]string{"command", "outcome"},
	)
	dispatchDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "tauri_mcp",
			Subsystem: "host",
			Name:      "dispatch_duration_seconds",
			Help:      "Time spent dispatching a request.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"command", "outcome"},
	)
	connectionsOpen = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "tauri_mcp",
			Subsystem: "host",
			Name:      "connections",
			Help:      "Open client connections.",
		},
	)
)

// RegisterMetrics registers the host collectors with the default registry.
func RegisterMetrics() {
	registerOnce.Do(func() {
		prometheus.MustRegister(dispatchTotal, dispatchDuration, connectionsOpen)
	})
}

func recordDispatch(command, outcome string, d time.Duration) {
	RegisterMetrics()
	dispatchTotal.WithLabelValues(command, outcome).Inc()
	dispatchDuration.WithLabelValues(command, outcome).Observe(d.Seconds())
}

func trackConnection(delta float64) {
	RegisterMetrics()
	connectionsOpen.Add(delta)
}
