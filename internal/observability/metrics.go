package observability

import (
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "capbridge"

var (
	registerOnce sync.Once

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total admin HTTP requests.",
		},
		[]string{"node", "method", "path", "status"},
	)
	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Admin HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"node", "method", "path", "status"},
	)
	actionsTaken = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "registry",
			Name:      "actions_total",
			Help:      "Actions taken, by action kind and outcome.",
		},
		[]string{"kind", "success"},
	)
	targetsRegistered = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "registry",
			Name:      "targets",
			Help:      "Targets currently registered.",
		},
	)
	pulses = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "registry",
			Name:      "pulses_total",
			Help:      "Emitter firings forwarded to the bridge.",
		},
	)
	bridgeMessages = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "bridge",
			Name:      "messages_total",
			Help:      "Bridge messages by direction and event.",
		},
		[]string{"direction", "event"},
	)
	bridgeConnected = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "bridge",
			Name:      "connected",
			Help:      "1 while the coordinator connection is open.",
		},
	)
	bridgeConnects = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "bridge",
			Name:      "connects_total",
			Help:      "Connection attempts by outcome.",
		},
		[]string{"success"},
	)
	outboxDepth = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "bridge",
			Name:      "outbox_depth",
			Help:      "Records waiting in the outbound queue.",
		},
	)
)

func RegisterMetrics() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			httpRequests, httpDuration,
			actionsTaken, targetsRegistered, pulses,
			bridgeMessages, bridgeConnected, bridgeConnects, outboxDepth,
		)
	})
}

func RecordHTTPRequest(node, method, path string, status int, duration time.Duration) {
	RegisterMetrics()
	statusLabel := strconv.Itoa(status)
	httpRequests.WithLabelValues(node, method, path, statusLabel).Inc()
	httpDuration.WithLabelValues(node, method, path, statusLabel).Observe(duration.Seconds())
}

func RecordActionTake(kind string, success bool) {
	RegisterMetrics()
	actionsTaken.WithLabelValues(kind, strconv.FormatBool(success)).Inc()
}

func SetTargetsRegistered(n int) {
	RegisterMetrics()
	targetsRegistered.Set(float64(n))
}

func RecordPulse() {
	RegisterMetrics()
	pulses.Inc()
}

func RecordBridgeMessage(direction, event string) {
	RegisterMetrics()
	bridgeMessages.WithLabelValues(direction, event).Inc()
}

func RecordBridgeConnect(success bool) {
	RegisterMetrics()
	bridgeConnects.WithLabelValues(strconv.FormatBool(success)).Inc()
	if success {
		bridgeConnected.Set(1)
	}
}

func SetBridgeConnected(connected bool) {
	RegisterMetrics()
	if connected {
		bridgeConnected.Set(1)
		return
	}
	bridgeConnected.Set(0)
}

func SetOutboxDepth(n int) {
	RegisterMetrics()
	outboxDepth.Set(float64(n))
}
