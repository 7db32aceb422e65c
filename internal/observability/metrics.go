package observability

import (
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "linkbridge"

var (
	registerOnce sync.Once

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total HTTP requests.",
		},
		[]string{"node", "method", "path", "status"},
	)
	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"node", "method", "path", "status"},
	)
	bridgeRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "bridge",
			Name:      "requests_total",
			Help:      "Correlated requests by command and outcome.",
		},
		[]string{"command", "outcome"},
	)
	bridgeRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "bridge",
			Name:      "request_duration_seconds",
			Help:      "Time from issue to settlement of correlated requests.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"command"},
	)
	bridgeReconnects = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "bridge",
			Name:      "reconnects_total",
			Help:      "Reconnection supervisor decisions.",
		},
		[]string{"result"},
	)
	bridgeState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "bridge",
			Name:      "connection_state",
			Help:      "Current connection state (1 for the active state).",
		},
		[]string{"state"},
	)
	bridgeIntents = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "bridge",
			Name:      "intents_total",
			Help:      "Intent resolver actions.",
		},
		[]string{"action"},
	)
	channelMessages = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "channel",
			Name:      "messages_total",
			Help:      "Channel messages by direction and name.",
		},
		[]string{"side", "direction", "name"},
	)
	hostCommands = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "host",
			Name:      "commands_total",
			Help:      "Commands handled by the session host.",
		},
		[]string{"command", "success"},
	)
)

func RegisterMetrics() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			httpRequests,
			httpDuration,
			bridgeRequests,
			bridgeRequestDuration,
			bridgeReconnects,
			bridgeState,
			bridgeIntents,
			channelMessages,
			hostCommands,
		)
	})
}

func RecordHTTPRequest(node, method, path string, status int, duration time.Duration) {
	RegisterMetrics()
	statusLabel := strconv.Itoa(status)
	httpRequests.WithLabelValues(node, method, path, statusLabel).Inc()
	httpDuration.WithLabelValues(node, method, path, statusLabel).Observe(duration.Seconds())
}

// RecordRequest counts one settled correlated request.
func RecordRequest(command, outcome string, duration time.Duration) {
	RegisterMetrics()
	bridgeRequests.WithLabelValues(command, outcome).Inc()
	bridgeRequestDuration.WithLabelValues(command).Observe(duration.Seconds())
}

func RecordReconnect(result string) {
	RegisterMetrics()
	bridgeReconnects.WithLabelValues(result).Inc()
}

// SetConnectionState marks current as the only active state among all.
func SetConnectionState(current string, all []string) {
	RegisterMetrics()
	for _, s := range all {
		v := 0.0
		if s == current {
			v = 1
		}
		bridgeState.WithLabelValues(s).Set(v)
	}
}

func RecordIntent(action string) {
	RegisterMetrics()
	bridgeIntents.WithLabelValues(action).Inc()
}

func RecordChannelMessage(side, direction, name string) {
	RegisterMetrics()
	channelMessages.WithLabelValues(side, direction, name).Inc()
}

func RecordHostCommand(command string, success bool) {
	RegisterMetrics()
	hostCommands.WithLabelValues(command, strconv.FormatBool(success)).Inc()
}
