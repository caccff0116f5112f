package observability

import (
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	registerOnce sync.Once

	adminRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "msgpipe",
			Subsystem: "admin",
			Name:      "requests_total",
			Help:      "Total admin HTTP requests.",
		},
		[]string{"admin", "method", "route", "status"},
	)
	adminDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "msgpipe",
			Subsystem: "admin",
			Name:      "request_duration_seconds",
			Help:      "Admin HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"admin", "method", "route", "status"},
	)
	framesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "msgpipe",
			Subsystem: "channel",
			Name:      "frames_total",
			Help:      "Frames written or read by a channel.",
		},
		[]string{"endpoint", "role", "direction"},
	)
	frameBytes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "msgpipe",
			Subsystem: "channel",
			Name:      "payload_bytes_total",
			Help:      "Payload bytes written or read by a channel.",
		},
		[]string{"endpoint", "role", "direction"},
	)
	queueDrops = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "msgpipe",
			Subsystem: "queue",
			Name:      "dropped_total",
			Help:      "Inbound messages discarded by the drop overflow policy.",
		},
		[]string{"endpoint", "role"},
	)
	sessionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "msgpipe",
			Subsystem: "channel",
			Name:      "sessions_total",
			Help:      "Finished sessions by outcome.",
		},
		[]string{"endpoint", "role", "outcome"},
	)
	sessionDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "msgpipe",
			Subsystem: "channel",
			Name:      "session_duration_seconds",
			Help:      "Session lifetime in seconds.",
			Buckets:   prometheus.ExponentialBuckets(0.01, 4, 10),
		},
		[]string{"endpoint", "role"},
	)
	connectedGauge = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "msgpipe",
			Subsystem: "channel",
			Name:      "connected",
			Help:      "1 while a session is established.",
		},
		[]string{"endpoint", "role"},
	)
)

func RegisterMetrics() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			adminRequests,
			adminDuration,
			framesTotal,
			frameBytes,
			queueDrops,
			sessionsTotal,
			sessionDuration,
			connectedGauge,
		)
	})
}

func RecordAdminRequest(admin, method, route string, status int, duration time.Duration) {
	RegisterMetrics()
	statusLabel := strconv.Itoa(status)
	adminRequests.WithLabelValues(admin, method, route, statusLabel).Inc()
	adminDuration.WithLabelValues(admin, method, route, statusLabel).Observe(duration.Seconds())
}

func RecordFrameSent(endpoint, role string, payloadBytes int) {
	recordFrame(endpoint, role, "sent", payloadBytes)
}

func RecordFrameReceived(endpoint, role string, payloadBytes int) {
	recordFrame(endpoint, role, "received", payloadBytes)
}

func recordFrame(endpoint, role, direction string, payloadBytes int) {
	RegisterMetrics()
	framesTotal.WithLabelValues(endpoint, role, direction).Inc()
	frameBytes.WithLabelValues(endpoint, role, direction).Add(float64(payloadBytes))
}

func RecordQueueDrop(endpoint, role string) {
	RegisterMetrics()
	queueDrops.WithLabelValues(endpoint, role).Inc()
}

func RecordSessionStart(endpoint, role string) {
	RegisterMetrics()
	connectedGauge.WithLabelValues(endpoint, role).Set(1)
}

func RecordSessionEnd(endpoint, role, outcome string, duration time.Duration) {
	RegisterMetrics()
	connectedGauge.WithLabelValues(endpoint, role).Set(0)
	sessionsTotal.WithLabelValues(endpoint, role, outcome).Inc()
	sessionDuration.WithLabelValues(endpoint, role).Observe(duration.Seconds())
}
