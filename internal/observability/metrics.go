package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	VerificationTicks = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "kkn",
		Name:      "verification_ticks_total",
		Help:      "Verification loop ticks by outcome",
	}, []string{"outcome"})

	ExtractionDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "kkn",
		Name:      "extraction_duration_seconds",
		Help:      "Duration of face descriptor extraction per tick",
		Buckets:   prometheus.ExponentialBuckets(0.005, 2, 10),
	})

	InferenceDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "kkn",
		Name:      "inference_duration_seconds",
		Help:      "Duration of ML inference stages",
		Buckets:   prometheus.ExponentialBuckets(0.005, 2, 10),
	}, []string{"stage"})

	ActiveSessions = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "kkn",
		Name:      "active_checkin_sessions",
		Help:      "Number of check-in sessions currently holding a camera",
	})

	CheckIns = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "kkn",
		Name:      "checkins_total",
		Help:      "Check-in records written",
	}, []string{"label"})

	SubmitFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "kkn",
		Name:      "submit_failures_total",
		Help:      "Failed check-in submissions by reason",
	}, []string{"reason"})

	SessionFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "kkn",
		Name:      "session_failures_total",
		Help:      "Check-in session failures by condition",
	}, []string{"condition"})

	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "kkn",
		Name:      "http_request_duration_seconds",
		Help:      "HTTP request duration",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	WSConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "kkn",
		Name:      "ws_connections",
		Help:      "Number of active WebSocket connections",
	})
)
