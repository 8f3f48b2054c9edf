package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	LogsIngested = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "logwarden_logs_ingested_total",
			Help: "Total number of log entries ingested",
		},
		[]string{"severity"},
	)

	IngestFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "logwarden_ingest_failures_total",
			Help: "Total number of log entries that failed to persist",
		},
	)

	ThreatsDetected = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "logwarden_threats_detected_total",
			Help: "Total number of threats flagged by the static detector",
		},
		[]string{"rule"},
	)

	AlertsTriggered = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "logwarden_alerts_triggered_total",
			Help: "Total number of alert rule triggers that passed suppression",
		},
		[]string{"severity"},
	)

	AlertsSuppressed = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "logwarden_alerts_suppressed_total",
			Help: "Total number of alert triggers dropped by the suppression window",
		},
	)

	NotificationsSent = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "logwarden_notifications_sent_total",
			Help: "Total number of notifications dispatched per channel type",
		},
		[]string{"type"},
	)

	NotificationFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "logwarden_notification_failures_total",
			Help: "Total number of notification dispatch failures per channel type",
		},
		[]string{"type"},
	)

	PipelineQueueDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "logwarden_pipeline_queue_depth",
			Help: "Current number of log entries waiting for background evaluation",
		},
	)

	PipelineDropped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "logwarden_pipeline_dropped_total",
			Help: "Total number of entries whose background evaluation was dropped on a full queue",
		},
	)

	EvaluationDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "logwarden_evaluation_duration_seconds",
			Help:    "Time taken to run threat detection and rule evaluation for one entry",
			Buckets: prometheus.DefBuckets,
		},
	)

	WebSocketClients = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "logwarden_websocket_clients",
			Help: "Current number of connected WebSocket clients",
		},
	)

	HTTPRequestsRejected = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "logwarden_http_requests_rejected_total",
			Help: "Total number of HTTP requests rejected by the rate limiter",
		},
	)
)
