package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	HTTPRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "booking_http_requests_total",
			Help: "Total number of HTTP requests by route and status",
		},
		[]string{"method", "route", "status"},
	)

	HTTPDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "booking_http_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)

	ServiceRequestsCreated = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "booking_service_requests_created_total",
			Help: "Total number of service requests accepted",
		},
		[]string{"appliance_type"},
	)

	StatusChanges = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "booking_status_changes_total",
			Help: "Total number of service request status changes",
		},
		[]string{"status"},
	)

	ValidationFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "booking_validation_failures_total",
			Help: "Total number of rejected booking fields",
		},
		[]string{"field"},
	)

	NotificationsSent = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "booking_notifications_total",
			Help: "Total number of notifications by channel and outcome",
		},
		[]string{"channel", "outcome"},
	)

	OutboxRelayed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "booking_outbox_events_relayed_total",
			Help: "Total number of outbox events processed by the relay",
		},
		[]string{"type"},
	)

	CacheLookups = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "booking_cache_lookups_total",
			Help: "Total number of cache lookups by result",
		},
		[]string{"result"},
	)
)
