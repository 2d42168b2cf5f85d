package util

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	TransitionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "order_transitions_total",
		Help: "Total number of accepted order status transitions",
	}, []string{"to_status"})

	TransitionsRejectedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "order_transitions_rejected_total",
		Help: "Total number of rejected order status transitions",
	}, []string{"reason"})

	AssignmentsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "logistics_assignments_total",
		Help: "Total number of logistics assignments",
	})

	OrdersAllocatedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "orders_allocated_total",
		Help: "Total number of orders allocated against warehouse stock",
	})

	StockDecrementsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "stock_decrements_total",
		Help: "Total number of successful stock decrements",
	})

	StockDecrementsFailedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "stock_decrements_failed_total",
		Help: "Total number of failed stock decrements",
	}, []string{"reason"})

	StockLowAlertsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "stock_low_alerts_total",
		Help: "Total number of low-stock alerts raised",
	})

	SideEffectsPublishedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "side_effects_published_total",
		Help: "Total number of side-effect events published",
	}, []string{"event_type"})

	SideEffectsDroppedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "side_effects_dropped_total",
		Help: "Total number of side-effect events that failed to publish",
	}, []string{"event_type"})

	NotificationsWrittenTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "notifications_written_total",
		Help: "Total number of notification rows written",
	})

	AuditRecordsWrittenTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "audit_records_written_total",
		Help: "Total number of audit log rows written",
	})

	StockDecrementLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "stock_decrement_latency_seconds",
		Help:    "Latency of stock decrement operations",
		Buckets: prometheus.DefBuckets,
	})

	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "HTTP request latency",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})
)
