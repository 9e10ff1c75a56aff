package util

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	PaymentOrdersCreatedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "payment_orders_created_total",
		Help: "Total number of gateway orders opened for course purchases",
	})

	PaymentOrdersRejectedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "payment_orders_rejected_total",
		Help: "Total number of order creation attempts rejected before persistence",
	}, []string{"reason"})

	GatewayRequestLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "gateway_request_latency_seconds",
		Help:    "Latency of outbound payment gateway calls",
		Buckets: prometheus.DefBuckets,
	}, []string{"operation", "outcome"})

	PaymentsVerifiedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "payments_verified_total",
		Help: "Client-side payment verifications by outcome",
	}, []string{"outcome"})

	WebhooksReceivedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "webhooks_received_total",
		Help: "Gateway webhook deliveries by event type and outcome",
	}, []string{"event", "outcome"})

	OrdersPaidTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "orders_paid_total",
		Help: "Orders transitioned to paid, by the path that won",
	}, []string{"source"})

	EnrollmentsAppliedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "enrollments_applied_total",
		Help: "Enrollment applications by source and whether membership changed",
	}, []string{"source", "changed"})

	EnrollmentsFailedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "enrollments_failed_total",
		Help: "Enrollment applications that failed and need reconciliation",
	}, []string{"source"})

	InvoicesIssuedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "invoices_issued_total",
		Help: "Total number of invoices issued for paid orders",
	})

	ConsumerRetriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "kafka_consumer_retries_total",
		Help: "Handler failures retried in place, by consumer group",
	}, []string{"group"})

	ConsumerMessagesSkippedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "kafka_consumer_messages_skipped_total",
		Help: "Undecodable messages committed without handling, by consumer group",
	}, []string{"group"})

	RateLimitedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "http_rate_limited_total",
		Help: "Requests rejected by the rate limiter",
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
