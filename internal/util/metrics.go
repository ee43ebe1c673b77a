package util

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	OrdersCreatedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "orders_created_total",
		Help: "Total number of orders created",
	})

	OrdersPaidTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "orders_paid_total",
		Help: "Total number of orders confirmed paid",
	})

	OrdersDeliveredTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "orders_delivered_total",
		Help: "Total number of orders delivered",
	})

	OrdersFailedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "orders_failed_total",
		Help: "Total number of orders that reached terminal failure",
	}, []string{"reason"})

	InvoiceCreateFailedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "invoice_create_failed_total",
		Help: "Total number of failed invoice creations",
	})

	WebhookRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "payment_webhook_requests_total",
		Help: "Payment webhook requests by outcome",
	}, []string{"outcome"})

	PaymentPollsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "payment_polls_total",
		Help: "Payment status polls by outcome",
	}, []string{"outcome"})

	PaymentWatchExhaustedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "payment_watch_exhausted_total",
		Help: "Payment watches dropped after exhausting the poll budget",
	})

	DeliveryAttemptsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "delivery_attempts_total",
		Help: "Total number of delivery attempts",
	})

	DeliveryRetriesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "delivery_retries_total",
		Help: "Total number of delivery attempts after the first",
	})

	DeliveryLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "delivery_latency_seconds",
		Help:    "Latency of delivery provider calls",
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
