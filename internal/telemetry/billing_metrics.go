package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// BillingMetrics holds Prometheus metrics for the billing sync pipeline.
type BillingMetrics struct {
	// Webhook pipeline
	WebhookReceived   *prometheus.CounterVec
	WebhookProcessed  *prometheus.CounterVec
	WebhookFailed     *prometheus.CounterVec
	WebhookLatency    *prometheus.HistogramVec
	WebhookUnresolved prometheus.Counter

	// Checkout funnel
	CheckoutSessionsCreated *prometheus.CounterVec
	PortalSessionsCreated   prometheus.Counter
	CustomersCreated        prometheus.Counter
}

// NewBillingMetrics creates and registers all billing metrics
func NewBillingMetrics(namespace string) *BillingMetrics {
	if namespace == "" {
		namespace = "hearthside"
	}

	subsystem := "billing"

	m := &BillingMetrics{
		WebhookReceived: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "webhook_received_total",
				Help:      "Total webhooks received",
			},
			[]string{"event_type"},
		),
		WebhookProcessed: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "webhook_processed_total",
				Help:      "Total webhooks successfully processed",
			},
			[]string{"event_type"},
		),
		WebhookFailed: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "webhook_failed_total",
				Help:      "Total webhook processing failures",
			},
			[]string{"event_type", "error_type"}, // error_type: bad_signature, bad_payload, store_error
		),
		WebhookLatency: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "webhook_processing_seconds",
				Help:      "Webhook processing duration",
				Buckets:   []float64{.01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
			},
			[]string{"event_type"},
		),
		WebhookUnresolved: promauto.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "webhook_unresolved_total",
				Help:      "Total acknowledged webhooks whose customer matched no user",
			},
		),
		CheckoutSessionsCreated: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "checkout_sessions_created_total",
				Help:      "Total checkout sessions created",
			},
			[]string{"tier"},
		),
		PortalSessionsCreated: promauto.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "portal_sessions_created_total",
				Help:      "Total billing portal sessions created",
			},
		),
		CustomersCreated: promauto.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "customers_created_total",
				Help:      "Total Stripe customers created",
			},
		),
	}

	return m
}
