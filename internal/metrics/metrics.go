// Package metrics holds the Prometheus collectors exported by the bridge.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// GatewayRequestsTotal counts outbound gateway calls by endpoint and outcome.
	GatewayRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "paybridge",
		Subsystem: "gateway",
		Name:      "requests_total",
		Help:      "Total outbound gateway requests by endpoint and outcome.",
	}, []string{"endpoint", "outcome"})

	// GatewayRequestDuration tracks outbound gateway latency.
	GatewayRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "paybridge",
		Subsystem: "gateway",
		Name:      "request_duration_seconds",
		Help:      "Outbound gateway request duration in seconds.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"endpoint"})

	// WebhookRequestsTotal counts webhook requests by event type and HTTP status.
	WebhookRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "paybridge",
		Subsystem: "webhook",
		Name:      "requests_total",
		Help:      "Total webhook requests by event type and HTTP status.",
	}, []string{"event_type", "status"})

	// WebhookDuration tracks webhook processing latency.
	WebhookDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "paybridge",
		Subsystem: "webhook",
		Name:      "duration_seconds",
		Help:      "Webhook processing duration in seconds.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"event_type"})

	// WebhookDuplicatesTotal counts redelivered events that were skipped.
	WebhookDuplicatesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "paybridge",
		Subsystem: "webhook",
		Name:      "duplicates_total",
		Help:      "Webhook events skipped because the event id was already processed.",
	})

	// ProvisioningTotal counts customer resolutions by the branch that produced the id.
	ProvisioningTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "paybridge",
		Subsystem: "provision",
		Name:      "customers_total",
		Help:      "Customer resolutions by source (cached, reference, email, created, conflict).",
	}, []string{"source"})

	// PlanVariationLookups counts plan-variation cache lookups by result.
	PlanVariationLookups = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "paybridge",
		Subsystem: "plans",
		Name:      "variation_lookups_total",
		Help:      "Plan variation cache lookups by result (hit, created).",
	}, []string{"result"})

	// ReconcileTotal counts inbound reconciliation outcomes by object kind.
	ReconcileTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "paybridge",
		Subsystem: "reconcile",
		Name:      "events_total",
		Help:      "Reconciled gateway objects by kind and outcome.",
	}, []string{"kind", "outcome"})
)
