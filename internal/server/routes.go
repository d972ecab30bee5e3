package server

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rcourtman/paybridge/internal/billing"
	"github.com/rcourtman/paybridge/internal/config"
	"github.com/shopspring/decimal"
)

// BillingAPI is the outbound surface exposed through the admin API.
type BillingAPI interface {
	SubmitPayment(ctx context.Context, req billing.PaymentRequest) (billing.PaymentResult, error)
	SubmitRecurring(ctx context.Context, req billing.RecurringPaymentRequest) (billing.RecurringResult, error)
	Refund(ctx context.Context, req billing.RefundRequest) (billing.RefundResult, error)
	CancelSubscription(ctx context.Context, subscriptionID string) error
	UpdateSubscriptionAmount(ctx context.Context, subscriptionID string, amount decimal.Decimal, currency string) error
	UpdateSubscriptionBillingDate(ctx context.Context, subscriptionID string, date time.Time) error
	UpdateSubscriptionPlan(ctx context.Context, subscriptionID, planVariationID string) error
}

type SubscriptionSyncer interface {
	SyncSubscriptionStatus(ctx context.Context, subscriptionID string) error
}

// Deps holds shared dependencies injected into HTTP handlers.
type Deps struct {
	Config  *config.Config
	Store   Pinger
	Webhook http.Handler
	Billing BillingAPI
	Engine  SubscriptionSyncer
	Version string
}

// RegisterRoutes wires all HTTP handlers onto the given ServeMux.
func RegisterRoutes(mux *http.ServeMux, deps *Deps) {
	adminAuth := func(next http.Handler) http.Handler {
		return AdminKeyMiddleware(deps.Config.AdminKey, next)
	}

	mux.HandleFunc("/healthz", HandleHealthz)
	mux.HandleFunc("/readyz", HandleReadyz(deps.Store))

	metricsHandler := promhttp.Handler()
	if deps.Config.PublicMetrics {
		mux.Handle("/metrics", metricsHandler)
	} else {
		mux.Handle("/metrics", adminAuth(metricsHandler))
	}

	// Gateway webhook (signature-authenticated)
	webhookLimiter := NewRateLimiter(120, time.Minute, deps.Config.TrustedProxies...)
	mux.Handle("/webhooks/square", webhookLimiter.Middleware(deps.Webhook))

	// Admin API (key-authenticated)
	api := &apiHandlers{billing: deps.Billing, engine: deps.Engine, version: deps.Version}
	mux.Handle("POST /api/payments", adminAuth(http.HandlerFunc(api.handleSubmitPayment)))
	mux.Handle("POST /api/recurring", adminAuth(http.HandlerFunc(api.handleSubmitRecurring)))
	mux.Handle("POST /api/refunds", adminAuth(http.HandlerFunc(api.handleRefund)))
	mux.Handle("POST /api/subscriptions/{id}/sync", adminAuth(http.HandlerFunc(api.handleSyncSubscription)))
	mux.Handle("POST /api/subscriptions/{id}/cancel", adminAuth(http.HandlerFunc(api.handleCancelSubscription)))
	mux.Handle("PUT /api/subscriptions/{id}/amount", adminAuth(http.HandlerFunc(api.handleUpdateAmount)))
	mux.Handle("PUT /api/subscriptions/{id}/billing-date", adminAuth(http.HandlerFunc(api.handleUpdateBillingDate)))
	mux.Handle("PUT /api/subscriptions/{id}/plan", adminAuth(http.HandlerFunc(api.handleUpdatePlan)))
	mux.Handle("GET /api/cadences", adminAuth(http.HandlerFunc(api.handleCadences)))
	mux.Handle("GET /api/version", adminAuth(http.HandlerFunc(api.handleVersion)))
}
