// Package webhook receives gateway notifications, verifies and deduplicates them,
// and routes each event to the reconcile engine.
package webhook

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/rcourtman/paybridge/internal/config"
	"github.com/rcourtman/paybridge/internal/logging"
	"github.com/rcourtman/paybridge/internal/metrics"
	"github.com/rcourtman/paybridge/internal/square"
)

const webhookBodyLimit = 1024 * 1024 // 1 MiB

// Reconciler applies gateway objects to the CRM.
type Reconciler interface {
	SyncPayment(ctx context.Context, p square.Payment) error
	SyncRefund(ctx context.Context, r square.Refund) error
	SyncSubscriptionStatus(ctx context.Context, subscriptionID string) error
	CancelSubscriptionLocally(ctx context.Context, subscriptionID string) error
	SyncInvoicePayment(ctx context.Context, inv square.Invoice) error
}

// CredentialSource supplies the live webhook signature key.
type CredentialSource interface {
	Active() config.Credentials
}

// Receiver is the http.Handler for gateway notifications.
type Receiver struct {
	creds           CredentialSource
	notificationURL string
	dedup           Deduper
	engine          Reconciler
}

type errorResponse struct {
	Error string `json:"error"`
}

type receivedResponse struct {
	Received  bool `json:"received"`
	Duplicate bool `json:"duplicate,omitempty"`
}

// NewReceiver builds a Receiver. notificationURL must be the exact URL registered
// with the gateway, since it is part of the signed message.
func NewReceiver(creds CredentialSource, notificationURL string, dedup Deduper, engine Reconciler) *Receiver {
	if dedup == nil {
		dedup = NewMemoryDeduper(DefaultDedupTTL)
	}
	return &Receiver{
		creds:           creds,
		notificationURL: notificationURL,
		dedup:           dedup,
		engine:          engine,
	}
}

func (h *Receiver) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	eventType := "unknown"
	status := http.StatusOK
	defer func() {
		metrics.WebhookRequestsTotal.WithLabelValues(eventType, strconv.Itoa(status)).Inc()
		metrics.WebhookDuration.WithLabelValues(eventType).Observe(time.Since(start).Seconds())
	}()

	ctx, _ := logging.WithRequestID(r.Context(), r.Header.Get("X-Request-Id"))
	logger := logging.Ctx(ctx)

	if r.Method != http.MethodPost {
		status = http.StatusMethodNotAllowed
		writeJSON(w, status, errorResponse{Error: "method not allowed"})
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, webhookBodyLimit)
	payload, err := io.ReadAll(r.Body)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			status = http.StatusRequestEntityTooLarge
			writeJSON(w, status, errorResponse{Error: "request body too large"})
			return
		}
		status = http.StatusBadRequest
		writeJSON(w, status, errorResponse{Error: "failed to read request body"})
		return
	}

	key := h.creds.Active().WebhookSignatureKey
	if key == "" {
		logger.Warn().Msg("Webhook rejected: no signature key configured")
		status = http.StatusUnauthorized
		writeJSON(w, status, errorResponse{Error: "invalid signature"})
		return
	}
	if !Verify(key, h.notificationURL, payload, signatureFromHeader(r.Header)) {
		logger.Warn().Str("remote_addr", r.RemoteAddr).Msg("Webhook rejected: signature missing or invalid")
		status = http.StatusUnauthorized
		writeJSON(w, status, errorResponse{Error: "invalid signature"})
		return
	}

	var event Event
	if err := json.Unmarshal(payload, &event); err != nil {
		logger.Warn().Err(err).Msg("Webhook rejected: invalid JSON body")
		status = http.StatusBadRequest
		writeJSON(w, status, errorResponse{Error: "invalid JSON"})
		return
	}
	if strings.TrimSpace(event.Type) == "" {
		logger.Warn().Str("event_id", event.EventID).Msg("Webhook rejected: payload has no event type")
		status = http.StatusBadRequest
		writeJSON(w, status, errorResponse{Error: "invalid JSON"})
		return
	}
	eventType = event.Type

	if event.EventID != "" {
		seen, err := h.dedup.MarkProcessed(ctx, event.EventID)
		if err != nil {
			logger.Error().Err(err).Str("event_id", event.EventID).Msg("Webhook dedup check failed")
			status = http.StatusInternalServerError
			writeJSON(w, status, errorResponse{Error: "processing failed"})
			return
		}
		if seen {
			metrics.WebhookDuplicatesTotal.Inc()
			logger.Info().Str("event_id", event.EventID).Str("type", event.Type).Msg("Duplicate webhook event skipped")
			writeJSON(w, status, receivedResponse{Received: true, Duplicate: true})
			return
		}
	}

	// The event stays marked if dispatch fails; the gateway's redelivery will be skipped.
	if err := h.dispatch(ctx, &event); err != nil {
		logger.Error().Err(err).
			Str("event_id", event.EventID).
			Str("type", event.Type).
			Msg("Webhook processing failed")
		status = http.StatusInternalServerError
		writeJSON(w, status, errorResponse{Error: "processing failed"})
		return
	}

	logger.Debug().Str("event_id", event.EventID).Str("type", event.Type).Msg("Webhook event processed")
	writeJSON(w, status, receivedResponse{Received: true})
}

func (h *Receiver) dispatch(ctx context.Context, event *Event) error {
	obj := event.Data.Object
	logger := logging.Ctx(ctx)

	switch event.Type {
	case EventPaymentCreated, EventPaymentUpdated:
		if obj.Payment == nil {
			logMissing(ctx, event, "payment")
			return nil
		}
		return h.engine.SyncPayment(ctx, *obj.Payment)

	case EventPaymentRefunded, EventRefundCreated, EventRefundUpdated:
		if obj.Refund == nil {
			logMissing(ctx, event, "refund")
			return nil
		}
		return h.engine.SyncRefund(ctx, *obj.Refund)

	case EventSubscriptionCreated, EventSubscriptionUpdated:
		if obj.Subscription == nil || obj.Subscription.ID == "" {
			logMissing(ctx, event, "subscription")
			return nil
		}
		return h.engine.SyncSubscriptionStatus(ctx, obj.Subscription.ID)

	case EventSubscriptionCanceled, EventSubscriptionDeleted:
		if obj.Subscription == nil || obj.Subscription.ID == "" {
			logMissing(ctx, event, "subscription")
			return nil
		}
		return h.engine.CancelSubscriptionLocally(ctx, obj.Subscription.ID)

	case EventInvoicePaid, EventInvoicePaymentMade:
		if obj.Invoice == nil {
			logMissing(ctx, event, "invoice")
			return nil
		}
		return h.engine.SyncInvoicePayment(ctx, *obj.Invoice)

	default:
		logger.Info().
			Str("type", event.Type).
			Str("event_id", event.EventID).
			Msg("Webhook ignored (unhandled type)")
		return nil
	}
}

func logMissing(ctx context.Context, event *Event, kind string) {
	logging.Ctx(ctx).Warn().
		Str("type", event.Type).
		Str("event_id", event.EventID).
		Str("object", kind).
		Msg("Webhook carries no usable object, ignoring")
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
