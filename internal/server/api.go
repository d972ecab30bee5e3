package server

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rcourtman/paybridge/internal/billing"
	internalerrors "github.com/rcourtman/paybridge/internal/errors"
	"github.com/rcourtman/paybridge/internal/logging"
	"github.com/rcourtman/paybridge/internal/plans"
	"github.com/rcourtman/paybridge/internal/provision"
	"github.com/shopspring/decimal"
)

const apiBodyLimit = 1024 * 1024

type apiHandlers struct {
	billing BillingAPI
	engine  SubscriptionSyncer
	version string
}

type amountUpdate struct {
	Amount   decimal.Decimal `json:"amount"`
	Currency string          `json:"currency,omitempty"`
}

type billingDateUpdate struct {
	Date string `json:"date"`
}

type planUpdate struct {
	PlanVariationID string `json:"plan_variation_id"`
}

func (h *apiHandlers) handleSubmitPayment(w http.ResponseWriter, r *http.Request) {
	var req billing.PaymentRequest
	if !decodeBody(w, r, &req) {
		return
	}
	res, err := h.billing.SubmitPayment(r.Context(), req)
	if err != nil {
		writeOperationError(w, r, "submit payment", err)
		return
	}
	writeJSON(w, http.StatusCreated, res)
}

func (h *apiHandlers) handleSubmitRecurring(w http.ResponseWriter, r *http.Request) {
	var req billing.RecurringPaymentRequest
	if !decodeBody(w, r, &req) {
		return
	}
	res, err := h.billing.SubmitRecurring(r.Context(), req)
	if err != nil {
		writeOperationError(w, r, "submit recurring", err)
		return
	}
	writeJSON(w, http.StatusCreated, res)
}

func (h *apiHandlers) handleRefund(w http.ResponseWriter, r *http.Request) {
	var req billing.RefundRequest
	if !decodeBody(w, r, &req) {
		return
	}
	res, err := h.billing.Refund(r.Context(), req)
	if err != nil {
		writeOperationError(w, r, "refund", err)
		return
	}
	writeJSON(w, http.StatusCreated, res)
}

func (h *apiHandlers) handleSyncSubscription(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := h.engine.SyncSubscriptionStatus(r.Context(), id); err != nil {
		writeOperationError(w, r, "sync subscription", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"subscription_id": id, "status": "synced"})
}

func (h *apiHandlers) handleCancelSubscription(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := h.billing.CancelSubscription(r.Context(), id); err != nil {
		writeOperationError(w, r, "cancel subscription", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"subscription_id": id, "status": "cancelled"})
}

func (h *apiHandlers) handleUpdateAmount(w http.ResponseWriter, r *http.Request) {
	var req amountUpdate
	if !decodeBody(w, r, &req) {
		return
	}
	id := r.PathValue("id")
	if err := h.billing.UpdateSubscriptionAmount(r.Context(), id, req.Amount, req.Currency); err != nil {
		writeOperationError(w, r, "update subscription amount", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"subscription_id": id, "amount": req.Amount.StringFixed(2)})
}

func (h *apiHandlers) handleUpdateBillingDate(w http.ResponseWriter, r *http.Request) {
	var req billingDateUpdate
	if !decodeBody(w, r, &req) {
		return
	}
	date, err := time.Parse(time.DateOnly, strings.TrimSpace(req.Date))
	if err != nil {
		writeError(w, http.StatusBadRequest, "date must be YYYY-MM-DD")
		return
	}
	id := r.PathValue("id")
	if err := h.billing.UpdateSubscriptionBillingDate(r.Context(), id, date); err != nil {
		writeOperationError(w, r, "update subscription billing date", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"subscription_id": id, "date": req.Date})
}

func (h *apiHandlers) handleUpdatePlan(w http.ResponseWriter, r *http.Request) {
	var req planUpdate
	if !decodeBody(w, r, &req) {
		return
	}
	id := r.PathValue("id")
	if err := h.billing.UpdateSubscriptionPlan(r.Context(), id, req.PlanVariationID); err != nil {
		writeOperationError(w, r, "update subscription plan", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"subscription_id": id, "plan_variation_id": req.PlanVariationID})
}

func (h *apiHandlers) handleCadences(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"cadences": plans.Cadences()})
}

func (h *apiHandlers) handleVersion(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"version": h.version})
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, apiBodyLimit)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			writeError(w, http.StatusBadRequest, "request body is required")
			return false
		}
		writeError(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
		return false
	}
	return true
}

// statusFor maps an operation error onto the HTTP status returned to the caller.
func statusFor(err error) int {
	var declined *provision.CardDeclinedError
	if errors.As(err, &declined) {
		return http.StatusPaymentRequired
	}
	switch internalerrors.TypeOf(err) {
	case internalerrors.ErrorTypeValidation, internalerrors.ErrorTypeUnsupportedCadence:
		return http.StatusBadRequest
	case internalerrors.ErrorTypeNotFound:
		return http.StatusNotFound
	case internalerrors.ErrorTypeConflict:
		return http.StatusConflict
	case internalerrors.ErrorTypeConfiguration:
		return http.StatusServiceUnavailable
	case internalerrors.ErrorTypeProtocol, internalerrors.ErrorTypeTransport, internalerrors.ErrorTypeDecode:
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

func writeOperationError(w http.ResponseWriter, r *http.Request, op string, err error) {
	status := statusFor(err)
	event := logging.Ctx(r.Context()).Warn()
	if status >= http.StatusInternalServerError {
		event = logging.Ctx(r.Context()).Error()
	}
	event.Err(err).Str("op", op).Int("status", status).Msg("Admin API request failed")

	body := map[string]any{"error": err.Error()}
	if t := internalerrors.TypeOf(err); t != "" {
		body["type"] = t
	}
	if details := internalerrors.GatewayDetails(err); len(details) > 0 {
		body["details"] = details
	}
	var declined *provision.CardDeclinedError
	if errors.As(err, &declined) {
		body["error"] = declined.Message
	}
	writeJSON(w, status, body)
}
