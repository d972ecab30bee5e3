// Package billing builds and submits outbound gateway instructions (one-off payments,
// subscriptions, refunds) for CRM contributions.
package billing

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/rcourtman/paybridge/internal/crm"
	internalerrors "github.com/rcourtman/paybridge/internal/errors"
	"github.com/rcourtman/paybridge/internal/plans"
	"github.com/rcourtman/paybridge/internal/provision"
	"github.com/rcourtman/paybridge/internal/square"
	"github.com/rcourtman/paybridge/internal/status"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
)

const (
	defaultCurrency = "USD"
	// maxIdempotencyKey is the gateway's limit on idempotency_key length.
	maxIdempotencyKey = 45
)

// Gateway is the slice of the gateway client used for outbound submissions.
type Gateway interface {
	LocationID() string
	ListCustomers(ctx context.Context, limit int) ([]square.Customer, error)
	CreatePayment(ctx context.Context, req square.CreatePaymentRequest) (*square.Payment, error)
	CreateRefund(ctx context.Context, req square.RefundPaymentRequest) (*square.Refund, error)
	CreateSubscription(ctx context.Context, req square.CreateSubscriptionRequest) (*square.Subscription, error)
	GetSubscription(ctx context.Context, id string) (*square.Subscription, error)
	UpdateSubscription(ctx context.Context, id string, update square.SubscriptionUpdate) (*square.Subscription, error)
	CancelSubscription(ctx context.Context, id string) (*square.Subscription, error)
}

type CustomerProvisioner interface {
	EnsureCustomer(ctx context.Context, req provision.EnsureRequest) (provision.Result, error)
	UpdateCustomerDetails(ctx context.Context, customerID string, contact *crm.Contact) error
}

type PlanResolver interface {
	GetOrCreatePlanVariation(ctx context.Context, req plans.VariationRequest) (string, error)
	PlanForMembership(ctx context.Context, membershipTypeID int64) (string, bool, error)
}

// LocalCanceller marks a subscription's recurring record cancelled in the CRM.
type LocalCanceller interface {
	CancelSubscriptionLocally(ctx context.Context, subscriptionID string) error
}

// Dependencies wires a Processor. Timezone defaults to time.Local.
type Dependencies struct {
	Gateway   Gateway
	Customers CustomerProvisioner
	Plans     PlanResolver
	Contacts  crm.ContactRepository
	Recurs    crm.RecurringContributionRepository
	Canceller LocalCanceller
	Timezone  *time.Location
}

type Processor struct {
	gateway   Gateway
	customers CustomerProvisioner
	plans     PlanResolver
	contacts  crm.ContactRepository
	recurs    crm.RecurringContributionRepository
	canceller LocalCanceller
	timezone  *time.Location
	now       func() time.Time
}

func NewProcessor(deps Dependencies) *Processor {
	tz := deps.Timezone
	if tz == nil {
		tz = time.Local
	}
	return &Processor{
		gateway:   deps.Gateway,
		customers: deps.Customers,
		plans:     deps.Plans,
		contacts:  deps.Contacts,
		recurs:    deps.Recurs,
		canceller: deps.Canceller,
		timezone:  tz,
		now:       time.Now,
	}
}

// PaymentRequest is a one-off card charge for a contact.
type PaymentRequest struct {
	ContactID         int64                     `json:"contact_id"`
	CardToken         string                    `json:"card_token"`
	VerificationToken string                    `json:"verification_token,omitempty"`
	Amount            decimal.Decimal           `json:"amount"`
	Currency          string                    `json:"currency,omitempty"`
	InvoiceID         string                    `json:"invoice_id,omitempty"`
	ContributionID    int64                     `json:"contribution_id,omitempty"`
	Note              string                    `json:"note,omitempty"`
	Billing           *provision.BillingDetails `json:"billing,omitempty"`
}

type PaymentResult struct {
	TrxnID        string                 `json:"trxn_id"`
	Status        crm.ContributionStatus `json:"status"`
	GatewayStatus string                 `json:"gateway_status"`
	CustomerID    string                 `json:"customer_id"`
}

func (req PaymentRequest) referenceID() string {
	if ref := strings.TrimSpace(req.InvoiceID); ref != "" {
		return ref
	}
	if req.ContributionID > 0 {
		return strconv.FormatInt(req.ContributionID, 10)
	}
	return ""
}

// SubmitPayment charges a single-use card token against the contact's gateway customer.
func (p *Processor) SubmitPayment(ctx context.Context, req PaymentRequest) (PaymentResult, error) {
	const op = "submit_payment"
	switch {
	case req.ContactID <= 0:
		return PaymentResult{}, internalerrors.Validation(op, "contact id is required")
	case strings.TrimSpace(req.CardToken) == "":
		return PaymentResult{}, internalerrors.Validation(op, "card token is required")
	case !req.Amount.IsPositive():
		return PaymentResult{}, internalerrors.Validation(op, "amount must be positive")
	}
	req.Currency = currencyOr(req.Currency, defaultCurrency)

	customer, err := p.customers.EnsureCustomer(ctx, provision.EnsureRequest{ContactID: req.ContactID})
	if err != nil {
		return PaymentResult{}, fmt.Errorf("ensure customer for contact %d: %w", req.ContactID, err)
	}

	params, err := json.Marshal(req)
	if err != nil {
		return PaymentResult{}, fmt.Errorf("encode payment params: %w", err)
	}
	payment, err := p.gateway.CreatePayment(ctx, square.CreatePaymentRequest{
		IdempotencyKey:    idempotencyKey("onetime_", string(params), p.timestamp()),
		SourceID:          req.CardToken,
		AmountMoney:       square.NewMoney(req.Amount, req.Currency),
		LocationID:        p.gateway.LocationID(),
		CustomerID:        customer.CustomerID,
		ReferenceID:       req.referenceID(),
		VerificationToken: req.VerificationToken,
		Note:              req.Note,
	})
	if err != nil {
		return PaymentResult{}, fmt.Errorf("create payment: %w", err)
	}
	if payment.ID == "" {
		return PaymentResult{}, internalerrors.Decode(op, fmt.Errorf("gateway returned no payment id"))
	}

	mapped, known := status.MapPayment(payment.Status)
	if !known {
		mapped = crm.ContributionPending
	}
	log.Info().
		Int64("contact_id", req.ContactID).
		Str("payment_id", payment.ID).
		Str("amount", req.Amount.StringFixed(2)).
		Str("currency", req.Currency).
		Str("status", payment.Status).
		Msg("Submitted one-time payment")
	return PaymentResult{
		TrxnID:        payment.ID,
		Status:        mapped,
		GatewayStatus: payment.Status,
		CustomerID:    customer.CustomerID,
	}, nil
}

// RecurringPaymentRequest starts a subscription for a CRM recurring contribution.
// CardID reuses a card already on file; otherwise CardToken is attached first.
type RecurringPaymentRequest struct {
	ContactID         int64                     `json:"contact_id"`
	RecurID           int64                     `json:"recur_id"`
	CardToken         string                    `json:"card_token,omitempty"`
	CardID            string                    `json:"card_id,omitempty"`
	VerificationToken string                    `json:"verification_token,omitempty"`
	CardholderName    string                    `json:"cardholder_name,omitempty"`
	Billing           *provision.BillingDetails `json:"billing,omitempty"`
	Amount            decimal.Decimal           `json:"amount"`
	Currency          string                    `json:"currency,omitempty"`
	FrequencyUnit     string                    `json:"frequency_unit"`
	FrequencyInterval int                       `json:"frequency_interval"`
	Installments      int                       `json:"installments,omitempty"`
	Component         string                    `json:"component,omitempty"`
	MembershipTypeID  int64                     `json:"membership_type_id,omitempty"`
}

type RecurringResult struct {
	SubscriptionID  string          `json:"subscription_id"`
	PlanVariationID string          `json:"plan_variation_id"`
	CustomerID      string          `json:"customer_id"`
	CardID          string          `json:"card_id"`
	StartDate       string          `json:"start_date"`
	Status          crm.RecurStatus `json:"status"`
}

type subscriptionOrigin struct {
	ContactID int64 `json:"contact_id"`
	RecurID   int64 `json:"recur_id"`
}

// SubmitRecurring provisions the customer and card, resolves the plan variation for the
// cadence and amount, and creates a subscription starting tomorrow. The recurring
// record is updated with the subscription id and left Pending until the gateway
// reports it active.
func (p *Processor) SubmitRecurring(ctx context.Context, req RecurringPaymentRequest) (RecurringResult, error) {
	const op = "submit_recurring"
	switch {
	case req.RecurID <= 0:
		return RecurringResult{}, internalerrors.Validation(op, "recurring contribution id is required")
	case req.ContactID <= 0:
		return RecurringResult{}, internalerrors.Validation(op, "contact id is required")
	case strings.TrimSpace(req.CardToken) == "" && strings.TrimSpace(req.CardID) == "":
		return RecurringResult{}, internalerrors.Validation(op, "card token or card id is required")
	case !req.Amount.IsPositive():
		return RecurringResult{}, internalerrors.Validation(op, "amount must be positive")
	}
	cadence, err := plans.ResolveCadence(req.FrequencyUnit, req.FrequencyInterval)
	if err != nil {
		return RecurringResult{}, err
	}
	req.Currency = currencyOr(req.Currency, defaultCurrency)

	recur, err := p.recurs.GetRecur(ctx, req.RecurID)
	if err != nil {
		return RecurringResult{}, fmt.Errorf("load recurring contribution %d: %w", req.RecurID, err)
	}
	if recur == nil {
		return RecurringResult{}, internalerrors.NotFound(op, "recurring contribution %d does not exist", req.RecurID)
	}

	customer, err := p.customers.EnsureCustomer(ctx, provision.EnsureRequest{
		ContactID:         req.ContactID,
		CardToken:         strings.TrimSpace(req.CardToken),
		VerificationToken: req.VerificationToken,
		CardholderName:    req.CardholderName,
		Billing:           req.Billing,
	})
	if err != nil {
		return RecurringResult{}, fmt.Errorf("ensure customer for contact %d: %w", req.ContactID, err)
	}
	cardID := customer.CardID
	if cardID == "" {
		cardID = strings.TrimSpace(req.CardID)
	}

	contact, err := p.contacts.GetContact(ctx, req.ContactID)
	if err != nil {
		return RecurringResult{}, fmt.Errorf("load contact %d: %w", req.ContactID, err)
	}
	if contact != nil {
		if err := p.customers.UpdateCustomerDetails(ctx, customer.CustomerID, contact); err != nil {
			return RecurringResult{}, err
		}
	}

	variationID, err := p.resolveVariation(ctx, req, cadence)
	if err != nil {
		return RecurringResult{}, err
	}

	origin, err := json.Marshal(subscriptionOrigin{ContactID: req.ContactID, RecurID: req.RecurID})
	if err != nil {
		return RecurringResult{}, fmt.Errorf("encode subscription source: %w", err)
	}
	startDate := p.now().In(p.timezone).AddDate(0, 0, 1).Format(time.DateOnly)
	sub, err := p.gateway.CreateSubscription(ctx, square.CreateSubscriptionRequest{
		IdempotencyKey:  idempotencyKey("recur_"+strconv.FormatInt(req.RecurID, 10)+"_", customer.CustomerID+cardID, p.timestamp()),
		LocationID:      p.gateway.LocationID(),
		PlanVariationID: variationID,
		CustomerID:      customer.CustomerID,
		CardID:          cardID,
		StartDate:       startDate,
		Timezone:        p.gatewayTimezone(),
		Source:          &square.SubscriptionSource{Name: string(origin)},
	})
	if err != nil {
		return RecurringResult{}, fmt.Errorf("create subscription: %w", err)
	}
	if sub.ID == "" {
		return RecurringResult{}, internalerrors.Decode(op, fmt.Errorf("gateway returned no subscription id"))
	}

	recur.ProcessorID = sub.ID
	recur.TrxnID = sub.ID
	recur.Status = crm.RecurPending
	recur.Amount = req.Amount
	recur.Currency = req.Currency
	recur.FrequencyUnit = strings.ToLower(strings.TrimSpace(req.FrequencyUnit))
	recur.FrequencyInterval = req.FrequencyInterval
	recur.Installments = req.Installments
	if err := p.recurs.UpdateRecur(ctx, recur); err != nil {
		return RecurringResult{}, fmt.Errorf("update recurring contribution %d: %w", recur.ID, err)
	}

	log.Info().
		Int64("contact_id", req.ContactID).
		Int64("recur_id", req.RecurID).
		Str("subscription_id", sub.ID).
		Str("plan_variation_id", variationID).
		Str("cadence", string(cadence)).
		Str("start_date", startDate).
		Msg("Created subscription")
	return RecurringResult{
		SubscriptionID:  sub.ID,
		PlanVariationID: variationID,
		CustomerID:      customer.CustomerID,
		CardID:          cardID,
		StartDate:       startDate,
		Status:          crm.RecurPending,
	}, nil
}

func (p *Processor) resolveVariation(ctx context.Context, req RecurringPaymentRequest, cadence plans.Cadence) (string, error) {
	vr := plans.VariationRequest{
		Amount:       req.Amount,
		Currency:     req.Currency,
		Cadence:      cadence,
		Installments: req.Installments,
	}
	planID, ok, err := p.plans.PlanForMembership(ctx, req.MembershipTypeID)
	if err != nil {
		return "", err
	}
	if ok {
		vr.PlanID = planID
	} else {
		vr.PlanName = plans.PlanName(req.Component)
	}
	return p.plans.GetOrCreatePlanVariation(ctx, vr)
}

// RefundRequest refunds all or part of a captured payment.
type RefundRequest struct {
	TrxnID   string          `json:"trxn_id"`
	Amount   decimal.Decimal `json:"amount"`
	Currency string          `json:"currency,omitempty"`
	Reason   string          `json:"reason,omitempty"`
}

type RefundResult struct {
	RefundID string `json:"refund_id"`
	Status   string `json:"status"`
}

// Refund asks the gateway to refund a payment. Any status other than PENDING,
// APPROVED or COMPLETED is reported as an error.
func (p *Processor) Refund(ctx context.Context, req RefundRequest) (RefundResult, error) {
	const op = "refund"
	if strings.TrimSpace(req.TrxnID) == "" {
		return RefundResult{}, internalerrors.Validation(op, "transaction id is required")
	}
	if !req.Amount.IsPositive() {
		return RefundResult{}, internalerrors.Validation(op, "amount must be positive")
	}

	refund, err := p.gateway.CreateRefund(ctx, square.RefundPaymentRequest{
		IdempotencyKey: "refund_" + ulid.Make().String(),
		PaymentID:      strings.TrimSpace(req.TrxnID),
		AmountMoney:    square.NewMoney(req.Amount, currencyOr(req.Currency, defaultCurrency)),
		Reason:         req.Reason,
	})
	if err != nil {
		return RefundResult{}, fmt.Errorf("create refund: %w", err)
	}
	if !status.RefundAccepted(refund.Status) {
		return RefundResult{}, internalerrors.New(internalerrors.ErrorTypeProtocol, op,
			fmt.Errorf("refund %s for payment %s returned status %q", refund.ID, req.TrxnID, refund.Status))
	}

	log.Info().Str("payment_id", req.TrxnID).Str("refund_id", refund.ID).Str("status", refund.Status).Msg("Submitted refund")
	return RefundResult{RefundID: refund.ID, Status: refund.Status}, nil
}

// CheckConfig verifies the active credentials by listing a single customer.
func (p *Processor) CheckConfig(ctx context.Context) error {
	if p.gateway.LocationID() == "" {
		return internalerrors.Configuration("check_config", "no location id configured")
	}
	if _, err := p.gateway.ListCustomers(ctx, 1); err != nil {
		return fmt.Errorf("list customers: %w", err)
	}
	return nil
}

// gatewayTimezone is the IANA name sent with new subscriptions; the process-local
// zone has no portable name and is omitted.
func (p *Processor) gatewayTimezone() string {
	if p.timezone == time.Local {
		return ""
	}
	return p.timezone.String()
}

func (p *Processor) timestamp() string {
	return strconv.FormatInt(p.now().UnixNano(), 10)
}

// idempotencyKey is prefix followed by a hash of parts, cut to the gateway's limit.
func idempotencyKey(prefix string, parts ...string) string {
	h := sha256.New()
	for _, part := range parts {
		h.Write([]byte(part))
	}
	key := prefix + hex.EncodeToString(h.Sum(nil))
	if len(key) > maxIdempotencyKey {
		key = key[:maxIdempotencyKey]
	}
	return key
}

func currencyOr(currency, fallback string) string {
	if c := strings.ToUpper(strings.TrimSpace(currency)); c != "" {
		return c
	}
	return fallback
}
