// Package reconcile applies asynchronous gateway objects (payments, refunds,
// subscriptions, invoices) to the CRM's contribution records.
package reconcile

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/rcourtman/paybridge/internal/crm"
	internalerrors "github.com/rcourtman/paybridge/internal/errors"
	"github.com/rcourtman/paybridge/internal/metrics"
	"github.com/rcourtman/paybridge/internal/square"
	"github.com/rcourtman/paybridge/internal/status"
	"github.com/rs/zerolog/log"
)

const defaultCurrency = "USD"

// SubscriptionFetcher reads the authoritative subscription from the gateway.
type SubscriptionFetcher interface {
	GetSubscription(ctx context.Context, id string) (*square.Subscription, error)
}

// Engine reconciles gateway state into the CRM. Unresolvable objects are dropped
// with a log line; nothing is queued for replay.
type Engine struct {
	gateway       SubscriptionFetcher
	contacts      crm.ContactRepository
	contributions crm.ContributionRepository
	recurs        crm.RecurringContributionRepository
}

func NewEngine(
	gateway SubscriptionFetcher,
	contacts crm.ContactRepository,
	contributions crm.ContributionRepository,
	recurs crm.RecurringContributionRepository,
) *Engine {
	return &Engine{
		gateway:       gateway,
		contacts:      contacts,
		contributions: contributions,
		recurs:        recurs,
	}
}

func record(kind, outcome string) {
	metrics.ReconcileTotal.WithLabelValues(kind, outcome).Inc()
}

func currencyOr(currency, fallback string) string {
	if c := strings.ToUpper(strings.TrimSpace(currency)); c != "" {
		return c
	}
	return fallback
}

// SyncPayment updates the contribution holding the payment's id or creates one for
// the contact the payment resolves to.
func (e *Engine) SyncPayment(ctx context.Context, p square.Payment) error {
	if p.ID == "" {
		log.Debug().Msg("Payment without id, ignoring")
		record("payment", "dropped")
		return nil
	}

	mapped, known := status.MapPayment(p.Status)
	hasMoney := p.AmountMoney.Currency != ""

	existing, err := e.contributions.FindContributionByTrxnID(ctx, p.ID)
	if err != nil {
		return fmt.Errorf("find contribution for payment %s: %w", p.ID, err)
	}
	if existing != nil {
		if hasMoney {
			existing.TotalAmount = p.AmountMoney.Decimal()
			existing.Currency = currencyOr(p.AmountMoney.Currency, existing.Currency)
		}
		switch {
		case !known:
			log.Warn().Str("payment_id", p.ID).Str("status", p.Status).Msg("Unrecognized payment status, keeping local status")
		case existing.Status == crm.ContributionRefunded:
			// A refunded contribution is not reopened by later payment updates.
		default:
			existing.Status = mapped
		}
		if err := e.contributions.UpdateContribution(ctx, existing); err != nil {
			return fmt.Errorf("update contribution %d: %w", existing.ID, err)
		}
		record("payment", "updated")
		log.Info().Str("payment_id", p.ID).Int64("contribution_id", existing.ID).Str("status", string(existing.Status)).Msg("Updated contribution from payment")
		return nil
	}

	contactID, err := e.resolvePaymentContact(ctx, p)
	if err != nil {
		return err
	}
	if contactID == 0 {
		record("payment", "dropped")
		log.Warn().Str("payment_id", p.ID).Str("reference_id", p.ReferenceID).Msg("Cannot resolve contact for payment, dropping")
		return nil
	}

	if !known {
		mapped = crm.ContributionPending
	}
	c := &crm.Contribution{
		ContactID:       contactID,
		FinancialTypeID: crm.DefaultFinancialTypeID,
		TotalAmount:     p.AmountMoney.Decimal(),
		Currency:        currencyOr(p.AmountMoney.Currency, defaultCurrency),
		Status:          mapped,
		TrxnID:          p.ID,
		Source:          crm.SourceWebhookPayment,
	}
	if err := e.contributions.CreateContribution(ctx, c); err != nil {
		return fmt.Errorf("create contribution for payment %s: %w", p.ID, err)
	}
	record("payment", "created")
	log.Info().
		Str("payment_id", p.ID).
		Int64("contribution_id", c.ID).
		Int64("contact_id", contactID).
		Str("amount", c.TotalAmount.StringFixed(2)).
		Str("status", string(c.Status)).
		Msg("Created contribution from payment")
	return nil
}

// resolvePaymentContact tries, in order: a numeric reference_id naming a contribution,
// the contact mapped to the payment's customer id, and the buyer's email address.
func (e *Engine) resolvePaymentContact(ctx context.Context, p square.Payment) (int64, error) {
	if ref := strings.TrimSpace(p.ReferenceID); ref != "" {
		if id, err := strconv.ParseInt(ref, 10, 64); err == nil && id > 0 {
			c, err := e.contributions.GetContribution(ctx, id)
			if err != nil {
				return 0, fmt.Errorf("load referenced contribution %d: %w", id, err)
			}
			if c != nil {
				return c.ContactID, nil
			}
		}
	}

	if p.CustomerID != "" {
		contact, err := e.contacts.FindContactByGatewayCustomer(ctx, p.CustomerID)
		if err != nil {
			return 0, fmt.Errorf("find contact for customer %s: %w", p.CustomerID, err)
		}
		if contact != nil {
			return contact.ID, nil
		}
	}

	if p.BuyerEmailAddress != "" {
		contact, err := e.contacts.FindContactByEmail(ctx, p.BuyerEmailAddress)
		if err != nil {
			return 0, fmt.Errorf("find contact by email: %w", err)
		}
		if contact != nil {
			return contact.ID, nil
		}
	}
	return 0, nil
}

// SyncRefund marks the refunded payment's contribution as Refunded, or reverts
// that mark when the same refund later fails.
func (e *Engine) SyncRefund(ctx context.Context, r square.Refund) error {
	if r.ID == "" || r.PaymentID == "" {
		log.Debug().Str("refund_id", r.ID).Msg("Refund without id or payment id, ignoring")
		record("refund", "dropped")
		return nil
	}
	s, known := status.ParseRefundStatus(r.Status)
	rejected := known && !status.RefundAccepted(string(s))

	c, err := e.contributions.FindContributionByTrxnID(ctx, r.PaymentID)
	if err != nil {
		return fmt.Errorf("find contribution for payment %s: %w", r.PaymentID, err)
	}
	if rejected {
		return e.revertRefund(ctx, c, r)
	}
	if c == nil {
		log.Debug().Str("refund_id", r.ID).Str("payment_id", r.PaymentID).Msg("No contribution for refunded payment")
		record("refund", "dropped")
		return nil
	}
	if c.Status == crm.ContributionRefunded && c.RefundTrxnID == r.ID {
		record("refund", "unchanged")
		return nil
	}

	c.Status = crm.ContributionRefunded
	c.RefundTrxnID = r.ID
	if err := e.contributions.UpdateContribution(ctx, c); err != nil {
		return fmt.Errorf("update contribution %d: %w", c.ID, err)
	}
	record("refund", "updated")
	log.Info().Str("refund_id", r.ID).Int64("contribution_id", c.ID).Msg("Marked contribution refunded")
	return nil
}

// revertRefund undoes a refund that was recorded while pending and later failed.
// Only a completed payment can be refunded, so the contribution returns to Completed.
func (e *Engine) revertRefund(ctx context.Context, c *crm.Contribution, r square.Refund) error {
	if c == nil || c.Status != crm.ContributionRefunded || c.RefundTrxnID != r.ID {
		log.Info().Str("refund_id", r.ID).Str("status", r.Status).Msg("Refund not accepted by gateway, ignoring")
		record("refund", "ignored")
		return nil
	}
	c.Status = crm.ContributionCompleted
	c.RefundTrxnID = ""
	if err := e.contributions.UpdateContribution(ctx, c); err != nil {
		return fmt.Errorf("update contribution %d: %w", c.ID, err)
	}
	record("refund", "reverted")
	log.Warn().
		Str("refund_id", r.ID).
		Str("status", r.Status).
		Int64("contribution_id", c.ID).
		Msg("Refund failed at gateway, contribution restored to completed")
	return nil
}

// SyncSubscriptionStatus fetches the subscription from the gateway and applies it.
func (e *Engine) SyncSubscriptionStatus(ctx context.Context, subscriptionID string) error {
	if strings.TrimSpace(subscriptionID) == "" {
		return internalerrors.Validation("sync_subscription", "subscription id is required")
	}
	sub, err := e.gateway.GetSubscription(ctx, subscriptionID)
	if err != nil {
		return fmt.Errorf("fetch subscription %s: %w", subscriptionID, err)
	}
	if sub.ID == "" {
		sub.ID = subscriptionID
	}
	return e.ApplySubscription(ctx, *sub)
}

// ApplySubscription updates the recurring record for sub. The amount changes only when
// the price override differs; the status changes only when mapped, different and allowed.
func (e *Engine) ApplySubscription(ctx context.Context, sub square.Subscription) error {
	if sub.ID == "" {
		record("subscription", "dropped")
		return nil
	}
	recur, err := e.recurs.FindRecurByProcessorID(ctx, sub.ID)
	if err != nil {
		return fmt.Errorf("find recurring contribution for %s: %w", sub.ID, err)
	}
	if recur == nil {
		log.Debug().Str("subscription_id", sub.ID).Msg("No recurring contribution for subscription")
		record("subscription", "dropped")
		return nil
	}

	changed := false
	if m := sub.PriceOverrideMoney; m != nil && m.Amount > 0 {
		if amount := m.Decimal(); !amount.Equal(recur.Amount) {
			recur.Amount = amount
			recur.Currency = currencyOr(m.Currency, recur.Currency)
			changed = true
		}
	}

	next, known := status.MapSubscription(sub.Status)
	switch {
	case !known:
		log.Debug().Str("subscription_id", sub.ID).Str("status", sub.Status).Msg("Subscription status has no local equivalent, keeping local status")
	case recur.Status == next:
	case !recur.Status.CanTransitionTo(next):
		log.Warn().
			Str("subscription_id", sub.ID).
			Str("from", string(recur.Status)).
			Str("to", string(next)).
			Msg("Ignoring disallowed recurring status transition")
	default:
		recur.Status = next
		changed = true
	}

	if !changed {
		record("subscription", "unchanged")
		return nil
	}
	if err := e.recurs.UpdateRecur(ctx, recur); err != nil {
		return fmt.Errorf("update recurring contribution %d: %w", recur.ID, err)
	}
	record("subscription", "updated")
	log.Info().
		Str("subscription_id", sub.ID).
		Int64("recur_id", recur.ID).
		Str("status", string(recur.Status)).
		Str("amount", recur.Amount.StringFixed(2)).
		Msg("Updated recurring contribution from subscription")
	return nil
}

// SyncInvoicePayment records one completed contribution per paid invoice.
func (e *Engine) SyncInvoicePayment(ctx context.Context, inv square.Invoice) error {
	if inv.ID == "" || inv.SubscriptionID == "" {
		log.Debug().Str("invoice_id", inv.ID).Msg("Invoice without id or subscription, ignoring")
		record("invoice", "dropped")
		return nil
	}

	recur, err := e.recurs.FindRecurByProcessorID(ctx, inv.SubscriptionID)
	if err != nil {
		return fmt.Errorf("find recurring contribution for %s: %w", inv.SubscriptionID, err)
	}
	if recur == nil {
		log.Warn().Str("invoice_id", inv.ID).Str("subscription_id", inv.SubscriptionID).Msg("No recurring contribution for invoice, dropping")
		record("invoice", "dropped")
		return nil
	}

	existing, err := e.contributions.FindContributionByInvoiceID(ctx, inv.ID)
	if err != nil {
		return fmt.Errorf("find contribution for invoice %s: %w", inv.ID, err)
	}
	if existing != nil {
		log.Debug().Str("invoice_id", inv.ID).Int64("contribution_id", existing.ID).Msg("Invoice already recorded")
		record("invoice", "duplicate")
		return nil
	}

	if len(inv.PaymentRequests) == 0 || inv.PaymentRequests[0].ComputedAmountMoney == nil {
		log.Warn().Str("invoice_id", inv.ID).Msg("Invoice has no computed amount, dropping")
		record("invoice", "dropped")
		return nil
	}
	money := inv.PaymentRequests[0].ComputedAmountMoney

	financialType := recur.FinancialTypeID
	if financialType == 0 {
		financialType = crm.DefaultFinancialTypeID
	}
	c := &crm.Contribution{
		ContactID:           recur.ContactID,
		FinancialTypeID:     financialType,
		TotalAmount:         money.Decimal(),
		Currency:            currencyOr(money.Currency, currencyOr(recur.Currency, defaultCurrency)),
		Status:              crm.ContributionCompleted,
		InvoiceID:           inv.ID,
		ContributionRecurID: recur.ID,
		Source:              crm.SourceRecurringPayment,
	}
	if err := e.contributions.CreateContribution(ctx, c); err != nil {
		return fmt.Errorf("create contribution for invoice %s: %w", inv.ID, err)
	}
	record("invoice", "created")
	log.Info().
		Str("invoice_id", inv.ID).
		Str("subscription_id", inv.SubscriptionID).
		Int64("contribution_id", c.ID).
		Int64("recur_id", recur.ID).
		Msg("Created contribution from invoice")
	return nil
}

// CancelSubscriptionLocally marks the subscription's recurring record Cancelled.
func (e *Engine) CancelSubscriptionLocally(ctx context.Context, subscriptionID string) error {
	if subscriptionID == "" {
		record("cancel", "dropped")
		return nil
	}
	recur, err := e.recurs.FindRecurByProcessorID(ctx, subscriptionID)
	if err != nil {
		return fmt.Errorf("find recurring contribution for %s: %w", subscriptionID, err)
	}
	if recur == nil {
		log.Debug().Str("subscription_id", subscriptionID).Msg("No recurring contribution for cancelled subscription")
		record("cancel", "dropped")
		return nil
	}
	if recur.Status == crm.RecurCancelled {
		record("cancel", "unchanged")
		return nil
	}

	recur.Status = crm.RecurCancelled
	if err := e.recurs.UpdateRecur(ctx, recur); err != nil {
		return fmt.Errorf("update recurring contribution %d: %w", recur.ID, err)
	}
	record("cancel", "updated")
	log.Info().Str("subscription_id", subscriptionID).Int64("recur_id", recur.ID).Msg("Marked recurring contribution cancelled")
	return nil
}
