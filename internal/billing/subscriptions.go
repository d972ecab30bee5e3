package billing

import (
	"context"
	"fmt"
	"strings"
	"time"

	internalerrors "github.com/rcourtman/paybridge/internal/errors"
	"github.com/rcourtman/paybridge/internal/square"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
)

// CancelSubscription cancels at the gateway and marks the recurring record cancelled.
func (p *Processor) CancelSubscription(ctx context.Context, subscriptionID string) error {
	subscriptionID = strings.TrimSpace(subscriptionID)
	if subscriptionID == "" {
		return internalerrors.Validation("cancel_subscription", "subscription id is required")
	}
	if _, err := p.gateway.CancelSubscription(ctx, subscriptionID); err != nil {
		return fmt.Errorf("cancel subscription %s: %w", subscriptionID, err)
	}
	log.Info().Str("subscription_id", subscriptionID).Msg("Cancelled subscription")
	if p.canceller == nil {
		return nil
	}
	return p.canceller.CancelSubscriptionLocally(ctx, subscriptionID)
}

// UpdateSubscriptionAmount overrides the subscription price and mirrors the new amount
// onto the recurring record.
func (p *Processor) UpdateSubscriptionAmount(ctx context.Context, subscriptionID string, amount decimal.Decimal, currency string) error {
	if !amount.IsPositive() {
		return internalerrors.Validation("update_subscription_amount", "amount must be positive")
	}
	currency = currencyOr(currency, "")

	var applied square.Money
	err := p.updateSubscription(ctx, "update_subscription_amount", subscriptionID, func(sub *square.Subscription, u *square.SubscriptionUpdate) {
		c := currency
		if c == "" && sub.PriceOverrideMoney != nil {
			c = sub.PriceOverrideMoney.Currency
		}
		applied = square.NewMoney(amount, currencyOr(c, defaultCurrency))
		u.PriceOverrideMoney = &applied
	})
	if err != nil {
		return err
	}

	recur, err := p.recurs.FindRecurByProcessorID(ctx, subscriptionID)
	if err != nil {
		return fmt.Errorf("find recurring contribution for %s: %w", subscriptionID, err)
	}
	if recur == nil {
		return nil
	}
	recur.Amount = amount
	recur.Currency = applied.Currency
	if err := p.recurs.UpdateRecur(ctx, recur); err != nil {
		return fmt.Errorf("update recurring contribution %d: %w", recur.ID, err)
	}
	return nil
}

// UpdateSubscriptionBillingDate moves the subscription's next billing date.
func (p *Processor) UpdateSubscriptionBillingDate(ctx context.Context, subscriptionID string, date time.Time) error {
	if date.IsZero() {
		return internalerrors.Validation("update_subscription_billing_date", "billing date is required")
	}
	return p.updateSubscription(ctx, "update_subscription_billing_date", subscriptionID, func(_ *square.Subscription, u *square.SubscriptionUpdate) {
		u.StartDate = date.In(p.timezone).Format(time.DateOnly)
	})
}

// UpdateSubscriptionPlan switches the subscription to another plan variation.
func (p *Processor) UpdateSubscriptionPlan(ctx context.Context, subscriptionID, planVariationID string) error {
	planVariationID = strings.TrimSpace(planVariationID)
	if planVariationID == "" {
		return internalerrors.Validation("update_subscription_plan", "plan variation id is required")
	}
	return p.updateSubscription(ctx, "update_subscription_plan", subscriptionID, func(_ *square.Subscription, u *square.SubscriptionUpdate) {
		u.PlanVariationID = planVariationID
	})
}

// updateSubscription fetches the current version, lets mutate fill the sparse update
// and sends it.
func (p *Processor) updateSubscription(ctx context.Context, op, subscriptionID string, mutate func(*square.Subscription, *square.SubscriptionUpdate)) error {
	subscriptionID = strings.TrimSpace(subscriptionID)
	if subscriptionID == "" {
		return internalerrors.Validation(op, "subscription id is required")
	}
	current, err := p.gateway.GetSubscription(ctx, subscriptionID)
	if err != nil {
		return fmt.Errorf("fetch subscription %s: %w", subscriptionID, err)
	}

	update := square.SubscriptionUpdate{Version: current.Version}
	mutate(current, &update)
	if _, err := p.gateway.UpdateSubscription(ctx, subscriptionID, update); err != nil {
		return fmt.Errorf("update subscription %s: %w", subscriptionID, err)
	}
	log.Info().Str("subscription_id", subscriptionID).Str("op", op).Int64("version", current.Version).Msg("Updated subscription")
	return nil
}
