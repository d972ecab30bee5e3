package square

import (
	"context"
	"net/http"
	"net/url"
)

type subscriptionEnvelope struct {
	Subscription Subscription `json:"subscription"`
}

type CreateSubscriptionRequest struct {
	IdempotencyKey  string              `json:"idempotency_key"`
	LocationID      string              `json:"location_id"`
	PlanVariationID string              `json:"plan_variation_id"`
	CustomerID      string              `json:"customer_id"`
	CardID          string              `json:"card_id,omitempty"`
	StartDate       string              `json:"start_date,omitempty"`
	Timezone        string              `json:"timezone,omitempty"`
	Source          *SubscriptionSource `json:"source,omitempty"`
}

func (c *Client) CreateSubscription(ctx context.Context, req CreateSubscriptionRequest) (*Subscription, error) {
	var out subscriptionEnvelope
	if err := c.call(ctx, "create_subscription", http.MethodPost, "/v2/subscriptions", req, &out); err != nil {
		return nil, err
	}
	return &out.Subscription, nil
}

func (c *Client) GetSubscription(ctx context.Context, id string) (*Subscription, error) {
	var out subscriptionEnvelope
	if err := c.call(ctx, "get_subscription", http.MethodGet, "/v2/subscriptions/"+url.PathEscape(id), nil, &out); err != nil {
		return nil, err
	}
	return &out.Subscription, nil
}

// SubscriptionUpdate is the sparse set of fields changed in place. Version must be the
// subscription's current version.
type SubscriptionUpdate struct {
	Version            int64  `json:"version"`
	PriceOverrideMoney *Money `json:"price_override_money,omitempty"`
	StartDate          string `json:"start_date,omitempty"`
	PlanVariationID    string `json:"plan_variation_id,omitempty"`
	CardID             string `json:"card_id,omitempty"`
}

func (c *Client) UpdateSubscription(ctx context.Context, id string, update SubscriptionUpdate) (*Subscription, error) {
	body := struct {
		Subscription SubscriptionUpdate `json:"subscription"`
	}{Subscription: update}

	var out subscriptionEnvelope
	if err := c.call(ctx, "update_subscription", http.MethodPut, "/v2/subscriptions/"+url.PathEscape(id), body, &out); err != nil {
		return nil, err
	}
	return &out.Subscription, nil
}

func (c *Client) CancelSubscription(ctx context.Context, id string) (*Subscription, error) {
	var out subscriptionEnvelope
	if err := c.call(ctx, "cancel_subscription", http.MethodPost, "/v2/subscriptions/"+url.PathEscape(id)+"/cancel", struct{}{}, &out); err != nil {
		return nil, err
	}
	return &out.Subscription, nil
}
