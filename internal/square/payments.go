package square

import (
	"context"
	"net/http"
)

type CreatePaymentRequest struct {
	IdempotencyKey    string `json:"idempotency_key"`
	SourceID          string `json:"source_id"`
	AmountMoney       Money  `json:"amount_money"`
	LocationID        string `json:"location_id,omitempty"`
	CustomerID        string `json:"customer_id,omitempty"`
	ReferenceID       string `json:"reference_id,omitempty"`
	VerificationToken string `json:"verification_token,omitempty"`
	Note              string `json:"note,omitempty"`
}

func (c *Client) CreatePayment(ctx context.Context, req CreatePaymentRequest) (*Payment, error) {
	var out struct {
		Payment Payment `json:"payment"`
	}
	if err := c.call(ctx, "create_payment", http.MethodPost, "/v2/payments", req, &out); err != nil {
		return nil, err
	}
	return &out.Payment, nil
}

type RefundPaymentRequest struct {
	IdempotencyKey string `json:"idempotency_key"`
	PaymentID      string `json:"payment_id"`
	AmountMoney    Money  `json:"amount_money"`
	Reason         string `json:"reason,omitempty"`
}

func (c *Client) CreateRefund(ctx context.Context, req RefundPaymentRequest) (*Refund, error) {
	var out struct {
		Refund Refund `json:"refund"`
	}
	if err := c.call(ctx, "create_refund", http.MethodPost, "/v2/refunds", req, &out); err != nil {
		return nil, err
	}
	return &out.Refund, nil
}
