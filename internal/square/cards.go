package square

import (
	"context"
	"net/http"
)

type CreateCardRequest struct {
	IdempotencyKey    string `json:"idempotency_key"`
	SourceID          string `json:"source_id"`
	VerificationToken string `json:"verification_token,omitempty"`
	Card              Card   `json:"card"`
}

func (c *Client) CreateCard(ctx context.Context, req CreateCardRequest) (*Card, error) {
	var out struct {
		Card Card `json:"card"`
	}
	if err := c.call(ctx, "create_card", http.MethodPost, "/v2/cards", req, &out); err != nil {
		return nil, err
	}
	return &out.Card, nil
}
