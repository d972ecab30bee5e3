package errors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestErrorIsByType(t *testing.T) {
	err := NotFound("get_recur", "recur %d", 9)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.NotErrorIs(t, err, ErrConflict)

	wrapped := fmt.Errorf("sync: %w", Conflict("ensure_customer", "reference belongs to contact %d", 3))
	assert.ErrorIs(t, wrapped, ErrConflict)
	assert.Equal(t, ErrorTypeConflict, TypeOf(wrapped))
	assert.Equal(t, ErrorType(""), TypeOf(errors.New("plain")))
}

func TestErrorMessage(t *testing.T) {
	err := Protocol("create_payment", 402, []GatewayDetail{
		{Category: "PAYMENT_METHOD_ERROR", Code: "CARD_DECLINED", Detail: "Card declined."},
		{Detail: "no code"},
	})
	assert.Equal(t, "create_payment failed (HTTP 402) [CARD_DECLINED: Card declined. | UNKNOWN: no code]", err.Error())
	assert.Len(t, GatewayDetails(err), 2)

	assert.Equal(t, "transport: boom", New(ErrorTypeTransport, "", errors.New("boom")).Error())
}

func TestUnwrapReachesCause(t *testing.T) {
	cause := errors.New("connection reset")
	err := Transport("list_customers", cause)
	assert.ErrorIs(t, err, cause)
	assert.ErrorIs(t, err, ErrTransport)
}
