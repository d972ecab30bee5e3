package webhook

import "github.com/rcourtman/paybridge/internal/square"

// Event types routed to the reconcile engine.
const (
	EventPaymentCreated       = "payment.created"
	EventPaymentUpdated       = "payment.updated"
	EventPaymentRefunded      = "payment.refunded"
	EventRefundCreated        = "refund.created"
	EventRefundUpdated        = "refund.updated"
	EventSubscriptionCreated  = "subscription.created"
	EventSubscriptionUpdated  = "subscription.updated"
	EventSubscriptionCanceled = "subscription.canceled"
	EventSubscriptionDeleted  = "subscription.deleted"
	EventInvoicePaid          = "invoice.paid"
	EventInvoicePaymentMade   = "invoice.payment_made"
)

// Event is the notification envelope posted by the gateway.
type Event struct {
	MerchantID string    `json:"merchant_id,omitempty"`
	EventID    string    `json:"event_id"`
	Type       string    `json:"type"`
	CreatedAt  string    `json:"created_at,omitempty"`
	Data       EventData `json:"data"`
}

type EventData struct {
	Type   string      `json:"type,omitempty"`
	ID     string      `json:"id,omitempty"`
	Object EventObject `json:"object"`
}

// EventObject holds whichever gateway object the event carries.
type EventObject struct {
	Payment      *square.Payment      `json:"payment,omitempty"`
	Refund       *square.Refund       `json:"refund,omitempty"`
	Subscription *square.Subscription `json:"subscription,omitempty"`
	Invoice      *square.Invoice      `json:"invoice,omitempty"`
}
