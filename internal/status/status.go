// Package status maps gateway object states onto CRM statuses.
package status

import (
	"strings"

	"github.com/rcourtman/paybridge/internal/crm"
)

type PaymentStatus string

const (
	PaymentApproved   PaymentStatus = "APPROVED"
	PaymentPending    PaymentStatus = "PENDING"
	PaymentCompleted  PaymentStatus = "COMPLETED"
	PaymentCanceled   PaymentStatus = "CANCELED"
	PaymentFailed     PaymentStatus = "FAILED"
	PaymentVoided     PaymentStatus = "VOIDED"
	PaymentAuthorized PaymentStatus = "AUTHORIZED"
)

type SubscriptionStatus string

const (
	SubscriptionPending     SubscriptionStatus = "PENDING"
	SubscriptionActive      SubscriptionStatus = "ACTIVE"
	SubscriptionCanceled    SubscriptionStatus = "CANCELED"
	SubscriptionDeactivated SubscriptionStatus = "DEACTIVATED"
	SubscriptionSuspended   SubscriptionStatus = "SUSPENDED"
	SubscriptionPaused      SubscriptionStatus = "PAUSED"
)

type RefundStatus string

const (
	RefundPending   RefundStatus = "PENDING"
	RefundApproved  RefundStatus = "APPROVED"
	RefundCompleted RefundStatus = "COMPLETED"
	RefundRejected  RefundStatus = "REJECTED"
	RefundFailed    RefundStatus = "FAILED"
)

var paymentStatuses = map[PaymentStatus]crm.ContributionStatus{
	PaymentCompleted:  crm.ContributionCompleted,
	PaymentApproved:   crm.ContributionCompleted,
	PaymentCanceled:   crm.ContributionCancelled,
	PaymentVoided:     crm.ContributionCancelled,
	PaymentFailed:     crm.ContributionFailed,
	PaymentPending:    crm.ContributionPending,
	PaymentAuthorized: crm.ContributionPending,
}

var subscriptionStatuses = map[SubscriptionStatus]crm.RecurStatus{
	SubscriptionActive:      crm.RecurActive,
	SubscriptionPending:     crm.RecurPending,
	SubscriptionCanceled:    crm.RecurCancelled,
	SubscriptionDeactivated: crm.RecurCancelled,
	SubscriptionSuspended:   crm.RecurFailed,
}

func normalize(raw string) string {
	return strings.ToUpper(strings.TrimSpace(raw))
}

// ParsePaymentStatus normalizes raw and reports whether it is a known payment status.
func ParsePaymentStatus(raw string) (PaymentStatus, bool) {
	s := PaymentStatus(normalize(raw))
	_, ok := paymentStatuses[s]
	return s, ok
}

// MapPayment returns the contribution status for a gateway payment status.
// ok is false for unrecognized input.
func MapPayment(raw string) (crm.ContributionStatus, bool) {
	s, ok := paymentStatuses[PaymentStatus(normalize(raw))]
	return s, ok
}

// ParseSubscriptionStatus normalizes raw and reports whether it is a known subscription status.
func ParseSubscriptionStatus(raw string) (SubscriptionStatus, bool) {
	s := SubscriptionStatus(normalize(raw))
	if s == SubscriptionPaused {
		return s, true
	}
	_, ok := subscriptionStatuses[s]
	return s, ok
}

// MapSubscription returns the recurring status for a gateway subscription status.
// PAUSED has no CRM equivalent and, like unrecognized input, yields ok=false.
func MapSubscription(raw string) (crm.RecurStatus, bool) {
	s, ok := subscriptionStatuses[SubscriptionStatus(normalize(raw))]
	return s, ok
}

func ParseRefundStatus(raw string) (RefundStatus, bool) {
	s := RefundStatus(normalize(raw))
	switch s {
	case RefundPending, RefundApproved, RefundCompleted, RefundRejected, RefundFailed:
		return s, true
	}
	return s, false
}

// RefundAccepted reports whether the gateway accepted a refund request.
func RefundAccepted(raw string) bool {
	switch RefundStatus(normalize(raw)) {
	case RefundPending, RefundApproved, RefundCompleted:
		return true
	}
	return false
}
