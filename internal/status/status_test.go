package status

import (
	"testing"

	"github.com/rcourtman/paybridge/internal/crm"
	"github.com/stretchr/testify/assert"
)

func TestMapPayment(t *testing.T) {
	cases := map[string]crm.ContributionStatus{
		"COMPLETED":    crm.ContributionCompleted,
		"approved":     crm.ContributionCompleted,
		" Canceled ":   crm.ContributionCancelled,
		"VOIDED":       crm.ContributionCancelled,
		"FAILED":       crm.ContributionFailed,
		"PENDING":      crm.ContributionPending,
		"authorized\n": crm.ContributionPending,
	}
	for raw, want := range cases {
		got, ok := MapPayment(raw)
		assert.True(t, ok, raw)
		assert.Equal(t, want, got, raw)
	}

	for _, raw := range []string{"", "REFUNDED", "SETTLED"} {
		_, ok := MapPayment(raw)
		assert.False(t, ok, raw)
	}
}

func TestMapPaymentIsPure(t *testing.T) {
	first, _ := MapPayment("COMPLETED")
	for i := 0; i < 3; i++ {
		got, ok := MapPayment("COMPLETED")
		assert.True(t, ok)
		assert.Equal(t, first, got)
	}
}

func TestMapSubscription(t *testing.T) {
	cases := map[string]crm.RecurStatus{
		"ACTIVE":      crm.RecurActive,
		"pending":     crm.RecurPending,
		"CANCELED":    crm.RecurCancelled,
		"Deactivated": crm.RecurCancelled,
		"SUSPENDED":   crm.RecurFailed,
	}
	for raw, want := range cases {
		got, ok := MapSubscription(raw)
		assert.True(t, ok, raw)
		assert.Equal(t, want, got, raw)
	}

	_, ok := MapSubscription("PAUSED")
	assert.False(t, ok, "paused leaves local state untouched")
	_, ok = MapSubscription("SOMETHING_NEW")
	assert.False(t, ok)

	parsed, known := ParseSubscriptionStatus(" paused ")
	assert.True(t, known)
	assert.Equal(t, SubscriptionPaused, parsed)
}

func TestRefundStatus(t *testing.T) {
	for _, raw := range []string{"PENDING", "approved", "COMPLETED"} {
		assert.True(t, RefundAccepted(raw), raw)
	}
	for _, raw := range []string{"REJECTED", "FAILED", ""} {
		assert.False(t, RefundAccepted(raw), raw)
	}

	s, ok := ParseRefundStatus("rejected")
	assert.True(t, ok)
	assert.Equal(t, RefundRejected, s)
	_, ok = ParseRefundStatus("nope")
	assert.False(t, ok)
}

func TestParsePaymentStatus(t *testing.T) {
	s, ok := ParsePaymentStatus(" voided")
	assert.True(t, ok)
	assert.Equal(t, PaymentVoided, s)
	_, ok = ParsePaymentStatus("bogus")
	assert.False(t, ok)
}
