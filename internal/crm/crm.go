// Package crm defines the CRM records the bridge reads and writes, and the
// repository contracts a CRM storage backend must satisfy.
package crm

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// DefaultFinancialTypeID is the "Donation" financial type.
const DefaultFinancialTypeID int64 = 1

// Contribution sources written by the bridge.
const (
	SourceWebhookPayment   = "Square Payment (Webhook)"
	SourceRecurringPayment = "Square Recurring Payment"
)

type ContributionStatus string

const (
	ContributionPending   ContributionStatus = "Pending"
	ContributionCompleted ContributionStatus = "Completed"
	ContributionCancelled ContributionStatus = "Cancelled"
	ContributionFailed    ContributionStatus = "Failed"
	ContributionRefunded  ContributionStatus = "Refunded"
)

type RecurStatus string

const (
	RecurPending   RecurStatus = "Pending"
	RecurActive    RecurStatus = "Active"
	RecurCancelled RecurStatus = "Cancelled"
	RecurFailed    RecurStatus = "Failed"
)

// recurTransitions lists the allowed moves between recurring statuses.
// Cancelled has no entry and is terminal.
var recurTransitions = map[RecurStatus][]RecurStatus{
	RecurPending: {RecurActive, RecurCancelled},
	RecurActive:  {RecurCancelled, RecurFailed},
	// A suspended subscription that resumes at the gateway becomes active again.
	RecurFailed: {RecurActive, RecurCancelled},
}

// CanTransitionTo reports whether a recurring record may move from s to next.
// Moving to the current status is not a transition.
func (s RecurStatus) CanTransitionTo(next RecurStatus) bool {
	for _, allowed := range recurTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

type Contact struct {
	ID                int64
	FirstName         string
	LastName          string
	Email             string
	GatewayCustomerID string
	GatewayCardID     string
}

type Contribution struct {
	ID                  int64
	ContactID           int64
	FinancialTypeID     int64
	TotalAmount         decimal.Decimal
	Currency            string
	Status              ContributionStatus
	TrxnID              string
	InvoiceID           string
	RefundTrxnID        string
	ContributionRecurID int64 // 0 when not part of a recurring series
	Source              string
	ReceiveDate         time.Time
}

type RecurringContribution struct {
	ID                int64
	ContactID         int64
	FinancialTypeID   int64
	Amount            decimal.Decimal
	Currency          string
	Status            RecurStatus
	ProcessorID       string // gateway subscription id
	TrxnID            string
	FrequencyUnit     string
	FrequencyInterval int
	Installments      int
}

// Lookups return (nil, nil) when no record matches.

type ContactRepository interface {
	GetContact(ctx context.Context, id int64) (*Contact, error)
	FindContactByGatewayCustomer(ctx context.Context, customerID string) (*Contact, error)
	FindContactByEmail(ctx context.Context, email string) (*Contact, error)
	SetGatewayCustomer(ctx context.Context, contactID int64, customerID string) error
	SetGatewayCard(ctx context.Context, contactID int64, cardID string) error
}

type ContributionRepository interface {
	GetContribution(ctx context.Context, id int64) (*Contribution, error)
	FindContributionByTrxnID(ctx context.Context, trxnID string) (*Contribution, error)
	FindContributionByInvoiceID(ctx context.Context, invoiceID string) (*Contribution, error)
	CreateContribution(ctx context.Context, c *Contribution) error
	UpdateContribution(ctx context.Context, c *Contribution) error
}

type RecurringContributionRepository interface {
	GetRecur(ctx context.Context, id int64) (*RecurringContribution, error)
	FindRecurByProcessorID(ctx context.Context, processorID string) (*RecurringContribution, error)
	UpdateRecur(ctx context.Context, r *RecurringContribution) error
}

// SettingsStore is a string key/value store for gateway caches.
type SettingsStore interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
	// PutIfAbsent stores value unless key already exists and returns the value now stored.
	PutIfAbsent(ctx context.Context, key, value string) (stored string, inserted bool, err error)
}

// Store bundles every repository the engine needs.
type Store interface {
	ContactRepository
	ContributionRepository
	RecurringContributionRepository
	SettingsStore
}
