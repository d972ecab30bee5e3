package billing

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"
	_ "time/tzdata"

	"github.com/rcourtman/paybridge/internal/crm"
	"github.com/rcourtman/paybridge/internal/crmstore"
	internalerrors "github.com/rcourtman/paybridge/internal/errors"
	"github.com/rcourtman/paybridge/internal/plans"
	"github.com/rcourtman/paybridge/internal/provision"
	"github.com/rcourtman/paybridge/internal/reconcile"
	"github.com/rcourtman/paybridge/internal/square"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeSquare records every call and serves the provisioning, catalog and billing endpoints.
type fakeSquare struct {
	mu            sync.Mutex
	customers     []square.CreateCustomerRequest
	updates       []square.UpdateCustomerRequest
	cards         []square.CreateCardRequest
	catalog       []square.CatalogObject
	payments      []square.CreatePaymentRequest
	refunds       []square.RefundPaymentRequest
	subscriptions []square.CreateSubscriptionRequest
	subUpdates    []square.SubscriptionUpdate
	cancelled     []string
	refundStatus  string
	version       int64
	listErr       error
}

func (f *fakeSquare) LocationID() string { return "LOC" }

func (f *fakeSquare) SearchCustomersByReference(context.Context, string) ([]square.Customer, error) {
	return nil, nil
}

func (f *fakeSquare) SearchCustomersByEmail(context.Context, string) ([]square.Customer, error) {
	return nil, nil
}

func (f *fakeSquare) CreateCustomer(_ context.Context, req square.CreateCustomerRequest) (*square.Customer, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.customers = append(f.customers, req)
	return &square.Customer{ID: fmt.Sprintf("CUST_%d", len(f.customers)), ReferenceID: req.ReferenceID}, nil
}

func (f *fakeSquare) UpdateCustomer(_ context.Context, id string, req square.UpdateCustomerRequest) (*square.Customer, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.updates = append(f.updates, req)
	return &square.Customer{ID: id}, nil
}

func (f *fakeSquare) CreateCard(_ context.Context, req square.CreateCardRequest) (*square.Card, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cards = append(f.cards, req)
	return &square.Card{ID: fmt.Sprintf("CARD_%d", len(f.cards))}, nil
}

func (f *fakeSquare) UpsertCatalogObject(_ context.Context, _ string, obj square.CatalogObject) (*square.CatalogObject, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.catalog = append(f.catalog, obj)
	out := obj
	out.ID = fmt.Sprintf("%s_%d", obj.Type, len(f.catalog))
	return &out, nil
}

func (f *fakeSquare) ListCustomers(context.Context, int) ([]square.Customer, error) {
	return nil, f.listErr
}

func (f *fakeSquare) CreatePayment(_ context.Context, req square.CreatePaymentRequest) (*square.Payment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.payments = append(f.payments, req)
	return &square.Payment{ID: fmt.Sprintf("PAY_%d", len(f.payments)), Status: "COMPLETED", AmountMoney: req.AmountMoney}, nil
}

func (f *fakeSquare) CreateRefund(_ context.Context, req square.RefundPaymentRequest) (*square.Refund, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.refunds = append(f.refunds, req)
	st := f.refundStatus
	if st == "" {
		st = "PENDING"
	}
	return &square.Refund{ID: "REF_1", PaymentID: req.PaymentID, Status: st}, nil
}

func (f *fakeSquare) CreateSubscription(_ context.Context, req square.CreateSubscriptionRequest) (*square.Subscription, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.subscriptions = append(f.subscriptions, req)
	return &square.Subscription{ID: fmt.Sprintf("SUB_%d", len(f.subscriptions)), Status: "PENDING"}, nil
}

func (f *fakeSquare) GetSubscription(_ context.Context, id string) (*square.Subscription, error) {
	return &square.Subscription{ID: id, Version: f.version, PriceOverrideMoney: &square.Money{Amount: 1000, Currency: "CAD"}}, nil
}

func (f *fakeSquare) UpdateSubscription(_ context.Context, id string, u square.SubscriptionUpdate) (*square.Subscription, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.subUpdates = append(f.subUpdates, u)
	return &square.Subscription{ID: id, Version: u.Version + 1}, nil
}

func (f *fakeSquare) CancelSubscription(_ context.Context, id string) (*square.Subscription, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cancelled = append(f.cancelled, id)
	return &square.Subscription{ID: id, Status: "CANCELED"}, nil
}

type fixture struct {
	processor *Processor
	gateway   *fakeSquare
	store     *crmstore.Store
	contact   *crm.Contact
	recur     *crm.RecurringContribution
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	store, err := crmstore.Open(filepath.Join(t.TempDir(), "crm.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	contact := &crm.Contact{FirstName: "Ada", LastName: "Lovelace", Email: "ada@example.org"}
	require.NoError(t, store.CreateContact(ctx, contact))
	recur := &crm.RecurringContribution{ContactID: contact.ID, Amount: decimal.NewFromInt(10), Currency: "USD", FrequencyUnit: "month", FrequencyInterval: 1}
	require.NoError(t, store.CreateRecur(ctx, recur))

	gw := &fakeSquare{version: 4}
	tz, err := time.LoadLocation("America/Toronto")
	require.NoError(t, err)

	p := NewProcessor(Dependencies{
		Gateway:   gw,
		Customers: provision.NewProvisioner(gw, store),
		Plans:     plans.NewResolver(gw, store),
		Contacts:  store,
		Recurs:    store,
		Canceller: reconcile.NewEngine(gw, store, store, store),
		Timezone:  tz,
	})
	p.now = func() time.Time { return time.Date(2026, 3, 31, 23, 30, 0, 0, tz) }
	return &fixture{processor: p, gateway: gw, store: store, contact: contact, recur: recur}
}

func TestSubmitPayment(t *testing.T) {
	f := newFixture(t)
	res, err := f.processor.SubmitPayment(context.Background(), PaymentRequest{
		ContactID:      f.contact.ID,
		CardToken:      "cnon:abc",
		Amount:         decimal.RequireFromString("19.995"),
		Currency:       "usd",
		ContributionID: 77,
	})
	require.NoError(t, err)
	assert.Equal(t, "PAY_1", res.TrxnID)
	assert.Equal(t, crm.ContributionCompleted, res.Status)
	assert.Equal(t, "CUST_1", res.CustomerID)

	require.Len(t, f.gateway.payments, 1)
	sent := f.gateway.payments[0]
	assert.Equal(t, square.Money{Amount: 2000, Currency: "USD"}, sent.AmountMoney)
	assert.Equal(t, "cnon:abc", sent.SourceID)
	assert.Equal(t, "LOC", sent.LocationID)
	assert.Equal(t, "CUST_1", sent.CustomerID)
	assert.Equal(t, "77", sent.ReferenceID)
	assert.True(t, strings.HasPrefix(sent.IdempotencyKey, "onetime_"))
	assert.LessOrEqual(t, len(sent.IdempotencyKey), maxIdempotencyKey)
	assert.Empty(t, f.gateway.cards, "one-time tokens are charged directly, not stored")

	got, err := f.store.GetContact(context.Background(), f.contact.ID)
	require.NoError(t, err)
	assert.Equal(t, "CUST_1", got.GatewayCustomerID)
}

func TestSubmitPaymentValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	cases := []PaymentRequest{
		{CardToken: "tok", Amount: decimal.NewFromInt(1)},
		{ContactID: f.contact.ID, Amount: decimal.NewFromInt(1)},
		{ContactID: f.contact.ID, CardToken: "tok"},
		{ContactID: f.contact.ID, CardToken: "tok", Amount: decimal.NewFromInt(-5)},
	}
	for i, req := range cases {
		_, err := f.processor.SubmitPayment(ctx, req)
		assert.Truef(t, errors.Is(err, internalerrors.ErrValidation), "case %d: %v", i, err)
	}
	assert.Empty(t, f.gateway.payments)
}

func TestSubmitRecurring(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	res, err := f.processor.SubmitRecurring(ctx, RecurringPaymentRequest{
		ContactID:         f.contact.ID,
		RecurID:           f.recur.ID,
		CardToken:         "cnon:card",
		Billing:           &provision.BillingDetails{Country: "Canada"},
		Amount:            decimal.RequireFromString("25.00"),
		Currency:          "cad",
		FrequencyUnit:     "month",
		FrequencyInterval: 3,
		Installments:      4,
		Component:         "contribute",
	})
	require.NoError(t, err)

	assert.Equal(t, "SUB_1", res.SubscriptionID)
	assert.Equal(t, "CARD_1", res.CardID)
	assert.Equal(t, "2026-04-01", res.StartDate)
	assert.Equal(t, crm.RecurPending, res.Status)

	require.Len(t, f.gateway.subscriptions, 1)
	sub := f.gateway.subscriptions[0]
	assert.Equal(t, "CARD_1", sub.CardID)
	assert.Equal(t, "CUST_1", sub.CustomerID)
	assert.Equal(t, res.PlanVariationID, sub.PlanVariationID)
	assert.Equal(t, "America/Toronto", sub.Timezone)
	assert.JSONEq(t, fmt.Sprintf(`{"contact_id":%d,"recur_id":%d}`, f.contact.ID, f.recur.ID), sub.Source.Name)
	assert.True(t, strings.HasPrefix(sub.IdempotencyKey, fmt.Sprintf("recur_%d_", f.recur.ID)))
	assert.LessOrEqual(t, len(sub.IdempotencyKey), maxIdempotencyKey)

	require.Len(t, f.gateway.cards, 1)
	assert.Equal(t, "CA", f.gateway.cards[0].Card.BillingAddress.Country)
	require.Len(t, f.gateway.updates, 1)
	assert.Equal(t, "Ada", f.gateway.updates[0].GivenName)

	// plan + variation with a quarterly, four-period static phase
	require.Len(t, f.gateway.catalog, 2)
	assert.Equal(t, "CiviCRM Contribute", f.gateway.catalog[0].SubscriptionPlanData.Name)
	phase := f.gateway.catalog[1].SubscriptionPlanVariationData.Phases[0]
	assert.Equal(t, string(plans.Quarterly), phase.Cadence)
	assert.Equal(t, int64(4), phase.Periods)
	assert.Equal(t, int64(2500), phase.Pricing.Price.Amount)

	recur, err := f.store.GetRecur(ctx, f.recur.ID)
	require.NoError(t, err)
	assert.Equal(t, "SUB_1", recur.ProcessorID)
	assert.Equal(t, "SUB_1", recur.TrxnID)
	assert.Equal(t, crm.RecurPending, recur.Status)
	assert.True(t, recur.Amount.Equal(decimal.NewFromInt(25)))
	assert.Equal(t, "CAD", recur.Currency)
	assert.Equal(t, 3, recur.FrequencyInterval)

	contact, err := f.store.GetContact(ctx, f.contact.ID)
	require.NoError(t, err)
	assert.Equal(t, "CARD_1", contact.GatewayCardID)
}

func TestSubmitRecurringUsesMembershipPlan(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, plans.NewResolver(f.gateway, f.store).SetMembershipPlan(ctx, 3, "PLAN_GOLD"))

	_, err := f.processor.SubmitRecurring(ctx, RecurringPaymentRequest{
		ContactID:         f.contact.ID,
		RecurID:           f.recur.ID,
		CardID:            "ccof:existing",
		Amount:            decimal.NewFromInt(100),
		FrequencyUnit:     "year",
		FrequencyInterval: 1,
		MembershipTypeID:  3,
	})
	require.NoError(t, err)

	require.Len(t, f.gateway.catalog, 1, "no plan is created for a mapped membership")
	assert.Equal(t, "PLAN_GOLD", f.gateway.catalog[0].SubscriptionPlanVariationData.SubscriptionPlanID)
	assert.Empty(t, f.gateway.cards)
	assert.Equal(t, "ccof:existing", f.gateway.subscriptions[0].CardID)
}

func TestSubmitRecurringRejectsBeforeSideEffects(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.processor.SubmitRecurring(ctx, RecurringPaymentRequest{
		ContactID: f.contact.ID, RecurID: f.recur.ID, CardToken: "tok",
		Amount: decimal.NewFromInt(5), FrequencyUnit: "month", FrequencyInterval: 5,
	})
	assert.True(t, errors.Is(err, internalerrors.ErrUnsupportedCadence))

	_, err = f.processor.SubmitRecurring(ctx, RecurringPaymentRequest{
		ContactID: f.contact.ID, RecurID: f.recur.ID,
		Amount: decimal.NewFromInt(5), FrequencyUnit: "month", FrequencyInterval: 1,
	})
	assert.True(t, errors.Is(err, internalerrors.ErrValidation))

	_, err = f.processor.SubmitRecurring(ctx, RecurringPaymentRequest{
		ContactID: f.contact.ID, RecurID: 999, CardToken: "tok",
		Amount: decimal.NewFromInt(5), FrequencyUnit: "month", FrequencyInterval: 1,
	})
	assert.True(t, errors.Is(err, internalerrors.ErrNotFound))

	assert.Empty(t, f.gateway.customers)
	assert.Empty(t, f.gateway.subscriptions)
}

func TestRefund(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	res, err := f.processor.Refund(ctx, RefundRequest{TrxnID: "PAY_9", Amount: decimal.RequireFromString("5.25")})
	require.NoError(t, err)
	assert.Equal(t, "REF_1", res.RefundID)
	require.Len(t, f.gateway.refunds, 1)
	assert.Equal(t, square.Money{Amount: 525, Currency: "USD"}, f.gateway.refunds[0].AmountMoney)
	assert.True(t, strings.HasPrefix(f.gateway.refunds[0].IdempotencyKey, "refund_"))
	assert.Len(t, f.gateway.refunds[0].IdempotencyKey, len("refund_")+26)

	f.gateway.refundStatus = "REJECTED"
	_, err = f.processor.Refund(ctx, RefundRequest{TrxnID: "PAY_9", Amount: decimal.NewFromInt(1)})
	assert.True(t, errors.Is(err, internalerrors.ErrProtocol))

	_, err = f.processor.Refund(ctx, RefundRequest{Amount: decimal.NewFromInt(1)})
	assert.True(t, errors.Is(err, internalerrors.ErrValidation))
}

func TestSubscriptionMutations(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.recur.ProcessorID = "SUB_X"
	f.recur.Status = crm.RecurActive
	require.NoError(t, f.store.UpdateRecur(ctx, f.recur))

	require.NoError(t, f.processor.UpdateSubscriptionAmount(ctx, "SUB_X", decimal.RequireFromString("12.50"), ""))
	require.NoError(t, f.processor.UpdateSubscriptionBillingDate(ctx, "SUB_X", time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)))
	require.NoError(t, f.processor.UpdateSubscriptionPlan(ctx, "SUB_X", "VAR_2"))

	require.Len(t, f.gateway.subUpdates, 3)
	for _, u := range f.gateway.subUpdates {
		assert.Equal(t, int64(4), u.Version)
	}
	assert.Equal(t, &square.Money{Amount: 1250, Currency: "CAD"}, f.gateway.subUpdates[0].PriceOverrideMoney)
	assert.Equal(t, "2026-05-01", f.gateway.subUpdates[1].StartDate)
	assert.Equal(t, "VAR_2", f.gateway.subUpdates[2].PlanVariationID)

	recur, err := f.store.GetRecur(ctx, f.recur.ID)
	require.NoError(t, err)
	assert.True(t, recur.Amount.Equal(decimal.RequireFromString("12.5")))
	assert.Equal(t, "CAD", recur.Currency)

	require.NoError(t, f.processor.CancelSubscription(ctx, "SUB_X"))
	assert.Equal(t, []string{"SUB_X"}, f.gateway.cancelled)
	recur, err = f.store.GetRecur(ctx, f.recur.ID)
	require.NoError(t, err)
	assert.Equal(t, crm.RecurCancelled, recur.Status)

	assert.True(t, errors.Is(f.processor.UpdateSubscriptionPlan(ctx, "", "VAR"), internalerrors.ErrValidation))
}

func TestCheckConfig(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.processor.CheckConfig(context.Background()))

	f.gateway.listErr = internalerrors.Protocol("list_customers", 401, []internalerrors.GatewayDetail{{Code: "UNAUTHORIZED"}})
	err := f.processor.CheckConfig(context.Background())
	assert.True(t, errors.Is(err, internalerrors.ErrProtocol))
}

func TestIdempotencyKeyBounded(t *testing.T) {
	k1 := idempotencyKey("recur_123456789_", "CUST", "1")
	k2 := idempotencyKey("recur_123456789_", "CUST", "2")
	assert.Len(t, k1, maxIdempotencyKey)
	assert.NotEqual(t, k1, k2)
	assert.Equal(t, k1, idempotencyKey("recur_123456789_", "CUST", "1"))
}
