package reconcile

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/rcourtman/paybridge/internal/crm"
	"github.com/rcourtman/paybridge/internal/square"
)

// memStore is an in-memory crm repository set with caller-chosen ids.
type memStore struct {
	mu            sync.Mutex
	contacts      map[int64]*crm.Contact
	contributions map[int64]*crm.Contribution
	recurs        map[int64]*crm.RecurringContribution
	nextID        int64
	writes        int
}

func newMemStore() *memStore {
	return &memStore{
		contacts:      make(map[int64]*crm.Contact),
		contributions: make(map[int64]*crm.Contribution),
		recurs:        make(map[int64]*crm.RecurringContribution),
		nextID:        1000,
	}
}

func (m *memStore) GetContact(_ context.Context, id int64) (*crm.Contact, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if c, ok := m.contacts[id]; ok {
		cp := *c
		return &cp, nil
	}
	return nil, nil
}

func (m *memStore) FindContactByGatewayCustomer(_ context.Context, customerID string) (*crm.Contact, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, c := range m.contacts {
		if c.GatewayCustomerID == customerID {
			cp := *c
			return &cp, nil
		}
	}
	return nil, nil
}

func (m *memStore) FindContactByEmail(_ context.Context, email string) (*crm.Contact, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, c := range m.contacts {
		if strings.EqualFold(c.Email, email) {
			cp := *c
			return &cp, nil
		}
	}
	return nil, nil
}

func (m *memStore) SetGatewayCustomer(_ context.Context, contactID int64, customerID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.contacts[contactID]
	if !ok {
		return fmt.Errorf("contact %d not found", contactID)
	}
	c.GatewayCustomerID = customerID
	return nil
}

func (m *memStore) SetGatewayCard(_ context.Context, contactID int64, cardID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.contacts[contactID]
	if !ok {
		return fmt.Errorf("contact %d not found", contactID)
	}
	c.GatewayCardID = cardID
	return nil
}

func (m *memStore) GetContribution(_ context.Context, id int64) (*crm.Contribution, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if c, ok := m.contributions[id]; ok {
		cp := *c
		return &cp, nil
	}
	return nil, nil
}

func (m *memStore) findContribution(match func(*crm.Contribution) bool) *crm.Contribution {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, c := range m.contributions {
		if match(c) {
			cp := *c
			return &cp
		}
	}
	return nil
}

func (m *memStore) FindContributionByTrxnID(_ context.Context, trxnID string) (*crm.Contribution, error) {
	return m.findContribution(func(c *crm.Contribution) bool { return trxnID != "" && c.TrxnID == trxnID }), nil
}

func (m *memStore) FindContributionByInvoiceID(_ context.Context, invoiceID string) (*crm.Contribution, error) {
	return m.findContribution(func(c *crm.Contribution) bool { return invoiceID != "" && c.InvoiceID == invoiceID }), nil
}

func (m *memStore) CreateContribution(_ context.Context, c *crm.Contribution) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if c.ID == 0 {
		m.nextID++
		c.ID = m.nextID
	}
	cp := *c
	m.contributions[c.ID] = &cp
	m.writes++
	return nil
}

func (m *memStore) UpdateContribution(_ context.Context, c *crm.Contribution) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.contributions[c.ID]; !ok {
		return fmt.Errorf("contribution %d not found", c.ID)
	}
	cp := *c
	m.contributions[c.ID] = &cp
	m.writes++
	return nil
}

func (m *memStore) GetRecur(_ context.Context, id int64) (*crm.RecurringContribution, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if r, ok := m.recurs[id]; ok {
		cp := *r
		return &cp, nil
	}
	return nil, nil
}

func (m *memStore) FindRecurByProcessorID(_ context.Context, processorID string) (*crm.RecurringContribution, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.recurs {
		if processorID != "" && r.ProcessorID == processorID {
			cp := *r
			return &cp, nil
		}
	}
	return nil, nil
}

func (m *memStore) UpdateRecur(_ context.Context, r *crm.RecurringContribution) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.recurs[r.ID]; !ok {
		return fmt.Errorf("recur %d not found", r.ID)
	}
	cp := *r
	m.recurs[r.ID] = &cp
	m.writes++
	return nil
}

func (m *memStore) contributionCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.contributions)
}

func (m *memStore) writeCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.writes
}

type fakeSubscriptions struct {
	subs map[string]square.Subscription
	err  error
}

func (f *fakeSubscriptions) GetSubscription(_ context.Context, id string) (*square.Subscription, error) {
	if f.err != nil {
		return nil, f.err
	}
	sub, ok := f.subs[id]
	if !ok {
		return nil, fmt.Errorf("subscription %s not found", id)
	}
	return &sub, nil
}
