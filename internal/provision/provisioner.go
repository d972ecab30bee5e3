// Package provision resolves, and when necessary creates, the gateway customer and
// card-on-file identities for a CRM contact.
package provision

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/rcourtman/paybridge/internal/crm"
	internalerrors "github.com/rcourtman/paybridge/internal/errors"
	"github.com/rcourtman/paybridge/internal/metrics"
	"github.com/rcourtman/paybridge/internal/square"
	"github.com/rcourtman/paybridge/pkg/keylock"
	"github.com/rs/zerolog/log"
)

// Gateway is the slice of the gateway client used for provisioning.
type Gateway interface {
	SearchCustomersByReference(ctx context.Context, referenceID string) ([]square.Customer, error)
	SearchCustomersByEmail(ctx context.Context, email string) ([]square.Customer, error)
	CreateCustomer(ctx context.Context, req square.CreateCustomerRequest) (*square.Customer, error)
	UpdateCustomer(ctx context.Context, id string, req square.UpdateCustomerRequest) (*square.Customer, error)
	CreateCard(ctx context.Context, req square.CreateCardRequest) (*square.Card, error)
}

// Source records which resolution branch produced a customer id.
type Source string

const (
	SourceCached    Source = "cached"
	SourceReference Source = "reference"
	SourceEmail     Source = "email"
	SourceCreated   Source = "created"
)

type EnsureRequest struct {
	ContactID         int64
	CardToken         string
	VerificationToken string
	CardholderName    string
	Billing           *BillingDetails
}

type Result struct {
	CustomerID string
	CardID     string // empty unless a card token was attached
	Source     Source
}

type Provisioner struct {
	gateway  Gateway
	contacts crm.ContactRepository
	locks    *keylock.Locker
}

func NewProvisioner(gateway Gateway, contacts crm.ContactRepository) *Provisioner {
	return &Provisioner{
		gateway:  gateway,
		contacts: contacts,
		locks:    keylock.New(),
	}
}

// EnsureCustomer returns the gateway customer for req.ContactID. Resolution order:
// the contact's stored mapping, a gateway customer whose reference_id is the contact
// id, a gateway customer with the contact's email, and finally a new customer.
// Adopting an existing gateway customer already mapped to another contact fails with
// a conflict error. Calls for the same contact are serialized.
func (p *Provisioner) EnsureCustomer(ctx context.Context, req EnsureRequest) (Result, error) {
	if req.ContactID <= 0 {
		return Result{}, internalerrors.Validation("ensure_customer", "contact id is required")
	}

	unlock := p.locks.Lock(strconv.FormatInt(req.ContactID, 10))
	defer unlock()

	contact, err := p.contacts.GetContact(ctx, req.ContactID)
	if err != nil {
		return Result{}, fmt.Errorf("load contact %d: %w", req.ContactID, err)
	}
	if contact == nil {
		return Result{}, internalerrors.NotFound("ensure_customer", "contact %d does not exist", req.ContactID)
	}

	res, err := p.resolveCustomer(ctx, contact)
	if err != nil {
		return Result{}, err
	}
	metrics.ProvisioningTotal.WithLabelValues(string(res.Source)).Inc()

	if req.CardToken != "" {
		cardID, err := p.AttachCard(ctx, res.CustomerID, req.CardToken, &CardDetails{
			CardholderName:    req.CardholderName,
			VerificationToken: req.VerificationToken,
			Billing:           req.Billing,
		})
		if err != nil {
			return Result{}, err
		}
		if err := p.contacts.SetGatewayCard(ctx, contact.ID, cardID); err != nil {
			return Result{}, fmt.Errorf("store card mapping for contact %d: %w", contact.ID, err)
		}
		res.CardID = cardID
	}

	log.Debug().
		Int64("contact_id", contact.ID).
		Str("customer_id", res.CustomerID).
		Str("source", string(res.Source)).
		Bool("card_attached", res.CardID != "").
		Msg("Resolved gateway customer")
	return res, nil
}

func (p *Provisioner) resolveCustomer(ctx context.Context, contact *crm.Contact) (Result, error) {
	if contact.GatewayCustomerID != "" {
		return Result{CustomerID: contact.GatewayCustomerID, Source: SourceCached}, nil
	}

	ref := strconv.FormatInt(contact.ID, 10)
	byRef, err := p.gateway.SearchCustomersByReference(ctx, ref)
	if err != nil {
		return Result{}, fmt.Errorf("search customers by reference: %w", err)
	}
	if id := firstCustomerID(byRef, func(c square.Customer) bool { return c.ReferenceID == ref }); id != "" {
		if err := p.adopt(ctx, contact, id); err != nil {
			return Result{}, err
		}
		return Result{CustomerID: id, Source: SourceReference}, nil
	}

	if email := strings.TrimSpace(contact.Email); email != "" {
		byEmail, err := p.gateway.SearchCustomersByEmail(ctx, email)
		if err != nil {
			return Result{}, fmt.Errorf("search customers by email: %w", err)
		}
		if id := firstCustomerID(byEmail, func(c square.Customer) bool {
			return strings.EqualFold(strings.TrimSpace(c.EmailAddress), email)
		}); id != "" {
			if err := p.adopt(ctx, contact, id); err != nil {
				return Result{}, err
			}
			return Result{CustomerID: id, Source: SourceEmail}, nil
		}
	}

	created, err := p.gateway.CreateCustomer(ctx, square.CreateCustomerRequest{
		IdempotencyKey: "customer_" + ref + "_" + uuid.NewString(),
		GivenName:      contact.FirstName,
		FamilyName:     contact.LastName,
		EmailAddress:   strings.TrimSpace(contact.Email),
		ReferenceID:    ref,
	})
	if err != nil {
		return Result{}, fmt.Errorf("create customer: %w", err)
	}
	if created.ID == "" {
		return Result{}, internalerrors.Decode("create_customer", fmt.Errorf("gateway returned no customer id"))
	}
	if err := p.contacts.SetGatewayCustomer(ctx, contact.ID, created.ID); err != nil {
		return Result{}, fmt.Errorf("store customer mapping for contact %d: %w", contact.ID, err)
	}
	log.Info().Int64("contact_id", contact.ID).Str("customer_id", created.ID).Msg("Created gateway customer")
	return Result{CustomerID: created.ID, Source: SourceCreated}, nil
}

// adopt maps an existing gateway customer to contact unless another contact already owns it.
func (p *Provisioner) adopt(ctx context.Context, contact *crm.Contact, customerID string) error {
	owner, err := p.contacts.FindContactByGatewayCustomer(ctx, customerID)
	if err != nil {
		return fmt.Errorf("check customer mapping: %w", err)
	}
	if owner != nil && owner.ID != contact.ID {
		metrics.ProvisioningTotal.WithLabelValues("conflict").Inc()
		log.Warn().
			Int64("contact_id", contact.ID).
			Int64("mapped_contact_id", owner.ID).
			Str("customer_id", customerID).
			Msg("Gateway customer already mapped to a different contact")
		return internalerrors.Conflict("ensure_customer",
			"gateway customer %s is already mapped to contact %d", customerID, owner.ID)
	}
	if err := p.contacts.SetGatewayCustomer(ctx, contact.ID, customerID); err != nil {
		return fmt.Errorf("store customer mapping for contact %d: %w", contact.ID, err)
	}
	return nil
}

// UpdateCustomerDetails pushes the contact's name, email and id to the gateway customer.
// Empty fields are left unchanged at the gateway.
func (p *Provisioner) UpdateCustomerDetails(ctx context.Context, customerID string, contact *crm.Contact) error {
	if customerID == "" || contact == nil {
		return internalerrors.Validation("update_customer", "customer id and contact are required")
	}
	_, err := p.gateway.UpdateCustomer(ctx, customerID, square.UpdateCustomerRequest{
		GivenName:    contact.FirstName,
		FamilyName:   contact.LastName,
		EmailAddress: strings.TrimSpace(contact.Email),
		ReferenceID:  strconv.FormatInt(contact.ID, 10),
	})
	if err != nil {
		return fmt.Errorf("update customer %s: %w", customerID, err)
	}
	return nil
}

// firstCustomerID returns the first customer that matches. Search results are
// re-checked so a gateway that ignores the filter cannot map an unrelated payer.
func firstCustomerID(customers []square.Customer, matches func(square.Customer) bool) string {
	for _, c := range customers {
		if c.ID != "" && matches(c) {
			return c.ID
		}
	}
	return ""
}
