package crmstore

import (
	"context"
	"fmt"
	"strings"

	"github.com/rcourtman/paybridge/internal/crm"
)

const contactColumns = `id, first_name, last_name, email, gateway_customer_id, gateway_card_id`

// CreateContact inserts c and sets its ID.
func (s *Store) CreateContact(ctx context.Context, c *crm.Contact) error {
	if c == nil {
		return fmt.Errorf("contact is nil")
	}
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO contacts (first_name, last_name, email, gateway_customer_id, gateway_card_id)
		VALUES (?, ?, ?, ?, ?)`,
		c.FirstName, c.LastName, strings.TrimSpace(c.Email), c.GatewayCustomerID, c.GatewayCardID)
	if err != nil {
		return fmt.Errorf("create contact: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("create contact: %w", err)
	}
	c.ID = id
	return nil
}

func (s *Store) GetContact(ctx context.Context, id int64) (*crm.Contact, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+contactColumns+` FROM contacts WHERE id = ?`, id)
	return scanContact(row)
}

func (s *Store) FindContactByGatewayCustomer(ctx context.Context, customerID string) (*crm.Contact, error) {
	if customerID == "" {
		return nil, nil
	}
	row := s.db.QueryRowContext(ctx, `SELECT `+contactColumns+` FROM contacts WHERE gateway_customer_id = ?`, customerID)
	return scanContact(row)
}

// FindContactByEmail returns the lowest-id contact with a case-insensitive email match.
func (s *Store) FindContactByEmail(ctx context.Context, email string) (*crm.Contact, error) {
	email = strings.TrimSpace(email)
	if email == "" {
		return nil, nil
	}
	row := s.db.QueryRowContext(ctx, `SELECT `+contactColumns+` FROM contacts
		WHERE email = ? COLLATE NOCASE ORDER BY id LIMIT 1`, email)
	return scanContact(row)
}

func (s *Store) SetGatewayCustomer(ctx context.Context, contactID int64, customerID string) error {
	return s.updateContactField(ctx, "gateway_customer_id", contactID, customerID)
}

func (s *Store) SetGatewayCard(ctx context.Context, contactID int64, cardID string) error {
	return s.updateContactField(ctx, "gateway_card_id", contactID, cardID)
}

func (s *Store) updateContactField(ctx context.Context, column string, contactID int64, value string) error {
	res, err := s.db.ExecContext(ctx, `UPDATE contacts SET `+column+` = ? WHERE id = ?`, value, contactID)
	if err != nil {
		return fmt.Errorf("update contact %d %s: %w", contactID, column, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update contact %d %s: %w", contactID, column, err)
	}
	if n == 0 {
		return fmt.Errorf("contact %d not found", contactID)
	}
	return nil
}

func scanContact(s scanner) (*crm.Contact, error) {
	var c crm.Contact
	err := s.Scan(&c.ID, &c.FirstName, &c.LastName, &c.Email, &c.GatewayCustomerID, &c.GatewayCardID)
	if err != nil {
		if isNoRows(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("scan contact: %w", err)
	}
	return &c, nil
}
