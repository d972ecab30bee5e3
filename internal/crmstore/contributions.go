package crmstore

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/rcourtman/paybridge/internal/crm"
	"github.com/shopspring/decimal"
)

const contributionColumns = `id, contact_id, financial_type_id, total_amount, currency, status,
	trxn_id, invoice_id, refund_trxn_id, contribution_recur_id, source, receive_date`

func (s *Store) GetContribution(ctx context.Context, id int64) (*crm.Contribution, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+contributionColumns+` FROM contributions WHERE id = ?`, id)
	return scanContribution(row)
}

func (s *Store) FindContributionByTrxnID(ctx context.Context, trxnID string) (*crm.Contribution, error) {
	if trxnID == "" {
		return nil, nil
	}
	row := s.db.QueryRowContext(ctx, `SELECT `+contributionColumns+` FROM contributions WHERE trxn_id = ?`, trxnID)
	return scanContribution(row)
}

func (s *Store) FindContributionByInvoiceID(ctx context.Context, invoiceID string) (*crm.Contribution, error) {
	if invoiceID == "" {
		return nil, nil
	}
	row := s.db.QueryRowContext(ctx, `SELECT `+contributionColumns+` FROM contributions WHERE invoice_id = ?`, invoiceID)
	return scanContribution(row)
}

// ListContributionsByRecur returns the contributions linked to a recurring record, oldest first.
func (s *Store) ListContributionsByRecur(ctx context.Context, recurID int64) ([]*crm.Contribution, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+contributionColumns+` FROM contributions
		WHERE contribution_recur_id = ? ORDER BY id`, recurID)
	if err != nil {
		return nil, fmt.Errorf("list contributions: %w", err)
	}
	defer rows.Close()

	var out []*crm.Contribution
	for rows.Next() {
		c, err := scanContribution(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// CreateContribution inserts c and sets its ID. Duplicate trxn_id or invoice_id is rejected.
func (s *Store) CreateContribution(ctx context.Context, c *crm.Contribution) error {
	if c == nil {
		return fmt.Errorf("contribution is nil")
	}
	if c.ReceiveDate.IsZero() {
		c.ReceiveDate = time.Now().UTC()
	}
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO contributions (
			contact_id, financial_type_id, total_amount, currency, status,
			trxn_id, invoice_id, refund_trxn_id, contribution_recur_id, source, receive_date
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		c.ContactID, c.FinancialTypeID, c.TotalAmount.String(), c.Currency, string(c.Status),
		c.TrxnID, c.InvoiceID, c.RefundTrxnID, nullableID(c.ContributionRecurID), c.Source, unixOrNow(c.ReceiveDate),
	)
	if err != nil {
		return fmt.Errorf("create contribution: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("create contribution: %w", err)
	}
	c.ID = id
	return nil
}

func (s *Store) UpdateContribution(ctx context.Context, c *crm.Contribution) error {
	if c == nil {
		return fmt.Errorf("contribution is nil")
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE contributions SET
			contact_id = ?, financial_type_id = ?, total_amount = ?, currency = ?, status = ?,
			trxn_id = ?, invoice_id = ?, refund_trxn_id = ?, contribution_recur_id = ?, source = ?
		WHERE id = ?`,
		c.ContactID, c.FinancialTypeID, c.TotalAmount.String(), c.Currency, string(c.Status),
		c.TrxnID, c.InvoiceID, c.RefundTrxnID, nullableID(c.ContributionRecurID), c.Source,
		c.ID,
	)
	if err != nil {
		return fmt.Errorf("update contribution %d: %w", c.ID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update contribution %d: %w", c.ID, err)
	}
	if n == 0 {
		return fmt.Errorf("contribution %d not found", c.ID)
	}
	return nil
}

func scanContribution(s scanner) (*crm.Contribution, error) {
	var c crm.Contribution
	var amount, status string
	var recurID sql.NullInt64
	var receiveDate int64

	err := s.Scan(
		&c.ID, &c.ContactID, &c.FinancialTypeID, &amount, &c.Currency, &status,
		&c.TrxnID, &c.InvoiceID, &c.RefundTrxnID, &recurID, &c.Source, &receiveDate,
	)
	if err != nil {
		if isNoRows(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("scan contribution: %w", err)
	}

	c.TotalAmount, err = decimal.NewFromString(amount)
	if err != nil {
		return nil, fmt.Errorf("scan contribution %d amount: %w", c.ID, err)
	}
	c.Status = crm.ContributionStatus(status)
	if recurID.Valid {
		c.ContributionRecurID = recurID.Int64
	}
	c.ReceiveDate = time.Unix(receiveDate, 0).UTC()
	return &c, nil
}
