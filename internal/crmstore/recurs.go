package crmstore

import (
	"context"
	"fmt"

	"github.com/rcourtman/paybridge/internal/crm"
	"github.com/shopspring/decimal"
)

const recurColumns = `id, contact_id, financial_type_id, amount, currency, status,
	processor_id, trxn_id, frequency_unit, frequency_interval, installments`

// CreateRecur inserts r and sets its ID.
func (s *Store) CreateRecur(ctx context.Context, r *crm.RecurringContribution) error {
	if r == nil {
		return fmt.Errorf("recurring contribution is nil")
	}
	if r.Status == "" {
		r.Status = crm.RecurPending
	}
	if r.FinancialTypeID == 0 {
		r.FinancialTypeID = crm.DefaultFinancialTypeID
	}
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO contribution_recur (
			contact_id, financial_type_id, amount, currency, status,
			processor_id, trxn_id, frequency_unit, frequency_interval, installments
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ContactID, r.FinancialTypeID, r.Amount.String(), r.Currency, string(r.Status),
		r.ProcessorID, r.TrxnID, r.FrequencyUnit, r.FrequencyInterval, r.Installments,
	)
	if err != nil {
		return fmt.Errorf("create recurring contribution: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("create recurring contribution: %w", err)
	}
	r.ID = id
	return nil
}

func (s *Store) GetRecur(ctx context.Context, id int64) (*crm.RecurringContribution, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+recurColumns+` FROM contribution_recur WHERE id = ?`, id)
	return scanRecur(row)
}

func (s *Store) FindRecurByProcessorID(ctx context.Context, processorID string) (*crm.RecurringContribution, error) {
	if processorID == "" {
		return nil, nil
	}
	row := s.db.QueryRowContext(ctx, `SELECT `+recurColumns+` FROM contribution_recur
		WHERE processor_id = ? ORDER BY id LIMIT 1`, processorID)
	return scanRecur(row)
}

func (s *Store) UpdateRecur(ctx context.Context, r *crm.RecurringContribution) error {
	if r == nil {
		return fmt.Errorf("recurring contribution is nil")
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE contribution_recur SET
			contact_id = ?, financial_type_id = ?, amount = ?, currency = ?, status = ?,
			processor_id = ?, trxn_id = ?, frequency_unit = ?, frequency_interval = ?, installments = ?
		WHERE id = ?`,
		r.ContactID, r.FinancialTypeID, r.Amount.String(), r.Currency, string(r.Status),
		r.ProcessorID, r.TrxnID, r.FrequencyUnit, r.FrequencyInterval, r.Installments,
		r.ID,
	)
	if err != nil {
		return fmt.Errorf("update recurring contribution %d: %w", r.ID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update recurring contribution %d: %w", r.ID, err)
	}
	if n == 0 {
		return fmt.Errorf("recurring contribution %d not found", r.ID)
	}
	return nil
}

func scanRecur(s scanner) (*crm.RecurringContribution, error) {
	var r crm.RecurringContribution
	var amount, status string

	err := s.Scan(
		&r.ID, &r.ContactID, &r.FinancialTypeID, &amount, &r.Currency, &status,
		&r.ProcessorID, &r.TrxnID, &r.FrequencyUnit, &r.FrequencyInterval, &r.Installments,
	)
	if err != nil {
		if isNoRows(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("scan recurring contribution: %w", err)
	}

	r.Amount, err = decimal.NewFromString(amount)
	if err != nil {
		return nil, fmt.Errorf("scan recurring contribution %d amount: %w", r.ID, err)
	}
	r.Status = crm.RecurStatus(status)
	return &r, nil
}
