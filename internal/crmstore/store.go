// Package crmstore is a SQLite implementation of the crm repositories and settings store.
package crmstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"github.com/rcourtman/paybridge/internal/crm"
	_ "modernc.org/sqlite"
)

var _ crm.Store = (*Store)(nil)

// Store provides CRM records backed by SQLite.
type Store struct {
	db *sql.DB
}

// Open opens (or creates) the database at path.
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}

	dsn := path + "?" + url.Values{
		"_pragma": []string{
			"busy_timeout(30000)",
			"journal_mode(WAL)",
			"synchronous(NORMAL)",
			"foreign_keys(ON)",
		},
	}.Encode()

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open crm db: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	s := &Store{db: db}
	if err := s.initSchema(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS contacts (
		id                  INTEGER PRIMARY KEY AUTOINCREMENT,
		first_name          TEXT NOT NULL DEFAULT '',
		last_name           TEXT NOT NULL DEFAULT '',
		email               TEXT NOT NULL DEFAULT '',
		gateway_customer_id TEXT NOT NULL DEFAULT '',
		gateway_card_id     TEXT NOT NULL DEFAULT ''
	);
	CREATE UNIQUE INDEX IF NOT EXISTS idx_contacts_gateway_customer
		ON contacts(gateway_customer_id) WHERE gateway_customer_id != '';
	CREATE INDEX IF NOT EXISTS idx_contacts_email ON contacts(email COLLATE NOCASE);

	CREATE TABLE IF NOT EXISTS contribution_recur (
		id                 INTEGER PRIMARY KEY AUTOINCREMENT,
		contact_id         INTEGER NOT NULL REFERENCES contacts(id),
		financial_type_id  INTEGER NOT NULL DEFAULT 1,
		amount             TEXT NOT NULL DEFAULT '0',
		currency           TEXT NOT NULL DEFAULT '',
		status             TEXT NOT NULL DEFAULT 'Pending',
		processor_id       TEXT NOT NULL DEFAULT '',
		trxn_id            TEXT NOT NULL DEFAULT '',
		frequency_unit     TEXT NOT NULL DEFAULT '',
		frequency_interval INTEGER NOT NULL DEFAULT 1,
		installments       INTEGER NOT NULL DEFAULT 0
	);
	CREATE INDEX IF NOT EXISTS idx_recur_processor ON contribution_recur(processor_id);

	CREATE TABLE IF NOT EXISTS contributions (
		id                    INTEGER PRIMARY KEY AUTOINCREMENT,
		contact_id            INTEGER NOT NULL REFERENCES contacts(id),
		financial_type_id     INTEGER NOT NULL DEFAULT 1,
		total_amount          TEXT NOT NULL DEFAULT '0',
		currency              TEXT NOT NULL DEFAULT '',
		status                TEXT NOT NULL DEFAULT 'Pending',
		trxn_id               TEXT NOT NULL DEFAULT '',
		invoice_id            TEXT NOT NULL DEFAULT '',
		refund_trxn_id        TEXT NOT NULL DEFAULT '',
		contribution_recur_id INTEGER,
		source                TEXT NOT NULL DEFAULT '',
		receive_date          INTEGER NOT NULL
	);
	CREATE UNIQUE INDEX IF NOT EXISTS idx_contributions_trxn
		ON contributions(trxn_id) WHERE trxn_id != '';
	CREATE UNIQUE INDEX IF NOT EXISTS idx_contributions_invoice
		ON contributions(invoice_id) WHERE invoice_id != '';

	CREATE TABLE IF NOT EXISTS settings (
		key        TEXT PRIMARY KEY,
		value      TEXT NOT NULL,
		updated_at INTEGER NOT NULL
	);
	`
	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("init crm schema: %w", err)
	}
	return nil
}

// Ping checks database connectivity (used for readiness probes).
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// scanner is an interface satisfied by both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func isNoRows(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}

func nullableID(id int64) any {
	if id == 0 {
		return nil
	}
	return id
}

func unixOrNow(t time.Time) int64 {
	if t.IsZero() {
		return time.Now().UTC().Unix()
	}
	return t.Unix()
}
