// Package storetest opens in-memory sqlite databases carrying the collections
// schema for repository and service tests.
package storetest

import (
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

var dbSeq atomic.Int64

var schema = []string{
	`CREATE TABLE accounts (
		id INTEGER PRIMARY KEY,
		name TEXT NOT NULL,
		auto_approve_drafts BOOLEAN NOT NULL DEFAULT FALSE,
		created_at DATETIME,
		updated_at DATETIME
	)`,
	`CREATE TABLE account_branding (
		account_id INTEGER PRIMARY KEY,
		company_name TEXT NOT NULL DEFAULT '',
		payment_link TEXT NOT NULL DEFAULT '',
		invoice_link_base TEXT NOT NULL DEFAULT '',
		ar_page_url TEXT NOT NULL DEFAULT '',
		updated_at DATETIME
	)`,
	`CREATE TABLE debtors (
		id INTEGER PRIMARY KEY,
		account_id INTEGER NOT NULL,
		reference_id TEXT NOT NULL,
		name TEXT NOT NULL,
		company_name TEXT NOT NULL DEFAULT '',
		email TEXT NOT NULL DEFAULT '',
		external_customer_id TEXT,
		outreach_paused BOOLEAN NOT NULL DEFAULT FALSE,
		archived_at DATETIME,
		created_at DATETIME,
		updated_at DATETIME
	)`,
	`CREATE UNIQUE INDEX ux_debtors_account_reference ON debtors(account_id, reference_id)`,
	`CREATE TABLE invoices (
		id INTEGER PRIMARY KEY,
		account_id INTEGER NOT NULL,
		debtor_id INTEGER NOT NULL,
		invoice_number TEXT NOT NULL,
		invoice_number_normalized TEXT NOT NULL,
		issue_date DATETIME,
		due_date DATETIME NOT NULL,
		amount_original INTEGER NOT NULL,
		amount_outstanding INTEGER NOT NULL,
		currency TEXT NOT NULL,
		status TEXT NOT NULL,
		aging_bucket TEXT NOT NULL DEFAULT '',
		bucket_entered_at DATETIME NOT NULL,
		outreach_paused BOOLEAN NOT NULL DEFAULT FALSE,
		created_at DATETIME,
		updated_at DATETIME
	)`,
	`CREATE UNIQUE INDEX ux_invoices_account_number ON invoices(account_id, invoice_number_normalized)`,
	`CREATE TABLE outreach_workflows (
		id INTEGER PRIMARY KEY,
		account_id INTEGER NOT NULL,
		invoice_id INTEGER,
		aging_bucket TEXT,
		cadence_days TEXT NOT NULL DEFAULT '[]',
		tone TEXT NOT NULL DEFAULT 'friendly',
		is_active BOOLEAN NOT NULL DEFAULT TRUE,
		template_approved BOOLEAN NOT NULL DEFAULT FALSE,
		created_at DATETIME,
		updated_at DATETIME
	)`,
	`CREATE TABLE outreach_step_templates (
		id INTEGER PRIMARY KEY,
		workflow_id INTEGER NOT NULL,
		step_number INTEGER NOT NULL,
		subject TEXT NOT NULL,
		body TEXT NOT NULL,
		status TEXT NOT NULL DEFAULT 'draft',
		created_at DATETIME,
		updated_at DATETIME
	)`,
	`CREATE UNIQUE INDEX ux_outreach_step_templates_step ON outreach_step_templates(workflow_id, step_number)`,
	`CREATE TABLE outreach_drafts (
		id INTEGER PRIMARY KEY,
		account_id INTEGER NOT NULL,
		invoice_id INTEGER NOT NULL,
		debtor_id INTEGER NOT NULL,
		workflow_id INTEGER,
		step_number INTEGER NOT NULL,
		channel TEXT NOT NULL,
		recipient TEXT NOT NULL DEFAULT '',
		subject TEXT NOT NULL,
		body TEXT NOT NULL,
		status TEXT NOT NULL,
		recommended_send_date DATETIME NOT NULL,
		days_past_due INTEGER NOT NULL DEFAULT 0,
		dispatch_attempts INTEGER NOT NULL DEFAULT 0,
		last_dispatch_error TEXT NOT NULL DEFAULT '',
		cancel_reason TEXT NOT NULL DEFAULT '',
		approved_at DATETIME,
		sent_at DATETIME,
		cancelled_at DATETIME,
		created_at DATETIME,
		updated_at DATETIME
	)`,
	`CREATE UNIQUE INDEX ux_outreach_drafts_invoice_step ON outreach_drafts(invoice_id, step_number)`,
	`CREATE TABLE payments (
		id INTEGER PRIMARY KEY,
		account_id INTEGER NOT NULL,
		debtor_id INTEGER,
		amount INTEGER NOT NULL,
		currency TEXT NOT NULL,
		payment_date DATETIME NOT NULL,
		invoice_number_hint TEXT NOT NULL DEFAULT '',
		account_reference_hint TEXT NOT NULL DEFAULT '',
		reconciliation_status TEXT NOT NULL,
		review_reason TEXT NOT NULL DEFAULT '',
		unapplied_amount INTEGER NOT NULL DEFAULT 0,
		source_fingerprint TEXT NOT NULL,
		created_at DATETIME,
		updated_at DATETIME
	)`,
	`CREATE UNIQUE INDEX ux_payments_account_fingerprint ON payments(account_id, source_fingerprint)`,
	`CREATE TABLE payment_invoice_links (
		id INTEGER PRIMARY KEY,
		payment_id INTEGER NOT NULL,
		invoice_id INTEGER NOT NULL,
		amount_applied INTEGER NOT NULL,
		match_confidence REAL NOT NULL,
		match_method TEXT NOT NULL,
		created_at DATETIME
	)`,
	`CREATE UNIQUE INDEX ux_payment_invoice_links_pair ON payment_invoice_links(payment_id, invoice_id)`,
}

// Open returns an isolated in-memory database with the collections schema.
// A single connection serializes writers the way row locks would in Postgres.
func Open(t testing.TB) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:recouply_%d?mode=memory&cache=shared", dbSeq.Add(1))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:         gormlogger.Default.LogMode(gormlogger.Silent),
		TranslateError: true,
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("sql db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	for _, stmt := range schema {
		if err := db.Exec(stmt).Error; err != nil {
			t.Fatalf("apply schema: %v", err)
		}
	}
	return db
}

// Node returns a snowflake node for test fixtures.
func Node(t testing.TB) *snowflake.Node {
	t.Helper()
	node, err := snowflake.NewNode(1)
	if err != nil {
		t.Fatalf("snowflake node: %v", err)
	}
	return node
}

// SeedAccount inserts an account row and returns its id.
func SeedAccount(t testing.TB, db *gorm.DB, node *snowflake.Node, autoApprove bool) snowflake.ID {
	t.Helper()
	id := node.Generate()
	now := time.Now().UTC()
	if err := db.Exec(
		`INSERT INTO accounts (id, name, auto_approve_drafts, created_at, updated_at) VALUES (?, ?, ?, ?, ?)`,
		id, "Acme Services", autoApprove, now, now,
	).Error; err != nil {
		t.Fatalf("seed account: %v", err)
	}
	return id
}

// SeedDebtor inserts a debtor with the given reference id.
func SeedDebtor(t testing.TB, db *gorm.DB, node *snowflake.Node, accountID snowflake.ID, name, reference string) snowflake.ID {
	t.Helper()
	id := node.Generate()
	now := time.Now().UTC()
	if err := db.Exec(
		`INSERT INTO debtors (id, account_id, reference_id, name, company_name, email, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		id, accountID, reference, name, name, "ap@"+reference+".test", now, now,
	).Error; err != nil {
		t.Fatalf("seed debtor: %v", err)
	}
	return id
}

// InvoiceFixture describes an invoice row for SeedInvoice. Zero values fall
// back to an Open invoice in the first bucket.
type InvoiceFixture struct {
	AccountID       snowflake.ID
	DebtorID        snowflake.ID
	Number          string
	DueDate         time.Time
	Original        int64
	Outstanding     int64
	Status          string
	Bucket          string
	BucketEnteredAt time.Time
}

func SeedInvoice(t testing.TB, db *gorm.DB, node *snowflake.Node, f InvoiceFixture) snowflake.ID {
	t.Helper()
	if f.Status == "" {
		f.Status = "Open"
	}
	if f.Bucket == "" {
		f.Bucket = "0-30"
	}
	if f.Original == 0 {
		f.Original = f.Outstanding
	}
	if f.BucketEnteredAt.IsZero() {
		f.BucketEnteredAt = f.DueDate
	}
	id := node.Generate()
	now := time.Now().UTC()
	if err := db.Exec(
		`INSERT INTO invoices (id, account_id, debtor_id, invoice_number, invoice_number_normalized, due_date,
		   amount_original, amount_outstanding, currency, status, aging_bucket, bucket_entered_at, created_at, updated_at)
		 VALUES (?, ?, ?, ?, lower(?), ?, ?, ?, 'USD', ?, ?, ?, ?, ?)`,
		id, f.AccountID, f.DebtorID, f.Number, f.Number, f.DueDate, f.Original, f.Outstanding,
		f.Status, f.Bucket, f.BucketEnteredAt, now, now,
	).Error; err != nil {
		t.Fatalf("seed invoice: %v", err)
	}
	return id
}
