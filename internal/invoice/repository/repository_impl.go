package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/recouply/internal/invoice/domain"
	"gorm.io/gorm"
)

const invoiceColumns = `id, account_id, debtor_id, invoice_number, invoice_number_normalized,
	issue_date, due_date, amount_original, amount_outstanding, currency, status,
	aging_bucket, bucket_entered_at, outreach_paused, created_at, updated_at`

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

// Insert reports false when the account already holds the invoice number.
func (r *repo) Insert(ctx context.Context, db *gorm.DB, invoice *domain.Invoice) (bool, error) {
	res := db.WithContext(ctx).Exec(
		`INSERT INTO invoices (`+invoiceColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (account_id, invoice_number_normalized) DO NOTHING`,
		invoice.ID,
		invoice.AccountID,
		invoice.DebtorID,
		invoice.InvoiceNumber,
		invoice.InvoiceNumberNormalized,
		invoice.IssueDate,
		invoice.DueDate,
		invoice.AmountOriginal,
		invoice.AmountOutstanding,
		invoice.Currency,
		invoice.Status,
		invoice.AgingBucket,
		invoice.BucketEnteredAt,
		invoice.OutreachPaused,
		invoice.CreatedAt,
		invoice.UpdatedAt,
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, accountID, id snowflake.ID) (*domain.Invoice, error) {
	var invoice domain.Invoice
	err := db.WithContext(ctx).Raw(
		`SELECT `+invoiceColumns+` FROM invoices WHERE account_id = ? AND id = ?`,
		accountID,
		id,
	).Scan(&invoice).Error
	if err != nil {
		return nil, err
	}
	if invoice.ID == 0 {
		return nil, nil
	}
	return &invoice, nil
}

func (r *repo) FindByNumber(ctx context.Context, db *gorm.DB, accountID snowflake.ID, normalized string) (*domain.Invoice, error) {
	var invoice domain.Invoice
	err := db.WithContext(ctx).Raw(
		`SELECT `+invoiceColumns+` FROM invoices WHERE account_id = ? AND invoice_number_normalized = ?`,
		accountID,
		normalized,
	).Scan(&invoice).Error
	if err != nil {
		return nil, err
	}
	if invoice.ID == 0 {
		return nil, nil
	}
	return &invoice, nil
}

func (r *repo) ListByAccount(ctx context.Context, db *gorm.DB, accountID snowflake.ID) ([]*domain.Invoice, error) {
	var invoices []*domain.Invoice
	err := db.WithContext(ctx).Raw(
		`SELECT `+invoiceColumns+` FROM invoices WHERE account_id = ? ORDER BY id ASC`,
		accountID,
	).Scan(&invoices).Error
	if err != nil {
		return nil, err
	}
	return invoices, nil
}

func (r *repo) UpdateBalance(ctx context.Context, db *gorm.DB, update domain.BalanceUpdate) (bool, error) {
	res := db.WithContext(ctx).Exec(
		`UPDATE invoices
		 SET amount_outstanding = ?, status = ?, updated_at = ?
		 WHERE id = ? AND amount_outstanding = ? AND status = ?`,
		update.Outstanding,
		update.Status,
		update.UpdatedAt,
		update.ID,
		update.ExpectedOutstanding,
		update.ExpectedStatus,
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repo) Refresh(ctx context.Context, db *gorm.DB, update domain.RefreshUpdate) (bool, error) {
	res := db.WithContext(ctx).Exec(
		`UPDATE invoices
		 SET issue_date = ?, due_date = ?, amount_original = ?, amount_outstanding = ?, status = ?,
		     aging_bucket = ?, bucket_entered_at = ?, updated_at = ?
		 WHERE id = ? AND amount_outstanding = ? AND status = ?`,
		update.IssueDate,
		update.DueDate,
		update.AmountOriginal,
		update.Outstanding,
		update.Status,
		update.AgingBucket,
		update.BucketEnteredAt,
		update.UpdatedAt,
		update.ID,
		update.ExpectedOutstanding,
		update.ExpectedStatus,
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repo) SetOutreachPaused(ctx context.Context, db *gorm.DB, accountID, id snowflake.ID, paused bool) (bool, error) {
	res := db.WithContext(ctx).Exec(
		`UPDATE invoices SET outreach_paused = ?, updated_at = ? WHERE account_id = ? AND id = ?`,
		paused,
		time.Now().UTC(),
		accountID,
		id,
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}
