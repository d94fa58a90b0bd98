package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/recouply/internal/reconciliation/domain"
	"gorm.io/gorm"
)

const paymentColumns = `id, account_id, debtor_id, amount, currency, payment_date, invoice_number_hint,
	account_reference_hint, reconciliation_status, review_reason, unapplied_amount, source_fingerprint,
	created_at, updated_at`

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

// InsertPayment reports false when the fingerprint was already ingested.
func (r *repo) InsertPayment(ctx context.Context, db *gorm.DB, payment *domain.Payment) (bool, error) {
	res := db.WithContext(ctx).Exec(
		`INSERT INTO payments (`+paymentColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (account_id, source_fingerprint) DO NOTHING`,
		payment.ID,
		payment.AccountID,
		payment.DebtorID,
		payment.Amount,
		payment.Currency,
		payment.PaymentDate,
		payment.InvoiceNumberHint,
		payment.AccountReferenceHint,
		payment.ReconciliationStatus,
		payment.ReviewReason,
		payment.UnappliedAmount,
		payment.SourceFingerprint,
		payment.CreatedAt,
		payment.UpdatedAt,
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repo) MarkMatched(ctx context.Context, db *gorm.DB, paymentID, debtorID snowflake.ID, unapplied int64, now time.Time) error {
	return db.WithContext(ctx).Exec(
		`UPDATE payments
		 SET reconciliation_status = ?, debtor_id = ?, unapplied_amount = ?, review_reason = '', updated_at = ?
		 WHERE id = ?`,
		domain.ReconciliationMatched,
		debtorID,
		unapplied,
		now,
		paymentID,
	).Error
}

func (r *repo) MarkNeedsReview(ctx context.Context, db *gorm.DB, paymentID snowflake.ID, debtorID *snowflake.ID, reason string, now time.Time) error {
	return db.WithContext(ctx).Exec(
		`UPDATE payments
		 SET reconciliation_status = ?, debtor_id = ?, review_reason = ?, unapplied_amount = amount, updated_at = ?
		 WHERE id = ?`,
		domain.ReconciliationNeedsReview,
		debtorID,
		reason,
		now,
		paymentID,
	).Error
}

func (r *repo) InsertLink(ctx context.Context, db *gorm.DB, link *domain.PaymentInvoiceLink) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO payment_invoice_links (id, payment_id, invoice_id, amount_applied, match_confidence, match_method, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		link.ID,
		link.PaymentID,
		link.InvoiceID,
		link.AmountApplied,
		link.MatchConfidence,
		link.MatchMethod,
		link.CreatedAt,
	).Error
}

func (r *repo) FindPayment(ctx context.Context, db *gorm.DB, accountID, id snowflake.ID) (*domain.Payment, error) {
	var payment domain.Payment
	err := db.WithContext(ctx).Raw(
		`SELECT `+paymentColumns+` FROM payments WHERE account_id = ? AND id = ?`,
		accountID,
		id,
	).Scan(&payment).Error
	if err != nil {
		return nil, err
	}
	if payment.ID == 0 {
		return nil, nil
	}
	return &payment, nil
}

func (r *repo) ListPayments(ctx context.Context, db *gorm.DB, accountID snowflake.ID, status domain.ReconciliationStatus) ([]*domain.Payment, error) {
	var payments []*domain.Payment
	stmt := `SELECT ` + paymentColumns + ` FROM payments WHERE account_id = ?`
	args := []any{accountID}
	if status != "" {
		stmt += ` AND reconciliation_status = ?`
		args = append(args, status)
	}
	stmt += ` ORDER BY created_at ASC, id ASC`
	if err := db.WithContext(ctx).Raw(stmt, args...).Scan(&payments).Error; err != nil {
		return nil, err
	}
	return payments, nil
}

func (r *repo) ListLinks(ctx context.Context, db *gorm.DB, paymentID snowflake.ID) ([]*domain.PaymentInvoiceLink, error) {
	var links []*domain.PaymentInvoiceLink
	err := db.WithContext(ctx).Raw(
		`SELECT id, payment_id, invoice_id, amount_applied, match_confidence, match_method, created_at
		 FROM payment_invoice_links WHERE payment_id = ? ORDER BY id ASC`,
		paymentID,
	).Scan(&links).Error
	if err != nil {
		return nil, err
	}
	return links, nil
}
