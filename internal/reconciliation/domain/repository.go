package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	InsertPayment(ctx context.Context, db *gorm.DB, payment *Payment) (bool, error)
	MarkMatched(ctx context.Context, db *gorm.DB, paymentID, debtorID snowflake.ID, unapplied int64, now time.Time) error
	MarkNeedsReview(ctx context.Context, db *gorm.DB, paymentID snowflake.ID, debtorID *snowflake.ID, reason string, now time.Time) error
	InsertLink(ctx context.Context, db *gorm.DB, link *PaymentInvoiceLink) error
	FindPayment(ctx context.Context, db *gorm.DB, accountID, id snowflake.ID) (*Payment, error)
	ListPayments(ctx context.Context, db *gorm.DB, accountID snowflake.ID, status ReconciliationStatus) ([]*Payment, error)
	ListLinks(ctx context.Context, db *gorm.DB, paymentID snowflake.ID) ([]*PaymentInvoiceLink, error)
}
