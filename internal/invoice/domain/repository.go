package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

// BalanceUpdate is a compare-and-swap write of an invoice balance. It only
// applies when the stored outstanding amount and status still match.
type BalanceUpdate struct {
	ID                  snowflake.ID
	ExpectedOutstanding int64
	ExpectedStatus      InvoiceStatus
	Outstanding         int64
	Status              InvoiceStatus
	UpdatedAt           time.Time
}

// RefreshUpdate rewrites the uploaded fields of an existing invoice under the
// same compare-and-swap guard as BalanceUpdate.
type RefreshUpdate struct {
	BalanceUpdate
	IssueDate       *time.Time
	DueDate         time.Time
	AmountOriginal  int64
	AgingBucket     string
	BucketEnteredAt time.Time
}

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, invoice *Invoice) (bool, error)
	FindByID(ctx context.Context, db *gorm.DB, accountID, id snowflake.ID) (*Invoice, error)
	FindByNumber(ctx context.Context, db *gorm.DB, accountID snowflake.ID, normalized string) (*Invoice, error)
	ListByAccount(ctx context.Context, db *gorm.DB, accountID snowflake.ID) ([]*Invoice, error)
	UpdateBalance(ctx context.Context, db *gorm.DB, update BalanceUpdate) (bool, error)
	Refresh(ctx context.Context, db *gorm.DB, update RefreshUpdate) (bool, error)
	SetOutreachPaused(ctx context.Context, db *gorm.DB, accountID, id snowflake.ID, paused bool) (bool, error)
}
