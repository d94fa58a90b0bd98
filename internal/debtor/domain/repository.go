package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, debtor *Debtor) error
	FindByID(ctx context.Context, db *gorm.DB, accountID, id snowflake.ID) (*Debtor, error)
	ListByAccount(ctx context.Context, db *gorm.DB, accountID snowflake.ID) ([]*Debtor, error)
	SetOutreachPaused(ctx context.Context, db *gorm.DB, accountID, id snowflake.ID, paused bool) (bool, error)
}
