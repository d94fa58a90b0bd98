package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/recouply/internal/debtor/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, debtor *domain.Debtor) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO debtors (id, account_id, reference_id, name, company_name, email, external_customer_id, outreach_paused, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		debtor.ID,
		debtor.AccountID,
		debtor.ReferenceID,
		debtor.Name,
		debtor.CompanyName,
		debtor.Email,
		debtor.ExternalCustomerID,
		debtor.OutreachPaused,
		debtor.CreatedAt,
		debtor.UpdatedAt,
	).Error
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, accountID, id snowflake.ID) (*domain.Debtor, error) {
	var debtor domain.Debtor
	err := db.WithContext(ctx).Raw(
		`SELECT id, account_id, reference_id, name, company_name, email, external_customer_id,
		        outreach_paused, archived_at, created_at, updated_at
		 FROM debtors WHERE account_id = ? AND id = ?`,
		accountID,
		id,
	).Scan(&debtor).Error
	if err != nil {
		return nil, err
	}
	if debtor.ID == 0 {
		return nil, nil
	}
	return &debtor, nil
}

func (r *repo) ListByAccount(ctx context.Context, db *gorm.DB, accountID snowflake.ID) ([]*domain.Debtor, error) {
	var debtors []*domain.Debtor
	err := db.WithContext(ctx).Raw(
		`SELECT id, account_id, reference_id, name, company_name, email, external_customer_id,
		        outreach_paused, archived_at, created_at, updated_at
		 FROM debtors
		 WHERE account_id = ? AND archived_at IS NULL
		 ORDER BY created_at ASC, id ASC`,
		accountID,
	).Scan(&debtors).Error
	if err != nil {
		return nil, err
	}
	return debtors, nil
}

func (r *repo) SetOutreachPaused(ctx context.Context, db *gorm.DB, accountID, id snowflake.ID, paused bool) (bool, error) {
	res := db.WithContext(ctx).Exec(
		`UPDATE debtors SET outreach_paused = ?, updated_at = ?
		 WHERE account_id = ? AND id = ?`,
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
