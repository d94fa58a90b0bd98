package repository

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/recouply/internal/branding/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Find(ctx context.Context, db *gorm.DB, accountID snowflake.ID) (*domain.Branding, error) {
	var item domain.Branding
	err := db.WithContext(ctx).Raw(
		`SELECT a.id AS account_id,
			COALESCE(NULLIF(b.company_name, ''), a.name) AS company_name,
			COALESCE(b.payment_link, '') AS payment_link,
			COALESCE(b.invoice_link_base, '') AS invoice_link_base,
			COALESCE(b.ar_page_url, '') AS ar_page_url
		 FROM accounts a
		 LEFT JOIN account_branding b ON b.account_id = a.id
		 WHERE a.id = ?`,
		accountID,
	).Scan(&item).Error
	if err != nil {
		return nil, err
	}
	if item.AccountID == 0 {
		return nil, nil
	}
	return &item, nil
}
