package service

import (
	"context"
	"testing"

	"github.com/smallbiznis/recouply/internal/branding/repository"
	"github.com/smallbiznis/recouply/internal/storetest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestGetFallsBackToAccountName(t *testing.T) {
	db := storetest.Open(t)
	node := storetest.Node(t)
	accountID := storetest.SeedAccount(t, db, node, false)
	svc := New(Params{DB: db, Log: zap.NewNop(), Repo: repository.Provide()})

	item, err := svc.Get(context.Background(), accountID)
	require.NoError(t, err)
	assert.Equal(t, "Acme Services", item.CompanyName)
	assert.Empty(t, item.PaymentLink)
}

func TestGetReadsBrandingAndCaches(t *testing.T) {
	db := storetest.Open(t)
	node := storetest.Node(t)
	accountID := storetest.SeedAccount(t, db, node, false)
	require.NoError(t, db.Exec(
		`INSERT INTO account_branding (account_id, company_name, payment_link, invoice_link_base, ar_page_url)
		 VALUES (?, 'Acme AR', 'https://pay.acme.test', 'https://acme.test/invoices/', 'https://acme.test/ar')`,
		accountID,
	).Error)
	svc := New(Params{DB: db, Log: zap.NewNop(), Repo: repository.Provide()})

	item, err := svc.Get(context.Background(), accountID)
	require.NoError(t, err)
	assert.Equal(t, "Acme AR", item.CompanyName)
	assert.Equal(t, "https://acme.test/invoices/INV%201", item.InvoiceLink("INV 1"))

	require.NoError(t, db.Exec(`UPDATE account_branding SET company_name = 'Changed'`).Error)
	cached, err := svc.Get(context.Background(), accountID)
	require.NoError(t, err)
	assert.Equal(t, "Acme AR", cached.CompanyName)
}

func TestGetUnknownAccount(t *testing.T) {
	db := storetest.Open(t)
	svc := New(Params{DB: db, Log: zap.NewNop(), Repo: repository.Provide()})

	_, err := svc.Get(context.Background(), 42)
	assert.ErrorIs(t, err, ErrAccountNotFound)
}
