package service

import (
	"context"
	"testing"
	"time"

	"github.com/smallbiznis/recouply/internal/accountcontext"
	"github.com/smallbiznis/recouply/internal/clock"
	"github.com/smallbiznis/recouply/internal/debtor/domain"
	"github.com/smallbiznis/recouply/internal/debtor/repository"
	"github.com/smallbiznis/recouply/internal/storetest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var createdAt = time.Date(2025, 5, 10, 9, 0, 0, 0, time.UTC)

func TestCreateAndList(t *testing.T) {
	db := storetest.Open(t)
	node := storetest.Node(t)
	accountID := storetest.SeedAccount(t, db, node, false)
	svc := New(Params{DB: db, Log: zap.NewNop(), GenID: node, Clock: clock.NewFakeClock(createdAt), Repo: repository.Provide()})
	ctx := accountcontext.WithAccountID(context.Background(), accountID)

	created, err := svc.Create(ctx, domain.CreateDebtorRequest{
		CompanyName:        "Globex LLC",
		Email:              "ap@globex.test",
		ExternalCustomerID: "C-100",
	})
	require.NoError(t, err)
	assert.Equal(t, "Globex LLC", created.Name)
	require.NotNil(t, created.ExternalCustomerID)
	assert.Equal(t, "C-100", *created.ExternalCustomerID)
	assert.True(t, created.CreatedAt.Equal(createdAt))
	assert.True(t, created.UpdatedAt.Equal(createdAt))

	debtors, err := svc.List(ctx)
	require.NoError(t, err)
	require.Len(t, debtors, 1)
	assert.Equal(t, created.ReferenceID, debtors[0].ReferenceID)
	assert.True(t, debtors[0].CreatedAt.Equal(createdAt))
}

func TestCreateRequiresAccountAndName(t *testing.T) {
	db := storetest.Open(t)
	node := storetest.Node(t)
	accountID := storetest.SeedAccount(t, db, node, false)
	svc := New(Params{DB: db, Log: zap.NewNop(), GenID: node, Clock: clock.NewFakeClock(createdAt), Repo: repository.Provide()})

	_, err := svc.Create(context.Background(), domain.CreateDebtorRequest{Name: "x"})
	assert.ErrorIs(t, err, domain.ErrInvalidAccount)

	ctx := accountcontext.WithAccountID(context.Background(), accountID)
	_, err = svc.Create(ctx, domain.CreateDebtorRequest{Name: "  "})
	assert.ErrorIs(t, err, domain.ErrInvalidName)
}

func TestSetOutreachPausedIsAccountScoped(t *testing.T) {
	db := storetest.Open(t)
	node := storetest.Node(t)
	accountID := storetest.SeedAccount(t, db, node, false)
	otherAccount := storetest.SeedAccount(t, db, node, false)
	svc := New(Params{DB: db, Log: zap.NewNop(), GenID: node, Clock: clock.NewFakeClock(createdAt), Repo: repository.Provide()})
	ctx := accountcontext.WithAccountID(context.Background(), accountID)

	created, err := svc.Create(ctx, domain.CreateDebtorRequest{Name: "Initech"})
	require.NoError(t, err)

	paused, err := svc.SetOutreachPaused(ctx, created.ID.String(), true)
	require.NoError(t, err)
	assert.True(t, paused.OutreachPaused)

	otherCtx := accountcontext.WithAccountID(context.Background(), otherAccount)
	_, err = svc.SetOutreachPaused(otherCtx, created.ID.String(), false)
	assert.ErrorIs(t, err, domain.ErrNotFound)

	_, err = svc.SetOutreachPaused(ctx, "nope", false)
	assert.ErrorIs(t, err, domain.ErrInvalidID)
}
