package service

import (
	"context"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/recouply/internal/accountcontext"
	"github.com/smallbiznis/recouply/internal/batch"
	"github.com/smallbiznis/recouply/internal/clock"
	"github.com/smallbiznis/recouply/internal/config"
	"github.com/smallbiznis/recouply/internal/invoice/domain"
	"github.com/smallbiznis/recouply/internal/invoice/repository"
	"github.com/smallbiznis/recouply/internal/storetest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type fixture struct {
	db        *gorm.DB
	svc       domain.Service
	clock     *clock.FakeClock
	ctx       context.Context
	debtorID  snowflake.ID
	node      *snowflake.Node
	accountID snowflake.ID
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	db := storetest.Open(t)
	node := storetest.Node(t)
	accountID := storetest.SeedAccount(t, db, node, false)
	debtorID := storetest.SeedDebtor(t, db, node, accountID, "Globex", "RCP-GLOBEX0001")
	fake := clock.NewFakeClock(time.Date(2025, 5, 10, 9, 0, 0, 0, time.UTC))

	svc := New(Params{
		DB:          db,
		Log:         zap.NewNop(),
		GenID:       node,
		Clock:       fake,
		Repo:        repository.Provide(),
		Collections: config.NewStaticCollectionsConfigHolder(config.DefaultCollectionsConfig()),
	})
	return fixture{
		db:        db,
		svc:       svc,
		clock:     fake,
		ctx:       accountcontext.WithAccountID(context.Background(), accountID),
		debtorID:  debtorID,
		node:      node,
		accountID: accountID,
	}
}

func (f fixture) ingest(t *testing.T, due time.Time, original, outstanding int64) (domain.Invoice, domain.IngestOutcome) {
	t.Helper()
	inv, outcome, err := f.svc.Ingest(f.ctx, domain.IngestInvoiceRequest{
		DebtorID:          f.debtorID,
		InvoiceNumber:     "INV-100",
		DueDate:           due,
		AmountOriginal:    original,
		AmountOutstanding: outstanding,
		Currency:          "USD",
	})
	require.NoError(t, err)
	return inv, outcome
}

func TestIngestCreatesInvoiceInBucket(t *testing.T) {
	f := newFixture(t)

	inv, outcome := f.ingest(t, time.Date(2025, 3, 25, 0, 0, 0, 0, time.UTC), 50000, 50000)

	assert.Equal(t, domain.IngestCreated, outcome)
	assert.Equal(t, domain.InvoiceStatusOpen, inv.Status)
	assert.Equal(t, "31-60", inv.AgingBucket)
	assert.Equal(t, time.Date(2025, 5, 10, 0, 0, 0, 0, time.UTC), inv.BucketEnteredAt)
	assert.Equal(t, "inv-100", inv.InvoiceNumberNormalized)
}

func TestIngestRefreshOnlyLowersOutstanding(t *testing.T) {
	f := newFixture(t)
	due := time.Date(2025, 5, 1, 0, 0, 0, 0, time.UTC)
	created, _ := f.ingest(t, due, 50000, 50000)

	updated, outcome := f.ingest(t, due, 50000, 30000)
	assert.Equal(t, domain.IngestUpdated, outcome)
	assert.Equal(t, int64(30000), updated.AmountOutstanding)
	assert.Equal(t, domain.InvoiceStatusPartiallyPaid, updated.Status)
	assert.True(t, created.BucketEnteredAt.Equal(updated.BucketEnteredAt))

	raised, _ := f.ingest(t, due, 50000, 45000)
	assert.Equal(t, int64(30000), raised.AmountOutstanding)
}

func TestIngestMovesBucketEntryOnlyOnBucketChange(t *testing.T) {
	f := newFixture(t)
	due := time.Date(2025, 5, 1, 0, 0, 0, 0, time.UTC)
	f.ingest(t, due, 1000, 1000)

	f.clock.Advance(40 * 24 * time.Hour)
	moved, _ := f.ingest(t, due, 1000, 1000)

	assert.Equal(t, "31-60", moved.AgingBucket)
	assert.Equal(t, time.Date(2025, 6, 19, 0, 0, 0, 0, time.UTC), moved.BucketEnteredAt)
}

func TestIngestLeavesTerminalInvoiceUntouched(t *testing.T) {
	f := newFixture(t)
	due := time.Date(2025, 5, 1, 0, 0, 0, 0, time.UTC)
	paid, _ := f.ingest(t, due, 1000, 0)
	require.Equal(t, domain.InvoiceStatusPaid, paid.Status)

	again, outcome := f.ingest(t, due, 1000, 1000)
	assert.Equal(t, domain.IngestUnchanged, outcome)
	assert.Equal(t, int64(0), again.AmountOutstanding)
}

func TestIngestRejectsInvoiceOwnedByOtherDebtor(t *testing.T) {
	f := newFixture(t)
	due := time.Date(2025, 5, 1, 0, 0, 0, 0, time.UTC)
	f.ingest(t, due, 1000, 1000)
	other := storetest.SeedDebtor(t, f.db, f.node, f.accountID, "Initech", "RCP-INITECH001")

	_, _, err := f.svc.Ingest(f.ctx, domain.IngestInvoiceRequest{
		DebtorID:          other,
		InvoiceNumber:     "inv-100",
		DueDate:           due,
		AmountOriginal:    1000,
		AmountOutstanding: 1000,
		Currency:          "USD",
	})
	assert.ErrorIs(t, err, batch.ErrValidation)
	assert.ErrorIs(t, err, domain.ErrOwnedByOtherDebtor)
}

func TestUpdateStatusTransitions(t *testing.T) {
	f := newFixture(t)
	inv, _ := f.ingest(t, time.Date(2025, 5, 1, 0, 0, 0, 0, time.UTC), 1000, 1000)

	plan, err := f.svc.UpdateStatus(f.ctx, inv.ID.String(), "InPaymentPlan")
	require.NoError(t, err)
	assert.Equal(t, domain.InvoiceStatusInPaymentPlan, plan.Status)

	_, err = f.svc.UpdateStatus(f.ctx, inv.ID.String(), "Paid")
	assert.ErrorIs(t, err, domain.ErrInvalidStatus)

	voided, err := f.svc.UpdateStatus(f.ctx, inv.ID.String(), "voided")
	require.NoError(t, err)
	assert.Equal(t, domain.InvoiceStatusVoided, voided.Status)

	_, err = f.svc.UpdateStatus(f.ctx, inv.ID.String(), "Open")
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)
}

func TestSetOutreachPaused(t *testing.T) {
	f := newFixture(t)
	inv, _ := f.ingest(t, time.Date(2025, 5, 1, 0, 0, 0, 0, time.UTC), 1000, 1000)

	paused, err := f.svc.SetOutreachPaused(f.ctx, inv.ID.String(), true)
	require.NoError(t, err)
	assert.True(t, paused.OutreachPaused)

	_, err = f.svc.SetOutreachPaused(f.ctx, f.node.Generate().String(), true)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}
