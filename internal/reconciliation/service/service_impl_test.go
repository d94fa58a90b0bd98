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
	debtorrepo "github.com/smallbiznis/recouply/internal/debtor/repository"
	debtorsvc "github.com/smallbiznis/recouply/internal/debtor/service"
	invoicedomain "github.com/smallbiznis/recouply/internal/invoice/domain"
	invoicerepo "github.com/smallbiznis/recouply/internal/invoice/repository"
	invoicesvc "github.com/smallbiznis/recouply/internal/invoice/service"
	"github.com/smallbiznis/recouply/internal/reconciliation/domain"
	"github.com/smallbiznis/recouply/internal/reconciliation/repository"
	"github.com/smallbiznis/recouply/internal/storetest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const globexRef = "RCP-GLOBEX0001"

type fixture struct {
	db        *gorm.DB
	svc       domain.Service
	node      *snowflake.Node
	ctx       context.Context
	accountID snowflake.ID
	debtorID  snowflake.ID
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	db := storetest.Open(t)
	node := storetest.Node(t)
	accountID := storetest.SeedAccount(t, db, node, false)
	debtorID := storetest.SeedDebtor(t, db, node, accountID, "Globex", globexRef)
	return fixture{
		db:        db,
		svc:       newService(db, node),
		node:      node,
		ctx:       accountcontext.WithAccountID(context.Background(), accountID),
		accountID: accountID,
		debtorID:  debtorID,
	}
}

func newService(db *gorm.DB, node *snowflake.Node) domain.Service {
	return newServiceWith(db, node, config.DefaultCollectionsConfig(), invoicerepo.Provide())
}

func newServiceWith(db *gorm.DB, node *snowflake.Node, cfg config.CollectionsConfig, invRepo invoicedomain.Repository) domain.Service {
	log := zap.NewNop()
	fake := clock.NewFakeClock(time.Date(2025, 5, 10, 9, 0, 0, 0, time.UTC))
	collections := config.NewStaticCollectionsConfigHolder(cfg)
	return New(Params{
		DB:    db,
		Log:   log,
		GenID: node,
		Clock: fake,
		Repo:  repository.Provide(),
		DebtorSvc: debtorsvc.New(debtorsvc.Params{
			DB: db, Log: log, GenID: node, Clock: fake, Repo: debtorrepo.Provide(),
		}),
		InvoiceSvc: invoicesvc.New(invoicesvc.Params{
			DB: db, Log: log, GenID: node, Clock: fake, Repo: invRepo, Collections: collections,
		}),
		InvoiceRepo: invRepo,
		Collections: collections,
	})
}

// sequential returns a service that applies payment rows one at a time.
func (f fixture) sequential(invRepo invoicedomain.Repository) fixture {
	cfg := config.DefaultCollectionsConfig()
	cfg.Workers = 1
	f.svc = newServiceWith(f.db, f.node, cfg, invRepo)
	return f
}

// contendedInvoiceRepo loses the first conflicts balance updates, optionally
// moving the balance underneath the caller before reporting the lost race.
type contendedInvoiceRepo struct {
	invoicedomain.Repository
	conflicts   int
	interleaved int64
	calls       int
}

func (r *contendedInvoiceRepo) UpdateBalance(ctx context.Context, db *gorm.DB, update invoicedomain.BalanceUpdate) (bool, error) {
	r.calls++
	if r.conflicts > 0 {
		r.conflicts--
		if r.interleaved > 0 {
			err := db.WithContext(ctx).Exec(
				`UPDATE invoices SET amount_outstanding = amount_outstanding - ? WHERE id = ?`,
				r.interleaved, update.ID,
			).Error
			if err != nil {
				return false, err
			}
		}
		return false, nil
	}
	return r.Repository.UpdateBalance(ctx, db, update)
}

func (f fixture) seedInvoice(t *testing.T, number string, outstanding int64, status string) snowflake.ID {
	t.Helper()
	return storetest.SeedInvoice(t, f.db, f.node, storetest.InvoiceFixture{
		AccountID:   f.accountID,
		DebtorID:    f.debtorID,
		Number:      number,
		DueDate:     time.Date(2025, 4, 1, 0, 0, 0, 0, time.UTC),
		Outstanding: outstanding,
		Status:      status,
	})
}

func (f fixture) invoice(t *testing.T, id snowflake.ID) *invoicedomain.Invoice {
	t.Helper()
	inv, err := invoicerepo.Provide().FindByID(context.Background(), f.db, f.accountID, id)
	require.NoError(t, err)
	require.NotNil(t, inv)
	return inv
}

func paymentRow(ref, number, amount string) map[string]string {
	return map[string]string{
		"Account":        ref,
		"Invoice":        number,
		"Paid On":        "2025-05-09",
		"payment_amount": amount,
	}
}

func (f fixture) uploadPayments(t *testing.T, rows ...map[string]string) domain.UploadResult {
	t.Helper()
	result, err := f.svc.Ingest(f.ctx, domain.UploadRequest{
		FileType: "payments",
		FieldMapping: map[string]string{
			"Account": "recouply_account_id",
			"Invoice": "payment_invoice_number",
			"Paid On": "payment_date",
		},
		Rows: rows,
	})
	require.NoError(t, err)
	return result
}

func TestFullPaymentMarksInvoicePaid(t *testing.T) {
	f := newFixture(t)
	invID := f.seedInvoice(t, "INV-1", 50000, "Open")

	result := f.uploadPayments(t, paymentRow(globexRef, "INV-1", "500.00"))

	assert.Equal(t, 1, result.Processed)
	assert.Equal(t, 1, result.Matched)
	assert.Equal(t, 1, result.InvoicesPaid)
	assert.Equal(t, 0, result.Errors)

	inv := f.invoice(t, invID)
	assert.Equal(t, int64(0), inv.AmountOutstanding)
	assert.Equal(t, invoicedomain.InvoiceStatusPaid, inv.Status)

	var links []domain.PaymentInvoiceLink
	require.NoError(t, f.db.Find(&links).Error)
	require.Len(t, links, 1)
	assert.Equal(t, int64(50000), links[0].AmountApplied)
	assert.Equal(t, 1.0, links[0].MatchConfidence)
}

func TestPartialPaymentLeavesBalance(t *testing.T) {
	f := newFixture(t)
	invID := f.seedInvoice(t, "INV-2", 50000, "Open")

	result := f.uploadPayments(t, paymentRow(globexRef, "inv-2", "$200"))

	assert.Equal(t, 1, result.InvoicesPartiallyPaid)
	inv := f.invoice(t, invID)
	assert.Equal(t, int64(30000), inv.AmountOutstanding)
	assert.Equal(t, invoicedomain.InvoiceStatusPartiallyPaid, inv.Status)
}

func TestPartialPaymentEndsPaymentPlan(t *testing.T) {
	f := newFixture(t)
	invID := f.seedInvoice(t, "INV-PP", 50000, "InPaymentPlan")

	result := f.uploadPayments(t, paymentRow(globexRef, "INV-PP", "200.00"))

	assert.Equal(t, 1, result.Matched)
	assert.Equal(t, 1, result.InvoicesPartiallyPaid)
	inv := f.invoice(t, invID)
	assert.Equal(t, int64(30000), inv.AmountOutstanding)
	assert.Equal(t, invoicedomain.InvoiceStatusPartiallyPaid, inv.Status)
}

func TestPaymentsInOneUploadShareInvoiceBalance(t *testing.T) {
	f := newFixture(t).sequential(invoicerepo.Provide())
	invID := f.seedInvoice(t, "INV-M", 50000, "Open")

	result := f.uploadPayments(t,
		paymentRow(globexRef, "INV-M", "300.00"),
		paymentRow(globexRef, "INV-M", "300.00"),
		paymentRow(globexRef, "INV-M", "10.00"),
	)

	assert.Equal(t, 3, result.Processed)
	assert.Equal(t, 2, result.Matched)
	assert.Equal(t, 1, result.NeedsReview)
	assert.Equal(t, 1, result.InvoicesPartiallyPaid)
	assert.Equal(t, 1, result.InvoicesPaid)
	assert.Equal(t, int64(10000), result.UnappliedAmount)
	require.Len(t, result.ErrorDetails, 1)
	assert.Contains(t, result.ErrorDetails[0], "already_settled")

	inv := f.invoice(t, invID)
	assert.Equal(t, int64(0), inv.AmountOutstanding)
	assert.Equal(t, invoicedomain.InvoiceStatusPaid, inv.Status)

	var links []domain.PaymentInvoiceLink
	require.NoError(t, f.db.Order("created_at ASC, id ASC").Find(&links).Error)
	require.Len(t, links, 2)
	var applied int64
	for _, link := range links {
		assert.Positive(t, link.AmountApplied)
		applied += link.AmountApplied
	}
	assert.Equal(t, int64(50000), applied)

	var payments []domain.Payment
	require.NoError(t, f.db.Order("amount ASC").Find(&payments).Error)
	require.Len(t, payments, 3)
	assert.Equal(t, int64(1000), payments[0].Amount)
	assert.Equal(t, domain.ReconciliationNeedsReview, payments[0].ReconciliationStatus)
	assert.Equal(t, "invoice already settled", payments[0].ReviewReason)
	for _, p := range payments[1:] {
		assert.Equal(t, domain.ReconciliationMatched, p.ReconciliationStatus)
	}
}

func TestLostBalanceRaceIsRetriedOnFreshBalance(t *testing.T) {
	invRepo := &contendedInvoiceRepo{Repository: invoicerepo.Provide(), conflicts: 1, interleaved: 10000}
	f := newFixture(t).sequential(invRepo)
	invID := f.seedInvoice(t, "INV-R", 50000, "Open")

	result := f.uploadPayments(t, paymentRow(globexRef, "INV-R", "200.00"))

	assert.Equal(t, 1, result.Matched)
	assert.Equal(t, 0, result.Errors)
	assert.Equal(t, 2, invRepo.calls)

	inv := f.invoice(t, invID)
	assert.Equal(t, int64(20000), inv.AmountOutstanding)
	assert.Equal(t, invoicedomain.InvoiceStatusPartiallyPaid, inv.Status)
}

func TestExhaustedBalanceRetriesRollBackPayment(t *testing.T) {
	invRepo := &contendedInvoiceRepo{Repository: invoicerepo.Provide(), conflicts: maxCASAttempts}
	f := newFixture(t).sequential(invRepo)
	invID := f.seedInvoice(t, "INV-X", 50000, "Open")

	result := f.uploadPayments(t, paymentRow(globexRef, "INV-X", "200.00"))

	assert.Equal(t, 0, result.Matched)
	assert.Equal(t, 1, result.Errors)
	assert.Equal(t, maxCASAttempts, invRepo.calls)
	require.Len(t, result.ErrorDetails, 1)
	assert.Contains(t, result.ErrorDetails[0], invoicedomain.ErrConcurrentUpdate.Error())

	var payments int64
	require.NoError(t, f.db.Model(&domain.Payment{}).Count(&payments).Error)
	assert.Zero(t, payments)
	assert.Equal(t, int64(50000), f.invoice(t, invID).AmountOutstanding)
}

func TestPaymentWithoutIdentifiersNeedsReview(t *testing.T) {
	f := newFixture(t)
	invID := f.seedInvoice(t, "INV-3", 50000, "Open")

	result := f.uploadPayments(t, map[string]string{"Paid On": "2025-05-09", "payment_amount": "100"})

	assert.Equal(t, 1, result.NeedsReview)
	assert.Equal(t, 0, result.Matched)
	assert.Equal(t, 1, result.Errors)

	inv := f.invoice(t, invID)
	assert.Equal(t, int64(50000), inv.AmountOutstanding)
	assert.Equal(t, invoicedomain.InvoiceStatusOpen, inv.Status)

	var payment domain.Payment
	require.NoError(t, f.db.First(&payment).Error)
	assert.Equal(t, domain.ReconciliationNeedsReview, payment.ReconciliationStatus)
	assert.Equal(t, "insufficient identifiers", payment.ReviewReason)
}

func TestInvoiceOfAnotherDebtorNeedsReview(t *testing.T) {
	f := newFixture(t)
	otherDebtor := storetest.SeedDebtor(t, f.db, f.node, f.accountID, "Initech", "RCP-INITECH001")
	invID := storetest.SeedInvoice(t, f.db, f.node, storetest.InvoiceFixture{
		AccountID: f.accountID, DebtorID: otherDebtor, Number: "INV-9",
		DueDate: time.Date(2025, 4, 1, 0, 0, 0, 0, time.UTC), Outstanding: 1000,
	})

	result := f.uploadPayments(t, paymentRow(globexRef, "INV-9", "10"))

	assert.Equal(t, 1, result.NeedsReview)
	assert.Equal(t, int64(1000), f.invoice(t, invID).AmountOutstanding)
}

func TestPaymentsAreIsolatedByAccount(t *testing.T) {
	f := newFixture(t)
	invID := f.seedInvoice(t, "INV-4", 50000, "Open")

	otherAccount := storetest.SeedAccount(t, f.db, f.node, false)
	otherCtx := accountcontext.WithAccountID(context.Background(), otherAccount)
	result, err := f.svc.Ingest(otherCtx, domain.UploadRequest{
		FileType: "payments",
		Rows: []map[string]string{{
			"recouply_account_id":    globexRef,
			"payment_invoice_number": "INV-4",
			"payment_date":           "2025-05-09",
			"payment_amount":         "500",
		}},
	})
	require.NoError(t, err)

	assert.Equal(t, 0, result.Matched)
	assert.Equal(t, 1, result.NeedsReview)
	assert.Equal(t, int64(50000), f.invoice(t, invID).AmountOutstanding)
}

func TestReuploadIsCountedAsDuplicate(t *testing.T) {
	f := newFixture(t)
	invID := f.seedInvoice(t, "INV-5", 50000, "Open")
	rows := []map[string]string{
		paymentRow(globexRef, "INV-5", "100"),
		paymentRow(globexRef, "INV-5", "100"),
	}

	first := f.uploadPayments(t, rows...)
	second := f.uploadPayments(t, rows...)

	assert.Equal(t, 2, first.Matched)
	assert.Equal(t, 0, second.Matched)
	assert.Equal(t, 2, second.Duplicates)
	assert.Equal(t, 0, second.Errors)
	assert.Equal(t, int64(30000), f.invoice(t, invID).AmountOutstanding)
}

func TestPaymentOnPaidInvoiceIsNotAbsorbed(t *testing.T) {
	f := newFixture(t)
	invID := f.seedInvoice(t, "INV-6", 0, "Paid")

	result := f.uploadPayments(t, paymentRow(globexRef, "INV-6", "100"))

	assert.Equal(t, 1, result.NeedsReview)
	require.Len(t, result.ErrorDetails, 1)
	assert.Contains(t, result.ErrorDetails[0], "already_settled")
	assert.Equal(t, invoicedomain.InvoiceStatusPaid, f.invoice(t, invID).Status)
}

func TestOverpaymentIsReportedUnapplied(t *testing.T) {
	f := newFixture(t)
	invID := f.seedInvoice(t, "INV-7", 10000, "Open")

	result := f.uploadPayments(t, paymentRow(globexRef, "INV-7", "150.00"))

	assert.Equal(t, 1, result.InvoicesPaid)
	assert.Equal(t, int64(5000), result.UnappliedAmount)
	assert.Equal(t, int64(0), f.invoice(t, invID).AmountOutstanding)

	var payment domain.Payment
	require.NoError(t, f.db.First(&payment).Error)
	assert.Equal(t, domain.ReconciliationMatched, payment.ReconciliationStatus)
	assert.Equal(t, int64(5000), payment.UnappliedAmount)
}

func TestAgingUploadCreatesDebtorOnce(t *testing.T) {
	f := newFixture(t)

	result, err := f.svc.Ingest(f.ctx, domain.UploadRequest{
		FileType: "invoice_aging",
		Rows: []map[string]string{
			{"customer_name": "Umbrella Corp", "invoice_number": "U-1", "due_date": "2025-04-01", "amount_outstanding": "100"},
			{"customer_name": "Umbrella Corp.", "invoice_number": "U-2", "due_date": "2025-04-15", "amount_outstanding": "250"},
			{"recouply_account_id": globexRef, "invoice_number": "G-1", "due_date": "2025-03-01", "amount_outstanding": "75"},
			{"customer_name": "Nobody", "invoice_number": "", "due_date": "2025-03-01", "amount_outstanding": "75"},
		},
	})
	require.NoError(t, err)

	assert.Equal(t, 4, result.Processed)
	assert.Equal(t, 1, result.NewCustomers)
	assert.Equal(t, 2, result.Matched)
	assert.Equal(t, 3, result.InvoicesCreated)
	assert.Equal(t, 1, result.Errors)

	var debtors int64
	require.NoError(t, f.db.Table("debtors").Where("account_id = ?", f.accountID).Count(&debtors).Error)
	assert.Equal(t, int64(2), debtors)
}

func TestRecordPaymentFeedIsIdempotent(t *testing.T) {
	f := newFixture(t)
	invID := f.seedInvoice(t, "INV-8", 50000, "Open")
	req := domain.FeedPaymentRequest{
		ExternalID:       "ch_123",
		AccountReference: globexRef,
		InvoiceNumber:    "INV-8",
		Amount:           "125.00",
		PaymentDate:      "2025-05-09",
	}

	first, err := f.svc.RecordPayment(f.ctx, req)
	require.NoError(t, err)
	second, err := f.svc.RecordPayment(f.ctx, req)
	require.NoError(t, err)

	assert.Equal(t, 1, first.Matched)
	assert.Equal(t, 1, second.Duplicates)
	assert.Equal(t, int64(37500), f.invoice(t, invID).AmountOutstanding)
}

func TestRecordPaymentFeedKeepsDistinctIdenticalPayments(t *testing.T) {
	f := newFixture(t)
	invID := f.seedInvoice(t, "INV-10", 50000, "Open")
	req := domain.FeedPaymentRequest{
		AccountReference: globexRef,
		InvoiceNumber:    "INV-10",
		Amount:           "100.00",
		PaymentDate:      "2025-05-09",
	}

	_, err := f.svc.RecordPayment(f.ctx, req)
	assert.ErrorIs(t, err, batch.ErrValidation)
	var payments int64
	require.NoError(t, f.db.Model(&domain.Payment{}).Count(&payments).Error)
	assert.Zero(t, payments)

	for _, externalID := range []string{"ch_a", "ch_b"} {
		req.ExternalID = externalID
		result, err := f.svc.RecordPayment(f.ctx, req)
		require.NoError(t, err)
		assert.Equal(t, 1, result.Matched)
	}
	assert.Equal(t, int64(30000), f.invoice(t, invID).AmountOutstanding)
}

func TestIngestRejectsBadRequests(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.Ingest(f.ctx, domain.UploadRequest{FileType: "payments"})
	assert.ErrorIs(t, err, domain.ErrEmptyUpload)

	_, err = f.svc.Ingest(f.ctx, domain.UploadRequest{FileType: "ledger", Rows: []map[string]string{{}}})
	assert.Error(t, err)

	_, err = f.svc.Ingest(context.Background(), domain.UploadRequest{FileType: "payments"})
	assert.ErrorIs(t, err, domain.ErrInvalidAccount)
}
