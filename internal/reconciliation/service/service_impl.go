package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/recouply/internal/accountcontext"
	"github.com/smallbiznis/recouply/internal/batch"
	"github.com/smallbiznis/recouply/internal/clock"
	"github.com/smallbiznis/recouply/internal/config"
	debtordomain "github.com/smallbiznis/recouply/internal/debtor/domain"
	invoicedomain "github.com/smallbiznis/recouply/internal/invoice/domain"
	obsmetrics "github.com/smallbiznis/recouply/internal/observability/metrics"
	"github.com/smallbiznis/recouply/internal/observability/tracing"
	"github.com/smallbiznis/recouply/internal/reconciliation/balance"
	"github.com/smallbiznis/recouply/internal/reconciliation/domain"
	"github.com/smallbiznis/recouply/internal/reconciliation/index"
	"github.com/smallbiznis/recouply/internal/reconciliation/matcher"
	"github.com/smallbiznis/recouply/internal/upload"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	tracerName     = "recouply/reconciliation"
	maxCASAttempts = 3
)

// Counter names kept by the batch collector.
const (
	countMatched         = "matched"
	countNewCustomers    = "new_customers"
	countCreated         = "invoices_created"
	countUpdated         = "invoices_updated"
	countPaid            = "invoices_paid"
	countPartiallyPaid   = "invoices_partially_paid"
	countNeedsReview     = "needs_review"
	countDuplicates      = "duplicates"
	countUnappliedAmount = "unapplied_amount"
)

type Params struct {
	fx.In

	DB          *gorm.DB
	Log         *zap.Logger
	GenID       *snowflake.Node
	Clock       clock.Clock
	Repo        domain.Repository
	DebtorSvc   debtordomain.Service
	InvoiceSvc  invoicedomain.Service
	InvoiceRepo invoicedomain.Repository
	Collections *config.CollectionsConfigHolder
	ObsMetrics  *obsmetrics.Metrics `optional:"true"`
}

type Service struct {
	db          *gorm.DB
	log         *zap.Logger
	genID       *snowflake.Node
	clock       clock.Clock
	repo        domain.Repository
	debtorSvc   debtordomain.Service
	invoiceSvc  invoicedomain.Service
	invoiceRepo invoicedomain.Repository
	collections *config.CollectionsConfigHolder
	metrics     *obsmetrics.Metrics
}

func New(p Params) domain.Service {
	return &Service{
		db:          p.DB,
		log:         p.Log.Named("reconciliation.service"),
		genID:       p.GenID,
		clock:       p.Clock,
		repo:        p.Repo,
		debtorSvc:   p.DebtorSvc,
		invoiceSvc:  p.InvoiceSvc,
		invoiceRepo: p.InvoiceRepo,
		collections: p.Collections,
		metrics:     p.ObsMetrics,
	}
}

// Ingest processes one uploaded spreadsheet. Row failures are reported in the
// result; an error is returned only when the batch could not run at all.
func (s *Service) Ingest(ctx context.Context, req domain.UploadRequest) (domain.UploadResult, error) {
	accountID, ok := accountcontext.AccountIDFromContext(ctx)
	if !ok {
		return domain.UploadResult{}, domain.ErrInvalidAccount
	}
	fileType, err := upload.ParseFileType(req.FileType)
	if err != nil {
		return domain.UploadResult{}, err
	}
	if len(req.Rows) == 0 {
		return domain.UploadResult{}, fmt.Errorf("%w: %w", batch.ErrValidation, domain.ErrEmptyUpload)
	}
	mapping, err := upload.NewMapping(req.FieldMapping)
	if err != nil {
		return domain.UploadResult{}, err
	}

	ctx, span := tracing.StartSpan(ctx, tracerName, "reconciliation.ingest",
		attribute.String("file_type", string(fileType)),
		attribute.Int("rows", len(req.Rows)),
	)
	defer span.End()

	snap, err := s.loadSnapshot(ctx, accountID)
	if err != nil {
		span.RecordError(tracing.SafeError(err))
		return domain.UploadResult{}, err
	}

	collector := batch.NewCollector()
	switch fileType {
	case upload.FileTypeInvoiceAging:
		records, rowErrs := upload.ParseAging(req.Rows, mapping)
		s.failAll(collector, rowErrs)
		err = s.ingestAging(ctx, snap, records, collector)
	case upload.FileTypePayments:
		records, rowErrs := upload.ParsePayments(req.Rows, mapping)
		s.failAll(collector, rowErrs)
		err = s.ingestPayments(ctx, accountID, snap, records, collector)
	}
	if err != nil {
		span.RecordError(tracing.SafeError(err))
		return domain.UploadResult{}, err
	}

	result := summarize(len(req.Rows), collector)
	s.recordUpload(ctx, string(fileType), result)
	s.log.Info("upload processed",
		zap.String("account_id", accountID.String()),
		zap.String("file_type", string(fileType)),
		zap.Int("processed", result.Processed),
		zap.Int("matched", result.Matched),
		zap.Int("errors", result.Errors),
		zap.Int("needs_review", result.NeedsReview),
		zap.Int("duplicates", result.Duplicates),
	)
	return result, nil
}

// RecordPayment reconciles a single payment pushed by an external feed.
func (s *Service) RecordPayment(ctx context.Context, req domain.FeedPaymentRequest) (domain.UploadResult, error) {
	accountID, ok := accountcontext.AccountIDFromContext(ctx)
	if !ok {
		return domain.UploadResult{}, domain.ErrInvalidAccount
	}
	// Without a feed id a redelivery and a second identical payment look the same.
	externalID := strings.TrimSpace(req.ExternalID)
	if externalID == "" {
		return domain.UploadResult{}, batch.Validationf("externalId is required")
	}

	records, rowErrs := upload.ParsePayments([]map[string]string{{
		upload.FieldAccountReference:     req.AccountReference,
		upload.FieldPaymentInvoiceNumber: req.InvoiceNumber,
		upload.FieldPaymentAmount:        req.Amount,
		upload.FieldCurrency:             req.Currency,
		upload.FieldPaymentDate:          req.PaymentDate,
	}}, nil)
	if len(rowErrs) > 0 {
		return domain.UploadResult{}, rowErrs[0].Err
	}

	ctx, span := tracing.StartSpan(ctx, tracerName, "reconciliation.record_payment")
	defer span.End()

	snap, err := s.loadSnapshot(ctx, accountID)
	if err != nil {
		return domain.UploadResult{}, err
	}

	collector := batch.NewCollector()
	if err := s.reconcilePayment(ctx, accountID, snap, records[0], feedFingerprint(accountID, externalID), collector); err != nil {
		return domain.UploadResult{}, err
	}
	result := summarize(1, collector)
	s.recordUpload(ctx, string(upload.FileTypePayments), result)
	return result, nil
}

func (s *Service) loadSnapshot(ctx context.Context, accountID snowflake.ID) (*index.Snapshot, error) {
	debtors, err := s.debtorSvc.List(ctx)
	if err != nil {
		return nil, err
	}
	items, err := s.invoiceRepo.ListByAccount(ctx, s.db, accountID)
	if err != nil {
		return nil, err
	}
	invoices := make([]invoicedomain.Invoice, 0, len(items))
	for _, item := range items {
		if item != nil {
			invoices = append(invoices, *item)
		}
	}
	return index.Build(debtors, invoices), nil
}

type agingJob struct {
	record   upload.AgingRecord
	debtorID snowflake.ID
}

// ingestAging resolves debtors row by row so that a debtor created for one
// row is visible to the rows after it, then ingests invoices concurrently.
func (s *Service) ingestAging(ctx context.Context, snap *index.Snapshot, records []upload.AgingRecord, collector *batch.Collector) error {
	jobs := make([]agingJob, 0, len(records))
	for _, record := range records {
		if err := ctx.Err(); err != nil {
			return err
		}
		debtorID, method, found := matcher.MatchDebtor(snap, matcher.DebtorInput{
			AccountReference: record.AccountReference,
			ExternalID:       record.CustomerID,
			CompanyName:      record.CompanyName,
			CustomerName:     record.CustomerName,
		})
		if found {
			collector.Inc(countMatched, 1)
			s.log.Debug("debtor matched",
				zap.Int("row", record.Row),
				zap.String("method", method),
				zap.String("debtor_id", debtorID.String()),
			)
			jobs = append(jobs, agingJob{record: record, debtorID: debtorID})
			continue
		}
		debtor, err := s.debtorSvc.Create(ctx, debtordomain.CreateDebtorRequest{
			Name:               record.CustomerName,
			CompanyName:        record.CompanyName,
			Email:              record.CustomerEmail,
			ExternalCustomerID: record.CustomerID,
		})
		if err != nil {
			if errors.Is(err, debtordomain.ErrInvalidName) {
				err = batch.Validationf("missing %s", upload.FieldCustomerName)
			}
			s.fail(collector, batch.NewRowError(record.Row, record.InvoiceNumber, err))
			continue
		}
		collector.Inc(countNewCustomers, 1)
		snap = snap.WithDebtor(debtor)
		jobs = append(jobs, agingJob{record: record, debtorID: debtor.ID})
	}

	workers := s.collections.Get().Workers
	return batch.ForEach(ctx, workers, jobs, func(ctx context.Context, _ int, job agingJob) error {
		_, outcome, err := s.invoiceSvc.Ingest(ctx, invoicedomain.IngestInvoiceRequest{
			DebtorID:          job.debtorID,
			InvoiceNumber:     job.record.InvoiceNumber,
			IssueDate:         job.record.IssueDate,
			DueDate:           job.record.DueDate,
			AmountOriginal:    job.record.AmountOriginal,
			AmountOutstanding: job.record.AmountOutstanding,
			Currency:          job.record.Currency,
		})
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			s.fail(collector, batch.NewRowError(job.record.Row, job.record.InvoiceNumber, err))
			return nil
		}
		switch outcome {
		case invoicedomain.IngestCreated:
			collector.Inc(countCreated, 1)
		case invoicedomain.IngestUpdated:
			collector.Inc(countUpdated, 1)
		}
		return nil
	})
}

func (s *Service) ingestPayments(ctx context.Context, accountID snowflake.ID, snap *index.Snapshot, records []upload.PaymentRecord, collector *batch.Collector) error {
	// Identical rows in one file are distinct payments; the occurrence index
	// keeps their fingerprints apart while a re-upload reproduces them.
	fingerprints := make([]string, len(records))
	seen := map[string]int{}
	for i, record := range records {
		base := paymentFingerprint(accountID, record, 0)
		fingerprints[i] = paymentFingerprint(accountID, record, seen[base])
		seen[base]++
	}

	workers := s.collections.Get().Workers
	return batch.ForEach(ctx, workers, records, func(ctx context.Context, idx int, record upload.PaymentRecord) error {
		return s.reconcilePayment(ctx, accountID, snap, record, fingerprints[idx], collector)
	})
}

// reconcilePayment records one payment and applies it in a single
// transaction. It returns an error only for failures that must stop the batch.
func (s *Service) reconcilePayment(ctx context.Context, accountID snowflake.ID, snap *index.Snapshot, record upload.PaymentRecord, fingerprint string, collector *batch.Collector) error {
	var outcome paymentOutcome
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		outcome, err = s.applyPayment(ctx, tx, accountID, snap, record, fingerprint)
		return err
	})
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		outcome = paymentOutcome{rowErr: err}
	}

	switch {
	case outcome.duplicate:
		collector.Inc(countDuplicates, 1)
		s.metrics.RecordPaymentReconciled(ctx, "duplicate", "")
	case outcome.matched:
		collector.Inc(countMatched, 1)
		collector.Inc(countUnappliedAmount, int(outcome.unapplied))
		if outcome.status == invoicedomain.InvoiceStatusPaid {
			collector.Inc(countPaid, 1)
		} else {
			collector.Inc(countPartiallyPaid, 1)
		}
		s.metrics.RecordPaymentReconciled(ctx, string(domain.ReconciliationMatched), "")
	case outcome.needsReview:
		collector.Inc(countNeedsReview, 1)
		s.metrics.RecordPaymentReconciled(ctx, string(domain.ReconciliationNeedsReview), outcome.reason)
	}
	if outcome.rowErr != nil {
		s.fail(collector, batch.NewRowError(record.Row, record.Ref(), outcome.rowErr))
	}
	return nil
}

type paymentOutcome struct {
	duplicate   bool
	matched     bool
	needsReview bool
	reason      string
	status      invoicedomain.InvoiceStatus
	unapplied   int64
	rowErr      error
}

// applyPayment runs inside the payment transaction. A review outcome is
// committed and carries its cause in rowErr; a returned error rolls back.
func (s *Service) applyPayment(ctx context.Context, tx *gorm.DB, accountID snowflake.ID, snap *index.Snapshot, record upload.PaymentRecord, fingerprint string) (paymentOutcome, error) {
	now := s.clock.Now().UTC()
	payment := domain.Payment{
		ID:                   s.genID.Generate(),
		AccountID:            accountID,
		Amount:               record.Amount,
		Currency:             record.Currency,
		PaymentDate:          record.PaymentDate,
		InvoiceNumberHint:    record.InvoiceNumber,
		AccountReferenceHint: record.AccountReference,
		ReconciliationStatus: domain.ReconciliationUnmatched,
		UnappliedAmount:      record.Amount,
		SourceFingerprint:    fingerprint,
		CreatedAt:            now,
		UpdatedAt:            now,
	}
	inserted, err := s.repo.InsertPayment(ctx, tx, &payment)
	if err != nil {
		return paymentOutcome{}, err
	}
	if !inserted {
		return paymentOutcome{duplicate: true}, nil
	}

	review := func(debtorID *snowflake.ID, reason string, cause error) (paymentOutcome, error) {
		if err := s.repo.MarkNeedsReview(ctx, tx, payment.ID, debtorID, reason, now); err != nil {
			return paymentOutcome{}, err
		}
		return paymentOutcome{needsReview: true, reason: reason, rowErr: cause}, nil
	}

	match, err := matcher.MatchPayment(snap, matcher.PaymentInput{
		AccountReference: record.AccountReference,
		InvoiceNumber:    record.InvoiceNumber,
	})
	if err != nil {
		var debtorID *snowflake.ID
		if id, ok := snap.DebtorByReference(record.AccountReference); ok {
			debtorID = &id
		}
		return review(debtorID, matcher.ReasonOf(err), err)
	}

	var result balance.Result
	for attempt := 0; ; attempt++ {
		invoice, err := s.invoiceRepo.FindByID(ctx, tx, accountID, match.InvoiceID)
		if err != nil {
			return paymentOutcome{}, err
		}
		if invoice == nil {
			return review(&match.DebtorID, matcher.ReasonInvoiceNotFound,
				fmt.Errorf("%w: %s", batch.ErrMatchNotFound, matcher.ReasonInvoiceNotFound))
		}
		if invoice.Currency != "" && !strings.EqualFold(invoice.Currency, record.Currency) {
			reason := "currency mismatch"
			return review(&match.DebtorID, reason, batch.Validationf("%s: invoice %s, payment %s", reason, invoice.Currency, record.Currency))
		}

		result, err = balance.Apply(balance.State{Outstanding: invoice.AmountOutstanding, Status: invoice.Status}, record.Amount)
		if err != nil {
			if errors.Is(err, batch.ErrAlreadySettled) || errors.Is(err, balance.ErrInvoiceNotPayable) {
				return review(&match.DebtorID, reviewReason(err), err)
			}
			return paymentOutcome{}, err
		}

		updated, err := s.invoiceRepo.UpdateBalance(ctx, tx, invoicedomain.BalanceUpdate{
			ID:                  invoice.ID,
			ExpectedOutstanding: invoice.AmountOutstanding,
			ExpectedStatus:      invoice.Status,
			Outstanding:         result.NewOutstanding,
			Status:              result.NewStatus,
			UpdatedAt:           now,
		})
		if err != nil {
			return paymentOutcome{}, err
		}
		if updated {
			break
		}
		if attempt+1 >= maxCASAttempts {
			return paymentOutcome{}, invoicedomain.ErrConcurrentUpdate
		}
	}

	if err := s.repo.InsertLink(ctx, tx, &domain.PaymentInvoiceLink{
		ID:              s.genID.Generate(),
		PaymentID:       payment.ID,
		InvoiceID:       match.InvoiceID,
		AmountApplied:   result.Applied,
		MatchConfidence: match.Confidence,
		MatchMethod:     match.Method,
		CreatedAt:       now,
	}); err != nil {
		return paymentOutcome{}, err
	}
	if err := s.repo.MarkMatched(ctx, tx, payment.ID, match.DebtorID, result.Unapplied, now); err != nil {
		return paymentOutcome{}, err
	}

	s.log.Debug("payment applied",
		zap.String("payment_id", payment.ID.String()),
		zap.String("invoice_id", match.InvoiceID.String()),
		zap.Int64("applied", result.Applied),
		zap.Int64("unapplied", result.Unapplied),
		zap.String("status", string(result.NewStatus)),
	)
	return paymentOutcome{matched: true, status: result.NewStatus, unapplied: result.Unapplied}, nil
}

func reviewReason(err error) string {
	switch {
	case errors.Is(err, batch.ErrAlreadySettled):
		return "invoice already settled"
	case errors.Is(err, balance.ErrInvoiceNotPayable):
		return "invoice not payable"
	default:
		return err.Error()
	}
}

func (s *Service) failAll(collector *batch.Collector, rowErrs []batch.RowError) {
	for _, rowErr := range rowErrs {
		s.fail(collector, rowErr)
	}
}

func (s *Service) fail(collector *batch.Collector, rowErr batch.RowError) {
	if !collector.Fail(rowErr) {
		return
	}
	s.log.Warn("upload row failed",
		zap.Int("row", rowErr.Row),
		zap.String("ref", rowErr.Ref),
		zap.String("error_type", obsmetrics.ClassifyEngineErrorType(rowErr.Err)),
		zap.Bool("retryable", obsmetrics.IsEngineErrorRetryable(rowErr.Err)),
		zap.Error(rowErr.Err),
	)
}

func (s *Service) recordUpload(ctx context.Context, fileType string, result domain.UploadResult) {
	s.metrics.RecordUploadRows(ctx, fileType, "processed", result.Processed)
	s.metrics.RecordUploadRows(ctx, fileType, "error", result.Errors)
	s.metrics.RecordUploadRows(ctx, fileType, "duplicate", result.Duplicates)
}

func summarize(processed int, collector *batch.Collector) domain.UploadResult {
	return domain.UploadResult{
		Processed:             processed,
		Matched:               collector.Count(countMatched),
		NewCustomers:          collector.Count(countNewCustomers),
		Errors:                collector.ErrorCount(),
		InvoicesCreated:       collector.Count(countCreated),
		InvoicesUpdated:       collector.Count(countUpdated),
		InvoicesPaid:          collector.Count(countPaid),
		InvoicesPartiallyPaid: collector.Count(countPartiallyPaid),
		NeedsReview:           collector.Count(countNeedsReview),
		Duplicates:            collector.Count(countDuplicates),
		UnappliedAmount:       int64(collector.Count(countUnappliedAmount)),
		ErrorDetails:          collector.Messages(),
	}
}

func paymentFingerprint(accountID snowflake.ID, record upload.PaymentRecord, occurrence int) string {
	parts := []string{
		accountID.String(),
		index.NormalizeKey(record.AccountReference),
		invoicedomain.NormalizeInvoiceNumber(record.InvoiceNumber),
		index.NormalizeKey(record.CustomerID),
		record.PaymentDate.UTC().Format(time.DateOnly),
		strconv.FormatInt(record.Amount, 10),
		record.Currency,
		strconv.Itoa(occurrence),
	}
	return digest(parts)
}

func feedFingerprint(accountID snowflake.ID, externalID string) string {
	return digest([]string{accountID.String(), "feed", externalID})
}

func digest(parts []string) string {
	sum := sha256.Sum256([]byte(strings.Join(parts, "\x1f")))
	return hex.EncodeToString(sum[:])
}
