package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/recouply/internal/accountcontext"
	"github.com/smallbiznis/recouply/internal/batch"
	"github.com/smallbiznis/recouply/internal/clock"
	"github.com/smallbiznis/recouply/internal/config"
	"github.com/smallbiznis/recouply/internal/invoice/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const maxCASAttempts = 3

type Params struct {
	fx.In

	DB          *gorm.DB
	Log         *zap.Logger
	GenID       *snowflake.Node
	Clock       clock.Clock
	Repo        domain.Repository
	Collections *config.CollectionsConfigHolder
}

type Service struct {
	db          *gorm.DB
	log         *zap.Logger
	genID       *snowflake.Node
	clock       clock.Clock
	repo        domain.Repository
	collections *config.CollectionsConfigHolder
}

func New(p Params) domain.Service {
	return &Service{
		db:          p.DB,
		log:         p.Log.Named("invoice.service"),
		genID:       p.GenID,
		clock:       p.Clock,
		repo:        p.Repo,
		collections: p.Collections,
	}
}

// Ingest creates the invoice or refreshes an existing active one from an
// aging upload. A refresh may only lower the outstanding balance and leaves
// terminal invoices untouched.
func (s *Service) Ingest(ctx context.Context, req domain.IngestInvoiceRequest) (domain.Invoice, domain.IngestOutcome, error) {
	accountID, ok := accountcontext.AccountIDFromContext(ctx)
	if !ok {
		return domain.Invoice{}, "", domain.ErrInvalidAccount
	}
	number := strings.TrimSpace(req.InvoiceNumber)
	if number == "" {
		return domain.Invoice{}, "", batch.Validationf("invoice_number is required")
	}
	if req.DebtorID == 0 {
		return domain.Invoice{}, "", batch.Validationf("customer is required")
	}

	now := s.clock.Now().UTC()
	today := clock.StartOfDay(now)
	bucket := s.collections.Get().BucketFor(domain.DaysPastDue(req.DueDate, today))
	normalized := domain.NormalizeInvoiceNumber(number)

	invoice := domain.Invoice{
		ID:                      s.genID.Generate(),
		AccountID:               accountID,
		DebtorID:                req.DebtorID,
		InvoiceNumber:           number,
		InvoiceNumberNormalized: normalized,
		IssueDate:               req.IssueDate,
		DueDate:                 clock.StartOfDay(req.DueDate),
		AmountOriginal:          req.AmountOriginal,
		AmountOutstanding:       max(req.AmountOutstanding, 0),
		Currency:                req.Currency,
		Status:                  initialStatus(req.AmountOriginal, req.AmountOutstanding),
		AgingBucket:             bucket,
		BucketEnteredAt:         today,
		CreatedAt:               now,
		UpdatedAt:               now,
	}
	inserted, err := s.repo.Insert(ctx, s.db, &invoice)
	if err != nil {
		return domain.Invoice{}, "", err
	}
	if inserted {
		return invoice, domain.IngestCreated, nil
	}

	for attempt := 0; attempt < maxCASAttempts; attempt++ {
		existing, err := s.repo.FindByNumber(ctx, s.db, accountID, normalized)
		if err != nil {
			return domain.Invoice{}, "", err
		}
		if existing == nil {
			return domain.Invoice{}, "", domain.ErrNotFound
		}
		if existing.DebtorID != req.DebtorID {
			return domain.Invoice{}, "", fmt.Errorf("%w: %w", batch.ErrValidation, domain.ErrOwnedByOtherDebtor)
		}
		if existing.Status.IsTerminal() {
			return *existing, domain.IngestUnchanged, nil
		}

		update := refreshFor(*existing, req, bucket, today, now)
		applied, err := s.repo.Refresh(ctx, s.db, update)
		if err != nil {
			return domain.Invoice{}, "", err
		}
		if applied {
			refreshed := *existing
			refreshed.IssueDate = update.IssueDate
			refreshed.DueDate = update.DueDate
			refreshed.AmountOriginal = update.AmountOriginal
			refreshed.AmountOutstanding = update.Outstanding
			refreshed.Status = update.Status
			refreshed.AgingBucket = update.AgingBucket
			refreshed.BucketEnteredAt = update.BucketEnteredAt
			refreshed.UpdatedAt = now
			return refreshed, domain.IngestUpdated, nil
		}
	}
	return domain.Invoice{}, "", domain.ErrConcurrentUpdate
}

func initialStatus(original, outstanding int64) domain.InvoiceStatus {
	switch {
	case outstanding <= 0:
		return domain.InvoiceStatusPaid
	case outstanding < original:
		return domain.InvoiceStatusPartiallyPaid
	default:
		return domain.InvoiceStatusOpen
	}
}

func refreshFor(existing domain.Invoice, req domain.IngestInvoiceRequest, bucket string, today, now time.Time) domain.RefreshUpdate {
	outstanding := existing.AmountOutstanding
	status := existing.Status
	if req.AmountOutstanding < outstanding {
		outstanding = max(req.AmountOutstanding, 0)
		status = domain.StatusForBalance(outstanding)
	}

	enteredAt := existing.BucketEnteredAt
	if bucket != existing.AgingBucket {
		enteredAt = today
	}

	issueDate := existing.IssueDate
	if req.IssueDate != nil {
		issueDate = req.IssueDate
	}

	return domain.RefreshUpdate{
		BalanceUpdate: domain.BalanceUpdate{
			ID:                  existing.ID,
			ExpectedOutstanding: existing.AmountOutstanding,
			ExpectedStatus:      existing.Status,
			Outstanding:         outstanding,
			Status:              status,
			UpdatedAt:           now,
		},
		IssueDate:       issueDate,
		DueDate:         clock.StartOfDay(req.DueDate),
		AmountOriginal:  req.AmountOriginal,
		AgingBucket:     bucket,
		BucketEnteredAt: enteredAt,
	}
}

func (s *Service) GetByID(ctx context.Context, id string) (domain.Invoice, error) {
	accountID, invoiceID, err := s.scope(ctx, id)
	if err != nil {
		return domain.Invoice{}, err
	}
	item, err := s.repo.FindByID(ctx, s.db, accountID, invoiceID)
	if err != nil {
		return domain.Invoice{}, err
	}
	if item == nil {
		return domain.Invoice{}, domain.ErrNotFound
	}
	return *item, nil
}

// UpdateStatus applies a manual correction. Paid is reached only through
// payments, and terminal invoices cannot be reopened.
func (s *Service) UpdateStatus(ctx context.Context, id string, raw string) (domain.Invoice, error) {
	target, ok := domain.ParseStatus(raw)
	if !ok || target == domain.InvoiceStatusPaid || target == domain.InvoiceStatusPartiallyPaid {
		return domain.Invoice{}, domain.ErrInvalidStatus
	}
	accountID, invoiceID, err := s.scope(ctx, id)
	if err != nil {
		return domain.Invoice{}, err
	}

	for attempt := 0; attempt < maxCASAttempts; attempt++ {
		current, err := s.repo.FindByID(ctx, s.db, accountID, invoiceID)
		if err != nil {
			return domain.Invoice{}, err
		}
		if current == nil {
			return domain.Invoice{}, domain.ErrNotFound
		}
		if current.Status.IsTerminal() {
			return domain.Invoice{}, domain.ErrInvalidTransition
		}
		if current.Status == target {
			return *current, nil
		}

		now := s.clock.Now().UTC()
		applied, err := s.repo.UpdateBalance(ctx, s.db, domain.BalanceUpdate{
			ID:                  current.ID,
			ExpectedOutstanding: current.AmountOutstanding,
			ExpectedStatus:      current.Status,
			Outstanding:         current.AmountOutstanding,
			Status:              target,
			UpdatedAt:           now,
		})
		if err != nil {
			return domain.Invoice{}, err
		}
		if applied {
			s.log.Info("invoice status corrected",
				zap.String("invoice_id", current.ID.String()),
				zap.String("from", string(current.Status)),
				zap.String("to", string(target)),
			)
			current.Status = target
			current.UpdatedAt = now
			return *current, nil
		}
	}
	return domain.Invoice{}, domain.ErrConcurrentUpdate
}

func (s *Service) SetOutreachPaused(ctx context.Context, id string, paused bool) (domain.Invoice, error) {
	accountID, invoiceID, err := s.scope(ctx, id)
	if err != nil {
		return domain.Invoice{}, err
	}
	updated, err := s.repo.SetOutreachPaused(ctx, s.db, accountID, invoiceID, paused)
	if err != nil {
		return domain.Invoice{}, err
	}
	if !updated {
		return domain.Invoice{}, domain.ErrNotFound
	}
	return s.GetByID(ctx, id)
}

func (s *Service) scope(ctx context.Context, id string) (snowflake.ID, snowflake.ID, error) {
	accountID, ok := accountcontext.AccountIDFromContext(ctx)
	if !ok {
		return 0, 0, domain.ErrInvalidAccount
	}
	invoiceID, err := snowflake.ParseString(strings.TrimSpace(id))
	if err != nil || invoiceID == 0 {
		return 0, 0, domain.ErrInvalidID
	}
	return accountID, invoiceID, nil
}
