package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/recouply/internal/accountcontext"
	"github.com/smallbiznis/recouply/internal/batch"
	brandingdomain "github.com/smallbiznis/recouply/internal/branding/domain"
	"github.com/smallbiznis/recouply/internal/clock"
	"github.com/smallbiznis/recouply/internal/config"
	invoicedomain "github.com/smallbiznis/recouply/internal/invoice/domain"
	obsmetrics "github.com/smallbiznis/recouply/internal/observability/metrics"
	"github.com/smallbiznis/recouply/internal/outreach/cadence"
	"github.com/smallbiznis/recouply/internal/outreach/domain"
	"github.com/smallbiznis/recouply/internal/outreach/template"
	"github.com/smallbiznis/recouply/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	jobGenerate    = "generate_drafts"
	jobDispatch    = "dispatch_drafts"
	dispatchLimit  = 500
	countGenerated = "generated"
	countSent      = "sent"
)

type Params struct {
	fx.In

	DB          *gorm.DB
	Log         *zap.Logger
	GenID       *snowflake.Node
	Clock       clock.Clock
	Repo        domain.Repository
	Branding    brandingdomain.Service
	Collections *config.CollectionsConfigHolder
	Dispatcher  domain.Dispatcher   `optional:"true"`
	ObsMetrics  *obsmetrics.Metrics `optional:"true"`
}

type Service struct {
	db          *gorm.DB
	log         *zap.Logger
	genID       *snowflake.Node
	clock       clock.Clock
	repo        domain.Repository
	branding    brandingdomain.Service
	collections *config.CollectionsConfigHolder
	dispatcher  domain.Dispatcher
	metrics     *obsmetrics.Metrics
}

func New(p Params) domain.Service {
	return &Service{
		db:          p.DB,
		log:         p.Log.Named("outreach.service"),
		genID:       p.GenID,
		clock:       p.Clock,
		repo:        p.Repo,
		branding:    p.Branding,
		collections: p.Collections,
		dispatcher:  p.Dispatcher,
		metrics:     p.ObsMetrics,
	}
}

// CancelStale retires pending and approved drafts of invoices that are no
// longer active. It must run before Generate in every cycle.
func (s *Service) CancelStale(ctx context.Context, opts domain.RunOptions) (domain.PhaseResult, error) {
	counts, err := s.repo.CancelStale(ctx, s.db, s.clock.Now().UTC())
	if err != nil {
		return domain.PhaseResult{}, err
	}

	var total int64
	for from, n := range counts {
		total += n
		obsmetrics.Engine().AddDraftTransition(string(from), string(domain.DraftStatusCancelled), n)
	}
	s.metrics.RecordDraftsCancelled(ctx, total)
	if total > 0 {
		s.log.Info("stale drafts cancelled", zap.String("run_id", opts.RunID), zap.Int64("count", total))
	}
	return domain.PhaseResult{Processed: int(total), Cancelled: total}, nil
}

// Generate creates at most one draft per (invoice, step) for every cadence
// step inside today's window. Conflicts with concurrent runs are silent.
func (s *Service) Generate(ctx context.Context, opts domain.RunOptions) (domain.PhaseResult, error) {
	today := s.today(opts)
	cfg := s.collections.Get()
	window := cadence.Window{Lookahead: cfg.LookaheadDays, CatchUp: cfg.CatchUpDays}

	candidates, err := s.repo.ListCandidates(ctx, s.db)
	if err != nil {
		return domain.PhaseResult{}, err
	}
	workflows, err := s.repo.ListActiveWorkflows(ctx, s.db)
	if err != nil {
		return domain.PhaseResult{}, err
	}
	resolver := newWorkflowResolver(workflows)

	collector := batch.NewCollector()
	err = batch.ForEach(ctx, cfg.Workers, candidates, func(ctx context.Context, _ int, c *domain.Candidate) error {
		if c == nil {
			return nil
		}
		workflow := resolver.resolve(c)
		if workflow == nil {
			return nil
		}
		if err := cadence.Validate(workflow.CadenceDays); err != nil {
			s.fail(collector, jobGenerate, batch.NewRowError(0, "invoice "+c.InvoiceID.String(),
				fmt.Errorf("%w: workflow %s: %v", batch.ErrValidation, workflow.ID, err)))
			return nil
		}
		for _, step := range cadence.Evaluate(c.BucketEnteredAt, today, window, workflow.CadenceDays) {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			created, err := s.generateStep(ctx, cfg, c, workflow, step)
			if err != nil {
				s.fail(collector, jobGenerate, batch.NewRowError(0,
					fmt.Sprintf("invoice %s step %d", c.InvoiceNumber, step.Number), err))
				continue
			}
			if created {
				collector.Inc(countGenerated, 1)
			}
		}
		return nil
	})
	if err != nil {
		return domain.PhaseResult{}, err
	}

	obsmetrics.Engine().AddRowsProcessed(jobGenerate, "invoice", len(candidates))
	return domain.PhaseResult{
		Processed: len(candidates),
		Generated: collector.Count(countGenerated),
		Errors:    collector.Messages(),
	}, nil
}

func (s *Service) generateStep(ctx context.Context, cfg config.CollectionsConfig, c *domain.Candidate, workflow *domain.Workflow, step cadence.Step) (bool, error) {
	msg, err := s.messageFor(ctx, cfg.TemplateTimeout, workflow.ID, step.Number)
	if err != nil {
		return false, err
	}

	brandCtx, cancel := context.WithTimeout(ctx, cfg.BrandingTimeout)
	branding, err := s.branding.Get(brandCtx, c.AccountID)
	cancel()
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return false, batch.Upstreamf("branding lookup timed out")
		}
		return false, err
	}

	vars := template.BuildVars(*c, branding, step.TargetDate)
	status := domain.DraftStatusPendingApproval
	now := s.clock.Now().UTC()
	var approvedAt *time.Time
	if workflow.TemplateApproved || c.AutoApprove {
		status = domain.DraftStatusApproved
		approvedAt = &now
	}
	workflowID := workflow.ID

	draft := domain.Draft{
		ID:                  s.genID.Generate(),
		AccountID:           c.AccountID,
		InvoiceID:           c.InvoiceID,
		DebtorID:            c.DebtorID,
		WorkflowID:          &workflowID,
		StepNumber:          step.Number,
		Channel:             domain.ChannelEmail,
		Recipient:           strings.TrimSpace(c.Email),
		Subject:             template.Render(msg.Subject, vars),
		Body:                template.Render(msg.Body, vars),
		Status:              status,
		RecommendedSendDate: step.TargetDate,
		DaysPastDue:         max(invoicedomain.DaysPastDue(c.DueDate, step.TargetDate), 0),
		ApprovedAt:          approvedAt,
		CreatedAt:           now,
		UpdatedAt:           now,
	}
	inserted, err := s.repo.InsertDraft(ctx, s.db, &draft)
	if err != nil {
		if db.IsDuplicateKeyErr(err) {
			return false, nil
		}
		return false, err
	}
	if !inserted {
		return false, nil
	}

	obsmetrics.Engine().AddDraftTransition(obsmetrics.DraftStatusAbsent, string(status), 1)
	s.metrics.RecordDraftGenerated(ctx, string(status))
	s.log.Debug("draft generated",
		zap.String("invoice_id", c.InvoiceID.String()),
		zap.Int("step", step.Number),
		zap.String("status", string(status)),
		zap.Time("recommended_send_date", step.TargetDate),
	)
	return true, nil
}

// messageFor returns the approved step template, or the generic ladder when
// none exists. A slow lookup is an upstream failure, never a fallback.
func (s *Service) messageFor(ctx context.Context, timeout time.Duration, workflowID snowflake.ID, step int) (template.Message, error) {
	lookupCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	tmpl, err := s.repo.FindApprovedTemplate(lookupCtx, s.db, workflowID, step)
	if err != nil {
		if errors.Is(lookupCtx.Err(), context.DeadlineExceeded) {
			return template.Message{}, batch.Upstreamf("template lookup timed out")
		}
		return template.Message{}, err
	}
	if tmpl == nil {
		return template.Fallback(step), nil
	}
	return template.Message{Subject: tmpl.Subject, Body: tmpl.Body}, nil
}

// Dispatch hands approved drafts due by today to the dispatcher. A failed
// hand-off leaves the draft approved for the next cycle.
func (s *Service) Dispatch(ctx context.Context, opts domain.RunOptions) (domain.PhaseResult, error) {
	if s.dispatcher == nil {
		s.log.Debug("no dispatcher configured, skipping hand-off", zap.String("run_id", opts.RunID))
		return domain.PhaseResult{}, nil
	}
	cfg := s.collections.Get()
	drafts, err := s.repo.ListDispatchable(ctx, s.db, s.today(opts), dispatchLimit)
	if err != nil {
		return domain.PhaseResult{}, err
	}

	collector := batch.NewCollector()
	err = batch.ForEach(ctx, cfg.Workers, drafts, func(ctx context.Context, _ int, draft *domain.Draft) error {
		if draft == nil {
			return nil
		}
		ref := "draft " + draft.ID.String()
		if err := s.dispatchOne(ctx, cfg.DispatchTimeout, draft); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			s.fail(collector, jobDispatch, batch.NewRowError(0, ref, err))
			return nil
		}
		collector.Inc(countSent, 1)
		return nil
	})
	if err != nil {
		return domain.PhaseResult{}, err
	}

	obsmetrics.Engine().AddRowsProcessed(jobDispatch, "draft", len(drafts))
	return domain.PhaseResult{
		Processed: len(drafts),
		Sent:      collector.Count(countSent),
		Errors:    collector.Messages(),
	}, nil
}

func (s *Service) dispatchOne(ctx context.Context, timeout time.Duration, draft *domain.Draft) error {
	var sendErr error
	if draft.Recipient == "" {
		sendErr = batch.Validationf("draft has no recipient")
	} else {
		sendCtx, cancel := context.WithTimeout(ctx, timeout)
		err := s.dispatcher.Dispatch(sendCtx, domain.DispatchRequest{
			DraftID:   draft.ID.String(),
			Channel:   draft.Channel,
			Recipient: draft.Recipient,
			Subject:   draft.Subject,
			Body:      draft.Body,
		})
		cancel()
		if err != nil {
			sendErr = batch.Upstreamf("dispatch: %v", err)
		}
	}

	now := s.clock.Now().UTC()
	if sendErr != nil {
		s.metrics.RecordDraftDispatched(ctx, "failed")
		if _, err := s.repo.RecordDispatchFailure(ctx, s.db, domain.DispatchFailure{
			DraftID: draft.ID,
			Error:   sendErr.Error(),
			At:      now,
		}); err != nil {
			return errors.Join(sendErr, err)
		}
		return sendErr
	}

	updated, err := s.repo.MarkSent(ctx, s.db, draft.ID, now)
	if err != nil {
		return err
	}
	if !updated {
		// Cancelled or sent by someone else while in flight.
		return fmt.Errorf("draft %s changed during dispatch: %w", draft.ID, batch.ErrConflictIgnored)
	}
	obsmetrics.Engine().AddDraftTransition(string(domain.DraftStatusApproved), string(domain.DraftStatusSent), 1)
	s.metrics.RecordDraftDispatched(ctx, "sent")
	return nil
}

func (s *Service) Approve(ctx context.Context, id string) (domain.Draft, error) {
	accountID, draftID, err := s.scope(ctx, id)
	if err != nil {
		return domain.Draft{}, err
	}
	ok, err := s.repo.Approve(ctx, s.db, accountID, draftID, s.clock.Now().UTC())
	if err != nil {
		return domain.Draft{}, err
	}
	draft, err := s.find(ctx, accountID, draftID)
	if err != nil {
		return domain.Draft{}, err
	}
	if !ok {
		if draft.Status == domain.DraftStatusApproved {
			return draft, nil
		}
		return domain.Draft{}, domain.ErrInvalidTransition
	}
	obsmetrics.Engine().AddDraftTransition(string(domain.DraftStatusPendingApproval), string(domain.DraftStatusApproved), 1)
	return draft, nil
}

// RecordDispatchResult applies an asynchronous delivery report. Failures keep
// the draft approved so the next cycle retries it.
func (s *Service) RecordDispatchResult(ctx context.Context, id string, req domain.DispatchResultRequest) (domain.Draft, error) {
	accountID, draftID, err := s.scope(ctx, id)
	if err != nil {
		return domain.Draft{}, err
	}
	draft, err := s.find(ctx, accountID, draftID)
	if err != nil {
		return domain.Draft{}, err
	}
	if req.Success && draft.Status == domain.DraftStatusSent {
		return draft, nil
	}

	now := s.clock.Now().UTC()
	var ok bool
	if req.Success {
		ok, err = s.repo.MarkSent(ctx, s.db, draftID, now)
	} else {
		reason := strings.TrimSpace(req.Error)
		if reason == "" {
			reason = "dispatch failed"
		}
		ok, err = s.repo.RecordDispatchFailure(ctx, s.db, domain.DispatchFailure{DraftID: draftID, Error: reason, At: now})
	}
	if err != nil {
		return domain.Draft{}, err
	}
	if !ok {
		return domain.Draft{}, domain.ErrInvalidTransition
	}
	if req.Success {
		obsmetrics.Engine().AddDraftTransition(string(domain.DraftStatusApproved), string(domain.DraftStatusSent), 1)
		s.metrics.RecordDraftDispatched(ctx, "sent")
	} else {
		s.metrics.RecordDraftDispatched(ctx, "failed")
	}
	return s.find(ctx, accountID, draftID)
}

func (s *Service) scope(ctx context.Context, id string) (snowflake.ID, snowflake.ID, error) {
	accountID, ok := accountcontext.AccountIDFromContext(ctx)
	if !ok {
		return 0, 0, domain.ErrInvalidAccount
	}
	draftID, err := snowflake.ParseString(strings.TrimSpace(id))
	if err != nil || draftID == 0 {
		return 0, 0, domain.ErrInvalidID
	}
	return accountID, draftID, nil
}

func (s *Service) find(ctx context.Context, accountID, draftID snowflake.ID) (domain.Draft, error) {
	draft, err := s.repo.FindDraft(ctx, s.db, accountID, draftID)
	if err != nil {
		return domain.Draft{}, err
	}
	if draft == nil {
		return domain.Draft{}, domain.ErrNotFound
	}
	return *draft, nil
}

func (s *Service) today(opts domain.RunOptions) time.Time {
	if !opts.Today.IsZero() {
		return clock.StartOfDay(opts.Today)
	}
	return clock.Today(s.clock)
}

func (s *Service) fail(collector *batch.Collector, job string, rowErr batch.RowError) {
	if !collector.Fail(rowErr) {
		return
	}
	obsmetrics.Engine().IncRowError(job, rowErr.Err)
	s.log.Warn("outreach row failed",
		zap.String("job", job),
		zap.String("ref", rowErr.Ref),
		zap.String("error_type", obsmetrics.ClassifyEngineErrorType(rowErr.Err)),
		zap.Bool("retryable", obsmetrics.IsEngineErrorRetryable(rowErr.Err)),
		zap.Error(rowErr.Err),
	)
}
