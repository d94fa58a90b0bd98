package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/recouply/internal/accountcontext"
	"github.com/smallbiznis/recouply/internal/outreach/cadence"
	"github.com/smallbiznis/recouply/internal/outreach/domain"
	"github.com/smallbiznis/recouply/pkg/db/pagination"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const (
	defaultPageSize = 50
	maxPageSize     = 250
	defaultTone     = "friendly"
)

// workflowResolver picks the most specific active workflow for an invoice:
// its own override, then its account's bucket workflow, then the account
// default. The lowest id wins within a tier.
type workflowResolver struct {
	byInvoice map[snowflake.ID]*domain.Workflow
	byBucket  map[string]*domain.Workflow
	byAccount map[snowflake.ID]*domain.Workflow
}

func newWorkflowResolver(workflows []*domain.Workflow) *workflowResolver {
	r := &workflowResolver{
		byInvoice: map[snowflake.ID]*domain.Workflow{},
		byBucket:  map[string]*domain.Workflow{},
		byAccount: map[snowflake.ID]*domain.Workflow{},
	}
	for _, wf := range workflows {
		if wf == nil {
			continue
		}
		switch {
		case wf.InvoiceID != nil:
			if _, ok := r.byInvoice[*wf.InvoiceID]; !ok {
				r.byInvoice[*wf.InvoiceID] = wf
			}
		case wf.AgingBucket != nil && *wf.AgingBucket != "":
			key := bucketKey(wf.AccountID, *wf.AgingBucket)
			if _, ok := r.byBucket[key]; !ok {
				r.byBucket[key] = wf
			}
		default:
			if _, ok := r.byAccount[wf.AccountID]; !ok {
				r.byAccount[wf.AccountID] = wf
			}
		}
	}
	return r
}

func (r *workflowResolver) resolve(c *domain.Candidate) *domain.Workflow {
	if wf, ok := r.byInvoice[c.InvoiceID]; ok && wf.AccountID == c.AccountID {
		return wf
	}
	if wf, ok := r.byBucket[bucketKey(c.AccountID, c.AgingBucket)]; ok {
		return wf
	}
	return r.byAccount[c.AccountID]
}

func bucketKey(accountID snowflake.ID, bucket string) string {
	return accountID.String() + "|" + strings.ToLower(strings.TrimSpace(bucket))
}

// CreateWorkflow stores a workflow and its step templates together.
func (s *Service) CreateWorkflow(ctx context.Context, req domain.CreateWorkflowRequest) (domain.Workflow, error) {
	accountID, ok := accountcontext.AccountIDFromContext(ctx)
	if !ok {
		return domain.Workflow{}, domain.ErrInvalidAccount
	}
	if len(req.CadenceDays) == 0 {
		return domain.Workflow{}, fmt.Errorf("%w: cadence_days is required", domain.ErrInvalidCadence)
	}
	if err := cadence.Validate(req.CadenceDays); err != nil {
		return domain.Workflow{}, fmt.Errorf("%w: %v", domain.ErrInvalidCadence, err)
	}

	now := s.clock.Now().UTC()
	workflow := domain.Workflow{
		ID:               s.genID.Generate(),
		AccountID:        accountID,
		CadenceDays:      datatypes.JSONSlice[int](req.CadenceDays),
		Tone:             strings.TrimSpace(req.Tone),
		IsActive:         true,
		TemplateApproved: req.TemplateApproved,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if workflow.Tone == "" {
		workflow.Tone = defaultTone
	}
	if raw := strings.TrimSpace(req.InvoiceID); raw != "" {
		invoiceID, err := snowflake.ParseString(raw)
		if err != nil || invoiceID == 0 {
			return domain.Workflow{}, domain.ErrInvalidID
		}
		workflow.InvoiceID = &invoiceID
	}
	if bucket := strings.TrimSpace(req.AgingBucket); bucket != "" {
		if !s.knownBucket(bucket) {
			return domain.Workflow{}, fmt.Errorf("%w: unknown aging bucket %q", domain.ErrInvalidCadence, bucket)
		}
		workflow.AgingBucket = &bucket
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.repo.InsertWorkflow(ctx, tx, &workflow); err != nil {
			return err
		}
		for _, step := range req.Steps {
			if step.StepNumber < 1 || step.StepNumber > len(req.CadenceDays) {
				return fmt.Errorf("%w: step %d outside cadence", domain.ErrInvalidCadence, step.StepNumber)
			}
			status := domain.TemplateStatusDraft
			if step.Approved {
				status = domain.TemplateStatusApproved
			}
			if err := s.repo.UpsertTemplate(ctx, tx, &domain.StepTemplate{
				ID:         s.genID.Generate(),
				WorkflowID: workflow.ID,
				StepNumber: step.StepNumber,
				Subject:    step.Subject,
				Body:       step.Body,
				Status:     status,
				CreatedAt:  now,
				UpdatedAt:  now,
			}); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return domain.Workflow{}, err
	}
	return workflow, nil
}

func (s *Service) knownBucket(label string) bool {
	for _, bucket := range s.collections.Get().AgingBuckets {
		if strings.EqualFold(bucket.Label, label) {
			return true
		}
	}
	return false
}

func (s *Service) ListDrafts(ctx context.Context, req domain.ListDraftsRequest) (domain.ListDraftsResponse, error) {
	accountID, ok := accountcontext.AccountIDFromContext(ctx)
	if !ok {
		return domain.ListDraftsResponse{}, domain.ErrInvalidAccount
	}

	filter := domain.ListDraftsFilter{
		AccountID: accountID,
		Status:    domain.DraftStatus(strings.TrimSpace(req.Status)),
		PageSize:  req.PageSize,
	}
	if filter.PageSize <= 0 {
		filter.PageSize = defaultPageSize
	}
	filter.PageSize = min(filter.PageSize, maxPageSize)
	if raw := strings.TrimSpace(req.InvoiceID); raw != "" {
		invoiceID, err := snowflake.ParseString(raw)
		if err != nil {
			return domain.ListDraftsResponse{}, domain.ErrInvalidID
		}
		filter.InvoiceID = invoiceID
	}
	if token := strings.TrimSpace(req.PageToken); token != "" {
		cursor, err := pagination.DecodeCursor(token)
		if err != nil {
			return domain.ListDraftsResponse{}, domain.ErrInvalidPageToken
		}
		createdAt, err := time.Parse(time.RFC3339Nano, cursor.CreatedAt)
		if err != nil {
			return domain.ListDraftsResponse{}, domain.ErrInvalidPageToken
		}
		afterID, err := snowflake.ParseString(cursor.ID)
		if err != nil {
			return domain.ListDraftsResponse{}, domain.ErrInvalidPageToken
		}
		filter.AfterCreatedAt = &createdAt
		filter.AfterID = afterID
	}

	items, err := s.repo.ListDrafts(ctx, s.db, filter)
	if err != nil {
		return domain.ListDraftsResponse{}, err
	}

	pageInfo := pagination.BuildCursorPageInfo(items, int32(filter.PageSize), func(d *domain.Draft) string {
		token, err := pagination.EncodeCursor(pagination.Cursor{
			ID:        d.ID.String(),
			CreatedAt: d.CreatedAt.UTC().Format(time.RFC3339Nano),
		})
		if err != nil {
			return ""
		}
		return token
	})
	if len(items) > filter.PageSize {
		items = items[:filter.PageSize]
	}

	resp := domain.ListDraftsResponse{Drafts: make([]domain.Draft, 0, len(items)), HasMore: pageInfo.HasMore}
	for _, item := range items {
		resp.Drafts = append(resp.Drafts, *item)
	}
	if pageInfo.HasMore {
		resp.NextPageToken = pageInfo.NextPageToken
	}
	return resp, nil
}
