package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	invoicedomain "github.com/smallbiznis/recouply/internal/invoice/domain"
	"github.com/smallbiznis/recouply/internal/outreach/domain"
	"gorm.io/gorm"
)

const draftColumns = `id, account_id, invoice_id, debtor_id, workflow_id, step_number, channel, recipient,
	subject, body, status, recommended_send_date, days_past_due, dispatch_attempts, last_dispatch_error,
	cancel_reason, approved_at, sent_at, cancelled_at, created_at, updated_at`

const workflowColumns = `id, account_id, invoice_id, aging_bucket, cadence_days, tone, is_active,
	template_approved, created_at, updated_at`

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

// ListCandidates returns active invoices whose outreach is not paused on the
// invoice or its debtor, across all accounts.
func (r *repo) ListCandidates(ctx context.Context, db *gorm.DB) ([]*domain.Candidate, error) {
	var items []*domain.Candidate
	err := db.WithContext(ctx).Raw(
		`SELECT i.id AS invoice_id, i.account_id, i.debtor_id, i.invoice_number, i.due_date,
			i.amount_outstanding, i.currency, i.status, i.aging_bucket, i.bucket_entered_at,
			d.name AS debtor_name, d.company_name, d.email, a.auto_approve_drafts AS auto_approve
		 FROM invoices i
		 JOIN debtors d ON d.id = i.debtor_id AND d.account_id = i.account_id
		 JOIN accounts a ON a.id = i.account_id
		 WHERE i.status IN ?
		   AND i.outreach_paused = ?
		   AND d.outreach_paused = ?
		   AND d.archived_at IS NULL
		 ORDER BY i.account_id ASC, i.id ASC`,
		invoicedomain.ActiveStatuses,
		false,
		false,
	).Scan(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

func (r *repo) ListActiveWorkflows(ctx context.Context, db *gorm.DB) ([]*domain.Workflow, error) {
	var items []*domain.Workflow
	err := db.WithContext(ctx).Raw(
		`SELECT `+workflowColumns+` FROM outreach_workflows WHERE is_active = ? ORDER BY id ASC`,
		true,
	).Scan(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

func (r *repo) InsertWorkflow(ctx context.Context, db *gorm.DB, workflow *domain.Workflow) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO outreach_workflows (`+workflowColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		workflow.ID,
		workflow.AccountID,
		workflow.InvoiceID,
		workflow.AgingBucket,
		workflow.CadenceDays,
		workflow.Tone,
		workflow.IsActive,
		workflow.TemplateApproved,
		workflow.CreatedAt,
		workflow.UpdatedAt,
	).Error
}

func (r *repo) FindApprovedTemplate(ctx context.Context, db *gorm.DB, workflowID snowflake.ID, step int) (*domain.StepTemplate, error) {
	var item domain.StepTemplate
	err := db.WithContext(ctx).Raw(
		`SELECT id, workflow_id, step_number, subject, body, status, created_at, updated_at
		 FROM outreach_step_templates
		 WHERE workflow_id = ? AND step_number = ? AND status = ?
		 LIMIT 1`,
		workflowID,
		step,
		domain.TemplateStatusApproved,
	).Scan(&item).Error
	if err != nil {
		return nil, err
	}
	if item.ID == 0 {
		return nil, nil
	}
	return &item, nil
}

func (r *repo) UpsertTemplate(ctx context.Context, db *gorm.DB, tmpl *domain.StepTemplate) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO outreach_step_templates (id, workflow_id, step_number, subject, body, status, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (workflow_id, step_number) DO UPDATE
		 SET subject = excluded.subject, body = excluded.body, status = excluded.status, updated_at = excluded.updated_at`,
		tmpl.ID,
		tmpl.WorkflowID,
		tmpl.StepNumber,
		tmpl.Subject,
		tmpl.Body,
		tmpl.Status,
		tmpl.CreatedAt,
		tmpl.UpdatedAt,
	).Error
}

// InsertDraft reports false when a draft for the same invoice and step
// already exists.
func (r *repo) InsertDraft(ctx context.Context, db *gorm.DB, draft *domain.Draft) (bool, error) {
	res := db.WithContext(ctx).Exec(
		`INSERT INTO outreach_drafts (`+draftColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (invoice_id, step_number) DO NOTHING`,
		draft.ID,
		draft.AccountID,
		draft.InvoiceID,
		draft.DebtorID,
		draft.WorkflowID,
		draft.StepNumber,
		draft.Channel,
		draft.Recipient,
		draft.Subject,
		draft.Body,
		draft.Status,
		draft.RecommendedSendDate,
		draft.DaysPastDue,
		draft.DispatchAttempts,
		draft.LastDispatchError,
		draft.CancelReason,
		draft.ApprovedAt,
		draft.SentAt,
		draft.CancelledAt,
		draft.CreatedAt,
		draft.UpdatedAt,
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// CancelStale retires in-flight drafts whose invoice left the active set and
// returns how many were cancelled from each status.
func (r *repo) CancelStale(ctx context.Context, db *gorm.DB, now time.Time) (map[domain.DraftStatus]int64, error) {
	counts := make(map[domain.DraftStatus]int64, len(domain.InFlightStatuses))
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, status := range domain.InFlightStatuses {
			res := tx.Exec(
				`UPDATE outreach_drafts
				 SET status = ?,
					 cancelled_at = ?,
					 updated_at = ?,
					 cancel_reason = (SELECT 'invoice_' || lower(i.status) FROM invoices i WHERE i.id = outreach_drafts.invoice_id)
				 WHERE status = ?
				   AND invoice_id IN (SELECT id FROM invoices WHERE status NOT IN ?)`,
				domain.DraftStatusCancelled,
				now,
				now,
				status,
				invoicedomain.ActiveStatuses,
			)
			if res.Error != nil {
				return res.Error
			}
			counts[status] = res.RowsAffected
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return counts, nil
}

// ListDispatchable returns approved drafts due by today whose invoice is
// still active and not paused.
func (r *repo) ListDispatchable(ctx context.Context, db *gorm.DB, today time.Time, limit int) ([]*domain.Draft, error) {
	var items []*domain.Draft
	err := db.WithContext(ctx).Raw(
		`SELECT od.id, od.account_id, od.invoice_id, od.debtor_id, od.workflow_id, od.step_number, od.channel,
			od.recipient, od.subject, od.body, od.status, od.recommended_send_date, od.days_past_due,
			od.dispatch_attempts, od.last_dispatch_error, od.cancel_reason, od.approved_at, od.sent_at,
			od.cancelled_at, od.created_at, od.updated_at
		 FROM outreach_drafts od
		 JOIN invoices i ON i.id = od.invoice_id
		 JOIN debtors d ON d.id = od.debtor_id
		 WHERE od.status = ?
		   AND od.recommended_send_date <= ?
		   AND i.status IN ?
		   AND i.outreach_paused = ?
		   AND d.outreach_paused = ?
		 ORDER BY od.recommended_send_date ASC, od.id ASC
		 LIMIT ?`,
		domain.DraftStatusApproved,
		today,
		invoicedomain.ActiveStatuses,
		false,
		false,
		limit,
	).Scan(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

func (r *repo) Approve(ctx context.Context, db *gorm.DB, accountID, id snowflake.ID, now time.Time) (bool, error) {
	res := db.WithContext(ctx).Exec(
		`UPDATE outreach_drafts
		 SET status = ?, approved_at = ?, updated_at = ?
		 WHERE account_id = ? AND id = ? AND status = ?`,
		domain.DraftStatusApproved,
		now,
		now,
		accountID,
		id,
		domain.DraftStatusPendingApproval,
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repo) MarkSent(ctx context.Context, db *gorm.DB, id snowflake.ID, now time.Time) (bool, error) {
	res := db.WithContext(ctx).Exec(
		`UPDATE outreach_drafts
		 SET status = ?, sent_at = ?, last_dispatch_error = '', dispatch_attempts = dispatch_attempts + 1, updated_at = ?
		 WHERE id = ? AND status = ?`,
		domain.DraftStatusSent,
		now,
		now,
		id,
		domain.DraftStatusApproved,
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repo) RecordDispatchFailure(ctx context.Context, db *gorm.DB, failure domain.DispatchFailure) (bool, error) {
	res := db.WithContext(ctx).Exec(
		`UPDATE outreach_drafts
		 SET dispatch_attempts = dispatch_attempts + 1, last_dispatch_error = ?, updated_at = ?
		 WHERE id = ? AND status = ?`,
		failure.Error,
		failure.At,
		failure.DraftID,
		domain.DraftStatusApproved,
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repo) FindDraft(ctx context.Context, db *gorm.DB, accountID, id snowflake.ID) (*domain.Draft, error) {
	var item domain.Draft
	err := db.WithContext(ctx).Raw(
		`SELECT `+draftColumns+` FROM outreach_drafts WHERE account_id = ? AND id = ?`,
		accountID,
		id,
	).Scan(&item).Error
	if err != nil {
		return nil, err
	}
	if item.ID == 0 {
		return nil, nil
	}
	return &item, nil
}

// ListDrafts returns up to PageSize+1 rows ordered by (created_at, id) so the
// caller can tell whether another page exists.
func (r *repo) ListDrafts(ctx context.Context, db *gorm.DB, filter domain.ListDraftsFilter) ([]*domain.Draft, error) {
	stmt := `SELECT ` + draftColumns + ` FROM outreach_drafts WHERE account_id = ?`
	args := []any{filter.AccountID}
	if filter.Status != "" {
		stmt += ` AND status = ?`
		args = append(args, filter.Status)
	}
	if filter.InvoiceID != 0 {
		stmt += ` AND invoice_id = ?`
		args = append(args, filter.InvoiceID)
	}
	if filter.AfterCreatedAt != nil {
		stmt += ` AND (created_at > ? OR (created_at = ? AND id > ?))`
		args = append(args, *filter.AfterCreatedAt, *filter.AfterCreatedAt, filter.AfterID)
	}
	stmt += ` ORDER BY created_at ASC, id ASC LIMIT ?`
	args = append(args, filter.PageSize+1)

	var items []*domain.Draft
	if err := db.WithContext(ctx).Raw(stmt, args...).Scan(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}
