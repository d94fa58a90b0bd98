package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

// DispatchFailure records a failed hand-off; the draft stays approved.
type DispatchFailure struct {
	DraftID snowflake.ID
	Error   string
	At      time.Time
}

type ListDraftsFilter struct {
	AccountID snowflake.ID
	Status    DraftStatus
	InvoiceID snowflake.ID
	PageSize  int
	// Cursor positions are (created_at, id) of the last row of the previous page.
	AfterCreatedAt *time.Time
	AfterID        snowflake.ID
}

type Repository interface {
	ListCandidates(ctx context.Context, db *gorm.DB) ([]*Candidate, error)
	ListActiveWorkflows(ctx context.Context, db *gorm.DB) ([]*Workflow, error)
	InsertWorkflow(ctx context.Context, db *gorm.DB, workflow *Workflow) error
	FindApprovedTemplate(ctx context.Context, db *gorm.DB, workflowID snowflake.ID, step int) (*StepTemplate, error)
	UpsertTemplate(ctx context.Context, db *gorm.DB, tmpl *StepTemplate) error
	InsertDraft(ctx context.Context, db *gorm.DB, draft *Draft) (bool, error)
	CancelStale(ctx context.Context, db *gorm.DB, now time.Time) (map[DraftStatus]int64, error)
	ListDispatchable(ctx context.Context, db *gorm.DB, today time.Time, limit int) ([]*Draft, error)
	Approve(ctx context.Context, db *gorm.DB, accountID, id snowflake.ID, now time.Time) (bool, error)
	MarkSent(ctx context.Context, db *gorm.DB, id snowflake.ID, now time.Time) (bool, error)
	RecordDispatchFailure(ctx context.Context, db *gorm.DB, failure DispatchFailure) (bool, error)
	FindDraft(ctx context.Context, db *gorm.DB, accountID, id snowflake.ID) (*Draft, error)
	ListDrafts(ctx context.Context, db *gorm.DB, filter ListDraftsFilter) ([]*Draft, error)
}
